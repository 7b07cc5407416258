package locks

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"congresstwin/internal/planner"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager() (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	return NewManager(NewMemStore(), clock.now), clock
}

func TestAcquireContention(t *testing.T) {
	m, clock := newTestManager()

	_, err := m.Acquire("p1", "T1", "userA", 0)
	require.NoError(t, err)

	_, err = m.Acquire("p1", "T1", "userB", 0)
	require.Error(t, err)
	var lbo *planner.LockedByOtherError
	require.True(t, errors.As(err, &lbo))
	assert.Equal(t, "userA", lbo.Holder)

	// Expiry frees the lock for takeover.
	clock.advance(16 * time.Minute)
	lock, err := m.Acquire("p1", "T1", "userB", 0)
	require.NoError(t, err)
	assert.Equal(t, "userB", lock.UserID)
}

func TestAcquireRenews(t *testing.T) {
	m, clock := newTestManager()

	first, err := m.Acquire("p1", "T1", "userA", 0)
	require.NoError(t, err)

	clock.advance(10 * time.Minute)
	renewed, err := m.Acquire("p1", "T1", "userA", 0)
	require.NoError(t, err)
	assert.True(t, renewed.AcquiredAt.After(first.AcquiredAt), "renewal restarts the TTL")

	clock.advance(10 * time.Minute)
	lock, err := m.Get("p1", "T1")
	require.NoError(t, err)
	require.NotNil(t, lock, "still live because the renewal reset the clock")
	assert.Equal(t, "userA", lock.UserID)
}

func TestReleaseSemantics(t *testing.T) {
	m, clock := newTestManager()

	require.ErrorIs(t, m.Release("p1", "T1", "userA"), planner.ErrNotHolder)

	_, err := m.Acquire("p1", "T1", "userA", 0)
	require.NoError(t, err)
	require.ErrorIs(t, m.Release("p1", "T1", "userB"), planner.ErrNotHolder)
	require.NoError(t, m.Release("p1", "T1", "userA"))

	lock, err := m.Get("p1", "T1")
	require.NoError(t, err)
	assert.Nil(t, lock)

	// Releasing an expired lock is NotHolder, not a silent success.
	_, err = m.Acquire("p1", "T1", "userA", time.Minute)
	require.NoError(t, err)
	clock.advance(2 * time.Minute)
	require.ErrorIs(t, m.Release("p1", "T1", "userA"), planner.ErrNotHolder)
}

func TestGetReapsExpired(t *testing.T) {
	m, clock := newTestManager()
	store := m.store.(*MemStore)

	_, err := m.Acquire("p1", "T1", "userA", time.Minute)
	require.NoError(t, err)
	clock.advance(2 * time.Minute)

	lock, err := m.Get("p1", "T1")
	require.NoError(t, err)
	assert.Nil(t, lock)

	raw, err := store.GetLock("p1", "T1")
	require.NoError(t, err)
	assert.Nil(t, raw, "expired record was deleted lazily")
}

func TestCheckMutationContract(t *testing.T) {
	m, _ := newTestManager()

	require.NoError(t, m.Check("p1", "T1", "userA"), "unlocked task is editable")

	_, err := m.Acquire("p1", "T1", "userA", 0)
	require.NoError(t, err)
	require.NoError(t, m.Check("p1", "T1", "userA"), "holder may edit")
	assert.True(t, planner.IsLockedByOther(m.Check("p1", "T1", "userB")))
}

func TestLocksAreIndependentPerTask(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.Acquire("p1", "T1", "userA", 0)
	require.NoError(t, err)
	_, err = m.Acquire("p1", "T2", "userB", 0)
	require.NoError(t, err)
	_, err = m.Acquire("p2", "T1", "userB", 0)
	require.NoError(t, err)
}
