// Package locks implements advisory per-task edit locks with a TTL. A lock
// is acquired when a user opens a task for editing and released on save or
// cancel; stale locks are taken over lazily once the TTL elapses, so no
// background sweeper is needed.
package locks

import (
	"sync"
	"time"

	"congresstwin/internal/planner"
)

// DefaultTTL is how long a lock survives without renewal.
const DefaultTTL = 15 * time.Minute

// Store persists lock records. The sqlite repository implements it; tests
// use MemStore.
type Store interface {
	GetLock(planID, taskID string) (*planner.TaskLock, error)
	PutLock(lock *planner.TaskLock) error
	DeleteLock(planID, taskID string) error
}

// Manager serializes lock transitions over a Store. The mutex keeps the
// read-check-write sequence atomic; all expiry is evaluated lazily against
// the injected clock.
type Manager struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
}

// NewManager wires a manager over a store. now may be nil (wall clock).
func NewManager(store Store, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, now: now}
}

// Acquire takes or renews the lock on (planID, taskID) for userID. A live
// lock held by someone else fails with LockedByOtherError; an expired one is
// taken over. ttl <= 0 means DefaultTTL.
func (m *Manager) Acquire(planID, taskID, userID string, ttl time.Duration) (*planner.TaskLock, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cur, err := m.store.GetLock(planID, taskID)
	if err != nil {
		return nil, err
	}
	if cur != nil && !cur.Expired(now) && cur.UserID != userID {
		return nil, &planner.LockedByOtherError{
			PlanID: planID, TaskID: taskID, Holder: cur.UserID, AcquiredAt: cur.AcquiredAt,
		}
	}

	lock := &planner.TaskLock{
		PlanID: planID, TaskID: taskID, UserID: userID,
		AcquiredAt: now, TTL: ttl,
	}
	if err := m.store.PutLock(lock); err != nil {
		return nil, err
	}
	return lock, nil
}

// Release drops the caller's lock. Fails with NotHolder when there is no
// live lock or it belongs to someone else.
func (m *Manager) Release(planID, taskID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.store.GetLock(planID, taskID)
	if err != nil {
		return err
	}
	if cur == nil || cur.Expired(m.now()) || cur.UserID != userID {
		return planner.ErrNotHolder
	}
	return m.store.DeleteLock(planID, taskID)
}

// Get returns the live lock on (planID, taskID), or nil. Expired records are
// reaped on the way out.
func (m *Manager) Get(planID, taskID string) (*planner.TaskLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.store.GetLock(planID, taskID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, nil
	}
	if cur.Expired(m.now()) {
		if err := m.store.DeleteLock(planID, taskID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return cur, nil
}

// Check enforces the mutation contract: the task must be unlocked or locked
// by userID.
func (m *Manager) Check(planID, taskID, userID string) error {
	cur, err := m.Get(planID, taskID)
	if err != nil {
		return err
	}
	if cur != nil && cur.UserID != userID {
		return &planner.LockedByOtherError{
			PlanID: planID, TaskID: taskID, Holder: cur.UserID, AcquiredAt: cur.AcquiredAt,
		}
	}
	return nil
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu    sync.Mutex
	locks map[[2]string]planner.TaskLock
}

// NewMemStore returns an empty in-memory lock store.
func NewMemStore() *MemStore {
	return &MemStore{locks: make(map[[2]string]planner.TaskLock)}
}

func (s *MemStore) GetLock(planID, taskID string) (*planner.TaskLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[[2]string{planID, taskID}]; ok {
		cp := l
		return &cp, nil
	}
	return nil, nil
}

func (s *MemStore) PutLock(lock *planner.TaskLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[[2]string{lock.PlanID, lock.TaskID}] = *lock
	return nil
}

func (s *MemStore) DeleteLock(planID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, [2]string{planID, taskID})
	return nil
}
