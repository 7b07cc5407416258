package planner

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds surfaced by the engine. Callers classify with errors.Is/As;
// the CLI maps each kind to an exit code.
var (
	ErrValidation              = errors.New("validation error")
	ErrPlanNotFound            = errors.New("plan not found")
	ErrTaskNotFound            = errors.New("task not found")
	ErrSubtaskNotFound         = errors.New("subtask not found")
	ErrDependencyNotFound      = errors.New("dependency not found")
	ErrEventNotFound           = errors.New("event not found")
	ErrActionNotFound          = errors.New("action not found")
	ErrDuplicateDependency     = errors.New("duplicate dependency")
	ErrActionAlreadyDecided    = errors.New("action already decided")
	ErrNotHolder               = errors.New("lock not held by caller")
	ErrInsufficientCalibration = errors.New("insufficient calibration data")
	ErrCancelled               = errors.New("operation cancelled")
	ErrInternal                = errors.New("internal error")
)

// Validationf wraps ErrValidation with a formatted cause.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// CycleError reports a directed cycle in a plan's dependency set. Nodes holds
// task ids on (or feeding) the cycle, sorted ascending.
type CycleError struct {
	PlanID string
	Nodes  []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in plan %s: %s", e.PlanID, strings.Join(e.Nodes, " -> "))
}

// IsCycle reports whether err is (or wraps) a CycleError.
func IsCycle(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// LockedByOtherError is returned when a lock or mutation is refused because a
// different user holds the task lock.
type LockedByOtherError struct {
	PlanID     string
	TaskID     string
	Holder     string
	AcquiredAt time.Time
}

func (e *LockedByOtherError) Error() string {
	return fmt.Sprintf("task %s/%s locked by %s since %s",
		e.PlanID, e.TaskID, e.Holder, e.AcquiredAt.UTC().Format(time.RFC3339))
}

// IsLockedByOther reports whether err is (or wraps) a LockedByOtherError.
func IsLockedByOther(err error) bool {
	var le *LockedByOtherError
	return errors.As(err, &le)
}
