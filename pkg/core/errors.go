package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutError through errors.Is.
	ErrTimeout = errors.New("core: timeout")
	// ErrNoFreeBreakpoint is returned when every comparator is in use.
	ErrNoFreeBreakpoint = errors.New("core: no free hardware breakpoint unit")
	// ErrBreakpointNotFound is returned when clearing an address that has no
	// breakpoint.
	ErrBreakpointNotFound = errors.New("core: no hardware breakpoint at address")
	// ErrHandleClosed is returned by operations on a closed Core.
	ErrHandleClosed = errors.New("core: handle closed")
	// ErrUnknownRegister is returned for register names the core does not
	// have.
	ErrUnknownRegister = errors.New("core: unknown register")
)

// TimeoutError reports that a bounded wait expired.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("core: %s timed out after %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
