package session

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/target"
)

var (
	// ErrHandleInUse is returned by Core while another core handle of the
	// same session is still open.
	ErrHandleInUse = errors.New("session: a core handle is already open")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session: closed")
)

// CoreNotFoundError reports a core index outside the target's core list.
type CoreNotFoundError struct {
	Index int
}

func (e *CoreNotFoundError) Error() string {
	return fmt.Sprintf("session: core %d not found", e.Index)
}

// InterfaceKind names a communication interface a probe may lack.
type InterfaceKind string

const (
	InterfaceDAP  InterfaceKind = "ARM debug port"
	InterfaceJTAG InterfaceKind = "RISC-V JTAG debug module"
)

// InterfaceUnavailableError is returned when the probe does not expose the
// interface the target's architecture needs.
type InterfaceUnavailableError struct {
	Kind InterfaceKind
}

func (e *InterfaceUnavailableError) Error() string {
	return fmt.Sprintf("session: %s interface unavailable on probe", e.Kind)
}

// ChipNotFoundError is returned when a selector does not resolve to a
// target. Reason is target.ReasonNameNotFound or
// target.ReasonAutodetectFailed.
type ChipNotFoundError struct {
	Reason target.Reason
	Err    error
}

func (e *ChipNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: chip not found (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("session: chip not found (%s)", e.Reason)
}

func (e *ChipNotFoundError) Unwrap() error {
	return e.Err
}
