package target

import (
	"fmt"
)

// Reason explains why a chip could not be resolved.
type Reason uint8

const (
	// ReasonNameNotFound means no registry entry matched a chip name.
	ReasonNameNotFound Reason = iota + 1
	// ReasonChipInfoNotFound means no registry entry matched an identity read
	// from silicon.
	ReasonChipInfoNotFound
	// ReasonAutodetectFailed means the hardware could not be identified.
	ReasonAutodetectFailed
	// ReasonInvalidDescription means a chip family description is malformed.
	ReasonInvalidDescription
)

func (r Reason) String() string {
	switch r {
	case ReasonNameNotFound:
		return "name not found"
	case ReasonChipInfoNotFound:
		return "chip identity not found"
	case ReasonAutodetectFailed:
		return "autodetection failed"
	case ReasonInvalidDescription:
		return "invalid chip description"
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

// RegistryError is returned by Registry lookups and loads.
type RegistryError struct {
	Reason   Reason
	Name     string
	ChipInfo ChipInfo
	Err      error
}

func (e *RegistryError) Error() string {
	switch {
	case e.Err != nil && e.Name != "":
		return fmt.Sprintf("target: %s: %s: %v", e.Reason, e.Name, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("target: %s: %v", e.Reason, e.Err)
	case e.ChipInfo != nil:
		return fmt.Sprintf("target: %s: %s", e.Reason, e.ChipInfo)
	}
	return fmt.Sprintf("target: %s: %q", e.Reason, e.Name)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}
