// Package core defines the architecture-neutral view of a CPU core: its
// type, run status, persistent per-core state and the transient access
// handle handed out by a session.
package core

import (
	"fmt"
	"strings"
)

// Architecture is the debug architecture family of a core.
type Architecture uint8

const (
	ArchitectureArm Architecture = iota
	ArchitectureRiscv
)

func (a Architecture) String() string {
	switch a {
	case ArchitectureArm:
		return "ARM"
	case ArchitectureRiscv:
		return "RISC-V"
	}
	return fmt.Sprintf("Architecture(%d)", uint8(a))
}

// CoreType identifies the instruction set profile of a core.
type CoreType string

const (
	Armv6m  CoreType = "armv6m"
	Armv7m  CoreType = "armv7m"
	Armv7em CoreType = "armv7em"
	Armv8m  CoreType = "armv8m"
	Riscv   CoreType = "riscv"
)

// ParseCoreType accepts the lower-case core type names used in target
// descriptions.
func ParseCoreType(s string) (CoreType, error) {
	switch t := CoreType(strings.ToLower(strings.TrimSpace(s))); t {
	case Armv6m, Armv7m, Armv7em, Armv8m, Riscv:
		return t, nil
	}
	return "", fmt.Errorf("core: unknown core type %q", s)
}

// Architecture derives the architecture family from the core type.
func (t CoreType) Architecture() Architecture {
	if t == Riscv {
		return ArchitectureRiscv
	}
	return ArchitectureArm
}

// UnmarshalYAML validates core types read from target descriptions.
func (t *CoreType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseCoreType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Status is the run state of a core.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusRunning
	StatusHalted
	StatusSleeping
	StatusLockedUp
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusHalted:
		return "halted"
	case StatusSleeping:
		return "sleeping"
	case StatusLockedUp:
		return "locked up"
	}
	return "unknown"
}
