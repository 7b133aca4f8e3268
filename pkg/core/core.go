package core

import (
	"time"
)

// CoreInterface is the per-architecture access contract a Core drives.
// Halt, Run, Step and Reset only issue the request; waiting is done by Core.
type CoreInterface interface {
	Halt() error
	Run() error
	Step() error
	Reset() error
	Status() (Status, error)

	Registers() *RegisterFile
	ReadCoreReg(id RegisterID) (uint32, error)
	WriteCoreReg(id RegisterID, value uint32) error

	Read32(addr uint32) (uint32, error)
	Write32(addr, value uint32) error
	ReadBlock(addr uint32, data []byte) error
	WriteBlock(addr uint32, data []byte) error

	AvailableBreakpointUnits() (int, error)
	EnableBreakpoints(enabled bool) error
	SetHWBreakpoint(unit int, addr uint32) error
	ClearHWBreakpoint(unit int) error
	HWBreakpoint(unit int) (addr uint32, enabled bool, err error)

	// DebugCoreStart enables halting debug on the core.
	DebugCoreStart() error
	// ResetCatchSet arms a halt on the next core reset.
	ResetCatchSet() error
	// ResetCatchClear disarms the reset halt.
	ResetCatchClear() error
}

// PollInterval is the delay between status queries while waiting for a halt.
const PollInterval = time.Millisecond

// Core is an exclusive, transient handle on one core. It must be closed
// before the owning session hands out another handle.
type Core struct {
	iface    CoreInterface
	state    *State
	coreType CoreType
	release  func()
	closed   bool
}

// New wraps iface and the core's persistent state. release runs once when
// the handle is closed and may be nil.
func New(iface CoreInterface, state *State, coreType CoreType, release func()) *Core {
	return &Core{iface: iface, state: state, coreType: coreType, release: release}
}

// Close releases the handle. Further calls return ErrHandleClosed.
func (c *Core) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.release != nil {
		c.release()
	}
	return nil
}

func (c *Core) Index() int               { return c.state.index }
func (c *Core) Type() CoreType           { return c.coreType }
func (c *Core) State() *State            { return c.state }
func (c *Core) Interface() CoreInterface { return c.iface }

// Registers describes the core's register file.
func (c *Core) Registers() *RegisterFile {
	return c.iface.Registers()
}

// Status queries the core and records the result in its persistent state.
func (c *Core) Status() (Status, error) {
	if c.closed {
		return StatusUnknown, ErrHandleClosed
	}
	st, err := c.iface.Status()
	if err != nil {
		return StatusUnknown, err
	}
	c.state.lastStatus = st
	return st, nil
}

// WaitForCoreHalted polls the core status every PollInterval until it
// reports halted or timeout elapses.
func (c *Core) WaitForCoreHalted(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st, err := c.Status()
		if err != nil {
			return err
		}
		if st == StatusHalted {
			return nil
		}
		if !time.Now().Before(deadline) {
			return &TimeoutError{Op: "wait for core halted", Timeout: timeout}
		}
		time.Sleep(PollInterval)
	}
}

// Halt requests a halt and waits for it.
func (c *Core) Halt(timeout time.Duration) error {
	if c.closed {
		return ErrHandleClosed
	}
	if err := c.iface.Halt(); err != nil {
		return err
	}
	return c.WaitForCoreHalted(timeout)
}

// Run resumes execution.
func (c *Core) Run() error {
	if c.closed {
		return ErrHandleClosed
	}
	if err := c.iface.Run(); err != nil {
		return err
	}
	c.state.lastStatus = StatusRunning
	return nil
}

// Step executes a single instruction. The core must be halted.
func (c *Core) Step() error {
	if c.closed {
		return ErrHandleClosed
	}
	return c.iface.Step()
}

// ResetAndHalt resets the core with the reset catch armed and waits for it
// to halt at the reset vector.
func (c *Core) ResetAndHalt(timeout time.Duration) error {
	if c.closed {
		return ErrHandleClosed
	}
	if err := c.iface.DebugCoreStart(); err != nil {
		return err
	}
	if err := c.iface.ResetCatchSet(); err != nil {
		return err
	}
	if err := c.iface.Reset(); err != nil {
		return err
	}
	if err := c.WaitForCoreHalted(timeout); err != nil {
		return err
	}
	return c.iface.ResetCatchClear()
}

// Reset resets the core and lets it run.
func (c *Core) Reset() error {
	if c.closed {
		return ErrHandleClosed
	}
	return c.iface.Reset()
}

// ReadRegister reads a register by name.
func (c *Core) ReadRegister(name string) (uint32, error) {
	if c.closed {
		return 0, ErrHandleClosed
	}
	reg, err := c.iface.Registers().Lookup(name)
	if err != nil {
		return 0, err
	}
	return c.iface.ReadCoreReg(reg.ID)
}

// WriteRegister writes a register by name.
func (c *Core) WriteRegister(name string, value uint32) error {
	if c.closed {
		return ErrHandleClosed
	}
	reg, err := c.iface.Registers().Lookup(name)
	if err != nil {
		return err
	}
	return c.iface.WriteCoreReg(reg.ID, value)
}

func (c *Core) Read32(addr uint32) (uint32, error) {
	if c.closed {
		return 0, ErrHandleClosed
	}
	return c.iface.Read32(addr)
}

func (c *Core) Write32(addr, value uint32) error {
	if c.closed {
		return ErrHandleClosed
	}
	return c.iface.Write32(addr, value)
}

func (c *Core) ReadBlock(addr uint32, data []byte) error {
	if c.closed {
		return ErrHandleClosed
	}
	return c.iface.ReadBlock(addr, data)
}

func (c *Core) WriteBlock(addr uint32, data []byte) error {
	if c.closed {
		return ErrHandleClosed
	}
	return c.iface.WriteBlock(addr, data)
}
