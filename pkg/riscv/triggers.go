package riscv

import "github.com/OpenTraceLab/OpenTraceProbe/pkg/core"

// mcontrol (tdata1 type 2) fields.
const (
	tdata1TypeShift  uint32 = 28
	triggerTypeNone  uint32 = 0
	triggerTypeMatch uint32 = 2

	mcontrolDMode       uint32 = 1 << 27
	mcontrolActionDebug uint32 = 1 << 12
	mcontrolM           uint32 = 1 << 6
	mcontrolS           uint32 = 1 << 4
	mcontrolU           uint32 = 1 << 3
	mcontrolExecute     uint32 = 1 << 2

	maxTriggers = 32
)

const (
	mcontrolDisabled   = triggerTypeMatch<<tdata1TypeShift | mcontrolDMode
	mcontrolBreakpoint = mcontrolDisabled | mcontrolActionDebug |
		mcontrolM | mcontrolS | mcontrolU | mcontrolExecute
)

// haltedAccess runs fn with the hart halted and resumes it afterwards if it
// was running. Trigger CSRs are only reachable through abstract commands
// while the hart is halted.
func (c *Core) haltedAccess(fn func() error) error {
	status, err := c.Status()
	if err != nil {
		return err
	}
	if status == core.StatusHalted {
		return fn()
	}
	if err := c.Halt(); err != nil {
		return err
	}
	if err := c.waitStatus(dmstatusAllHalted, "halt"); err != nil {
		return err
	}
	ferr := fn()
	if err := c.Run(); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}

func (c *Core) selectTrigger(unit int) error {
	return c.WriteCoreReg(regTSelect, uint32(unit))
}

// AvailableBreakpointUnits walks tselect until it no longer sticks or the
// trigger reports no type, counting address match triggers.
func (c *Core) AvailableBreakpointUnits() (int, error) {
	count := 0
	err := c.haltedAccess(func() error {
		for unit := 0; unit < maxTriggers; unit++ {
			if err := c.selectTrigger(unit); err != nil {
				return err
			}
			got, err := c.ReadCoreReg(regTSelect)
			if err != nil {
				return err
			}
			if got != uint32(unit) {
				return nil
			}
			tdata1, err := c.ReadCoreReg(regTData1)
			if err != nil {
				return err
			}
			kind := tdata1 >> tdata1TypeShift
			if kind == triggerTypeNone {
				return nil
			}
			if kind == triggerTypeMatch {
				count++
			}
		}
		return nil
	})
	return count, err
}

// EnableBreakpoints is a no-op; each trigger is enabled individually.
func (c *Core) EnableBreakpoints(bool) error {
	return nil
}

func (c *Core) SetHWBreakpoint(unit int, addr uint32) error {
	return c.haltedAccess(func() error {
		if err := c.selectTrigger(unit); err != nil {
			return err
		}
		// Disable before changing the address so no intermediate match fires.
		if err := c.WriteCoreReg(regTData1, mcontrolDisabled); err != nil {
			return err
		}
		if err := c.WriteCoreReg(regTData2, addr); err != nil {
			return err
		}
		return c.WriteCoreReg(regTData1, mcontrolBreakpoint)
	})
}

func (c *Core) ClearHWBreakpoint(unit int) error {
	return c.haltedAccess(func() error {
		if err := c.selectTrigger(unit); err != nil {
			return err
		}
		return c.WriteCoreReg(regTData1, mcontrolDisabled)
	})
}

func (c *Core) HWBreakpoint(unit int) (addr uint32, enabled bool, err error) {
	err = c.haltedAccess(func() error {
		if err := c.selectTrigger(unit); err != nil {
			return err
		}
		tdata1, err := c.ReadCoreReg(regTData1)
		if err != nil {
			return err
		}
		if addr, err = c.ReadCoreReg(regTData2); err != nil {
			return err
		}
		enabled = tdata1>>tdata1TypeShift == triggerTypeMatch &&
			tdata1&mcontrolExecute != 0 &&
			tdata1&(mcontrolM|mcontrolS|mcontrolU) != 0
		return nil
	})
	return addr, enabled, err
}
