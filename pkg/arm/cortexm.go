package arm

import (
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
)

const regReadyTimeout = 100 * time.Millisecond

var cortexMRegisters = func() *core.RegisterFile {
	f := &core.RegisterFile{}
	for i := 0; i <= 12; i++ {
		f.All = append(f.All, core.RegisterDesc{Name: fmt.Sprintf("r%d", i), ID: core.RegisterID(i)})
	}
	f.SP = core.RegisterDesc{Name: "sp", ID: 13, Aliases: []string{"r13"}}
	f.RA = core.RegisterDesc{Name: "lr", ID: 14, Aliases: []string{"r14"}}
	f.PC = core.RegisterDesc{Name: "pc", ID: 15, Aliases: []string{"r15"}}
	f.All = append(f.All, f.SP, f.RA, f.PC,
		core.RegisterDesc{Name: "xpsr", ID: 16},
		core.RegisterDesc{Name: "msp", ID: 17},
		core.RegisterDesc{Name: "psp", ID: 18},
	)
	return f
}()

// CortexM drives a Cortex-M core through its system control space.
type CortexM struct {
	mem      *Memory
	coreType core.CoreType
}

// NewCortexM returns the core reachable through mem.
func NewCortexM(mem *Memory, coreType core.CoreType) *CortexM {
	return &CortexM{mem: mem, coreType: coreType}
}

var _ core.CoreInterface = (*CortexM)(nil)

func (c *CortexM) writeDHCSR(bits uint32) error {
	return c.mem.Write32(regDHCSR, dhcsrKey|bits)
}

func (c *CortexM) Halt() error {
	return c.writeDHCSR(dhcsrCDebugEn | dhcsrCHalt)
}

func (c *CortexM) Run() error {
	return c.writeDHCSR(dhcsrCDebugEn)
}

// Step single-steps with interrupts masked and waits for the core to halt
// again.
func (c *CortexM) Step() error {
	if err := c.writeDHCSR(dhcsrCDebugEn | dhcsrCMaskInts | dhcsrCStep); err != nil {
		return err
	}
	deadline := time.Now().Add(regReadyTimeout)
	for {
		dhcsr, err := c.mem.Read32(regDHCSR)
		if err != nil {
			return err
		}
		if dhcsr&dhcsrSHalt != 0 {
			return c.writeDHCSR(dhcsrCDebugEn | dhcsrCHalt)
		}
		if time.Now().After(deadline) {
			return &core.TimeoutError{Op: "step", Timeout: regReadyTimeout}
		}
	}
}

// Reset requests a system reset through AIRCR.
func (c *CortexM) Reset() error {
	return c.mem.Write32(regAIRCR, aircrVectKey|aircrSysResetReq)
}

func (c *CortexM) Status() (core.Status, error) {
	dhcsr, err := c.mem.Read32(regDHCSR)
	if err != nil {
		return core.StatusUnknown, err
	}
	switch {
	case dhcsr&dhcsrSLockup != 0:
		return core.StatusLockedUp, nil
	case dhcsr&dhcsrSHalt != 0:
		return core.StatusHalted, nil
	case dhcsr&dhcsrSSleep != 0:
		return core.StatusSleeping, nil
	}
	return core.StatusRunning, nil
}

func (c *CortexM) Registers() *core.RegisterFile {
	return cortexMRegisters
}

func (c *CortexM) waitRegReady() error {
	deadline := time.Now().Add(regReadyTimeout)
	for {
		dhcsr, err := c.mem.Read32(regDHCSR)
		if err != nil {
			return err
		}
		if dhcsr&dhcsrSRegRdy != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return &core.TimeoutError{Op: "core register transfer", Timeout: regReadyTimeout}
		}
	}
}

func (c *CortexM) ReadCoreReg(id core.RegisterID) (uint32, error) {
	if err := c.mem.Write32(regDCRSR, uint32(id)&0x7F); err != nil {
		return 0, err
	}
	if err := c.waitRegReady(); err != nil {
		return 0, err
	}
	return c.mem.Read32(regDCRDR)
}

func (c *CortexM) WriteCoreReg(id core.RegisterID, value uint32) error {
	if err := c.mem.Write32(regDCRDR, value); err != nil {
		return err
	}
	if err := c.mem.Write32(regDCRSR, uint32(id)&0x7F|dcrsrRegWnR); err != nil {
		return err
	}
	return c.waitRegReady()
}

func (c *CortexM) Read32(addr uint32) (uint32, error)        { return c.mem.Read32(addr) }
func (c *CortexM) Write32(addr, value uint32) error          { return c.mem.Write32(addr, value) }
func (c *CortexM) ReadBlock(addr uint32, data []byte) error  { return c.mem.ReadBlock(addr, data) }
func (c *CortexM) WriteBlock(addr uint32, data []byte) error { return c.mem.WriteBlock(addr, data) }

func (c *CortexM) fpCtrl() (uint32, error) {
	return c.mem.Read32(regFPCTRL)
}

// AvailableBreakpointUnits reads NUM_CODE from FP_CTRL.
func (c *CortexM) AvailableBreakpointUnits() (int, error) {
	ctrl, err := c.fpCtrl()
	if err != nil {
		return 0, err
	}
	return int((ctrl>>4)&0xF | ((ctrl>>12)&0x7)<<4), nil
}

func (c *CortexM) EnableBreakpoints(enabled bool) error {
	value := fpCtrlKey
	if enabled {
		value |= fpCtrlEnable
	}
	return c.mem.Write32(regFPCTRL, value)
}

// fpbRevision is FP_CTRL.REV: 0 for the original FPB, 1 for FPBv2 which
// takes full instruction addresses.
func (c *CortexM) fpbRevision() (uint32, error) {
	ctrl, err := c.fpCtrl()
	if err != nil {
		return 0, err
	}
	return ctrl >> 28, nil
}

func (c *CortexM) SetHWBreakpoint(unit int, addr uint32) error {
	rev, err := c.fpbRevision()
	if err != nil {
		return err
	}
	var comp uint32
	if rev == 0 {
		if addr >= 0x20000000 {
			return fmt.Errorf("arm: FPB rev 1 cannot break at 0x%08X outside the code region", addr)
		}
		replace := uint32(0x1) << 30 // lower halfword
		if addr&2 != 0 {
			replace = 0x2 << 30
		}
		comp = addr&0x1FFFFFFC | replace | 1
	} else {
		comp = addr&^1 | 1
	}
	return c.mem.Write32(regFPCOMP0+uint32(unit)*4, comp)
}

func (c *CortexM) ClearHWBreakpoint(unit int) error {
	return c.mem.Write32(regFPCOMP0+uint32(unit)*4, 0)
}

func (c *CortexM) HWBreakpoint(unit int) (uint32, bool, error) {
	rev, err := c.fpbRevision()
	if err != nil {
		return 0, false, err
	}
	comp, err := c.mem.Read32(regFPCOMP0 + uint32(unit)*4)
	if err != nil {
		return 0, false, err
	}
	enabled := comp&1 != 0
	if rev != 0 {
		return comp &^ 1, enabled, nil
	}
	addr := comp & 0x1FFFFFFC
	if comp>>30 == 0x2 {
		addr |= 2
	}
	return addr, enabled, nil
}

// DebugCoreStart sets C_DEBUGEN unless it is already set. Rewriting DHCSR
// would otherwise clear a pending C_HALT.
func (c *CortexM) DebugCoreStart() error {
	dhcsr, err := c.mem.Read32(regDHCSR)
	if err != nil {
		return err
	}
	if dhcsr&dhcsrCDebugEn != 0 {
		return nil
	}
	return c.writeDHCSR(dhcsrCDebugEn)
}

// ResetCatchSet arms the core reset vector catch and clears the sticky
// S_RESET_ST flag.
func (c *CortexM) ResetCatchSet() error {
	demcr, err := c.mem.Read32(regDEMCR)
	if err != nil {
		return err
	}
	if err := c.mem.Write32(regDEMCR, demcr|demcrVCCoreReset); err != nil {
		return err
	}
	_, err = c.mem.Read32(regDHCSR)
	return err
}

func (c *CortexM) ResetCatchClear() error {
	demcr, err := c.mem.Read32(regDEMCR)
	if err != nil {
		return err
	}
	return c.mem.Write32(regDEMCR, demcr&^demcrVCCoreReset)
}
