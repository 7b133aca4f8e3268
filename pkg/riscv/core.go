package riscv

import (
	"errors"
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
)

// Register numbers for the access register abstract command.
const (
	regGPR0    core.RegisterID = 0x1000
	regDCSR    core.RegisterID = 0x7B0
	regDPC     core.RegisterID = 0x7B1
	regTSelect core.RegisterID = 0x7A0
	regTData1  core.RegisterID = 0x7A1
	regTData2  core.RegisterID = 0x7A2
)

const (
	dcsrStep uint32 = 1 << 2

	cmdAARSize32  uint32 = 2 << 20
	cmdTransfer   uint32 = 1 << 17
	cmdWrite      uint32 = 1 << 16
	cmdErrHaltRes uint32 = 4
)

// ErrAbstractCommand is wrapped by every failed abstract command.
var ErrAbstractCommand = errors.New("riscv: abstract command failed")

var abiNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var riscvRegisters = func() *core.RegisterFile {
	f := &core.RegisterFile{}
	for i, abi := range abiNames {
		desc := core.RegisterDesc{Name: abi, ID: regGPR0 + core.RegisterID(i), Aliases: []string{fmt.Sprintf("x%d", i)}}
		if abi == "s0" {
			desc.Aliases = append(desc.Aliases, "fp")
		}
		f.All = append(f.All, desc)
	}
	f.RA = f.All[1]
	f.SP = f.All[2]
	f.PC = core.RegisterDesc{Name: "pc", ID: regDPC, Aliases: []string{"dpc"}}
	f.All = append(f.All, f.PC, core.RegisterDesc{Name: "dcsr", ID: regDCSR})
	return f
}()

// Core is one hart behind the debug module.
type Core struct {
	ci   *CommunicationInterface
	hart uint32
}

var _ core.CoreInterface = (*Core)(nil)

func (c *Core) control(bits uint32) error {
	if err := c.ci.WriteDM(dmControl, dmcontrolDMActive|c.hart<<dmcontrolHartSelShift|bits); err != nil {
		c.ci.selected = -1
		return err
	}
	c.ci.selected = int(c.hart)
	return nil
}

// selectHart points hartsel at this hart. dmcontrol is left alone when the
// hart is already selected so a pending haltreq stays asserted.
func (c *Core) selectHart() error {
	if c.ci.selected == int(c.hart) {
		return nil
	}
	return c.control(0)
}

func (c *Core) dmstatus() (uint32, error) {
	if err := c.selectHart(); err != nil {
		return 0, err
	}
	return c.ci.ReadDM(dmStatus)
}

func (c *Core) Halt() error {
	return c.control(dmcontrolHaltReq)
}

func (c *Core) Run() error {
	if err := c.control(dmcontrolResumeReq); err != nil {
		return err
	}
	if err := c.waitStatus(dmstatusAllResumeAck, "resume"); err != nil {
		return err
	}
	return c.control(0)
}

// Step sets dcsr.step, resumes and waits for the hart to halt again.
func (c *Core) Step() error {
	dcsr, err := c.ReadCoreReg(regDCSR)
	if err != nil {
		return err
	}
	if err := c.WriteCoreReg(regDCSR, dcsr|dcsrStep); err != nil {
		return err
	}
	if err := c.control(dmcontrolResumeReq); err != nil {
		return err
	}
	if err := c.waitStatus(dmstatusAllHalted, "step"); err != nil {
		return err
	}
	if err := c.control(0); err != nil {
		return err
	}
	return c.WriteCoreReg(regDCSR, dcsr&^dcsrStep)
}

// Reset pulses ndmreset and acknowledges the resulting havereset.
func (c *Core) Reset() error {
	if err := c.control(dmcontrolNDMReset); err != nil {
		return err
	}
	if err := c.control(0); err != nil {
		return err
	}
	return c.control(dmcontrolAckHaveReset)
}

func (c *Core) Status() (core.Status, error) {
	status, err := c.dmstatus()
	if err != nil {
		return core.StatusUnknown, err
	}
	switch {
	case status&dmstatusAllNonExistent != 0:
		return core.StatusUnknown, fmt.Errorf("riscv: hart %d does not exist", c.hart)
	case status&dmstatusAllHalted != 0:
		return core.StatusHalted, nil
	case status&dmstatusAllRunning != 0:
		return core.StatusRunning, nil
	}
	return core.StatusUnknown, nil
}

func (c *Core) waitStatus(bit uint32, op string) error {
	deadline := time.Now().Add(dmTimeout)
	for {
		status, err := c.ci.ReadDM(dmStatus)
		if err != nil {
			return err
		}
		if status&bit != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return &core.TimeoutError{Op: op, Timeout: dmTimeout}
		}
	}
}

func (c *Core) Registers() *core.RegisterFile {
	return riscvRegisters
}

func (c *Core) command(cmd uint32) error {
	if err := c.ci.WriteDM(dmCommand, cmd); err != nil {
		return err
	}
	deadline := time.Now().Add(dmTimeout)
	for {
		cs, err := c.ci.ReadDM(dmAbstractCS)
		if err != nil {
			return err
		}
		if cs&abstractcsBusy != 0 {
			if time.Now().After(deadline) {
				return &core.TimeoutError{Op: "abstract command", Timeout: dmTimeout}
			}
			continue
		}
		if cmderr := (cs & abstractcsCmdErrMask) >> 8; cmderr != 0 {
			// cmderr is write-1-to-clear.
			if err := c.ci.WriteDM(dmAbstractCS, abstractcsCmdErrMask); err != nil {
				return err
			}
			if cmderr == cmdErrHaltRes {
				return fmt.Errorf("%w: hart %d not halted", ErrAbstractCommand, c.hart)
			}
			return fmt.Errorf("%w: cmderr %d for command 0x%08X", ErrAbstractCommand, cmderr, cmd)
		}
		return nil
	}
}

func (c *Core) ReadCoreReg(id core.RegisterID) (uint32, error) {
	if err := c.selectHart(); err != nil {
		return 0, err
	}
	if err := c.command(cmdAARSize32 | cmdTransfer | uint32(id)); err != nil {
		return 0, err
	}
	return c.ci.ReadDM(dmData0)
}

func (c *Core) WriteCoreReg(id core.RegisterID, value uint32) error {
	if err := c.selectHart(); err != nil {
		return err
	}
	if err := c.ci.WriteDM(dmData0, value); err != nil {
		return err
	}
	return c.command(cmdAARSize32 | cmdTransfer | cmdWrite | uint32(id))
}

// DebugCoreStart makes sure the debug module is active and the hart is
// selected.
func (c *Core) DebugCoreStart() error {
	return c.control(0)
}

// ResetCatchSet arms setresethaltreq so the hart halts out of reset.
func (c *Core) ResetCatchSet() error {
	status, err := c.dmstatus()
	if err != nil {
		return err
	}
	if status&dmstatusHasResetHaltReq == 0 {
		return fmt.Errorf("riscv: debug module does not support halt on reset")
	}
	return c.control(dmcontrolSetResetHaltReq)
}

func (c *Core) ResetCatchClear() error {
	return c.control(dmcontrolClrResetHaltReq)
}
