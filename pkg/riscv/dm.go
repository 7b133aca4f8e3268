// Package riscv debugs RISC-V harts through a JTAG debug transport module
// and an external debug module (RISC-V debug specification 0.13).
package riscv

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/internal/logflags"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
)

// Debug module registers.
const (
	dmData0      = 0x04
	dmControl    = 0x10
	dmStatus     = 0x11
	dmAbstractCS = 0x16
	dmCommand    = 0x17
	dmSBCS       = 0x38
	dmSBAddress0 = 0x39
	dmSBData0    = 0x3C
)

// dmcontrol bits.
const (
	dmcontrolHaltReq         uint32 = 1 << 31
	dmcontrolResumeReq       uint32 = 1 << 30
	dmcontrolAckHaveReset    uint32 = 1 << 28
	dmcontrolHartSelShift    uint32 = 16
	dmcontrolSetResetHaltReq uint32 = 1 << 3
	dmcontrolClrResetHaltReq uint32 = 1 << 2
	dmcontrolNDMReset        uint32 = 1 << 1
	dmcontrolDMActive        uint32 = 1 << 0
)

// dmstatus bits.
const (
	dmstatusVersionMask     uint32 = 0xF
	dmstatusHasResetHaltReq uint32 = 1 << 5
	dmstatusAllHalted       uint32 = 1 << 9
	dmstatusAllRunning      uint32 = 1 << 11
	dmstatusAllUnavail      uint32 = 1 << 13
	dmstatusAllNonExistent  uint32 = 1 << 15
	dmstatusAllResumeAck    uint32 = 1 << 17
	dmstatusAllHaveReset    uint32 = 1 << 19
	dmVersion013            uint32 = 2
)

// abstractcs fields.
const (
	abstractcsBusy       uint32 = 1 << 12
	abstractcsCmdErrMask uint32 = 0x7 << 8
)

const dmTimeout = 100 * time.Millisecond

// State is debug transport and debug module state that outlives a single
// CommunicationInterface.
type State struct {
	abits       int
	idle        int
	initialized bool
	dataCount   int
	progbufSize int
	sbaChecked  bool
	sbaOK       bool
}

// NewState returns state for a debug module that has not been examined.
func NewState() *State {
	return &State{}
}

// CommunicationInterface issues debug module register accesses over JTAG.
type CommunicationInterface struct {
	dtm      *dtm
	state    *State
	log      *logrus.Entry
	selected int // hart currently in hartsel, -1 when unknown
}

// NewCommunicationInterface builds the interface and activates the debug
// module. It returns nil, nil when the probe has no JTAG interface.
func NewCommunicationInterface(p *probe.Probe, state *State) (*CommunicationInterface, error) {
	adapter, ok := p.JTAG()
	if !ok {
		return nil, nil
	}
	ci := &CommunicationInterface{dtm: newDTM(adapter, state), state: state, log: logflags.RiscvLogger(), selected: -1}
	if err := ci.init(); err != nil {
		return nil, err
	}
	return ci, nil
}

func (ci *CommunicationInterface) init() error {
	if err := ci.dtm.resetTAP(); err != nil {
		return fmt.Errorf("riscv: reset TAP: %w", err)
	}
	if ci.state.initialized {
		return nil
	}
	if err := ci.dtm.readDTMCS(); err != nil {
		return err
	}
	if err := ci.WriteDM(dmControl, dmcontrolDMActive); err != nil {
		return fmt.Errorf("riscv: activate debug module: %w", err)
	}
	ci.selected = 0
	status, err := ci.ReadDM(dmStatus)
	if err != nil {
		return err
	}
	if v := status & dmstatusVersionMask; v != dmVersion013 {
		return fmt.Errorf("riscv: unsupported debug module version %d", v)
	}
	abstractcs, err := ci.ReadDM(dmAbstractCS)
	if err != nil {
		return err
	}
	ci.state.dataCount = int(abstractcs & 0xF)
	ci.state.progbufSize = int(abstractcs>>24) & 0x1F
	ci.log.Debugf("debug module: abits=%d idle=%d datacount=%d progbufsize=%d",
		ci.state.abits, ci.state.idle, ci.state.dataCount, ci.state.progbufSize)
	ci.state.initialized = true
	return nil
}

// ReadIDCode resets the TAP and reads the JTAG IDCODE.
func (ci *CommunicationInterface) ReadIDCode() (uint32, error) {
	id, err := ci.dtm.readIDCode()
	if err != nil {
		return 0, fmt.Errorf("riscv: read IDCODE: %w", err)
	}
	return id, nil
}

// ReadDM reads a debug module register.
func (ci *CommunicationInterface) ReadDM(addr uint32) (uint32, error) {
	return ci.dtm.readDMI(addr)
}

// WriteDM writes a debug module register.
func (ci *CommunicationInterface) WriteDM(addr, value uint32) error {
	return ci.dtm.writeDMI(addr, value)
}

// Hart returns the core interface of hart index.
func (ci *CommunicationInterface) Hart(index int) *Core {
	return &Core{ci: ci, hart: uint32(index)}
}
