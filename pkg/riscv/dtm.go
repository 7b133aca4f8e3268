package riscv

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

// JTAG DTM instructions.
const (
	irLength = 5
	irIDCODE = 0x01
	irDTMCS  = 0x10
	irDMI    = 0x11
)

// DTMCS fields.
const (
	dtmcsDMIReset   = 1 << 16
	dtmcsIdleShift  = 12
	dtmcsAbitsShift = 4
)

// DMI operations and responses.
const (
	dmiOpNop   = 0
	dmiOpRead  = 1
	dmiOpWrite = 2

	dmiRespOK     = 0
	dmiRespFailed = 2
	dmiRespBusy   = 3
)

const (
	maxDMIRetries = 16
	maxIdleCycles = 64
)

// ErrDMIFailed is returned when the debug module reports a failed DMI
// operation.
var ErrDMIFailed = errors.New("riscv: DMI operation failed")

// dtm drives the JTAG debug transport module. IR and DR scans are planned on
// a TAP state machine that mirrors the adapter's TAP controller.
type dtm struct {
	adapter jtag.Adapter
	fsm     *tap.StateMachine
	ir      uint32
	irValid bool
	state   *State
}

func newDTM(adapter jtag.Adapter, state *State) *dtm {
	return &dtm{adapter: adapter, fsm: tap.NewStateMachine(), state: state}
}

// resetTAP forces Test-Logic-Reset, which also selects IDCODE.
func (d *dtm) resetTAP() error {
	if err := d.adapter.ResetTAP(false); err != nil {
		return err
	}
	d.fsm.Reset()
	d.ir = irIDCODE
	d.irValid = true
	return nil
}

func (d *dtm) scan(region tap.Region, length int, value uint64, idle int) (uint64, error) {
	plan, err := d.fsm.PlanScan(region, length, idle)
	if err != nil {
		return 0, err
	}
	tms := jtag.BoolsToBytes(plan.TMS)
	tdi := jtag.BoolsToBytes(plan.TDI(value))
	var tdo []byte
	if region == tap.RegionIR {
		tdo, err = d.adapter.ShiftIR(tms, tdi, len(plan.TMS))
	} else {
		tdo, err = d.adapter.ShiftDR(tms, tdi, len(plan.TMS))
	}
	if err != nil {
		// The adapter's TAP state is unknown after a failed shift.
		d.irValid = false
		return 0, err
	}
	return plan.Extract(jtag.BytesToBools(tdo, len(plan.TMS))), nil
}

func (d *dtm) selectIR(ir uint32) error {
	if d.irValid && d.ir == ir {
		return nil
	}
	if _, err := d.scan(tap.RegionIR, irLength, uint64(ir), 0); err != nil {
		return err
	}
	d.ir = ir
	d.irValid = true
	return nil
}

func (d *dtm) readIDCode() (uint32, error) {
	if err := d.resetTAP(); err != nil {
		return 0, err
	}
	v, err := d.scan(tap.RegionDR, 32, 0, 0)
	return uint32(v), err
}

func (d *dtm) dtmcs(write uint32) (uint32, error) {
	if err := d.selectIR(irDTMCS); err != nil {
		return 0, err
	}
	v, err := d.scan(tap.RegionDR, 32, uint64(write), 0)
	return uint32(v), err
}

// readDTMCS records the DMI address width and idle cycle hint.
func (d *dtm) readDTMCS() error {
	v, err := d.dtmcs(0)
	if err != nil {
		return err
	}
	if version := v & 0xF; version != 1 {
		return fmt.Errorf("riscv: unsupported DTM version %d (DTMCS 0x%08X)", version, v)
	}
	d.state.abits = int(v>>dtmcsAbitsShift) & 0x3F
	d.state.idle = int(v>>dtmcsIdleShift) & 0x7
	if d.state.abits == 0 {
		return fmt.Errorf("riscv: DTM reports zero DMI address bits")
	}
	return nil
}

func (d *dtm) dmiScan(op uint8, addr uint32, data uint32) (uint32, uint8, error) {
	if err := d.selectIR(irDMI); err != nil {
		return 0, 0, err
	}
	value := uint64(addr)<<34 | uint64(data)<<2 | uint64(op)
	v, err := d.scan(tap.RegionDR, d.state.abits+34, value, d.state.idle)
	if err != nil {
		return 0, 0, err
	}
	return uint32(v >> 2), uint8(v & 0x3), nil
}

// dmi issues one operation and collects its result with a following nop
// scan. A busy response clears the sticky error with dmireset, raises the
// idle cycle count and retries.
func (d *dtm) dmi(op uint8, addr uint32, data uint32) (uint32, error) {
	for attempt := 0; attempt < maxDMIRetries; attempt++ {
		if _, _, err := d.dmiScan(op, addr, data); err != nil {
			return 0, err
		}
		result, status, err := d.dmiScan(dmiOpNop, 0, 0)
		if err != nil {
			return 0, err
		}
		switch status {
		case dmiRespOK:
			return result, nil
		case dmiRespBusy:
			if _, err := d.dtmcs(dtmcsDMIReset); err != nil {
				return 0, err
			}
			if d.state.idle < maxIdleCycles {
				d.state.idle++
			}
			continue
		default:
			if _, err := d.dtmcs(dtmcsDMIReset); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("%w: op %d at 0x%02X", ErrDMIFailed, op, addr)
		}
	}
	return 0, fmt.Errorf("riscv: DMI busy after %d retries at 0x%02X", maxDMIRetries, addr)
}

func (d *dtm) readDMI(addr uint32) (uint32, error) {
	return d.dmi(dmiOpRead, addr, 0)
}

func (d *dtm) writeDMI(addr, value uint32) error {
	_, err := d.dmi(dmiOpWrite, addr, value)
	return err
}
