package jtag

import (
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

// TAPDevice models the registers behind a single simulated TAP controller.
type TAPDevice interface {
	// IRLength is the instruction register width in bits.
	IRLength() int
	// ResetInstruction is the instruction loaded on Test-Logic-Reset,
	// normally IDCODE.
	ResetInstruction() uint32
	// CaptureDR returns the value loaded into the data register selected by
	// ir and the register length. A zero length selects BYPASS.
	CaptureDR(ir uint32) (value uint64, length int)
	// UpdateDR commits a shifted data register value.
	UpdateDR(ir uint32, value uint64)
}

// TAPSimulator is a bit-accurate single-device TAP model. Every clock walks
// the IEEE 1149.1 state machine with the supplied TMS bit; shifts happen only
// while in Shift-IR/Shift-DR, captures on entering Capture-xR and updates on
// entering Update-xR. TDO is returned for every clock.
type TAPSimulator struct {
	*SimAdapter

	device TAPDevice
	fsm    *tap.StateMachine

	ir       uint32
	shift    uint64
	shiftLen int
	bypass   bool
	clocks   int
}

// NewTAPSimulator wraps device in a simulated adapter.
func NewTAPSimulator(info AdapterInfo, device TAPDevice) *TAPSimulator {
	s := &TAPSimulator{
		SimAdapter: NewSimAdapter(info),
		device:     device,
		fsm:        tap.NewStateMachine(),
		ir:         device.ResetInstruction(),
	}
	s.SimAdapter.OnShift = s.clock
	return s
}

// State reports the simulated TAP controller state.
func (s *TAPSimulator) State() tap.State {
	return s.fsm.State()
}

// Instruction reports the instruction currently latched in IR.
func (s *TAPSimulator) Instruction() uint32 {
	return s.ir
}

// Clocks reports the total number of TCK cycles applied.
func (s *TAPSimulator) Clocks() int {
	return s.clocks
}

// ResetTAP forces Test-Logic-Reset regardless of the hard flag.
func (s *TAPSimulator) ResetTAP(hard bool) error {
	if err := s.SimAdapter.ResetTAP(hard); err != nil {
		return err
	}
	s.fsm.Reset()
	s.ir = s.device.ResetInstruction()
	return nil
}

func (s *TAPSimulator) clock(_ ShiftRegion, tms, tdi []byte, bits int) ([]byte, error) {
	tdo := make([]byte, (bits+7)/8)
	for i := 0; i < bits; i++ {
		tmsBit := len(tms) > 0 && tms[i/8]&(1<<(i%8)) != 0
		tdiBit := len(tdi) > 0 && tdi[i/8]&(1<<(i%8)) != 0

		switch s.fsm.State() {
		case tap.StateShiftIR, tap.StateShiftDR:
			if s.shift&1 != 0 {
				tdo[i/8] |= 1 << (i % 8)
			}
			s.shift >>= 1
			if tdiBit {
				s.shift |= 1 << (s.shiftLen - 1)
			}
		}

		s.enter(s.fsm.Clock(tmsBit))
		s.clocks++
	}
	return tdo, nil
}

func (s *TAPSimulator) enter(state tap.State) {
	switch state {
	case tap.StateTestLogicReset:
		s.ir = s.device.ResetInstruction()
	case tap.StateCaptureIR:
		// IEEE 1149.1 mandates the two LSBs capture as 01
		s.shift = 0x1
		s.shiftLen = s.device.IRLength()
	case tap.StateCaptureDR:
		value, length := s.device.CaptureDR(s.ir)
		s.bypass = length <= 0
		if s.bypass {
			value, length = 0, 1
		}
		s.shift = value
		s.shiftLen = length
	case tap.StateUpdateIR:
		s.ir = uint32(s.shift & (1<<uint(s.device.IRLength()) - 1))
	case tap.StateUpdateDR:
		if !s.bypass {
			s.device.UpdateDR(s.ir, s.shift&mask(s.shiftLen))
		}
	}
}

func mask(length int) uint64 {
	if length >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(length) - 1
}
