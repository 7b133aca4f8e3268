package jtag

import "fmt"

// ShiftRegion identifies whether a shift operation targets the instruction or
// data register.
type ShiftRegion uint8

const (
	ShiftRegionIR ShiftRegion = iota
	ShiftRegionDR
)

func (r ShiftRegion) String() string {
	if r == ShiftRegionIR {
		return "IR"
	}
	return "DR"
}

// ShiftHook produces the TDO bits of a simulated shift.
type ShiftHook func(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error)

// ShiftOp is one recorded shift request.
type ShiftOp struct {
	Region ShiftRegion
	TMS    []byte
	TDI    []byte
	Bits   int
}

// DefaultHistoryLimit bounds the shifts a SimAdapter remembers.
const DefaultHistoryLimit = 64

// SimAdapter is an Adapter with no device behind it. TDO echoes TDI unless
// OnShift supplies it. TAPSimulator builds a clocked TAP model on top of it.
type SimAdapter struct {
	InfoData AdapterInfo
	SpeedHz  int

	OnShift ShiftHook
	// Err, when non-nil, fails every shift and TAP reset.
	Err error
	// HistoryLimit caps Shifts; zero means DefaultHistoryLimit.
	HistoryLimit int

	history    []ShiftOp
	shifts     int
	resets     int
	hardResets int
}

// NewSimAdapter returns a simulated adapter reporting info.
func NewSimAdapter(info AdapterInfo) *SimAdapter {
	return &SimAdapter{InfoData: info}
}

// Shifts returns the most recent shift requests, oldest first.
func (s *SimAdapter) Shifts() []ShiftOp {
	return append([]ShiftOp(nil), s.history...)
}

// LastShift returns the most recent shift request.
func (s *SimAdapter) LastShift() (ShiftOp, bool) {
	if len(s.history) == 0 {
		return ShiftOp{}, false
	}
	return s.history[len(s.history)-1], true
}

// ShiftCount reports every shift issued, including ones dropped from Shifts.
func (s *SimAdapter) ShiftCount() int {
	return s.shifts
}

// ResetCounts reports TAP resets; hard is the subset that pulsed TRST.
func (s *SimAdapter) ResetCounts() (total, hard int) {
	return s.resets, s.hardResets
}

func (s *SimAdapter) Info() (AdapterInfo, error) {
	return s.InfoData, nil
}

func (s *SimAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.shift(ShiftRegionIR, tms, tdi, bits)
}

func (s *SimAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.shift(ShiftRegionDR, tms, tdi, bits)
}

func (s *SimAdapter) ResetTAP(hard bool) error {
	if s.Err != nil {
		return s.Err
	}
	s.resets++
	if hard {
		s.hardResets++
	}
	return nil
}

// SetSpeed accepts any positive clock inside the advertised frequency range.
func (s *SimAdapter) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	if limit := s.InfoData.MaxFrequency; limit > 0 && hz > limit {
		return fmt.Errorf("jtag: speed %dHz above adapter maximum %dHz", hz, limit)
	}
	if hz < s.InfoData.MinFrequency {
		return fmt.Errorf("jtag: speed %dHz below adapter minimum %dHz", hz, s.InfoData.MinFrequency)
	}
	s.SpeedHz = hz
	return nil
}

func (s *SimAdapter) shift(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error) {
	required, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.record(ShiftOp{
		Region: region,
		TMS:    append([]byte(nil), tms...),
		TDI:    append([]byte(nil), tdi...),
		Bits:   bits,
	})

	if s.OnShift != nil {
		return s.OnShift(region, tms, tdi, bits)
	}
	tdo := make([]byte, required)
	copy(tdo, tdi)
	return tdo, nil
}

func (s *SimAdapter) record(op ShiftOp) {
	limit := s.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.shifts++
	if len(s.history) >= limit {
		s.history = append(s.history[:0], s.history[len(s.history)-limit+1:]...)
	}
	s.history = append(s.history, op)
}
