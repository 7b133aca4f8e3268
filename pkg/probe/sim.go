package probe

import (
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
)

// SimDriver backs a Probe with in-process models. A nil DAPPort or TAP
// leaves that interface absent.
type SimDriver struct {
	Adapter jtag.AdapterInfo
	DAPPort jtag.DAPAccess
	TAP     jtag.Adapter
	Reset   jtag.ResetLine

	// CloseErr is returned from Close, for exercising teardown paths.
	CloseErr error

	resets  []bool
	speedHz int
	closed  bool
}

// NewSimDriver builds a SimDriver. reset may be nil.
func NewSimDriver(name string, dap jtag.DAPAccess, tap jtag.Adapter, reset jtag.ResetLine) *SimDriver {
	return &SimDriver{
		Adapter: jtag.AdapterInfo{
			Name:         name,
			Vendor:       "OpenTraceLab",
			Model:        "simulator",
			SupportsSRST: true,
			SupportsSWD:  dap != nil,
			SupportsJTAG: tap != nil,
		},
		DAPPort: dap,
		TAP:     tap,
		Reset:   reset,
	}
}

// SimInfo returns a descriptor for a simulated adapter.
func SimInfo(description string) Info {
	return Info{Kind: KindSimulator, Description: description}
}

func (s *SimDriver) Info() (jtag.AdapterInfo, error) {
	return s.Adapter, nil
}

func (s *SimDriver) SetSpeed(hz int) error {
	if s.TAP != nil {
		if err := s.TAP.SetSpeed(hz); err != nil {
			return err
		}
	}
	s.speedHz = hz
	return nil
}

func (s *SimDriver) SetReset(asserted bool) error {
	s.resets = append(s.resets, asserted)
	if s.Reset != nil {
		return s.Reset.SetReset(asserted)
	}
	return nil
}

// ResetHistory lists every reset line change in order, true for asserted.
func (s *SimDriver) ResetHistory() []bool {
	return append([]bool(nil), s.resets...)
}

func (s *SimDriver) DAP() (jtag.DAPAccess, bool) {
	return s.DAPPort, s.DAPPort != nil
}

func (s *SimDriver) JTAG() (jtag.Adapter, bool) {
	return s.TAP, s.TAP != nil
}

// Closed reports whether Close was called.
func (s *SimDriver) Closed() bool {
	return s.closed
}

func (s *SimDriver) Close() error {
	s.closed = true
	return s.CloseErr
}
