package jtag

import (
	"errors"
	"fmt"
)

// AdapterInfo describes capabilities reported by a debug adapter implementation.
type AdapterInfo struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	MinFrequency int // Hertz
	MaxFrequency int // Hertz
	SupportsSRST bool
	SupportsTRST bool
	SupportsSWD  bool
	SupportsJTAG bool
	Notes        string
}

// Adapter abstracts a physical or virtual JTAG Test Access Port adapter.
type Adapter interface {
	Info() (AdapterInfo, error)
	ShiftIR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ShiftDR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ResetTAP(hard bool) error
	SetSpeed(hz int) error
}

// PortType selects which ARM debug port register space a DAP transaction
// addresses.
type PortType uint8

const (
	// PortDebug addresses the debug port (DP) registers.
	PortDebug PortType = iota
	// PortAccess addresses the access port selected through DP SELECT.
	PortAccess
)

func (p PortType) String() string {
	if p == PortAccess {
		return "AP"
	}
	return "DP"
}

// DAPAccess is implemented by adapters able to issue ARM debug port
// transactions (over SWD or a JTAG-DP). Reads are returned non-posted: the
// adapter is responsible for flushing posted AP reads through RDBUFF.
type DAPAccess interface {
	ReadRegister(port PortType, addr uint8) (uint32, error)
	WriteRegister(port PortType, addr uint8, value uint32) error
}

// ResetLine is implemented by adapters that drive the target nRESET pin.
type ResetLine interface {
	SetReset(asserted bool) error
}

// ErrNotImplemented lets backends signal that a requested capability is not yet
// available without relying on fmt.Errorf each time.
var ErrNotImplemented = errors.New("jtag: not implemented")

// ErrTransferFault is returned when the target answers a DAP transfer with a
// FAULT acknowledge.
var ErrTransferFault = errors.New("jtag: DAP transfer fault")

// ErrTransferWait is returned when the target keeps answering WAIT past the
// adapter retry budget.
var ErrTransferWait = errors.New("jtag: DAP transfer wait timeout")

// ValidateShiftBuffers ensures TMS/TDIs are present when bits exceed their
// lengths and returns the number of bytes required to accommodate the bit
// length.
func ValidateShiftBuffers(tms, tdi []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("jtag: bits must be positive, got %d", bits)
	}
	required := (bits + 7) / 8
	if len(tms) > 0 && len(tms) < required {
		return 0, fmt.Errorf("jtag: tms buffer too short, need %d bytes", required)
	}
	if len(tdi) > 0 && len(tdi) < required {
		return 0, fmt.Errorf("jtag: tdi buffer too short, need %d bytes", required)
	}
	return required, nil
}

// BoolsToBytes packs a bit vector LSB-first.
func BoolsToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// BytesToBools unpacks the first n bits of an LSB-first byte buffer.
func BytesToBools(data []byte, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n && i/8 < len(data); i++ {
		out[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return out
}
