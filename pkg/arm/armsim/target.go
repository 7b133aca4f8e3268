// Package armsim simulates an ARM debug access port with Cortex-M cores
// behind it. A Target implements the DAP and reset line interfaces of a
// debug adapter, so it can back a probe.SimDriver.
package armsim

import (
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
)

// DefaultDPIDR is a SW-DP v1 designed by ARM.
const DefaultDPIDR uint32 = 0x2BA01477

type apState struct {
	csw uint32
	tar uint32
}

// Target is a simulated chip: one DP, one MEM-AP per core and a ROM table
// behind AP 0 carrying the chip identity.
type Target struct {
	DPIDR        uint32
	Manufacturer idcode.JEP106
	Part         uint16

	// DAPError, when set, fails every DP and AP transaction.
	DAPError error
	// NoROMTable makes AP 0 report no debug entry in BASE.
	NoROMTable bool

	cores     []*Core
	aps       []apState
	ctrlStat  uint32
	selectReg uint32
	rdbuff    uint32
	inReset   bool
	transfers int
}

// New builds a target with the given identity. Each core sits behind the
// AP with the same index.
func New(manufacturer idcode.JEP106, part uint16, cores ...*Core) *Target {
	return &Target{
		DPIDR:        DefaultDPIDR,
		Manufacturer: manufacturer,
		Part:         part,
		cores:        cores,
		aps:          make([]apState, len(cores)),
	}
}

// Core returns the core behind AP i.
func (t *Target) Core(i int) *Core { return t.cores[i] }

// ResetAsserted reports the state of the nRESET line.
func (t *Target) ResetAsserted() bool { return t.inReset }

// Transfers counts DP and AP transactions.
func (t *Target) Transfers() int { return t.transfers }

var (
	_ jtag.DAPAccess = (*Target)(nil)
	_ jtag.ResetLine = (*Target)(nil)
)

// SetReset drives nRESET for every core.
func (t *Target) SetReset(asserted bool) error {
	if asserted == t.inReset {
		return nil
	}
	t.inReset = asserted
	for _, c := range t.cores {
		if asserted {
			c.enterReset()
		} else {
			c.leaveReset()
		}
	}
	return nil
}

func (t *Target) ReadRegister(port jtag.PortType, addr uint8) (uint32, error) {
	t.transfers++
	if t.DAPError != nil {
		return 0, t.DAPError
	}
	if port == jtag.PortDebug {
		switch addr {
		case 0x0:
			return t.DPIDR, nil
		case 0x4:
			// Every power-up request is acknowledged immediately.
			return t.ctrlStat | (t.ctrlStat&0x50000000)<<1, nil
		case 0xC:
			return t.rdbuff, nil
		}
		return 0, nil
	}
	v, err := t.readAP(addr)
	if err == nil {
		t.rdbuff = v
	}
	return v, err
}

func (t *Target) WriteRegister(port jtag.PortType, addr uint8, value uint32) error {
	t.transfers++
	if t.DAPError != nil {
		return t.DAPError
	}
	if port == jtag.PortDebug {
		switch addr {
		case 0x0:
			// ABORT: nothing sticky is modelled.
		case 0x4:
			t.ctrlStat = value & 0x50000000
		case 0x8:
			t.selectReg = value
		}
		return nil
	}
	return t.writeAP(addr, value)
}

func (t *Target) selected() (int, uint8, bool) {
	ap := int(t.selectReg >> 24)
	return ap, uint8(t.selectReg & 0xF0), ap < len(t.cores)
}

func (t *Target) readAP(addr uint8) (uint32, error) {
	ap, bank, ok := t.selected()
	if !ok {
		return 0, nil
	}
	switch bank | addr&0x0C {
	case 0x00:
		return t.aps[ap].csw, nil
	case 0x04:
		return t.aps[ap].tar, nil
	case 0x0C:
		v, ok := t.busRead(ap, t.aps[ap].tar)
		t.advance(ap)
		if !ok {
			return 0, jtag.ErrTransferFault
		}
		return v, nil
	case 0xF8:
		if ap != 0 || t.NoROMTable {
			return 0xFFFFFFFF, nil
		}
		return ROMTableBase | 0x3, nil
	case 0xFC:
		return ahbAPIDR, nil
	}
	return 0, nil
}

func (t *Target) writeAP(addr uint8, value uint32) error {
	ap, bank, ok := t.selected()
	if !ok {
		return nil
	}
	switch bank | addr&0x0C {
	case 0x00:
		t.aps[ap].csw = value
	case 0x04:
		t.aps[ap].tar = value
	case 0x0C:
		ok := t.cores[ap].write(t.aps[ap].tar, value)
		t.advance(ap)
		if !ok {
			return jtag.ErrTransferFault
		}
	}
	return nil
}

func (t *Target) advance(ap int) {
	if (t.aps[ap].csw>>4)&0x3 == 0x1 {
		t.aps[ap].tar += 4
	}
}

func (t *Target) busRead(ap int, addr uint32) (uint32, bool) {
	if ap == 0 && addr >= ROMTableBase && addr < ROMTableBase+0x1000 {
		return t.romTable(addr - ROMTableBase), true
	}
	return t.cores[ap].read(addr)
}

// romTable serves an empty ROM table whose peripheral ID carries the chip
// identity.
func (t *Target) romTable(off uint32) uint32 {
	id := uint32(t.Manufacturer.ID)
	switch off {
	case 0xFD0:
		return uint32(t.Manufacturer.Continuation) & 0xF
	case 0xFE0:
		return uint32(t.Part) & 0xFF
	case 0xFE4:
		return uint32(t.Part>>8)&0xF | (id&0xF)<<4
	case 0xFE8:
		return (id>>4)&0x7 | 0x08
	case 0xFF0:
		return 0x0D
	case 0xFF4:
		return 0x10
	case 0xFF8:
		return 0x05
	case 0xFFC:
		return 0xB1
	}
	return 0
}
