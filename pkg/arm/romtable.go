package arm

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/target"
)

// Component is the identification block found at the top of every
// CoreSight component.
type Component struct {
	Address uint32
	Class   uint8
	PIDR    uint64
}

// Component classes from CIDR1[7:4].
const (
	ClassROMTable  uint8 = 0x1
	ClassCoreSight uint8 = 0x9
)

// Designer decodes the JEP106 identity of the component designer.
func (c Component) Designer() (idcode.JEP106, bool) {
	pidr1 := uint8(c.PIDR >> 8)
	pidr2 := uint8(c.PIDR >> 16)
	pidr4 := uint8(c.PIDR >> 32)
	if pidr2&0x08 == 0 {
		// Legacy ASCII identity; no JEP106 code.
		return idcode.JEP106{}, false
	}
	return idcode.JEP106{
		Continuation: pidr4 & 0x0F,
		ID:           pidr1>>4 | (pidr2&0x07)<<4,
	}, true
}

// Part is the 12-bit part number.
func (c Component) Part() uint16 {
	return uint16(c.PIDR&0xFF) | uint16((c.PIDR>>8)&0x0F)<<8
}

// ReadComponent reads and validates the identification registers of the
// component at base.
func (m *Memory) ReadComponent(base uint32) (Component, error) {
	var cidr [4]uint32
	if err := m.ReadWords(base+offCIDR0, cidr[:]); err != nil {
		return Component{}, err
	}
	if cidr[0]&0xFF != 0x0D || cidr[1]&0x0F != 0x0 || cidr[2]&0xFF != 0x05 || cidr[3]&0xFF != 0xB1 {
		return Component{}, fmt.Errorf("arm: invalid component ID preamble at 0x%08X: %02X %02X %02X %02X",
			base, cidr[0]&0xFF, cidr[1]&0xFF, cidr[2]&0xFF, cidr[3]&0xFF)
	}

	var pidr [4]uint32
	if err := m.ReadWords(base+offPIDR0, pidr[:]); err != nil {
		return Component{}, err
	}
	pidr4, err := m.Read32(base + offPIDR4)
	if err != nil {
		return Component{}, err
	}
	var id uint64
	for i, v := range pidr {
		id |= uint64(v&0xFF) << (8 * uint(i))
	}
	id |= uint64(pidr4&0xFF) << 32

	return Component{Address: base, Class: uint8(cidr[1]>>4) & 0x0F, PIDR: id}, nil
}

// ReadChipInfo reads the ROM table behind AP 0 and returns the chip identity
// it carries.
func (ci *CommunicationInterface) ReadChipInfo() (target.ArmChipInfo, error) {
	mem, err := ci.Memory(0)
	if err != nil {
		return target.ArmChipInfo{}, err
	}
	base, err := ci.ReadAP(0, apBASE)
	if err != nil {
		return target.ArmChipInfo{}, fmt.Errorf("arm: read BASE: %w", err)
	}
	// BASE bit 0 set means the entry is present and in ADIv5 format.
	if base == 0xFFFFFFFF || base&1 == 0 {
		return target.ArmChipInfo{}, fmt.Errorf("arm: no debug entry in BASE (0x%08X)", base)
	}
	comp, err := mem.ReadComponent(base &^ 0xFFF)
	if err != nil {
		return target.ArmChipInfo{}, err
	}
	if comp.Class != ClassROMTable {
		return target.ArmChipInfo{}, fmt.Errorf("arm: component at 0x%08X is class 0x%X, not a ROM table", comp.Address, comp.Class)
	}
	designer, ok := comp.Designer()
	if !ok {
		return target.ArmChipInfo{}, fmt.Errorf("arm: ROM table at 0x%08X has no JEP106 identity", comp.Address)
	}
	info := target.ArmChipInfo{Manufacturer: designer, Part: comp.Part()}
	ci.log.Debugf("ROM table at 0x%08X: %s", comp.Address, info)
	return info, nil
}
