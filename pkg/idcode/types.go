package idcode

import "fmt"

// IDCode represents a parsed IEEE 1149.1 JTAG IDCODE
type IDCode struct {
	Raw          uint32 // full IDCODE
	Version      uint8  // [31:28]
	PartNumber   uint16 // [27:12]
	Manufacturer JEP106 // [11:1]
	HasIDCode    bool   // bit 0 == 1
}

// JEP106 identifies a manufacturer by continuation count (bank - 1) and the
// 7-bit identity code within that bank, parity bit stripped.
type JEP106 struct {
	Continuation uint8 `yaml:"cc"`
	ID           uint8 `yaml:"id"`
}

// Code packs the identity the way IDCODE bits [11:1] carry it.
func (j JEP106) Code() uint16 {
	return uint16(j.Continuation&0xF)<<7 | uint16(j.ID&0x7F)
}

// JEP106FromCode splits an 11-bit IDCODE manufacturer field.
func JEP106FromCode(code uint16) JEP106 {
	return JEP106{Continuation: uint8(code>>7) & 0xF, ID: uint8(code & 0x7F)}
}

func (j JEP106) String() string {
	if name, ok := manufacturers[j.Code()]; ok {
		return name
	}
	return fmt.Sprintf("JEP106 cc=0x%02X id=0x%02X", j.Continuation, j.ID)
}
