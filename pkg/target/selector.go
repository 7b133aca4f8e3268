package target

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
)

// ChipInfo is an identity read from silicon during autodetection. It is
// either ArmChipInfo or RiscvChipInfo.
type ChipInfo interface {
	fmt.Stringer
	isChipInfo()
}

// ArmChipInfo is the identity found in an ARM ROM table.
type ArmChipInfo struct {
	Manufacturer idcode.JEP106
	Part         uint16
}

func (ArmChipInfo) isChipInfo() {}

func (i ArmChipInfo) String() string {
	return fmt.Sprintf("%s part 0x%03X", i.Manufacturer, i.Part)
}

// RiscvChipInfo is the JTAG IDCODE of a RISC-V debug transport module.
type RiscvChipInfo struct {
	IDCode uint32
}

func (RiscvChipInfo) isChipInfo() {}

func (i RiscvChipInfo) String() string {
	id := idcode.ParseIDCode(i.IDCode)
	return fmt.Sprintf("IDCODE 0x%08X (%s part 0x%04X)", i.IDCode, id.Manufacturer, id.PartNumber)
}

// Selector chooses how a session finds its target: Specified, Named or
// Auto.
type Selector interface {
	isSelector()
}

// Specified uses the given target verbatim.
type Specified struct {
	Target *Target
}

// Named looks the target up in the registry by name.
type Named struct {
	Name string
}

// Auto identifies the chip by probing the hardware.
type Auto struct{}

func (Specified) isSelector() {}
func (Named) isSelector()     {}
func (Auto) isSelector()      {}

// ParseSelector maps a user supplied chip name to a Selector. The empty
// string and "auto" select autodetection.
func ParseSelector(name string) Selector {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "auto") {
		return Auto{}
	}
	return Named{Name: name}
}
