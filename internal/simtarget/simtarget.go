// Package simtarget builds probes backed by simulated chips so every
// otprobe command can run without hardware.
package simtarget

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/arm/armsim"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/riscv/riscvsim"
)

// Kinds lists the simulators Open accepts.
var Kinds = []string{"arm", "riscv"}

const (
	// ArmPart identifies the simulated ARM chip as an STM32F103x8/xB.
	ArmPart = 0x410
	// RiscvIDCode identifies the simulated RISC-V chip as a GD32VF103.
	RiscvIDCode = 0x1000563D

	flashBase = 0x08000000
	ramBase   = 0x20000000
)

var stMicro = idcode.JEP106{Continuation: 0, ID: 0x20}

// Open returns a probe connected to a simulated chip of the given kind.
func Open(kind string) (*probe.Probe, error) {
	switch kind {
	case "arm":
		return probe.New(newArmDriver(), probe.SimInfo("simulated STM32F103 (SWD)")), nil
	case "riscv":
		return probe.New(newRiscvDriver(), probe.SimInfo("simulated GD32VF103 (JTAG)")), nil
	}
	return nil, fmt.Errorf("simtarget: unknown simulator %q (want one of %v)", kind, Kinds)
}

// List returns descriptors for every simulator, as probe.ListAll does for
// hardware.
func List() []probe.Info {
	return []probe.Info{
		{Kind: probe.KindSimulator, Description: "arm", Serial: "SIM-ARM"},
		{Kind: probe.KindSimulator, Description: "riscv", Serial: "SIM-RISCV"},
	}
}

func newArmDriver() *probe.SimDriver {
	c := armsim.NewCore(6)
	c.ResetVector = flashBase + 0x101
	c.HaltAfterPolls = 2
	// A small vector table so reads at the boot address look plausible.
	c.Poke(flashBase, ramBase+0x5000)
	c.Poke(flashBase+4, flashBase+0x101)

	sim := armsim.New(stMicro, ArmPart, c)
	return probe.NewSimDriver("armsim", sim, nil, sim)
}

func newRiscvDriver() *probe.SimDriver {
	h := riscvsim.NewHart(4)
	h.ResetVector = flashBase
	h.HaltAfterPolls = 2

	sim := riscvsim.New(RiscvIDCode, h)
	sim.Poke(flashBase, 0x00000297) // auipc t0, 0
	tap := jtag.NewTAPSimulator(jtag.AdapterInfo{
		Name:         "riscvsim",
		Vendor:       "OpenTraceLab",
		Model:        "simulator",
		SupportsJTAG: true,
		SupportsSRST: true,
	}, sim)
	return probe.NewSimDriver("riscvsim", nil, tap, sim)
}
