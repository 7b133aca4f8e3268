package jtag

import (
	"testing"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

type scratchDevice struct {
	idcode  uint32
	scratch uint8
	updates int
}

func (d *scratchDevice) IRLength() int            { return 4 }
func (d *scratchDevice) ResetInstruction() uint32 { return 0x1 }

func (d *scratchDevice) CaptureDR(ir uint32) (uint64, int) {
	switch ir {
	case 0x1:
		return uint64(d.idcode), 32
	case 0x2:
		return uint64(d.scratch), 8
	}
	return 0, 0
}

func (d *scratchDevice) UpdateDR(ir uint32, value uint64) {
	if ir == 0x2 {
		d.scratch = uint8(value)
		d.updates++
	}
}

func runScan(t *testing.T, sim *TAPSimulator, fsm *tap.StateMachine, region tap.Region, length int, value uint64) uint64 {
	t.Helper()
	scan, err := fsm.PlanScan(region, length, 0)
	if err != nil {
		t.Fatalf("PlanScan: %v", err)
	}
	tdo, err := sim.ShiftDR(BoolsToBytes(scan.TMS), BoolsToBytes(scan.TDI(value)), len(scan.TMS))
	if err != nil {
		t.Fatalf("shift: %v", err)
	}
	return scan.Extract(BytesToBools(tdo, len(scan.TMS)))
}

func TestTAPSimulatorReadsIDCODEAfterReset(t *testing.T) {
	dev := &scratchDevice{idcode: 0x4BA00477}
	sim := NewTAPSimulator(AdapterInfo{Name: "tap-sim"}, dev)
	fsm := tap.NewStateMachine()

	if err := sim.ResetTAP(false); err != nil {
		t.Fatalf("ResetTAP: %v", err)
	}

	got := runScan(t, sim, fsm, tap.RegionDR, 32, 0)
	if got != 0x4BA00477 {
		t.Fatalf("IDCODE = 0x%08X, want 0x4BA00477", got)
	}
	if sim.State() != tap.StateRunTestIdle {
		t.Fatalf("State() = %s, want Run-Test/Idle", sim.State())
	}
	if sim.State() != fsm.State() {
		t.Fatalf("planner and simulator disagree: %s vs %s", fsm.State(), sim.State())
	}
}

func TestTAPSimulatorInstructionAndDataScans(t *testing.T) {
	dev := &scratchDevice{idcode: 0x1, scratch: 0x5A}
	sim := NewTAPSimulator(AdapterInfo{}, dev)
	fsm := tap.NewStateMachine()

	captured := runScan(t, sim, fsm, tap.RegionIR, 4, 0x2)
	if captured&0x3 != 0x1 {
		t.Fatalf("IR capture = 0x%X, want low bits 01", captured)
	}
	if sim.Instruction() != 0x2 {
		t.Fatalf("Instruction() = 0x%X, want 0x2", sim.Instruction())
	}

	old := runScan(t, sim, fsm, tap.RegionDR, 8, 0xC3)
	if old != 0x5A {
		t.Fatalf("captured scratch = 0x%X, want 0x5A", old)
	}
	if dev.scratch != 0xC3 || dev.updates != 1 {
		t.Fatalf("scratch = 0x%X after %d updates, want 0xC3 after 1", dev.scratch, dev.updates)
	}
}

func TestTAPSimulatorBypass(t *testing.T) {
	dev := &scratchDevice{}
	sim := NewTAPSimulator(AdapterInfo{}, dev)
	fsm := tap.NewStateMachine()

	runScan(t, sim, fsm, tap.RegionIR, 4, 0xF)
	got := runScan(t, sim, fsm, tap.RegionDR, 1, 1)
	if got != 0 {
		t.Fatalf("bypass capture = %d, want 0", got)
	}
	if dev.updates != 0 {
		t.Fatalf("bypass must not update device registers")
	}
	if sim.Clocks() == 0 {
		t.Fatalf("Clocks() did not advance")
	}
}
