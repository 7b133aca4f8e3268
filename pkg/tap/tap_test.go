package tap

import "testing"

func TestNextStateTable(t *testing.T) {
	type transition struct {
		start State
		tms   bool
		end   State
	}

	cases := []transition{
		{StateTestLogicReset, false, StateRunTestIdle},
		{StateTestLogicReset, true, StateTestLogicReset},
		{StateRunTestIdle, true, StateSelectDRScan},
		{StateSelectDRScan, false, StateCaptureDR},
		{StateShiftDR, true, StateExit1DR},
		{StateExit2DR, false, StateShiftDR},
		{StateSelectIRScan, true, StateTestLogicReset},
		{StateCaptureIR, false, StateShiftIR},
		{StatePauseIR, true, StateExit2IR},
		{StateExit2IR, true, StateUpdateIR},
	}

	for _, tc := range cases {
		got := NextState(tc.start, tc.tms)
		if got != tc.end {
			t.Fatalf("NextState(%s, %v) = %s, want %s", tc.start, tc.tms, got, tc.end)
		}
	}
}

func TestStateMachineReset(t *testing.T) {
	m := NewStateMachine()
	// Move out of reset to ensure Reset() actually travels back.
	m.Clock(false) // -> Run-Test/Idle
	if m.State() != StateRunTestIdle {
		t.Fatalf("State() = %s, want %s", m.State(), StateRunTestIdle)
	}

	seq := m.Reset()

	if len(seq.TMS) != 5 {
		t.Fatalf("Reset sequence length = %d, want 5", len(seq.TMS))
	}
	if want := StateTestLogicReset; m.State() != want {
		t.Fatalf("State after reset = %s, want %s", m.State(), want)
	}
	if seq.States[len(seq.States)-1] != StateTestLogicReset {
		t.Fatalf("Final sequence state = %s, want %s", seq.States[len(seq.States)-1], StateTestLogicReset)
	}
}

func TestGoToProducesExpectedPattern(t *testing.T) {
	m := NewStateMachine()
	// Move into Run-Test/Idle so GoTo has to traverse more than one edge.
	m.Clock(false)

	path, err := m.GoTo(StateShiftIR)
	if err != nil {
		t.Fatalf("GoTo returned error: %v", err)
	}

	wantBits := []bool{true, true, false, false}
	if len(path.TMS) != len(wantBits) {
		t.Fatalf("GoTo length = %d, want %d", len(path.TMS), len(wantBits))
	}
	for i, want := range wantBits {
		if path.TMS[i] != want {
			t.Fatalf("path bit %d = %v, want %v", i, path.TMS[i], want)
		}
	}
	if m.State() != StateShiftIR {
		t.Fatalf("State() = %s, want %s", m.State(), StateShiftIR)
	}

	// Go back to Run-Test/Idle to ensure BFS works from IR path.
	if _, err := m.GoTo(StateRunTestIdle); err != nil {
		t.Fatalf("GoTo RunTestIdle returned error: %v", err)
	}
	if m.State() != StateRunTestIdle {
		t.Fatalf("State() = %s, want %s", m.State(), StateRunTestIdle)
	}
}

func TestPlanScanFromIdle(t *testing.T) {
	m := NewStateMachine()
	m.Clock(false) // -> Run-Test/Idle

	scan, err := m.PlanScan(RegionDR, 8, 2)
	if err != nil {
		t.Fatalf("PlanScan returned error: %v", err)
	}

	// Idle -> SelectDR -> CaptureDR -> ShiftDR takes three clocks.
	if scan.Offset != 3 {
		t.Fatalf("Offset = %d, want 3", scan.Offset)
	}
	// 3 entry + 8 shift + 2 exit (Update, Idle) + 2 idle
	if len(scan.TMS) != 15 {
		t.Fatalf("TMS length = %d, want 15", len(scan.TMS))
	}
	if !scan.TMS[scan.Offset+7] {
		t.Fatalf("last shift bit must assert TMS")
	}
	for i := scan.Offset; i < scan.Offset+7; i++ {
		if scan.TMS[i] {
			t.Fatalf("shift bit %d asserted TMS early", i-scan.Offset)
		}
	}
	if m.State() != StateRunTestIdle {
		t.Fatalf("State() = %s, want %s", m.State(), StateRunTestIdle)
	}
}

func TestPlanScanIRFromReset(t *testing.T) {
	m := NewStateMachine()

	scan, err := m.PlanScan(RegionIR, 5, 0)
	if err != nil {
		t.Fatalf("PlanScan returned error: %v", err)
	}
	// Reset -> Idle -> SelectDR -> SelectIR -> CaptureIR -> ShiftIR
	if scan.Offset != 5 {
		t.Fatalf("Offset = %d, want 5", scan.Offset)
	}
	if _, err := m.PlanScan(RegionIR, 0, 0); err == nil {
		t.Fatalf("expected error for zero-length scan")
	}
}

func TestScanTDIAndExtract(t *testing.T) {
	scan := Scan{TMS: make([]bool, 12), Offset: 3, Length: 6}

	tdi := scan.TDI(0x2D)
	if got := scan.Extract(tdi); got != 0x2D {
		t.Fatalf("Extract(TDI(0x2D)) = 0x%X", got)
	}
	for i := 0; i < scan.Offset; i++ {
		if tdi[i] {
			t.Fatalf("TDI bit %d outside the shift window is set", i)
		}
	}
}
