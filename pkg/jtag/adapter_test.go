package jtag

import (
	"bytes"
	"errors"
	"testing"
)

func TestValidateShiftBuffers(t *testing.T) {
	if _, err := ValidateShiftBuffers(nil, nil, 0); err == nil {
		t.Fatalf("expected error for zero bits")
	}
	if _, err := ValidateShiftBuffers([]byte{0x00}, nil, 16); err == nil {
		t.Fatalf("expected error when TMS buffer too small")
	}
	n, err := ValidateShiftBuffers(nil, []byte{0x01, 0x00}, 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("required bytes = %d, want 2", n)
	}
}

func TestBitPacking(t *testing.T) {
	bits := []bool{true, false, true, true, false, false, false, false, true}
	packed := BoolsToBytes(bits)
	if !bytes.Equal(packed, []byte{0x0D, 0x01}) {
		t.Fatalf("BoolsToBytes = %X, want 0D01", packed)
	}
	// Asking for more bits than the buffer holds pads with zeros.
	got := BytesToBools([]byte{0x80}, 10)
	if !got[7] || got[8] || got[9] {
		t.Fatalf("BytesToBools = %v", got)
	}
}

func TestSimAdapterEchoesAndRecords(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{Name: "sim"})
	tdo, err := sim.ShiftDR([]byte{0xAA}, []byte{0xCC}, 8)
	if err != nil {
		t.Fatalf("ShiftDR returned error: %v", err)
	}
	if !bytes.Equal(tdo, []byte{0xCC}) {
		t.Fatalf("tdo = %X, want CC", tdo)
	}

	last, ok := sim.LastShift()
	if !ok || last.Region != ShiftRegionDR || last.Bits != 8 {
		t.Fatalf("unexpected last shift: %+v", last)
	}
	if last.Region.String() != "DR" {
		t.Fatalf("region = %s", last.Region)
	}
}

func TestSimAdapterHistoryIsBounded(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{})
	sim.HistoryLimit = 3
	for i := 0; i < 5; i++ {
		if _, err := sim.ShiftIR(nil, []byte{byte(i)}, 4); err != nil {
			t.Fatalf("ShiftIR: %v", err)
		}
	}
	shifts := sim.Shifts()
	if len(shifts) != 3 || sim.ShiftCount() != 5 {
		t.Fatalf("history = %d entries of %d shifts, want 3 of 5", len(shifts), sim.ShiftCount())
	}
	if shifts[0].TDI[0] != 2 || shifts[2].TDI[0] != 4 {
		t.Fatalf("history kept the wrong shifts: %+v", shifts)
	}
}

func TestSimAdapterHook(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{Name: "sim"})
	sim.OnShift = func(region ShiftRegion, _, _ []byte, bits int) ([]byte, error) {
		if region != ShiftRegionIR || bits != 4 {
			t.Fatalf("unexpected hook args: region=%s bits=%d", region, bits)
		}
		return []byte{0x0F}, nil
	}

	tdo, err := sim.ShiftIR(nil, nil, 4)
	if err != nil {
		t.Fatalf("ShiftIR returned error: %v", err)
	}
	if !bytes.Equal(tdo, []byte{0x0F}) {
		t.Fatalf("tdo = %X, want 0F", tdo)
	}
}

func TestSimAdapterInjectedError(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{})
	sim.Err = ErrTransferWait
	if _, err := sim.ShiftDR(nil, nil, 8); !errors.Is(err, ErrTransferWait) {
		t.Fatalf("ShiftDR error = %v, want ErrTransferWait", err)
	}
	if err := sim.ResetTAP(true); !errors.Is(err, ErrTransferWait) {
		t.Fatalf("ResetTAP error = %v, want ErrTransferWait", err)
	}
	if sim.ShiftCount() != 0 {
		t.Fatalf("failed shifts were recorded")
	}
}

func TestSimAdapterResetsAndSpeed(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{MinFrequency: 1_000, MaxFrequency: 10_000_000})
	if err := sim.SetSpeed(1_000_000); err != nil {
		t.Fatalf("SetSpeed returned error: %v", err)
	}
	for _, hz := range []int{0, 500, 20_000_000} {
		if err := sim.SetSpeed(hz); err == nil {
			t.Fatalf("expected error for %dHz", hz)
		}
	}
	if sim.SpeedHz != 1_000_000 {
		t.Fatalf("SpeedHz = %d after rejected changes", sim.SpeedHz)
	}

	if err := sim.ResetTAP(false); err != nil {
		t.Fatalf("ResetTAP returned error: %v", err)
	}
	if err := sim.ResetTAP(true); err != nil {
		t.Fatalf("ResetTAP hard returned error: %v", err)
	}
	if total, hard := sim.ResetCounts(); total != 2 || hard != 1 {
		t.Fatalf("ResetCounts = %d total / %d hard, want 2/1", total, hard)
	}
}
