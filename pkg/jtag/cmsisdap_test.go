package jtag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

// fakeProbe answers CMSIS-DAP packets like a probe wired to a target whose
// debug registers are plain storage.
type fakeProbe struct {
	port   byte // reported by DAP_Connect; zero echoes the request
	ack    byte // forced DAP_Transfer acknowledge; zero means OK
	regs   map[byte]uint32
	pins   []byte
	sent   [][]byte
	closed bool
}

func newFakeProbe() *fakeProbe {
	return &fakeProbe{regs: make(map[byte]uint32)}
}

func (f *fakeProbe) GetPacketSize() int { return DefaultPacketSize }

func (f *fakeProbe) Close() error {
	f.closed = true
	return nil
}

func (f *fakeProbe) WriteRead(cmd []byte) ([]byte, error) {
	f.sent = append(f.sent, append([]byte(nil), cmd...))
	switch cmd[0] {
	case CmdInfo:
		s := map[byte]string{InfoVendorID: "OpenTraceLab", InfoProductID: "fake", InfoSerialNum: "F00D"}[cmd[1]]
		return append([]byte{CmdInfo, byte(len(s))}, s...), nil
	case CmdConnect:
		port := f.port
		if port == 0 {
			port = cmd[1]
		}
		return []byte{CmdConnect, port}, nil
	case CmdTransfer:
		if f.ack != 0 {
			return []byte{CmdTransfer, 0, f.ack}, nil
		}
		req := cmd[3]
		key := req &^ TransferRnW
		if req&TransferRnW != 0 {
			resp := []byte{CmdTransfer, 1, TransferAckOK, 0, 0, 0, 0}
			binary.LittleEndian.PutUint32(resp[3:], f.regs[key])
			return resp, nil
		}
		f.regs[key] = binary.LittleEndian.Uint32(cmd[4:8])
		return []byte{CmdTransfer, 1, TransferAckOK}, nil
	case CmdSWJPins:
		f.pins = append(f.pins, cmd[1])
		return []byte{CmdSWJPins, cmd[1]}, nil
	case CmdJTAGSequence:
		if len(cmd) > DefaultPacketSize {
			return nil, fmt.Errorf("packet of %d bytes", len(cmd))
		}
		// TDO loops back TDI.
		resp := []byte{CmdJTAGSequence, StatusOK}
		off := 2
		for i := 0; i < int(cmd[1]); i++ {
			seq := JTAGSequence{Info: cmd[off]}
			n := (seq.TCKCount() + 7) / 8
			if seq.CaptureTDO() {
				resp = append(resp, cmd[off+1:off+1+n]...)
			}
			off += 1 + n
		}
		return resp, nil
	}
	return []byte{cmd[0], StatusOK}, nil
}

// commands returns the command IDs sent so far.
func (f *fakeProbe) commands() []byte {
	ids := make([]byte, len(f.sent))
	for i, cmd := range f.sent {
		ids[i] = cmd[0]
	}
	return ids
}

func openFake(t *testing.T, f *fakeProbe, port byte) *CMSISDAPAdapter {
	t.Helper()
	a, err := openCMSISDAP(f, CMSISDAPOptions{Port: port, SpeedHz: 4_000_000})
	if err != nil {
		t.Fatalf("openCMSISDAP: %v", err)
	}
	return a
}

func TestOpenSWDSwitchesProtocol(t *testing.T) {
	f := newFakeProbe()
	a := openFake(t, f, PortSWD)

	info, _ := a.Info()
	if info.Vendor != "OpenTraceLab" || info.SerialNumber != "F00D" {
		t.Fatalf("info = %+v", info)
	}
	if a.Port() != PortSWD {
		t.Fatalf("Port() = %d, want SWD", a.Port())
	}

	want := []byte{
		CmdInfo, CmdInfo, CmdInfo, CmdInfo,
		CmdConnect,
		CmdSWJSequence, CmdSWJSequence, CmdSWJSequence, CmdSWJSequence,
		CmdSWJClock,
		CmdTransferConfigure,
	}
	if got := f.commands(); !bytes.Equal(got, want) {
		t.Fatalf("commands = % X, want % X", got, want)
	}
	// JTAG-to-SWD select code between the line resets.
	if !bytes.Equal(f.sent[6], []byte{CmdSWJSequence, 16, 0x9E, 0xE7}) {
		t.Fatalf("select sequence = % X", f.sent[6])
	}
	if hz := binary.LittleEndian.Uint32(f.sent[9][1:]); hz != 4_000_000 {
		t.Fatalf("clock = %d, want 4 MHz", hz)
	}
}

func TestOpenJTAGSkipsLineReset(t *testing.T) {
	f := newFakeProbe()
	openFake(t, f, PortJTAG)
	for _, id := range f.commands() {
		if id == CmdSWJSequence {
			t.Fatalf("JTAG connect sent an SWJ sequence")
		}
	}
}

func TestOpenPortMismatchClosesTransport(t *testing.T) {
	f := newFakeProbe()
	f.port = PortJTAG
	if _, err := openCMSISDAP(f, CMSISDAPOptions{Port: PortSWD}); err == nil {
		t.Fatalf("expected error when the probe connects the wrong port")
	}
	if !f.closed {
		t.Fatalf("transport left open after failed open")
	}
}

func TestDAPRegisterAccess(t *testing.T) {
	f := newFakeProbe()
	a := openFake(t, f, PortSWD)

	if err := a.WriteRegister(PortDebug, 0x8, 0x0100_00F0); err != nil {
		t.Fatalf("DP write: %v", err)
	}
	if err := a.WriteRegister(PortAccess, 0xFC, 0x2477_0011); err != nil {
		t.Fatalf("AP write: %v", err)
	}

	dp, err := a.ReadRegister(PortDebug, 0x8)
	if err != nil || dp != 0x0100_00F0 {
		t.Fatalf("DP read = 0x%08X, %v", dp, err)
	}
	// Only A[3:2] reach the wire, so AP 0xFC lands on bank offset 0xC.
	ap, err := a.ReadRegister(PortAccess, 0x0C)
	if err != nil || ap != 0x2477_0011 {
		t.Fatalf("AP read = 0x%08X, %v", ap, err)
	}
}

func TestDAPTransferAcks(t *testing.T) {
	f := newFakeProbe()
	a := openFake(t, f, PortSWD)

	f.ack = TransferAckFault
	if _, err := a.ReadRegister(PortAccess, 0xC); !errors.Is(err, ErrTransferFault) {
		t.Fatalf("fault ack error = %v", err)
	}
	f.ack = TransferAckWait
	if err := a.WriteRegister(PortDebug, 0x4, 0); !errors.Is(err, ErrTransferWait) {
		t.Fatalf("wait ack error = %v", err)
	}
	f.ack = TransferAckOK | TransferProtoErr
	if _, err := a.ReadRegister(PortDebug, 0x0); err == nil {
		t.Fatalf("expected protocol error")
	}
}

func TestSetResetDrivesNRESET(t *testing.T) {
	f := newFakeProbe()
	a := openFake(t, f, PortSWD)

	if err := a.SetReset(true); err != nil {
		t.Fatalf("assert: %v", err)
	}
	if err := a.SetReset(false); err != nil {
		t.Fatalf("deassert: %v", err)
	}
	if !bytes.Equal(f.pins, []byte{0, PinNRESET}) {
		t.Fatalf("pin writes = % X, want 00 80", f.pins)
	}
}

func TestSpeedRangeAndClose(t *testing.T) {
	f := newFakeProbe()
	a := openFake(t, f, PortSWD)

	if err := a.SetSpeed(100); err == nil {
		t.Fatalf("SetSpeed(100Hz) should fail")
	}
	if err := a.SetSpeed(100_000_000); err == nil {
		t.Fatalf("SetSpeed(100MHz) should fail")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if last := f.sent[len(f.sent)-1]; last[0] != CmdDisconnect || !f.closed {
		t.Fatalf("Close did not disconnect and release the transport")
	}
}

func TestLongShiftSpansPackets(t *testing.T) {
	f := newFakeProbe()
	a := openFake(t, f, PortJTAG)
	before := len(f.sent)

	tdi := make([]byte, 128)
	for i := range tdi {
		tdi[i] = byte(i*37 + 1)
	}
	tdo, err := a.ShiftDR(nil, tdi, len(tdi)*8)
	if err != nil {
		t.Fatalf("ShiftDR: %v", err)
	}
	if !bytes.Equal(tdo, tdi) {
		t.Fatalf("loopback TDO differs from TDI")
	}
	if packets := len(f.sent) - before; packets < 2 {
		t.Fatalf("1024-bit scan sent %d packet(s), want several", packets)
	}

	// TMS toggling every three clocks yields many short sequences.
	tms := BoolsToBytes([]bool{
		true, true, true, false, false, false, true, true, true, false, false, false,
		true, true, true, false, false, false, true, true, true, false, false, false,
		true, true, true, false, false, false, true, true, true, false, false, false,
	})
	tdo, err = a.ShiftIR(tms, []byte{0xA5, 0x3C, 0x0F, 0xF0, 0x09}, 36)
	if err != nil {
		t.Fatalf("ShiftIR: %v", err)
	}
	if !bytes.Equal(tdo, []byte{0xA5, 0x3C, 0x0F, 0xF0, 0x09}) {
		t.Fatalf("TDO = % X", tdo)
	}
}

func TestShiftNeedsJTAGPort(t *testing.T) {
	a := openFake(t, newFakeProbe(), PortSWD)
	if _, err := a.ShiftDR(nil, []byte{0}, 8); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("ShiftDR over SWD error = %v", err)
	}
}

func TestBuildSequences(t *testing.T) {
	adapter := &CMSISDAPAdapter{protocol: NewCMSISDAPProtocol(64)}

	tests := []struct {
		name   string
		tms    []byte
		tdi    []byte
		bits   int
		counts []int
		tmsOut []bool
	}{
		{"no TMS", nil, []byte{0xAA}, 8, []int{8}, []bool{false}},
		{"constant TMS high", []byte{0xFF}, []byte{0xAA}, 8, []int{8}, []bool{true}},
		{"TMS edge splits", []byte{0x0F, 0x00}, []byte{0xAA, 0x55}, 16, []int{4, 12}, []bool{true, false}},
		{"split at 64 clocks", nil, make([]byte, 9), 70, []int{64, 6}, []bool{false, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seqs := adapter.buildSequences(tt.tms, tt.tdi, tt.bits)
			if len(seqs) != len(tt.counts) {
				t.Fatalf("got %d sequences, want %d", len(seqs), len(tt.counts))
			}
			for i, seq := range seqs {
				if seq.TCKCount() != tt.counts[i] || seq.TMS() != tt.tmsOut[i] || !seq.CaptureTDO() {
					t.Errorf("seq %d = %d clocks TMS=%v capture=%v", i, seq.TCKCount(), seq.TMS(), seq.CaptureTDO())
				}
			}
		})
	}
}

func TestCMSISDAPAdapterInterfaces(t *testing.T) {
	var _ Adapter = (*CMSISDAPAdapter)(nil)
	var _ DAPAccess = (*CMSISDAPAdapter)(nil)
	var _ ResetLine = (*CMSISDAPAdapter)(nil)
	var _ packetTransport = (*USBTransport)(nil)
}

// Requires a CMSIS-DAP probe wired to an ARM target over SWD.
func TestCMSISDAPAdapterHardware(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping hardware test in short mode")
	}

	adapter, err := NewCMSISDAPAdapter(CMSISDAPOptions{
		VendorID:  VendorIDRaspberryPi,
		ProductID: ProductIDCMSISDAP,
		Port:      PortSWD,
	})
	if err != nil {
		t.Skipf("No CMSIS-DAP hardware found: %v", err)
	}
	defer adapter.Close()

	info, err := adapter.Info()
	if err != nil {
		t.Fatalf("Info() failed: %v", err)
	}
	t.Logf("Adapter: %s %s [%s] firmware %s", info.Vendor, info.Model, info.SerialNumber, info.Firmware)

	dpidr, err := adapter.ReadRegister(PortDebug, 0x0)
	if err != nil {
		t.Skipf("no target answering on SWD: %v", err)
	}
	if dpidr&0x1 != 1 {
		t.Errorf("DPIDR bit 0 should be 1, got 0x%08X", dpidr)
	}
	t.Logf("DPIDR: 0x%08X", dpidr)
}
