package jtag

import (
	"bytes"
	"testing"
)

func TestProtocolInfo(t *testing.T) {
	proto := NewCMSISDAPProtocol(64)

	if got := proto.EncodeInfo(InfoSerialNum); !bytes.Equal(got, []byte{0x00, 0x03}) {
		t.Errorf("EncodeInfo() = % X", got)
	}

	vendor, err := proto.DecodeInfo([]byte{0x00, 0x03, 'A', 'R', 'M', 0x00})
	if err != nil || vendor != "ARM" {
		t.Errorf("DecodeInfo() = %q, %v", vendor, err)
	}
	// A zero length is a valid answer for optional strings.
	if s, err := proto.DecodeInfo([]byte{0x00, 0x00}); err != nil || s != "" {
		t.Errorf("empty info = %q, %v", s, err)
	}
	for _, resp := range [][]byte{{0x00}, {0x02, 0x01, 'x'}, {0x00, 0x05, 'A'}} {
		if _, err := proto.DecodeInfo(resp); err == nil {
			t.Errorf("DecodeInfo(% X) should fail", resp)
		}
	}
}

func TestProtocolConnect(t *testing.T) {
	proto := NewCMSISDAPProtocol(64)

	if got := proto.EncodeConnect(PortSWD); !bytes.Equal(got, []byte{0x02, 0x01}) {
		t.Errorf("EncodeConnect() = % X", got)
	}
	port, err := proto.DecodeConnect([]byte{0x02, PortJTAG})
	if err != nil || port != PortJTAG {
		t.Errorf("DecodeConnect() = %d, %v", port, err)
	}
	if _, err := proto.DecodeConnect([]byte{0x02, 0x00}); err == nil {
		t.Error("port 0 means the probe refused the connection")
	}
	if err := proto.DecodeDisconnect([]byte{0x03, StatusOK}); err != nil {
		t.Errorf("DecodeDisconnect() = %v", err)
	}
}

func TestProtocolJTAGConfigure(t *testing.T) {
	proto := NewCMSISDAPProtocol(64)

	got := proto.EncodeJTAGConfigure([]byte{4, 5})
	if !bytes.Equal(got, []byte{0x15, 0x02, 0x04, 0x05}) {
		t.Errorf("EncodeJTAGConfigure() = % X", got)
	}
	if err := proto.DecodeJTAGConfigure([]byte{0x15, StatusError}); err == nil {
		t.Error("failed status should be reported")
	}
}

func TestJTAGSequenceInfoByte(t *testing.T) {
	tests := []struct {
		clocks  int
		tms     bool
		capture bool
		want    byte
	}{
		{8, false, false, 0x08},
		{8, true, true, 0x08 | JTAGSeqTMS | JTAGSeqTDO},
		{64, false, false, 0x00},
		{5, true, false, 0x05 | JTAGSeqTMS},
	}
	for _, tt := range tests {
		seq := NewJTAGSequence(tt.clocks, tt.tms, tt.capture, nil)
		if seq.Info != tt.want {
			t.Errorf("NewJTAGSequence(%d, %v, %v) info = 0x%02X, want 0x%02X", tt.clocks, tt.tms, tt.capture, seq.Info, tt.want)
		}
		if seq.TCKCount() != tt.clocks || seq.TMS() != tt.tms || seq.CaptureTDO() != tt.capture {
			t.Errorf("sequence 0x%02X decodes to %d/%v/%v", seq.Info, seq.TCKCount(), seq.TMS(), seq.CaptureTDO())
		}
	}
}

func TestProtocolJTAGSequence(t *testing.T) {
	proto := NewCMSISDAPProtocol(64)
	seqs := []JTAGSequence{
		NewJTAGSequence(8, false, true, []byte{0xAA}),
		NewJTAGSequence(5, true, false, []byte{0x1F}),
		NewJTAGSequence(16, false, true, []byte{0x12, 0x34}),
	}

	got := proto.EncodeJTAGSequence(seqs)
	want := []byte{0x14, 0x03, 0x88, 0xAA, 0x45, 0x1F, 0x90, 0x12, 0x34}
	if !bytes.Equal(got, want) {
		t.Fatalf("EncodeJTAGSequence() = % X, want % X", got, want)
	}

	// Only capturing sequences return TDO, in order.
	tdo, err := proto.DecodeJTAGSequence([]byte{0x14, 0x00, 0x5A, 0xCD, 0xAB}, seqs)
	if err != nil {
		t.Fatalf("DecodeJTAGSequence() error = %v", err)
	}
	if len(tdo) != 2 || !bytes.Equal(tdo[0], []byte{0x5A}) || !bytes.Equal(tdo[1], []byte{0xCD, 0xAB}) {
		t.Errorf("TDO = % X", tdo)
	}
	if _, err := proto.DecodeJTAGSequence([]byte{0x14, 0x00, 0x5A}, seqs); err == nil {
		t.Error("truncated TDO should fail")
	}
	if _, err := proto.DecodeJTAGSequence([]byte{0x14, StatusError}, seqs); err == nil {
		t.Error("failed status should be reported")
	}
}

func TestProtocolClockAndTransferConfigure(t *testing.T) {
	proto := NewCMSISDAPProtocol(64)

	if got := proto.EncodeSetClock(4_000_000); !bytes.Equal(got, []byte{0x11, 0x00, 0x09, 0x3D, 0x00}) {
		t.Errorf("EncodeSetClock() = % X", got)
	}
	got := proto.EncodeTransferConfigure(2, 64, 0x100)
	if !bytes.Equal(got, []byte{0x04, 0x02, 0x40, 0x00, 0x00, 0x01}) {
		t.Errorf("EncodeTransferConfigure() = % X", got)
	}
	if err := proto.DecodeTransferConfigure([]byte{0x04, StatusOK}); err != nil {
		t.Errorf("DecodeTransferConfigure() = %v", err)
	}
}

func TestProtocolEncodeTransfer(t *testing.T) {
	proto := NewCMSISDAPProtocol(64)

	tests := []struct {
		name  string
		port  PortType
		read  bool
		addr  uint8
		value uint32
		want  []byte
	}{
		{"read DPIDR", PortDebug, true, 0x0, 0, []byte{0x05, 0x00, 0x01, 0x02}},
		{"read AP DRW", PortAccess, true, 0xC, 0, []byte{0x05, 0x00, 0x01, 0x0F}},
		{"write SELECT", PortDebug, false, 0x8, 0x01000000, []byte{0x05, 0x00, 0x01, 0x08, 0x00, 0x00, 0x00, 0x01}},
		{"write AP TAR", PortAccess, false, 0x4, 0xE000EDF0, []byte{0x05, 0x00, 0x01, 0x05, 0xF0, 0xED, 0x00, 0xE0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := proto.EncodeTransfer(tt.port, tt.read, tt.addr, tt.value)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeTransfer() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestProtocolDecodeTransfer(t *testing.T) {
	proto := NewCMSISDAPProtocol(64)

	value, err := proto.DecodeTransfer([]byte{0x05, 0x01, 0x01, 0x77, 0x14, 0xA0, 0x2B}, true)
	if err != nil {
		t.Fatalf("DecodeTransfer() error = %v", err)
	}
	if value != 0x2BA01477 {
		t.Errorf("DecodeTransfer() = 0x%08X, want 0x2BA01477", value)
	}

	if _, err := proto.DecodeTransfer([]byte{0x05, 0x01, 0x01}, false); err != nil {
		t.Errorf("write ack OK returned error: %v", err)
	}
	if _, err := proto.DecodeTransfer([]byte{0x05, 0x00, 0x04}, true); err != ErrTransferFault {
		t.Errorf("FAULT ack error = %v, want ErrTransferFault", err)
	}
	if _, err := proto.DecodeTransfer([]byte{0x05, 0x00, 0x02}, true); err != ErrTransferWait {
		t.Errorf("WAIT ack error = %v, want ErrTransferWait", err)
	}
	if _, err := proto.DecodeTransfer([]byte{0x05, 0x01, 0x09}, true); err == nil {
		t.Error("protocol error bit should fail")
	}
	if _, err := proto.DecodeTransfer([]byte{0x05, 0x01, 0x01, 0x00}, true); err == nil {
		t.Error("truncated read data should fail")
	}
}

func TestProtocolSWJPins(t *testing.T) {
	proto := NewCMSISDAPProtocol(64)

	got := proto.EncodeSWJPins(PinNRESET, PinNRESET, 0)
	want := []byte{0x10, 0x80, 0x80, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSWJPins() = % X, want % X", got, want)
	}

	pins, err := proto.DecodeSWJPins([]byte{0x10, 0x83})
	if err != nil {
		t.Fatalf("DecodeSWJPins() error = %v", err)
	}
	if pins&PinNRESET == 0 {
		t.Errorf("nRESET should read high, got 0x%02X", pins)
	}
}

func TestProtocolSWJSequence(t *testing.T) {
	proto := NewCMSISDAPProtocol(64)

	got := proto.EncodeSWJSequence(16, []byte{0x9E, 0xE7})
	want := []byte{0x12, 0x10, 0x9E, 0xE7}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSWJSequence() = % X, want % X", got, want)
	}
	if err := proto.DecodeSWJSequence([]byte{0x12, 0xFF}); err == nil {
		t.Error("expected error for failed status")
	}
}
