package jtag

import (
	"testing"
)

func TestUSBTransportCloseIsIdempotent(t *testing.T) {
	tr := &USBTransport{packetSize: DefaultPacketSize}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close on an unopened transport: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if tr.GetPacketSize() != DefaultPacketSize {
		t.Fatalf("packet size = %d", tr.GetPacketSize())
	}
}

// Requires a CMSIS-DAP probe on USB.
func TestUSBTransportHardware(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping hardware test in short mode")
	}

	transport, err := NewUSBTransport(VendorIDRaspberryPi, ProductIDCMSISDAP, "")
	if err != nil {
		t.Skipf("No CMSIS-DAP hardware found: %v", err)
	}
	defer transport.Close()

	if size := transport.GetPacketSize(); size < DefaultPacketSize {
		t.Errorf("Packet size too small: %d", size)
	}

	proto := NewCMSISDAPProtocol(transport.GetPacketSize())
	resp, err := transport.WriteRead(proto.EncodeInfo(InfoFirmwareVer))
	if err != nil {
		t.Fatalf("WriteRead failed: %v", err)
	}
	firmware, err := proto.DecodeInfo(resp)
	if err != nil {
		t.Fatalf("DAP_Info firmware: %v", err)
	}
	t.Logf("Probe firmware: %s", firmware)
}
