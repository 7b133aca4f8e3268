package jtag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/internal/logflags"
)

const (
	// Raspberry Pi debug probe USB identifiers
	VendorIDRaspberryPi = 0x2E8A
	ProductIDCMSISDAP   = 0x000C

	// DefaultPacketSize is the CMSIS-DAP v1 HID report size, used until the
	// bulk IN endpoint reports its own.
	DefaultPacketSize = 64
	// DefaultTimeout bounds each command/response transaction.
	DefaultTimeout = 5 * time.Second
)

// USBTransport exchanges CMSIS-DAP packets with a probe over its vendor
// class bulk endpoints.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface
	done func()

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
	log        *logrus.Entry
}

// NewUSBTransport opens the CMSIS-DAP probe matching vid/pid. When serial is
// non-empty only a device reporting that serial number is accepted.
func NewUSBTransport(vid, pid uint16, serial string) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := openMatchingDevice(ctx, vid, pid, serial)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	// Not fatal on platforms without kernel driver detach
	_ = dev.SetAutoDetach(true)

	t := &USBTransport{
		ctx:        ctx,
		dev:        dev,
		packetSize: DefaultPacketSize,
		timeout:    DefaultTimeout,
		log:        logflags.ProbeLogger().WithField("usb", fmt.Sprintf("%04X:%04X", vid, pid)),
	}
	if err := t.claimInterface(); err != nil {
		t.Close()
		return nil, err
	}
	t.log.Debugf("claimed CMSIS-DAP interface, %d byte packets", t.packetSize)
	return t, nil
}

func openMatchingDevice(ctx *gousb.Context, vid, pid uint16, serial string) (*gousb.Device, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == vid && uint16(desc.Product) == pid
	})
	var found *gousb.Device
	for _, dev := range devs {
		if found == nil {
			if serial == "" {
				found = dev
				continue
			}
			if sn, snErr := dev.SerialNumber(); snErr == nil && sn == serial {
				found = dev
				continue
			}
		}
		dev.Close()
	}
	if found != nil {
		return found, nil
	}
	if err != nil {
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if serial != "" {
		return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X serial %q)", vid, pid, serial)
	}
	return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X)", vid, pid)
}

// claimInterface claims the first vendor class interface, falling back to
// interface 0, and opens its bulk endpoints.
func (t *USBTransport) claimInterface() error {
	cfgNum, err := t.dev.ActiveConfigNum()
	if err != nil {
		cfgNum = 1
	}
	cfgDesc, ok := t.dev.Desc.Configs[cfgNum]
	if !ok {
		return fmt.Errorf("configuration %d not found", cfgNum)
	}

	intfNum := 0
	for _, intf := range cfgDesc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassVendorSpec {
			intfNum = intf.Number
			break
		}
	}

	cfg, err := t.dev.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config %d: %w", cfgNum, err)
	}
	intf, err := cfg.Interface(intfNum, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("failed to claim interface %d: %w", intfNum, err)
	}
	t.intf = intf
	t.done = func() {
		intf.Close()
		cfg.Close()
	}
	return t.openEndpoints()
}

func (t *USBTransport) openEndpoints() error {
	var outNum, inNum int
	for _, ep := range t.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && outNum == 0:
			outNum = ep.Number
		case ep.Direction == gousb.EndpointDirectionIn && inNum == 0:
			inNum = ep.Number
			t.packetSize = ep.MaxPacketSize
		}
	}
	if outNum == 0 || inNum == 0 {
		return fmt.Errorf("bulk endpoints not found on interface %d", t.intf.Setting.Number)
	}

	var err error
	if t.epOut, err = t.intf.OutEndpoint(outNum); err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	if t.epIn, err = t.intf.InEndpoint(inNum); err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	return nil
}

// WriteRead sends one command packet and returns the probe's response. A
// response that does not echo the command ID is an error.
func (t *USBTransport) WriteRead(cmd []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	// Packets are fixed size
	packet := make([]byte, t.packetSize)
	copy(packet, cmd)
	if _, err := t.epOut.WriteContext(ctx, packet); err != nil {
		return nil, fmt.Errorf("USB write failed: %w", err)
	}

	resp := make([]byte, t.packetSize)
	n, err := t.epIn.ReadContext(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("USB read failed: %w", err)
	}
	resp = resp[:n]
	if logflags.Probe() {
		t.log.Debugf("-> % X", cmd)
		t.log.Debugf("<- % X", resp)
	}
	if n == 0 || resp[0] != cmd[0] {
		return nil, fmt.Errorf("probe answered command 0x%02X with % X", cmd[0], resp)
	}
	return resp, nil
}

// GetPacketSize returns the probe packet size.
func (t *USBTransport) GetPacketSize() int {
	return t.packetSize
}

// Close releases USB resources. It is safe to call more than once.
func (t *USBTransport) Close() error {
	if t.done != nil {
		t.done()
		t.done = nil
		t.intf = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
