package probe

import (
	"context"
	"fmt"

	"github.com/google/gousb"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
)

// Kind categorizes adapter families.
type Kind string

const (
	KindCMSISDAP  Kind = "cmsis-dap"
	KindSimulator Kind = "simulator"
)

// Info describes an attached adapter that has not been opened yet.
type Info struct {
	Kind        Kind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
}

// Label returns a user-friendly description for the adapter.
func (i Info) Label() string {
	label := i.Description
	if label == "" {
		label = fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
	}
	if i.Serial != "" {
		label += " [" + i.Serial + "]"
	}
	return label
}

// ListAll enumerates connected USB debug adapters that match known VID/PID
// pairs. Devices that cannot be opened for lack of permissions are listed
// without a serial number.
func ListAll(ctx context.Context) ([]Info, error) {
	var results []Info
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		_, ok := classifyUSBDevice(desc)
		return ok
	})
	for _, dev := range devs {
		info, _ := classifyUSBDevice(dev.Desc)
		if serial, serr := dev.SerialNumber(); serr == nil {
			info.Serial = serial
		}
		dev.Close()
		results = append(results, info)
	}
	if err != nil && err != gousb.ErrorAccess {
		return results, fmt.Errorf("probe: USB enumeration: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return results, ctxErr
	}
	return results, nil
}

// Open opens the adapter described by i.
func (i Info) Open(opts OpenOptions) (*Probe, error) {
	switch i.Kind {
	case KindCMSISDAP:
		port := byte(jtag.PortSWD)
		if opts.Protocol == ProtocolJTAG {
			port = jtag.PortJTAG
		}
		adapter, err := jtag.NewCMSISDAPAdapter(jtag.CMSISDAPOptions{
			VendorID:  i.VendorID,
			ProductID: i.ProductID,
			Serial:    i.Serial,
			Port:      port,
			SpeedHz:   opts.SpeedHz,
		})
		if err != nil {
			return nil, wrap("open "+i.Label(), err)
		}
		return New(&CMSISDAPDriver{adapter: adapter}, i), nil
	case KindSimulator:
		return nil, fmt.Errorf("probe: simulated adapters are created with NewSimDriver")
	}
	return nil, fmt.Errorf("probe: unsupported adapter kind %q", i.Kind)
}

func classifyUSBDevice(desc *gousb.DeviceDesc) (Info, bool) {
	for _, known := range knownCMSISDAPVIDPIDs {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return Info{
				Kind:        KindCMSISDAP,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
			}, true
		}
	}
	return Info{}, false
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownCMSISDAPVIDPIDs = []knownUSBDevice{
	{VendorID: jtag.VendorIDRaspberryPi, ProductID: jtag.ProductIDCMSISDAP, Description: "Raspberry Pi Debug Probe"},
	{VendorID: 0x0d28, ProductID: 0x0204, Description: "DAPLink CMSIS-DAP"},
	{VendorID: 0x1366, ProductID: 0x0101, Description: "SEGGER J-Link CMSIS-DAP"},
	{VendorID: 0xc251, ProductID: 0xf001, Description: "Keil ULINKplus"},
}
