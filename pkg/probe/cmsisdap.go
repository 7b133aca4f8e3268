package probe

import (
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
)

// CMSISDAPDriver adapts a CMSIS-DAP adapter to Driver. DP/AP transfers work
// on either wire protocol; raw JTAG scans only when connected over JTAG.
type CMSISDAPDriver struct {
	adapter *jtag.CMSISDAPAdapter
}

func (d *CMSISDAPDriver) Info() (jtag.AdapterInfo, error) {
	return d.adapter.Info()
}

func (d *CMSISDAPDriver) SetSpeed(hz int) error {
	return d.adapter.SetSpeed(hz)
}

func (d *CMSISDAPDriver) SetReset(asserted bool) error {
	return d.adapter.SetReset(asserted)
}

func (d *CMSISDAPDriver) DAP() (jtag.DAPAccess, bool) {
	return d.adapter, true
}

func (d *CMSISDAPDriver) JTAG() (jtag.Adapter, bool) {
	if d.adapter.Port() != jtag.PortJTAG {
		return nil, false
	}
	return d.adapter, true
}

func (d *CMSISDAPDriver) Close() error {
	return d.adapter.Close()
}
