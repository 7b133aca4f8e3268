// Package probe owns debug adapters. A Probe is the single owner of one
// physical (or simulated) adapter and exposes reset-line control plus the
// wire interfaces the architecture layers are built on.
package probe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/internal/logflags"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
)

// ErrNoProbeFound is returned when enumeration finds no usable adapter.
var ErrNoProbeFound = errors.New("probe: no debug probe found")

// ErrClosed is returned by operations on a closed probe.
var ErrClosed = errors.New("probe: closed")

// TransportError wraps a failure reported by the adapter driver. The driver
// error stays reachable through errors.Is/As.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("probe: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// Protocol is the debug wire protocol requested from the adapter.
type Protocol string

const (
	ProtocolSWD  Protocol = "swd"
	ProtocolJTAG Protocol = "jtag"
)

// ParseProtocol accepts "swd" or "jtag" in any case. The empty string
// selects SWD.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "swd":
		return ProtocolSWD, nil
	case "jtag":
		return ProtocolJTAG, nil
	}
	return "", fmt.Errorf("probe: unknown protocol %q", s)
}

// OpenOptions configures Info.Open.
type OpenOptions struct {
	Protocol Protocol
	SpeedHz  int
}

// Driver is implemented by adapter backends. DAP and JTAG report whether the
// corresponding interface is available; absence is not an error.
type Driver interface {
	Info() (jtag.AdapterInfo, error)
	SetSpeed(hz int) error
	SetReset(asserted bool) error
	DAP() (jtag.DAPAccess, bool)
	JTAG() (jtag.Adapter, bool)
	Close() error
}

// Probe is an opened debug adapter.
type Probe struct {
	driver Driver
	info   Info
	log    *logrus.Entry
	closed bool
}

// New takes ownership of an opened driver.
func New(driver Driver, info Info) *Probe {
	return &Probe{
		driver: driver,
		info:   info,
		log:    logflags.ProbeLogger().WithField("probe", info.Label()),
	}
}

// Info returns the descriptor the probe was opened from.
func (p *Probe) Info() Info {
	return p.info
}

// AdapterInfo queries the driver for adapter capabilities.
func (p *Probe) AdapterInfo() (jtag.AdapterInfo, error) {
	info, err := p.driver.Info()
	return info, wrap("info", err)
}

// TargetResetAssert drives the target reset line active.
func (p *Probe) TargetResetAssert() error {
	if p.closed {
		return ErrClosed
	}
	p.log.Debug("assert target reset")
	return wrap("reset assert", p.driver.SetReset(true))
}

// TargetResetDeassert releases the target reset line.
func (p *Probe) TargetResetDeassert() error {
	if p.closed {
		return ErrClosed
	}
	p.log.Debug("deassert target reset")
	return wrap("reset deassert", p.driver.SetReset(false))
}

// HasDAPInterface reports whether ARM debug port transactions are possible.
func (p *Probe) HasDAPInterface() bool {
	_, ok := p.driver.DAP()
	return ok && !p.closed
}

// HasJTAGInterface reports whether raw JTAG scans are possible.
func (p *Probe) HasJTAGInterface() bool {
	_, ok := p.driver.JTAG()
	return ok && !p.closed
}

// DAP returns the debug port access interface. Driver errors surface as
// *TransportError.
func (p *Probe) DAP() (jtag.DAPAccess, bool) {
	dap, ok := p.driver.DAP()
	if !ok || p.closed {
		return nil, false
	}
	return dapTransport{dap}, true
}

// JTAG returns the JTAG scan interface. Driver errors surface as
// *TransportError.
func (p *Probe) JTAG() (jtag.Adapter, bool) {
	adapter, ok := p.driver.JTAG()
	if !ok || p.closed {
		return nil, false
	}
	return jtagTransport{adapter}, true
}

// SetSpeed changes the wire clock.
func (p *Probe) SetSpeed(hz int) error {
	if p.closed {
		return ErrClosed
	}
	return wrap("set speed", p.driver.SetSpeed(hz))
}

// Close releases the adapter. Closing twice is a no-op.
func (p *Probe) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.log.Debug("close")
	return wrap("close", p.driver.Close())
}

type dapTransport struct {
	inner jtag.DAPAccess
}

func (d dapTransport) ReadRegister(port jtag.PortType, addr uint8) (uint32, error) {
	v, err := d.inner.ReadRegister(port, addr)
	return v, wrap(fmt.Sprintf("%s read 0x%02X", port, addr), err)
}

func (d dapTransport) WriteRegister(port jtag.PortType, addr uint8, value uint32) error {
	return wrap(fmt.Sprintf("%s write 0x%02X", port, addr), d.inner.WriteRegister(port, addr, value))
}

type jtagTransport struct {
	inner jtag.Adapter
}

func (j jtagTransport) Info() (jtag.AdapterInfo, error) {
	info, err := j.inner.Info()
	return info, wrap("info", err)
}

func (j jtagTransport) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	tdo, err := j.inner.ShiftIR(tms, tdi, bits)
	return tdo, wrap("shift IR", err)
}

func (j jtagTransport) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	tdo, err := j.inner.ShiftDR(tms, tdi, bits)
	return tdo, wrap("shift DR", err)
}

func (j jtagTransport) ResetTAP(hard bool) error {
	return wrap("reset TAP", j.inner.ResetTAP(hard))
}

func (j jtagTransport) SetSpeed(hz int) error {
	return wrap("set speed", j.inner.SetSpeed(hz))
}
