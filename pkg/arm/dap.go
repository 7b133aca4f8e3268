// Package arm talks to ARM Cortex-M cores through an ADIv5 debug access
// port.
package arm

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/internal/logflags"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
)

// powerUpTimeout bounds the wait for the debug and system power domains.
const powerUpTimeout = 100 * time.Millisecond

// State is DAP state that outlives a single CommunicationInterface.
type State struct {
	poweredUp   bool
	selectValid bool
	selectValue uint32
	csw         map[uint8]uint32
	apIDR       map[uint8]uint32
}

// NewState returns state for a DAP that has not been powered up.
func NewState() *State {
	return &State{csw: make(map[uint8]uint32), apIDR: make(map[uint8]uint32)}
}

// CommunicationInterface issues DP and AP transactions over a probe.
type CommunicationInterface struct {
	dap   jtag.DAPAccess
	state *State
	log   *logrus.Entry
}

// NewCommunicationInterface builds the interface and powers up the debug
// domain. It returns nil, nil when the probe has no DAP interface.
func NewCommunicationInterface(p *probe.Probe, state *State) (*CommunicationInterface, error) {
	dap, ok := p.DAP()
	if !ok {
		return nil, nil
	}
	ci := &CommunicationInterface{dap: dap, state: state, log: logflags.ArmLogger()}
	if err := ci.powerUp(); err != nil {
		return nil, err
	}
	return ci, nil
}

func (ci *CommunicationInterface) powerUp() error {
	if ci.state.poweredUp {
		return nil
	}
	idr, err := ci.dap.ReadRegister(jtag.PortDebug, dpDPIDR)
	if err != nil {
		return fmt.Errorf("arm: read DPIDR: %w", err)
	}
	ci.log.Debugf("DPIDR 0x%08X", idr)

	if err := ci.dap.WriteRegister(jtag.PortDebug, dpABORT, abortClearAll); err != nil {
		return fmt.Errorf("arm: clear sticky errors: %w", err)
	}
	// SELECT content is unknown after a line reset.
	ci.state.selectValid = false

	req := ctrlCSYSPWRUPREQ | ctrlCDBGPWRUPREQ
	if err := ci.dap.WriteRegister(jtag.PortDebug, dpCTRLSTAT, req); err != nil {
		return fmt.Errorf("arm: request power up: %w", err)
	}
	deadline := time.Now().Add(powerUpTimeout)
	for {
		stat, err := ci.dap.ReadRegister(jtag.PortDebug, dpCTRLSTAT)
		if err != nil {
			return fmt.Errorf("arm: read CTRL/STAT: %w", err)
		}
		if stat&(ctrlCSYSPWRUPACK|ctrlCDBGPWRUPACK) == ctrlCSYSPWRUPACK|ctrlCDBGPWRUPACK {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("arm: debug power up not acknowledged (CTRL/STAT 0x%08X)", stat)
		}
		time.Sleep(time.Millisecond)
	}
	ci.state.poweredUp = true
	return nil
}

func (ci *CommunicationInterface) selectAP(ap, addr uint8) error {
	value := uint32(ap)<<24 | uint32(addr&0xF0)
	if ci.state.selectValid && ci.state.selectValue == value {
		return nil
	}
	if err := ci.dap.WriteRegister(jtag.PortDebug, dpSELECT, value); err != nil {
		ci.state.selectValid = false
		return err
	}
	ci.state.selectValue = value
	ci.state.selectValid = true
	return nil
}

// ReadAP reads an access port register.
func (ci *CommunicationInterface) ReadAP(ap, addr uint8) (uint32, error) {
	if err := ci.selectAP(ap, addr); err != nil {
		return 0, err
	}
	return ci.dap.ReadRegister(jtag.PortAccess, addr&0x0C)
}

// WriteAP writes an access port register.
func (ci *CommunicationInterface) WriteAP(ap, addr uint8, value uint32) error {
	if err := ci.selectAP(ap, addr); err != nil {
		return err
	}
	return ci.dap.WriteRegister(jtag.PortAccess, addr&0x0C, value)
}

// Memory returns the MEM-AP at index ap. It fails if the AP does not exist
// or is not a memory access port.
func (ci *CommunicationInterface) Memory(ap uint8) (*Memory, error) {
	idr, ok := ci.state.apIDR[ap]
	if !ok {
		var err error
		idr, err = ci.ReadAP(ap, apIDR)
		if err != nil {
			return nil, fmt.Errorf("arm: read AP%d IDR: %w", ap, err)
		}
		ci.state.apIDR[ap] = idr
		ci.log.Debugf("AP%d IDR 0x%08X", ap, idr)
	}
	// IDR CLASS [16:13] is 0b1000 for a MEM-AP.
	if idr == 0 || (idr>>13)&0xF != 0x8 {
		return nil, fmt.Errorf("arm: AP%d is not a memory access port (IDR 0x%08X)", ap, idr)
	}
	return &Memory{ci: ci, ap: ap}, nil
}
