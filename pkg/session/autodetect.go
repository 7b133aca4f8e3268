package session

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/arm"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/riscv"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/target"
)

func resolveTarget(p *probe.Probe, sel target.Selector, reg *target.Registry, log *logrus.Entry) (*target.Target, error) {
	switch sel := sel.(type) {
	case target.Specified:
		if sel.Target == nil {
			return nil, fmt.Errorf("session: specified target is nil")
		}
		return sel.Target, nil
	case target.Named:
		t, err := reg.TargetByName(sel.Name)
		if err != nil {
			return nil, &ChipNotFoundError{Reason: target.ReasonNameNotFound, Err: err}
		}
		return t, nil
	case target.Auto:
		return autodetect(p, reg, log)
	}
	panic(fmt.Sprintf("session: unknown selector %T", sel))
}

// autodetect identifies the chip behind p. ARM is tried first through the
// ROM table; RISC-V only when ARM found nothing and the probe has JTAG.
// Failures of either probe are logged and treated as "not identified".
func autodetect(p *probe.Probe, reg *target.Registry, log *logrus.Entry) (*target.Target, error) {
	info := identifyArm(p, log)
	if info == nil && p.HasJTAGInterface() {
		info = identifyRiscv(p, log)
	}
	if info == nil {
		return nil, &ChipNotFoundError{Reason: target.ReasonAutodetectFailed}
	}
	log.Debugf("autodetect: found %s", info)
	t, err := reg.TargetByChipInfo(info)
	if err != nil {
		return nil, &ChipNotFoundError{Reason: target.ReasonAutodetectFailed, Err: err}
	}
	return t, nil
}

func identifyArm(p *probe.Probe, log *logrus.Entry) target.ChipInfo {
	ci, err := arm.NewCommunicationInterface(p, arm.NewState())
	if err != nil {
		log.WithError(err).Debug("autodetect: ARM debug port not usable")
		return nil
	}
	if ci == nil {
		log.Debug("autodetect: probe has no ARM debug port")
		return nil
	}
	info, err := ci.ReadChipInfo()
	if err != nil {
		log.WithError(err).Debug("autodetect: no ARM chip identity")
		return nil
	}
	return info
}

func identifyRiscv(p *probe.Probe, log *logrus.Entry) target.ChipInfo {
	ci, err := riscv.NewCommunicationInterface(p, riscv.NewState())
	if err != nil {
		log.WithError(err).Debug("autodetect: RISC-V debug module not usable")
		return nil
	}
	if ci == nil {
		return nil
	}
	id, err := ci.ReadIDCode()
	if err != nil {
		log.WithError(err).Debug("autodetect: reading IDCODE failed")
		return nil
	}
	return target.RiscvChipInfo{IDCode: id}
}
