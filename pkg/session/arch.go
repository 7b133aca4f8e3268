package session

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/arm"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/riscv"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/target"
)

// archInterface is the protocol state of one debug architecture. The
// variant is chosen from the target once and never changes.
type archInterface interface {
	architecture() core.Architecture
	attach(p *probe.Probe, spec target.CoreSpec, state *core.State, release func()) (*core.Core, error)
}

type armInterface struct {
	state *arm.State
}

type riscvInterface struct {
	state *riscv.State
}

func newArchInterface(a core.Architecture) archInterface {
	switch a {
	case core.ArchitectureArm:
		return &armInterface{state: arm.NewState()}
	case core.ArchitectureRiscv:
		return &riscvInterface{state: riscv.NewState()}
	}
	panic(fmt.Sprintf("session: unknown architecture %d", a))
}

func (*armInterface) architecture() core.Architecture {
	return core.ArchitectureArm
}

func (a *armInterface) attach(p *probe.Probe, spec target.CoreSpec, state *core.State, release func()) (*core.Core, error) {
	ci, err := arm.NewCommunicationInterface(p, a.state)
	if err != nil {
		return nil, err
	}
	if ci == nil {
		return nil, &InterfaceUnavailableError{Kind: InterfaceDAP}
	}
	mem, err := ci.Memory(spec.AP)
	if err != nil {
		return nil, err
	}
	return core.New(arm.NewCortexM(mem, spec.Type), state, spec.Type, release), nil
}

func (*riscvInterface) architecture() core.Architecture {
	return core.ArchitectureRiscv
}

func (r *riscvInterface) attach(p *probe.Probe, spec target.CoreSpec, state *core.State, release func()) (*core.Core, error) {
	ci, err := riscv.NewCommunicationInterface(p, r.state)
	if err != nil {
		return nil, err
	}
	if ci == nil {
		return nil, &InterfaceUnavailableError{Kind: InterfaceJTAG}
	}
	return core.New(ci.Hart(state.Index()), state, spec.Type, release), nil
}
