package arm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/arm/armsim"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
)

var stMicro = idcode.JEP106{Continuation: 0, ID: 0x20}

func simProbe(t *testing.T, sim *armsim.Target) *probe.Probe {
	t.Helper()
	return probe.New(probe.NewSimDriver("armsim", sim, nil, sim), probe.SimInfo("armsim"))
}

func attach(t *testing.T, sim *armsim.Target) (*CommunicationInterface, *CortexM) {
	t.Helper()
	ci, err := NewCommunicationInterface(simProbe(t, sim), NewState())
	require.NoError(t, err)
	require.NotNil(t, ci)
	mem, err := ci.Memory(0)
	require.NoError(t, err)
	return ci, NewCortexM(mem, core.Armv7m)
}

func TestNoDAPInterfaceIsNotAnError(t *testing.T) {
	p := probe.New(probe.NewSimDriver("jtag", nil, jtag.NewSimAdapter(jtag.AdapterInfo{}), nil), probe.SimInfo("jtag"))
	ci, err := NewCommunicationInterface(p, NewState())
	assert.NoError(t, err)
	assert.Nil(t, ci)
}

func TestPowerUpFailurePropagates(t *testing.T) {
	sim := armsim.New(stMicro, 0x410, armsim.NewCore(6))
	sim.DAPError = jtag.ErrTransferFault

	_, err := NewCommunicationInterface(simProbe(t, sim), NewState())
	require.Error(t, err)
	assert.True(t, errors.Is(err, jtag.ErrTransferFault))
	var te *probe.TransportError
	assert.True(t, errors.As(err, &te))
}

func TestReadChipInfo(t *testing.T) {
	sim := armsim.New(stMicro, 0x414, armsim.NewCore(6))
	ci, _ := attach(t, sim)

	info, err := ci.ReadChipInfo()
	require.NoError(t, err)
	assert.Equal(t, stMicro, info.Manufacturer)
	assert.Equal(t, uint16(0x414), info.Part)

	sim.NoROMTable = true
	_, err = ci.ReadChipInfo()
	assert.Error(t, err)
}

func TestSelectIsCached(t *testing.T) {
	sim := armsim.New(stMicro, 0x410, armsim.NewCore(6))
	_, cm := attach(t, sim)

	_, err := cm.Read32(0x2000_0000)
	require.NoError(t, err)
	before := sim.Transfers()
	_, err = cm.Read32(0x2000_0004)
	require.NoError(t, err)
	// TAR write plus DRW read; CSW and SELECT are unchanged.
	assert.Equal(t, 2, sim.Transfers()-before)
}

func TestMemoryBlockAccess(t *testing.T) {
	sim := armsim.New(stMicro, 0x410, armsim.NewCore(6))
	_, cm := attach(t, sim)
	simCore := sim.Core(0)
	simCore.Poke(0x2000_0000, 0x44332211)
	simCore.Poke(0x2000_0004, 0x88776655)

	buf := make([]byte, 5)
	require.NoError(t, cm.ReadBlock(0x2000_0001, buf))
	assert.Equal(t, []byte{0x22, 0x33, 0x44, 0x55, 0x66}, buf)

	require.NoError(t, cm.WriteBlock(0x2000_0002, []byte{0xAA, 0xBB, 0xCC}))
	assert.Equal(t, uint32(0xBBAA2211), simCore.Peek(0x2000_0000))
	assert.Equal(t, uint32(0x887766CC), simCore.Peek(0x2000_0004))

	words := make([]uint32, 300)
	for i := range words {
		words[i] = uint32(i)
	}
	// Crosses the 1 KiB TAR boundary at 0x20000400.
	m := cm.mem
	require.NoError(t, m.WriteWords(0x2000_0200, words))
	got := make([]uint32, len(words))
	require.NoError(t, m.ReadWords(0x2000_0200, got))
	assert.Equal(t, words, got)
}

func TestCortexMHaltRunAndRegisters(t *testing.T) {
	sim := armsim.New(stMicro, 0x410, armsim.NewCore(6))
	_, cm := attach(t, sim)
	c := core.New(cm, core.NewState(0), core.Armv7m, nil)

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, core.StatusRunning, st)

	require.NoError(t, c.Halt(10*time.Millisecond))
	assert.True(t, sim.Core(0).Halted())

	require.NoError(t, c.WriteRegister("pc", 0x0800_0100))
	pc, err := c.ReadRegister("r15")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0800_0100), pc)

	require.NoError(t, c.Step())
	assert.Equal(t, uint32(0x0800_0102), sim.Core(0).PC())
	assert.True(t, sim.Core(0).Halted())

	require.NoError(t, c.Run())
	assert.False(t, sim.Core(0).Halted())
}

func TestCortexMBreakpoints(t *testing.T) {
	sim := armsim.New(stMicro, 0x410, armsim.NewCore(6))
	_, cm := attach(t, sim)
	c := core.New(cm, core.NewState(0), core.Armv7m, nil)

	n, err := c.BreakpointUnits()
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	require.NoError(t, c.SetHWBreakpoint(0x0800_0102))
	assert.Equal(t, uint32(0x8800_0101), sim.Core(0).Breakpoints()[0])

	active, err := c.ActiveHWBreakpoints()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x0800_0102}, active)

	require.NoError(t, c.ClearAllHWBreakpoints())
	active, err = c.ActiveHWBreakpoints()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCortexMResetAndHalt(t *testing.T) {
	simCore := armsim.NewCore(4)
	simCore.ResetVector = 0x0800_0000
	simCore.HaltAfterPolls = 3
	sim := armsim.New(stMicro, 0x410, simCore)
	_, cm := attach(t, sim)
	c := core.New(cm, core.NewState(0), core.Armv7m, nil)

	require.NoError(t, c.ResetAndHalt(100*time.Millisecond))
	assert.True(t, simCore.Halted())
	assert.Equal(t, uint32(0x0800_0000), simCore.PC())

	simCore.NeverHalt = true
	err := c.ResetAndHalt(5 * time.Millisecond)
	assert.ErrorIs(t, err, core.ErrTimeout)
}

func TestMemoryRejectsNonMemAP(t *testing.T) {
	sim := armsim.New(stMicro, 0x410, armsim.NewCore(2))
	ci, err := NewCommunicationInterface(simProbe(t, sim), NewState())
	require.NoError(t, err)
	_, err = ci.Memory(3)
	assert.Error(t, err)
}
