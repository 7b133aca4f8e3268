package script

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/arm/armsim"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/session"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/target"
)

func parse(t *testing.T, input string) *Script {
	t.Helper()
	p, err := NewParser()
	require.NoError(t, err)
	s, err := p.ParseString(input)
	require.NoError(t, err)
	return s
}

func TestParseCommands(t *testing.T) {
	s := parse(t, `
# bring the core up
halt
reset halt; step 3
core 1
read32 0x2000_0000 4
write32 0x20000000 0xDEADBEEF
reg pc
setreg r0 42
break 0x08000100   # entry
unbreak 0x08000100
clearbreaks
wait 10ms
run`)

	cmds := s.Commands()
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name()
	}
	assert.Equal(t, []string{
		"halt", "reset", "step", "core", "read32", "write32", "reg",
		"setreg", "break", "unbreak", "clearbreaks", "wait", "resume",
	}, names)

	assert.True(t, cmds[1].Reset.Halt)
	assert.Equal(t, Number(3), *cmds[2].Step.Count)
	assert.Equal(t, Number(1), *cmds[3].Core)
	assert.Equal(t, Number(0x20000000), cmds[4].Read.Addr)
	assert.Equal(t, Number(4), *cmds[4].Read.Count)
	assert.Equal(t, Number(0xDEADBEEF), cmds[5].Write.Value)
	assert.Equal(t, "pc", *cmds[6].Reg)
	assert.Equal(t, SetReg{Name: "r0", Value: 42}, *cmds[7].SetReg)
	assert.Equal(t, Number(0x08000100), *cmds[8].Break)
	assert.Equal(t, Duration(10*time.Millisecond), *cmds[11].Wait)
	assert.Equal(t, 3, cmds[0].Pos.Line)
	assert.Equal(t, 4, cmds[2].Pos.Line)
}

func TestParseResetDoesNotSwallowNextLine(t *testing.T) {
	cmds := parse(t, "reset\nhalt\n").Commands()
	require.Len(t, cmds, 2)
	assert.False(t, cmds[0].Reset.Halt)
	assert.True(t, cmds[1].Halt)
}

func TestParseErrors(t *testing.T) {
	p, err := NewParser()
	require.NoError(t, err)

	for _, input := range []string{
		"jump 0x100",
		"read32",
		"write32 0x100",
		"wait forever",
		"core 0x1FFFFFFFF",
	} {
		_, err := p.ParseString(input)
		assert.Error(t, err, input)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.ots")
	require.NoError(t, os.WriteFile(path, []byte("halt\nreg pc\n"), 0o644))

	p, err := NewParser()
	require.NoError(t, err)
	s, err := p.ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, s.Commands(), 2)
	assert.Equal(t, path, s.Commands()[0].Pos.Filename)
}

func newSession(t *testing.T) (*session.Session, *armsim.Target) {
	t.Helper()
	sim := armsim.New(idcode.JEP106{ID: 0x20}, 0x410, armsim.NewCore(4), armsim.NewCore(4))
	tgt := &target.Target{
		Name:     "SIMDUAL",
		CoreType: core.Armv6m,
		Cores: []target.CoreSpec{
			{Name: "cm0", Type: core.Armv6m},
			{Name: "cm0b", Type: core.Armv6m, AP: 1},
		},
	}
	p := probe.New(probe.NewSimDriver("armsim", sim, nil, sim), probe.SimInfo("armsim"))
	s, err := session.New(p, target.Specified{Target: tgt}, session.AttachNormal)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, sim
}

func TestExecutorRunsAgainstSession(t *testing.T) {
	s, sim := newSession(t)
	sim.Core(1).Poke(0x20000004, 0x11111111)

	var out bytes.Buffer
	e := NewExecutor(s, &out)
	script := parse(t, `
core 1
halt
write32 0x20000000 0xCAFEF00D
read32 0x20000000 2
setreg pc 0x08000100
step 2
reg r15
break 0x08000200
`)
	require.NoError(t, e.Run(context.Background(), script))

	assert.Equal(t, 1, e.CurrentCore())
	assert.True(t, sim.Core(1).Halted())
	assert.False(t, sim.Core(0).Halted())
	assert.Equal(t, uint32(0xCAFEF00D), sim.Core(1).Peek(0x20000000))
	assert.Equal(t, uint32(0x08000104), sim.Core(1).PC())
	assert.Equal(t, "0x20000000: 0xCAFEF00D\n"+
		"0x20000004: 0x11111111\n"+
		"pc = 0x08000104\n"+
		"r15 = 0x08000104\n", out.String())

	bps := sim.Core(1).Breakpoints()
	assert.NotZero(t, bps[0])

	// Every command released its handle.
	c, err := s.Core(0)
	require.NoError(t, err)
	c.Close()
}

func TestExecutorStopsAtFirstError(t *testing.T) {
	s, sim := newSession(t)

	var out bytes.Buffer
	e := NewExecutor(s, &out)
	err := e.Run(context.Background(), parse(t, "halt\ncore 5\nwrite32 0x20000000 1\n"))
	require.Error(t, err)
	var nf *session.CoreNotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Contains(t, err.Error(), "2:1")
	assert.Zero(t, sim.Core(0).Peek(0x20000000))

	err = e.Run(context.Background(), parse(t, "reg nosuch\n"))
	assert.ErrorIs(t, err, core.ErrUnknownRegister)
}

func TestExecutorWaitHonoursContext(t *testing.T) {
	s, _ := newSession(t)
	e := NewExecutor(s, &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := e.Run(ctx, parse(t, "wait 1m\n"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
