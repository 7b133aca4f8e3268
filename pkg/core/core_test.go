package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCore struct {
	status      Status
	haltAfter   int // status polls before the core reports halted; <0 never
	polls       int
	comparators []uint32
	enabled     []bool
	clearErr    error
	caught      bool
	calls       []string
}

func newFakeCore(units int) *fakeCore {
	return &fakeCore{
		status:      StatusRunning,
		comparators: make([]uint32, units),
		enabled:     make([]bool, units),
	}
}

func (f *fakeCore) Halt() error  { f.calls = append(f.calls, "halt"); return nil }
func (f *fakeCore) Run() error   { f.status = StatusRunning; return nil }
func (f *fakeCore) Step() error  { return nil }
func (f *fakeCore) Reset() error { f.calls = append(f.calls, "reset"); return nil }

func (f *fakeCore) Status() (Status, error) {
	f.polls++
	if f.haltAfter >= 0 && f.polls > f.haltAfter {
		f.status = StatusHalted
	}
	return f.status, nil
}

func (f *fakeCore) Registers() *RegisterFile {
	pc := RegisterDesc{Name: "pc", ID: 15}
	return &RegisterFile{PC: pc, All: []RegisterDesc{{Name: "r0", ID: 0}, pc}}
}
func (f *fakeCore) ReadCoreReg(id RegisterID) (uint32, error)   { return uint32(id) * 2, nil }
func (f *fakeCore) WriteCoreReg(RegisterID, uint32) error       { return nil }
func (f *fakeCore) Read32(addr uint32) (uint32, error)          { return addr, nil }
func (f *fakeCore) Write32(uint32, uint32) error                { return nil }
func (f *fakeCore) ReadBlock(uint32, []byte) error              { return nil }
func (f *fakeCore) WriteBlock(uint32, []byte) error             { return nil }
func (f *fakeCore) AvailableBreakpointUnits() (int, error)      { return len(f.comparators), nil }
func (f *fakeCore) EnableBreakpoints(bool) error                { f.calls = append(f.calls, "enable"); return nil }
func (f *fakeCore) DebugCoreStart() error                       { f.calls = append(f.calls, "debug"); return nil }
func (f *fakeCore) ResetCatchSet() error                        { f.caught = true; f.calls = append(f.calls, "catch"); return nil }
func (f *fakeCore) ResetCatchClear() error                      { f.caught = false; f.calls = append(f.calls, "uncatch"); return nil }
func (f *fakeCore) HWBreakpoint(unit int) (uint32, bool, error) { return f.comparators[unit], f.enabled[unit], nil }

func (f *fakeCore) SetHWBreakpoint(unit int, addr uint32) error {
	f.comparators[unit], f.enabled[unit] = addr, true
	return nil
}

func (f *fakeCore) ClearHWBreakpoint(unit int) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.comparators[unit], f.enabled[unit] = 0, false
	return nil
}

func TestWaitForCoreHalted(t *testing.T) {
	fake := newFakeCore(0)
	fake.haltAfter = 3
	c := New(fake, NewState(0), Armv7m, nil)

	require.NoError(t, c.WaitForCoreHalted(100*time.Millisecond))
	assert.Equal(t, StatusHalted, c.State().LastStatus())
	assert.Equal(t, 4, fake.polls)
}

func TestWaitForCoreHaltedTimeout(t *testing.T) {
	fake := newFakeCore(0)
	fake.haltAfter = -1
	c := New(fake, NewState(0), Armv7m, nil)

	start := time.Now()
	err := c.WaitForCoreHalted(20 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	var te *TimeoutError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, 20*time.Millisecond, te.Timeout)
	assert.Greater(t, fake.polls, 1)
}

func TestBreakpointLifecycle(t *testing.T) {
	fake := newFakeCore(2)
	c := New(fake, NewState(0), Armv7m, nil)

	require.NoError(t, c.SetHWBreakpoint(0x0800_0100))
	require.NoError(t, c.SetHWBreakpoint(0x0800_0100))
	require.NoError(t, c.SetHWBreakpoint(0x0800_0200))
	assert.ErrorIs(t, c.SetHWBreakpoint(0x0800_0300), ErrNoFreeBreakpoint)

	active, err := c.ActiveHWBreakpoints()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x0800_0100, 0x0800_0200}, active)

	require.NoError(t, c.ClearHWBreakpoint(0x0800_0100))
	assert.ErrorIs(t, c.ClearHWBreakpoint(0x0800_0100), ErrBreakpointNotFound)
	require.NoError(t, c.SetHWBreakpoint(0x0800_0300))

	require.NoError(t, c.ClearAllHWBreakpoints())
	active, err = c.ActiveHWBreakpoints()
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, 1, countCalls(fake.calls, "enable"))
}

func TestClearAllFindsForeignBreakpoints(t *testing.T) {
	fake := newFakeCore(4)
	fake.comparators[3], fake.enabled[3] = 0x100, true
	c := New(fake, NewState(0), Armv6m, nil)

	require.NoError(t, c.ClearAllHWBreakpoints())
	assert.False(t, fake.enabled[3])
}

func TestResetAndHaltSequence(t *testing.T) {
	fake := newFakeCore(0)
	fake.haltAfter = 1
	c := New(fake, NewState(0), Riscv, nil)

	require.NoError(t, c.ResetAndHalt(50*time.Millisecond))
	assert.Equal(t, []string{"debug", "catch", "reset", "uncatch"}, fake.calls)
	assert.False(t, fake.caught)
}

func TestCloseReleasesOnce(t *testing.T) {
	released := 0
	c := New(newFakeCore(0), NewState(1), Armv7em, func() { released++ })

	assert.Equal(t, 1, c.Index())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, released)

	_, err := c.Read32(0)
	assert.ErrorIs(t, err, ErrHandleClosed)
}

func TestRegisterLookup(t *testing.T) {
	c := New(newFakeCore(0), NewState(0), Armv7m, nil)

	v, err := c.ReadRegister("PC")
	require.NoError(t, err)
	assert.Equal(t, uint32(30), v)

	_, err = c.ReadRegister("x99")
	assert.ErrorIs(t, err, ErrUnknownRegister)
}

func TestParseCoreType(t *testing.T) {
	ct, err := ParseCoreType("ARMv7EM")
	require.NoError(t, err)
	assert.Equal(t, Armv7em, ct)
	assert.Equal(t, ArchitectureArm, ct.Architecture())
	assert.Equal(t, ArchitectureRiscv, Riscv.Architecture())

	_, err = ParseCoreType("mips")
	assert.Error(t, err)
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}
