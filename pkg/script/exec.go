package script

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/internal/logflags"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/session"
)

// DefaultHaltTimeout bounds halt and reset halt commands.
const DefaultHaltTimeout = 500 * time.Millisecond

// Executor runs scripts against a session. Every command takes its own
// exclusive core handle and releases it before the next one.
type Executor struct {
	sess    *session.Session
	out     io.Writer
	log     *logrus.Entry
	current int

	// HaltTimeout bounds halt and reset halt.
	HaltTimeout time.Duration
}

// NewExecutor returns an executor writing command output to out. Commands
// address core 0 until a core command selects another.
func NewExecutor(s *session.Session, out io.Writer) *Executor {
	return &Executor{sess: s, out: out, log: logflags.ScriptLogger(), HaltTimeout: DefaultHaltTimeout}
}

// CurrentCore returns the index commands are sent to.
func (e *Executor) CurrentCore() int {
	return e.current
}

// Run executes every command of s in order and stops at the first error.
func (e *Executor) Run(ctx context.Context, s *Script) error {
	for _, cmd := range s.Commands() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.log.WithField("core", e.current).Debugf("%s: %s", cmd.Pos, cmd.Name())
		if err := e.exec(ctx, cmd); err != nil {
			return fmt.Errorf("script: %s: %s: %w", cmd.Pos, cmd.Name(), err)
		}
	}
	return nil
}

func (e *Executor) exec(ctx context.Context, cmd *Command) error {
	switch {
	case cmd.Core != nil:
		n := int(*cmd.Core)
		if n >= len(e.sess.ListCores()) {
			return &session.CoreNotFoundError{Index: n}
		}
		e.current = n
		return nil
	case cmd.Wait != nil:
		t := time.NewTimer(time.Duration(*cmd.Wait))
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	return e.sess.WithCore(e.current, func(c *core.Core) error {
		return e.onCore(c, cmd)
	})
}

func (e *Executor) onCore(c *core.Core, cmd *Command) error {
	switch {
	case cmd.Halt:
		return c.Halt(e.HaltTimeout)
	case cmd.Resume:
		return c.Run()
	case cmd.Step != nil:
		count := 1
		if cmd.Step.Count != nil {
			count = int(*cmd.Step.Count)
		}
		for i := 0; i < count; i++ {
			if err := c.Step(); err != nil {
				return err
			}
		}
		pc, err := c.ReadRegister(c.Registers().PC.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "pc = 0x%08X\n", pc)
	case cmd.Reset != nil:
		if cmd.Reset.Halt {
			return c.ResetAndHalt(e.HaltTimeout)
		}
		return c.Reset()
	case cmd.Read != nil:
		count := 1
		if cmd.Read.Count != nil {
			count = int(*cmd.Read.Count)
		}
		addr := uint32(cmd.Read.Addr)
		for i := 0; i < count; i++ {
			v, err := c.Read32(addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "0x%08X: 0x%08X\n", addr, v)
			addr += 4
		}
	case cmd.Write != nil:
		return c.Write32(uint32(cmd.Write.Addr), uint32(cmd.Write.Value))
	case cmd.Reg != nil:
		v, err := c.ReadRegister(*cmd.Reg)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%s = 0x%08X\n", *cmd.Reg, v)
	case cmd.SetReg != nil:
		return c.WriteRegister(cmd.SetReg.Name, uint32(cmd.SetReg.Value))
	case cmd.Break != nil:
		return c.SetHWBreakpoint(uint32(*cmd.Break))
	case cmd.Unbreak != nil:
		return c.ClearHWBreakpoint(uint32(*cmd.Unbreak))
	case cmd.ClearBreaks:
		return c.ClearAllHWBreakpoints()
	default:
		return fmt.Errorf("unhandled command")
	}
	return nil
}
