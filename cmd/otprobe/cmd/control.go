package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/session"
)

const defaultHaltTimeout = 500 * time.Millisecond

// coreCommand builds a command that runs fn on one core handle.
func coreCommand(o *globalOptions, use, short string, fn func(cmd *cobra.Command, c *core.Core) error) *cobra.Command {
	coreIndex := new(int)
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withSession(cmd, func(s *session.Session) error {
				return s.WithCore(*coreIndex, func(c *core.Core) error {
					return fn(cmd, c)
				})
			})
		},
	}
	c.Flags().IntVar(coreIndex, "core", 0, "core index")
	return c
}

func printPC(cmd *cobra.Command, c *core.Core) error {
	pc, err := c.ReadRegister(c.Registers().PC.Name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Core %d halted at pc = 0x%08X\n", c.Index(), pc)
	return nil
}

func newHaltCmd(o *globalOptions) *cobra.Command {
	var timeout time.Duration
	haltCmd := coreCommand(o, "halt", "Halt a core", func(cmd *cobra.Command, c *core.Core) error {
		if err := c.Halt(timeout); err != nil {
			return err
		}
		return printPC(cmd, c)
	})
	haltCmd.Flags().DurationVar(&timeout, "timeout", defaultHaltTimeout, "how long to wait for the core to halt")
	return haltCmd
}

func newRunCmd(o *globalOptions) *cobra.Command {
	runCmd := coreCommand(o, "run", "Resume a halted core", func(cmd *cobra.Command, c *core.Core) error {
		return c.Run()
	})
	runCmd.Aliases = []string{"resume"}
	return runCmd
}

func newStepCmd(o *globalOptions) *cobra.Command {
	var count int
	stepCmd := coreCommand(o, "step", "Single-step a halted core", func(cmd *cobra.Command, c *core.Core) error {
		for i := 0; i < count; i++ {
			if err := c.Step(); err != nil {
				return err
			}
		}
		return printPC(cmd, c)
	})
	stepCmd.Flags().IntVarP(&count, "count", "n", 1, "number of instructions to step")
	return stepCmd
}

func newResetCmd(o *globalOptions) *cobra.Command {
	var (
		halt    bool
		timeout time.Duration
	)
	resetCmd := coreCommand(o, "reset", "Reset a core", func(cmd *cobra.Command, c *core.Core) error {
		if !halt {
			return c.Reset()
		}
		if err := c.ResetAndHalt(timeout); err != nil {
			return err
		}
		return printPC(cmd, c)
	})
	resetCmd.Flags().BoolVar(&halt, "halt", false, "halt the core at its reset vector")
	resetCmd.Flags().DurationVar(&timeout, "timeout", defaultHaltTimeout, "how long to wait for the core to halt")
	return resetCmd
}

func newRegsCmd(o *globalOptions) *cobra.Command {
	regsCmd := coreCommand(o, "regs", "Dump the registers of a halted core", func(cmd *cobra.Command, c *core.Core) error {
		tbl := defaultTable(cmd.OutOrStdout())
		tbl.SetHeader([]string{"Register", "Value"})
		for _, r := range c.Registers().All {
			v, err := c.ReadRegister(r.Name)
			if err != nil {
				return err
			}
			tbl.Append([]string{r.Name, fmt.Sprintf("0x%08X", v)})
		}
		tbl.Render()
		return nil
	})
	return regsCmd
}
