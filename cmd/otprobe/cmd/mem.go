package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/core"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/session"
)

func newReadCmd(o *globalOptions) *cobra.Command {
	var coreIndex int
	readCmd := &cobra.Command{
		Use:   "read ADDR [COUNT]",
		Short: "Read 32-bit words from target memory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseUint32(args[0])
			if err != nil {
				return err
			}
			count := uint32(1)
			if len(args) == 2 {
				if count, err = parseUint32(args[1]); err != nil {
					return err
				}
			}
			return o.withSession(cmd, func(s *session.Session) error {
				return s.WithCore(coreIndex, func(c *core.Core) error {
					for i := uint32(0); i < count; i++ {
						v, err := c.Read32(addr + 4*i)
						if err != nil {
							return err
						}
						fmt.Fprintf(cmd.OutOrStdout(), "0x%08X: 0x%08X\n", addr+4*i, v)
					}
					return nil
				})
			})
		},
	}
	readCmd.Flags().IntVar(&coreIndex, "core", 0, "core index")
	return readCmd
}

func newWriteCmd(o *globalOptions) *cobra.Command {
	var coreIndex int
	writeCmd := &cobra.Command{
		Use:   "write ADDR VALUE...",
		Short: "Write 32-bit words to target memory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseUint32(args[0])
			if err != nil {
				return err
			}
			values := make([]uint32, 0, len(args)-1)
			for _, arg := range args[1:] {
				v, err := parseUint32(arg)
				if err != nil {
					return err
				}
				values = append(values, v)
			}
			return o.withSession(cmd, func(s *session.Session) error {
				return s.WithCore(coreIndex, func(c *core.Core) error {
					for i, v := range values {
						if err := c.Write32(addr+4*uint32(i), v); err != nil {
							return err
						}
					}
					if o.verbose {
						fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d word(s) at 0x%08X\n", len(values), addr)
					}
					return nil
				})
			})
		},
	}
	writeCmd.Flags().IntVar(&coreIndex, "core", 0, "core index")
	return writeCmd
}
