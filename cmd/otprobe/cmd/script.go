package cmd

import (
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/script"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/session"
)

func newScriptCmd(o *globalOptions) *cobra.Command {
	var haltTimeout = script.DefaultHaltTimeout
	scriptCmd := &cobra.Command{
		Use:   "script FILE",
		Short: "Run a debug script against the chip",
		Long: `Run a debug script. Scripts hold one command per line or several
separated by ';', with '#' comments:

  reset halt
  break 0x08000200
  run; wait 50ms; halt
  reg pc
  read32 0x20000000 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parser, err := script.NewParser()
			if err != nil {
				return err
			}
			sc, err := parser.ParseFile(args[0])
			if err != nil {
				return err
			}
			return o.withSession(cmd, func(s *session.Session) error {
				exec := script.NewExecutor(s, cmd.OutOrStdout())
				exec.HaltTimeout = haltTimeout
				return exec.Run(cmd.Context(), sc)
			})
		},
	}
	scriptCmd.Flags().DurationVar(&haltTimeout, "halt-timeout", haltTimeout, "how long halt and reset halt wait for the core")
	return scriptCmd
}
