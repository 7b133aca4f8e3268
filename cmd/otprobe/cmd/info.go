package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/session"
)

func newInfoCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Attach to the chip and describe it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withSession(cmd, func(s *session.Session) error {
				out := cmd.OutOrStdout()
				t := s.Target()
				fmt.Fprintf(out, "Target:       %s\n", t.Name)
				fmt.Fprintf(out, "Architecture: %s\n", s.Architecture())
				if o.verbose {
					fmt.Fprintf(out, "Session:      %s\n", s.ID())
					fmt.Fprintf(out, "Source:       %s\n", t.Source)
				}

				fmt.Fprintln(out)
				tbl := defaultTable(out)
				tbl.SetHeader([]string{"Core", "Name", "Type"})
				for _, c := range s.ListCores() {
					tbl.Append([]string{fmt.Sprint(c.Index), c.Name, string(c.Type)})
				}
				tbl.Render()

				fmt.Fprintln(out)
				tbl = defaultTable(out)
				tbl.SetHeader([]string{"Region", "Kind", "Start", "End", "Boot"})
				for _, r := range s.MemoryMap() {
					boot := ""
					if r.Boot {
						boot = "yes"
					}
					tbl.Append([]string{
						r.Name,
						string(r.Kind),
						fmt.Sprintf("0x%08X", r.Start),
						fmt.Sprintf("0x%08X", r.End()),
						boot,
					})
				}
				tbl.Render()

				if algos := s.FlashAlgorithms(); len(algos) > 0 {
					fmt.Fprintln(out)
					for _, a := range algos {
						fmt.Fprintf(out, "Flash algorithm: %s\n", a.Name)
					}
				}
				return nil
			})
		},
	}
}
