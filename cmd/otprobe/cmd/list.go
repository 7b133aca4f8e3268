package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/internal/simtarget"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
)

func newListCmd(o *globalOptions) *cobra.Command {
	var withSim bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List connected debug probes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			probes, err := probe.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			if withSim {
				probes = append(probes, simtarget.List()...)
			}
			if len(probes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No debug probes found.")
				return nil
			}

			tbl := defaultTable(cmd.OutOrStdout())
			tbl.SetHeader([]string{"#", "Kind", "VID:PID", "Serial", "Description"})
			for i, info := range probes {
				tbl.Append([]string{
					fmt.Sprint(i),
					string(info.Kind),
					fmt.Sprintf("%04X:%04X", info.VendorID, info.ProductID),
					info.Serial,
					info.Description,
				})
			}
			tbl.Render()
			return nil
		},
	}
	listCmd.Flags().BoolVar(&withSim, "simulators", false, "include the built-in simulators")
	return listCmd
}
