package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTargetsCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "targets [filter]",
		Short: "List chips known to the target registry",
		Long: `List every chip of the builtin registry and of the target
directories named in the config file. An optional filter keeps only chips
whose name contains it, ignoring case.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := o.registry()
			if err != nil {
				return err
			}
			filter := ""
			if len(args) == 1 {
				filter = strings.ToLower(args[0])
			}

			tbl := defaultTable(cmd.OutOrStdout())
			tbl.SetHeader([]string{"Name", "Family", "Core", "Regions", "Source"})
			for _, family := range reg.Families() {
				for _, v := range family.Variants {
					if filter != "" && !strings.Contains(strings.ToLower(v.Name), filter) {
						continue
					}
					t, err := reg.TargetByName(v.Name)
					if err != nil {
						return err
					}
					tbl.Append([]string{
						t.Name,
						family.Name,
						string(t.CoreType),
						fmt.Sprint(len(t.MemoryMap)),
						t.Source.String(),
					})
				}
			}
			tbl.Render()
			return nil
		},
	}
}
