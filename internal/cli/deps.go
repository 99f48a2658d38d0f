// buildkit deps <file>
package cli

import (
	"fmt"

	"github.com/qobs-build/buildkit"
	"github.com/qobs-build/buildkit/depfile"
	"github.com/spf13/cobra"
)

func newDepsCommand() *cobra.Command {
	var directives bool

	cmd := &cobra.Command{
		Use:   "deps <dependency file>",
		Short: "Print the prerequisites listed in a Makefile-style dependency file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := depfile.ParseFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, dep := range deps {
				if dep == "" {
					continue
				}
				if directives {
					fmt.Fprintln(out, buildkit.Directive(dep))
				} else {
					fmt.Fprintln(out, dep)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&directives, "directives", "d", false, "Print cargo:rerun-if-changed directives instead of paths")
	return cmd
}
