// Package cli implements the buildkit command line.
package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/qobs-build/buildkit/internal/msg"
	"github.com/spf13/cobra"
)

// NewRootCommand returns "buildkit [dir]", which builds like "buildkit build".
func NewRootCommand() *cobra.Command {
	build := newBuildCommand()

	root := &cobra.Command{
		Use:           "buildkit [project dir]",
		Short:         "Compile a directory of sources with an external tool and report what the build depended on",
		Args:          cobra.MaximumNArgs(1),
		RunE:          build.RunE,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().BoolVarP(&msg.Verbose, "verbose", "v", false, "Print the commands that are run")
	build.addFlags(root)

	root.AddCommand(
		build.Command,
		newWatchCommand(),
		newDepsCommand(),
		newInitCommand(),
		newNewCommand(),
	)
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		msg.Fatal("%v", err)
	}
}
