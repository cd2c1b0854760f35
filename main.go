// Command rootsig builds D3D12 root signatures from shader binding files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/rootsig/commands"
)

var (
	// Version information (set by build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &commands.Options{}

	rootCmd := &cobra.Command{
		Use:           "rootsig",
		Short:         "D3D12 root signature builder",
		Long:          "rootsig reflects shader bindings and builds the root signatures of the configured pipelines",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.Bind(rootCmd)

	rootCmd.AddCommand(commands.NewLayoutCommand(opts))
	rootCmd.AddCommand(commands.NewHashCommand(opts))
	rootCmd.AddCommand(commands.NewWarmCommand(opts))
	rootCmd.AddCommand(commands.NewWatchCommand(opts))

	return rootCmd.Execute()
}
