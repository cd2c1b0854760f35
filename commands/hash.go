package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewHashCommand creates the hash command.
func NewHashCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print shader and pipeline hashes",
		Long:  "Print the binding hash of every loaded shader and the signature cache hash of every configured pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(cmd.OutOrStdout(), opts)
		},
	}

	return cmd
}

func runHash(w io.Writer, opts *Options) error {
	e, _, err := opts.Engine(false)
	if err != nil {
		return err
	}
	defer e.Shutdown()
	sm := e.Systems()

	for _, name := range sm.Library.Names() {
		s, _ := sm.Library.Get(name)
		fmt.Fprintf(w, "shader   %016x %-8s %s\n", s.Hash, s.Stage, name)
	}
	for _, name := range pipelineNames(e.Config().Pipelines) {
		h, err := sm.Pipelines.PipelineHash(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "pipeline %016x %s\n", h, name)
	}
	return nil
}
