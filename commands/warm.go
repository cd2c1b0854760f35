package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewWarmCommand creates the warm command.
func NewWarmCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Build every configured root signature",
		Long:  "Build the root signatures of all configured pipelines on the job system and report the cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWarm(cmd.OutOrStdout(), opts)
		},
	}

	return cmd
}

func runWarm(w io.Writer, opts *Options) error {
	e, device, err := opts.Engine(false)
	if err != nil {
		return err
	}
	defer e.Shutdown()

	warmErr := e.Warm()
	stats := e.Systems().Pipelines.Stats()
	fmt.Fprintf(w, "graphics=%d compute=%d created=%d misses=%d failures=%d avg_miss=%.3fms\n",
		stats.Graphics, stats.Compute, device.Created(), stats.Misses, stats.Failures, stats.MissLatencyMS)
	if warmErr != nil {
		return fmt.Errorf("warm failed: %w", warmErr)
	}
	return nil
}
