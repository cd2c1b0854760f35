package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/rootsig/engine/core"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *Options) *cobra.Command {
	var warm bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the shader directory",
		Long:  "Reflect the shader directory and keep re-reflecting changed files until interrupted. Signatures built from replaced shaders are dropped from the cache.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, warm)
		},
	}

	cmd.Flags().BoolVar(&warm, "warm", true, "Rebuild configured pipelines after every reload")

	return cmd
}

func runWatch(ctx context.Context, opts *Options, warm bool) error {
	e, _, err := opts.NewEngine()
	if err != nil {
		return err
	}
	defer e.Shutdown()

	e.Systems().OnReload = func(names []string) {
		core.LogInfo("reloaded %v", names)
		if warm {
			if err := e.Warm(); err != nil {
				core.LogWarn("warm after reload: %s", err)
			}
		}
	}
	if err := e.Initialize(true); err != nil {
		return fmt.Errorf("failed to load shaders: %w", err)
	}
	if warm {
		if err := e.Warm(); err != nil {
			core.LogWarn("initial warm: %s", err)
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			core.LogInfo("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return e.Run(ctx)
}
