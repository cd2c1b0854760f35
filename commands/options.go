// Package commands implements the rootsig CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/rootsig/engine"
	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/dx12"
)

const defaultConfigPath = "rootsig.toml"

// Options are the persistent flags shared by every command.
type Options struct {
	ConfigPath  string
	LogLevel    string
	ShaderDir   string
	Diagnostics bool
}

// Bind registers the options as persistent flags of root.
func (o *Options) Bind(root *cobra.Command) {
	root.PersistentFlags().StringVarP(&o.ConfigPath, "config", "c", defaultConfigPath, "Path to the configuration file")
	root.PersistentFlags().StringVar(&o.LogLevel, "log-level", "", "Log level, overrides the configuration")
	root.PersistentFlags().StringVar(&o.ShaderDir, "shaders", "", "Shader directory, overrides the configuration")
	root.PersistentFlags().BoolVar(&o.Diagnostics, "diagnostics", false, "Keep binding names for layout descriptions")
}

// Config loads the configuration file and applies the flag overrides. A
// missing default configuration file is not an error.
func (o *Options) Config() (*core.Config, error) {
	cfg, err := core.LoadConfig(o.ConfigPath)
	if err != nil {
		if o.ConfigPath != defaultConfigPath || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = core.DefaultConfig()
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.ShaderDir != "" {
		cfg.Assets.ShaderDir = o.ShaderDir
	}
	if o.Diagnostics {
		cfg.Layout.Diagnostics = true
	}
	return cfg, nil
}

// NewEngine builds an engine on top of the null device without loading
// any shaders.
func (o *Options) NewEngine() (*engine.Engine, *dx12.NullDevice, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, nil, err
	}
	device := dx12.NewNullDevice()
	e, err := engine.New(cfg, device)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return e, device, nil
}

// Engine builds an initialized engine on top of the null device.
func (o *Options) Engine(watch bool) (*engine.Engine, *dx12.NullDevice, error) {
	e, device, err := o.NewEngine()
	if err != nil {
		return nil, nil, err
	}
	if err := e.Initialize(watch); err != nil {
		_ = e.Shutdown()
		return nil, nil, fmt.Errorf("failed to load shaders: %w", err)
	}
	return e, device, nil
}

