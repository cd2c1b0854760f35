package engine

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/dx12"
	"github.com/spaghettifunk/rootsig/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageBooting:
		return "booting"
	case EngineStageBootComplete:
		return "boot complete"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

type Engine struct {
	currentStage  Stage
	config        *core.Config
	systemManager *systems.SystemManager
	watching      bool
}

func New(cfg *core.Config, device dx12.Device) (*Engine, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	core.SetLogLevel(cfg.Log.Level)

	e := &Engine{currentStage: EngineStageBooting, config: cfg}

	sm, err := systems.NewSystemManager(cfg, device)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	e.systemManager = sm
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Config() *core.Config {
	return e.config
}

func (e *Engine) Systems() *systems.SystemManager {
	return e.systemManager
}

// Initialize reflects the configured shader directory. With watch set the
// directory keeps being followed until Shutdown; a failing initial load is
// then only logged, since the files may be fixed while running.
func (e *Engine) Initialize(watch bool) error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("func Initialize: engine is %s", e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	dir := e.config.Assets.ShaderDir
	if watch {
		if err := e.systemManager.Library.Watch(dir); err != nil {
			return err
		}
		e.watching = true
	} else if err := e.systemManager.Library.LoadDir(dir); err != nil {
		return err
	}

	core.LogInfo("loaded %d shader(s) from %s", len(e.systemManager.Library.Names()), dir)
	e.currentStage = EngineStageInitialized
	return nil
}

// Warm builds the root signatures of every configured pipeline.
func (e *Engine) Warm() error {
	if e.currentStage < EngineStageInitialized {
		return fmt.Errorf("func Warm: engine is %s", e.currentStage)
	}
	err := e.systemManager.Pipelines.WarmAll()
	stats := e.systemManager.Pipelines.Stats()
	core.LogInfo("root signatures: %d graphics, %d compute, %d failure(s)", stats.Graphics, stats.Compute, stats.Failures)
	return err
}

// Run blocks until ctx is done. Reloads happen on the library's own
// goroutine in the meantime.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("func Run: engine is %s", e.currentStage)
	}
	if !e.watching {
		return fmt.Errorf("func Run: engine was not initialized for watching")
	}
	e.currentStage = EngineStageRunning
	<-ctx.Done()
	return nil
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	return e.systemManager.Shutdown()
}
