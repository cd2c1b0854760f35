package systems

import (
	"errors"

	"github.com/spaghettifunk/rootsig/engine/assets"
	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/dx12"
)

type SystemManager struct {
	Library   *assets.ShaderLibrary
	Pipelines *PipelineSystem

	// Called after shaders were reloaded and stale signatures dropped. Set
	// it before the library starts watching.
	OnReload func(names []string)

	jobSystem *JobSystem
}

func NewSystemManager(cfg *core.Config, device dx12.Device) (*SystemManager, error) {
	js, err := NewJobSystem(cfg.Jobs.Workers, cfg.Jobs.QueueSize)
	if err != nil {
		return nil, err
	}

	lib := assets.NewShaderLibrary(dx12.ReflectOptionsFromConfig(cfg))

	ps, err := NewPipelineSystem(cfg, lib, device, js)
	if err != nil {
		_ = js.Shutdown()
		return nil, err
	}
	sm := &SystemManager{
		Library:   lib,
		Pipelines: ps,
		jobSystem: js,
	}
	// Reloaded shaders hash differently, their old signatures are garbage.
	lib.OnReload = func(names []string) {
		ps.Invalidate()
		if sm.OnReload != nil {
			sm.OnReload(names)
		}
	}
	return sm, nil
}

func (sm *SystemManager) Shutdown() error {
	return errors.Join(
		sm.Library.Close(),
		sm.jobSystem.Shutdown(),
		sm.Pipelines.Shutdown(),
	)
}
