package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/rootsig/engine/assets"
	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/dx12"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

/**
 * @brief Resolves shader names through the library and hands out root
 * signatures from one cache. All pipelines acquired here share one merge
 * policy and one set of limits.
 */
type PipelineSystem struct {
	library *assets.ShaderLibrary
	cache   *dx12.SignatureCache
	jobs    *JobSystem

	mu        sync.RWMutex
	pipelines map[string]core.PipelineConfig
}

func NewPipelineSystem(cfg *core.Config, library *assets.ShaderLibrary, device dx12.Device, jobs *JobSystem) (*PipelineSystem, error) {
	cache, err := dx12.NewSignatureCache(device, dx12.CacheOptions{
		Policy: dx12.MergePolicyFromConfig(cfg.Layout.Merge),
		Limits: dx12.LimitsFromConfig(cfg.Limits),
	})
	if err != nil {
		return nil, err
	}

	ps := &PipelineSystem{
		library:   library,
		cache:     cache,
		jobs:      jobs,
		pipelines: make(map[string]core.PipelineConfig, len(cfg.Pipelines)),
	}
	for _, p := range cfg.Pipelines {
		ps.pipelines[p.Name] = p
	}
	return ps, nil
}

func (ps *PipelineSystem) Cache() *dx12.SignatureCache {
	return ps.cache
}

// Pipeline returns a named pipeline from the configuration.
func (ps *PipelineSystem) Pipeline(name string) (core.PipelineConfig, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.pipelines[name]
	return p, ok
}

func (ps *PipelineSystem) shader(name string, stage metadata.ShaderStage) (*dx12.Shader, error) {
	s, ok := ps.library.Get(name)
	if !ok {
		return nil, fmt.Errorf("shader '%s' is not loaded", name)
	}
	if s.Stage != stage {
		return nil, fmt.Errorf("shader '%s' is a %s shader, expected %s", name, s.Stage, stage)
	}
	return s, nil
}

func (ps *PipelineSystem) graphicsParams(stages map[metadata.ShaderStage]string) (dx12.GraphicsInitParams, error) {
	var params dx12.GraphicsInitParams
	for stage, name := range stages {
		if !stage.IsGraphics() {
			return params, fmt.Errorf("%s is not a graphics stage", stage)
		}
		s, err := ps.shader(name, stage)
		if err != nil {
			return params, err
		}
		params.Shaders[stage] = s
	}
	return params, nil
}

// AcquireGraphics acquires the signature of a graphics shader combination
// given as stage to shader name.
func (ps *PipelineSystem) AcquireGraphics(stages map[metadata.ShaderStage]string) (*dx12.RootSignature, error) {
	params, err := ps.graphicsParams(stages)
	if err != nil {
		return nil, fmt.Errorf("func AcquireGraphics: %w", err)
	}
	return ps.cache.AcquireGraphics(params)
}

func (ps *PipelineSystem) AcquireCompute(name string) (*dx12.RootSignature, error) {
	s, err := ps.shader(name, metadata.ShaderStageCompute)
	if err != nil {
		return nil, fmt.Errorf("func AcquireCompute: %w", err)
	}
	return ps.cache.AcquireCompute(dx12.ComputeInitParams{Shader: s})
}

// AcquirePipeline acquires the signature of a configured pipeline.
func (ps *PipelineSystem) AcquirePipeline(name string) (*dx12.RootSignature, error) {
	p, ok := ps.Pipeline(name)
	if !ok {
		return nil, fmt.Errorf("func AcquirePipeline: unknown pipeline '%s'", name)
	}
	if p.Compute != "" {
		return ps.AcquireCompute(p.Compute)
	}
	return ps.AcquireGraphics(StagesOf(p))
}

// PipelineHash returns the cache hash a configured pipeline would be stored
// under, without building its layout.
func (ps *PipelineSystem) PipelineHash(name string) (uint64, error) {
	p, ok := ps.Pipeline(name)
	if !ok {
		return 0, fmt.Errorf("func PipelineHash: unknown pipeline '%s'", name)
	}
	if p.Compute != "" {
		s, err := ps.shader(p.Compute, metadata.ShaderStageCompute)
		if err != nil {
			return 0, fmt.Errorf("func PipelineHash: %w", err)
		}
		return dx12.ComputeHash(dx12.ComputeInitParams{Shader: s}), nil
	}
	params, err := ps.graphicsParams(StagesOf(p))
	if err != nil {
		return 0, fmt.Errorf("func PipelineHash: %w", err)
	}
	return dx12.GraphicsHash(params), nil
}

// StagesOf lists the graphics shaders of a pipeline by stage.
func StagesOf(p core.PipelineConfig) map[metadata.ShaderStage]string {
	stages := make(map[metadata.ShaderStage]string)
	for stage, name := range map[metadata.ShaderStage]string{
		metadata.ShaderStageVertex:   p.Vertex,
		metadata.ShaderStageHull:     p.Hull,
		metadata.ShaderStageDomain:   p.Domain,
		metadata.ShaderStageGeometry: p.Geometry,
		metadata.ShaderStagePixel:    p.Pixel,
	} {
		if name != "" {
			stages[stage] = name
		}
	}
	return stages
}

// Warm builds the signatures of the named pipelines on the job system and
// releases them again, leaving them in the cache. Every pipeline is
// attempted; the returned error joins the failures.
func (ps *PipelineSystem) Warm(names ...string) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, name := range names {
		name := name
		wg.Add(1)
		err := ps.jobs.Submit(JobTask{
			OnStart: func() error {
				rs, err := ps.AcquirePipeline(name)
				if err != nil {
					return fmt.Errorf("pipeline '%s': %w", name, err)
				}
				rs.Release()
				return nil
			},
			OnFailure: func(err error) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			},
			OnCompletionCallback: wg.Done,
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// WarmAll warms every configured pipeline.
func (ps *PipelineSystem) WarmAll() error {
	ps.mu.RLock()
	names := make([]string, 0, len(ps.pipelines))
	for n := range ps.pipelines {
		names = append(names, n)
	}
	ps.mu.RUnlock()
	return ps.Warm(names...)
}

// Invalidate drops cached signatures nobody references, typically after
// shaders were reloaded.
func (ps *PipelineSystem) Invalidate() {
	removed, err := ps.cache.Trim()
	if err != nil {
		core.LogError("trimming root signatures: %s", err)
	}
	if removed > 0 {
		core.LogDebug("trimmed %d root signature(s)", removed)
	}
}

func (ps *PipelineSystem) Stats() dx12.CacheStats {
	return ps.cache.Stats()
}

/**
 * @brief Releases every root signature.
 */
func (ps *PipelineSystem) Shutdown() error {
	return ps.cache.Destroy()
}
