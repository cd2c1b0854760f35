package systems

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/dx12"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

const forwardWGSL = `
struct View {
    view_proj: mat4x4<f32>,
    eye: vec4<f32>,
}

@group(0) @binding(6) var<uniform> view: View;
@group(0) @binding(1) var tex: texture_2d<f32>;
@group(0) @binding(3) var tex_sampler: sampler;

@vertex
fn vs_main(@location(0) position: vec3<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position, 1.0) + view.eye;
}

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return textureSample(tex, tex_sampler, uv) * view.eye;
}
`

const blurManifest = `
stage = "cs"

[[bind]]
name     = "source"
kind     = "texture"
register = 0

[[bind]]
name     = "target"
kind     = "uav"
register = 0
`

func newTestManager(t *testing.T) (*SystemManager, *dx12.NullDevice) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forward.wgsl"), []byte(forwardWGSL), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blur.shadercfg"), []byte(blurManifest), 0o644))

	cfg := core.DefaultConfig()
	cfg.Pipelines = []core.PipelineConfig{
		{Name: "forward", Vertex: "forward.vs_main", Pixel: "forward.fs_main"},
		{Name: "depth_only", Vertex: "forward.vs_main"},
		{Name: "blur", Compute: "blur"},
		{Name: "broken", Vertex: "forward.fs_main"},
	}
	require.NoError(t, cfg.Validate())

	device := dx12.NewNullDevice()
	sm, err := NewSystemManager(cfg, device)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, sm.Shutdown()) })

	require.NoError(t, sm.Library.LoadDir(dir))
	return sm, device
}

func TestPipelineSystemAcquire(t *testing.T) {
	sm, device := newTestManager(t)
	ps := sm.Pipelines

	forward, err := ps.AcquirePipeline("forward")
	require.NoError(t, err)
	again, err := ps.AcquireGraphics(map[metadata.ShaderStage]string{
		metadata.ShaderStageVertex: "forward.vs_main",
		metadata.ShaderStagePixel:  "forward.fs_main",
	})
	require.NoError(t, err)
	assert.Same(t, forward, again)

	layout := forward.GetPipelineLayout()
	require.Len(t, layout.ConstantViews, 1)
	assert.Equal(t, uint8(6), layout.ConstantViews[0].ShaderSlot)
	assert.Equal(t, dx12.ShaderVisibilityAll, layout.RootParameters[layout.ConstantViews[0].RootParameterIndex].ShaderVisibility)

	blur, err := ps.AcquirePipeline("blur")
	require.NoError(t, err)
	assert.True(t, blur.IsCompute())

	assert.Equal(t, int64(2), device.Created())
	stats := ps.Stats()
	assert.Equal(t, 1, stats.Graphics)
	assert.Equal(t, 1, stats.Compute)
}

func TestPipelineSystemErrors(t *testing.T) {
	sm, _ := newTestManager(t)
	ps := sm.Pipelines

	_, err := ps.AcquirePipeline("missing")
	assert.Error(t, err)
	_, err = ps.AcquirePipeline("broken")
	assert.Error(t, err)
	_, err = ps.AcquireCompute("forward.vs_main")
	assert.Error(t, err)
	_, err = ps.AcquireGraphics(map[metadata.ShaderStage]string{metadata.ShaderStageCompute: "blur"})
	assert.Error(t, err)
	_, err = ps.AcquireGraphics(map[metadata.ShaderStage]string{metadata.ShaderStageVertex: "nope"})
	assert.Error(t, err)
}

func TestPipelineSystemWarm(t *testing.T) {
	sm, device := newTestManager(t)
	ps := sm.Pipelines

	err := ps.WarmAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline 'broken'")

	assert.Equal(t, 3, ps.Cache().Size())
	assert.Equal(t, int64(3), device.Created())

	// Warmed signatures are unreferenced, so a trim drops them.
	ps.Invalidate()
	assert.Zero(t, ps.Cache().Size())
	assert.Zero(t, device.Live())
}

func TestStagesOf(t *testing.T) {
	stages := StagesOf(core.PipelineConfig{Name: "x", Vertex: "vs", Pixel: "ps"})
	assert.Equal(t, map[metadata.ShaderStage]string{
		metadata.ShaderStageVertex: "vs",
		metadata.ShaderStagePixel:  "ps",
	}, stages)
}

func TestJobSystem(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)

	js, err := NewJobSystem(2, 0)
	require.NoError(t, err)

	done := make(chan error, 2)
	require.NoError(t, js.Submit(JobTask{
		OnStart:    func() error { return nil },
		OnComplete: func() { done <- nil },
	}))
	require.NoError(t, js.Submit(JobTask{
		OnStart:   func() error { return assert.AnError },
		OnFailure: func(err error) { done <- err },
	}))
	results := []error{<-done, <-done}
	assert.Contains(t, results, nil)
	assert.Contains(t, results, assert.AnError)

	assert.Error(t, js.Submit(JobTask{}))
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, js.Submit(JobTask{OnStart: func() error { return nil }}), ErrJobSystemClosed)
}

func TestPipelineHash(t *testing.T) {
	sm, device := newTestManager(t)
	ps := sm.Pipelines

	h, err := ps.PipelineHash("forward")
	require.NoError(t, err)
	assert.Zero(t, h&1)
	assert.Zero(t, device.Created())

	rs, err := ps.AcquirePipeline("forward")
	require.NoError(t, err)
	assert.Equal(t, h, rs.GetHash())

	ch, err := ps.PipelineHash("blur")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ch&1)

	_, err = ps.PipelineHash("missing")
	assert.Error(t, err)
	_, err = ps.PipelineHash("broken")
	assert.Error(t, err)
}

func TestJobSystemLogsFailuresVerbatim(t *testing.T) {
	var out bytes.Buffer
	core.SetLogOutput(&out)
	t.Cleanup(func() { core.SetLogOutput(nil) })

	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	failed := make(chan struct{})
	require.NoError(t, js.Submit(JobTask{
		OnStart:   func() error { return errors.New("heap 100% full") },
		OnFailure: func(error) { close(failed) },
	}))
	<-failed

	assert.Contains(t, out.String(), "heap 100% full")
	assert.NotContains(t, out.String(), "%!")
}
