package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigOverlaysDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[log]
level = "debug"

[layout]
diagnostics  = true
shared_slots = [6, 7]

[layout.merge]
cbv = true

[limits]
max_root_dwords = 32

[[pipeline]]
name   = "forward"
vertex = "forward.vs_main"
pixel  = "forward.fs_main"

[[pipeline]]
name    = "blur"
compute = "blur"
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Layout.Diagnostics)
	assert.Equal(t, []uint8{6, 7}, cfg.Layout.SharedSlots)
	assert.Equal(t, SlotPerInstanceLegacy, cfg.Layout.LegacyPerInstanceSlot)
	assert.Equal(t, MergeConfig{CBV: true, SRV: true, UAV: true, Sampler: true}, cfg.Layout.Merge)
	assert.Equal(t, 32, cfg.Limits.MaxRootSignatureDWORDs)
	assert.Equal(t, 64, cfg.Limits.MaxRootParameters)
	assert.Equal(t, "assets/shaders", cfg.Assets.ShaderDir)
	require.Len(t, cfg.Pipelines, 2)
	assert.Equal(t, "blur", cfg.Pipelines[1].Compute)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "syntax", data: "[log"},
		{name: "zero limit", data: "[limits]\nmax_root_parameters = 0\n"},
		{name: "over hardware dwords", data: "[limits]\nmax_root_dwords = 65\n"},
		{name: "no workers", data: "[jobs]\nworkers = 0\n"},
		{name: "unnamed pipeline", data: "[[pipeline]]\nvertex = \"vs\"\n"},
		{name: "duplicate pipeline", data: "[[pipeline]]\nname = \"a\"\nvertex = \"vs\"\n[[pipeline]]\nname = \"a\"\npixel = \"ps\"\n"},
		{name: "mixed pipeline", data: "[[pipeline]]\nname = \"a\"\nvertex = \"vs\"\ncompute = \"cs\"\n"},
		{name: "empty pipeline", data: "[[pipeline]]\nname = \"a\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rootsig.toml")
	require.NoError(t, os.WriteFile(path, []byte("[assets]\nshader_dir = \"shaders\"\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "shaders", cfg.Assets.ShaderDir)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestCacheMetrics(t *testing.T) {
	var m CacheMetrics
	assert.Zero(t, m.HitRate())
	assert.Zero(t, m.MissLatencyMS())

	m.Miss(2 * time.Millisecond)
	m.Miss(4 * time.Millisecond)
	m.Hit()
	m.Hit()
	m.Failure()

	assert.Equal(t, uint64(2), m.Hits())
	assert.Equal(t, uint64(2), m.Misses())
	assert.Equal(t, uint64(1), m.Failures())
	assert.InDelta(t, 0.5, m.HitRate(), 1e-9)
	assert.InDelta(t, 3.0, m.MissLatencyMS(), 1e-9)

	for i := 0; i < int(AVG_COUNT); i++ {
		m.Miss(time.Millisecond)
	}
	assert.InDelta(t, 1.0, m.MissLatencyMS(), 1e-9)

	m.Reset()
	assert.Zero(t, m.Hits())
	assert.Zero(t, m.MissLatencyMS())
}

func TestClock(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	time.Sleep(2 * time.Millisecond)
	c.Stop()
	stopped := c.Elapsed()
	assert.GreaterOrEqual(t, stopped, 2*time.Millisecond)

	// Stopped clocks keep their reading.
	c.Update()
	assert.Equal(t, stopped, c.Elapsed())

	c = StartClock()
	c.Update()
	assert.Less(t, c.Elapsed(), time.Second)
}
