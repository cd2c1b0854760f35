package loaders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

const forwardManifest = `
name  = "forward_ps"
stage = "ps"

[[bind]]
name      = "PerView"
kind      = "cbuffer"
register  = 6
variables = [{ name = "view", referenced = true }, { name = "proj", referenced = false }]

[[bind]]
name     = "albedo"
kind     = "texture"
register = 4
count    = 2

[[bind]]
name     = "shadow"
kind     = "texture"
register = 8
unused   = true

[[bind]]
name     = "linear"
kind     = "sampler"
register = 0
`

func TestParseManifest(t *testing.T) {
	desc, err := ParseManifest([]byte(forwardManifest))
	require.NoError(t, err)

	assert.Equal(t, "forward_ps", desc.Name)
	assert.Equal(t, metadata.ShaderStagePixel, desc.Stage)
	require.Len(t, desc.BindPoints, 4)

	assert.Equal(t, metadata.BindPoint{
		Name:     "PerView",
		Kind:     metadata.BindPointConstantBuffer,
		Register: 6,
		Count:    1,
		Variables: []metadata.ShaderVariable{
			{Name: "view", Referenced: true},
			{Name: "proj", Referenced: false},
		},
	}, desc.BindPoints[0])
	assert.Equal(t, uint32(2), desc.BindPoints[1].Count)
	assert.True(t, desc.BindPoints[2].Unused)
	assert.Equal(t, metadata.BindPointSampler, desc.BindPoints[3].Kind)
}

func TestParseManifestExplicitZeroCount(t *testing.T) {
	desc, err := ParseManifest([]byte(`
stage = "vs"
[[bind]]
name     = "empty"
kind     = "srv"
register = 0
count    = 0
`))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), desc.BindPoints[0].Count)
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "syntax", data: "stage = "},
		{name: "stage", data: `stage = "tessellation"`},
		{name: "kind", data: "stage = \"vs\"\n[[bind]]\nkind = \"texture3\"\n"},
		{name: "unknown key", data: "stage = \"vs\"\n[[bind]]\nkind = \"texture\"\nregistr = 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.data))
			assert.ErrorIs(t, err, core.ErrReflectionFailure)
		})
	}
}

func TestManifestLoadNamesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skinned_vs.shadercfg")
	require.NoError(t, os.WriteFile(path, []byte("stage = \"vertex\"\n"), 0o644))

	res, err := (&ManifestLoader{}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, metadata.ResourceTypeShaderManifest, res.Type)
	assert.Equal(t, "skinned_vs", res.Name)
	require.Len(t, res.Shaders, 1)
	assert.Equal(t, "skinned_vs", res.Shaders[0].Name)
	assert.Empty(t, res.Shaders[0].BindPoints)

	_, err = (&ManifestLoader{}).Load(filepath.Join(t.TempDir(), "missing.shadercfg"))
	assert.Error(t, err)
}
