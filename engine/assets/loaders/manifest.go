package loaders

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

/*
A manifest describes the bind points of one compiled shader:

	name  = "forward_ps"
	stage = "pixel"

	[[bind]]
	name     = "PerView"
	kind     = "cbuffer"
	register = 6
	variables = [{ name = "view", referenced = true }]

	[[bind]]
	name     = "albedo"
	kind     = "texture"
	register = 4
	count    = 2
*/
type shaderManifest struct {
	Name  string         `toml:"name"`
	Stage string         `toml:"stage"`
	Bind  []manifestBind `toml:"bind"`
}

type manifestBind struct {
	Name      string                    `toml:"name"`
	Kind      string                    `toml:"kind"`
	Register  uint32                    `toml:"register"`
	Count     *uint32                   `toml:"count"`
	Unused    bool                      `toml:"unused"`
	Variables []metadata.ShaderVariable `toml:"variables"`
}

type ManifestLoader struct{}

func (ml *ManifestLoader) Load(path string) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	desc, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if desc.Name == "" {
		desc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &metadata.Resource{
		Type:     metadata.ResourceTypeShaderManifest,
		Name:     desc.Name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Shaders:  []*metadata.ShaderDesc{desc},
	}, nil
}

// ParseManifest decodes a manifest. Unknown keys are rejected so typos in
// hand written files do not silently drop bind points.
func ParseManifest(data []byte) (*metadata.ShaderDesc, error) {
	var m shaderManifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrReflectionFailure, err)
	}

	stage, err := metadata.ShaderStageFromString(m.Stage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrReflectionFailure, err)
	}

	desc := &metadata.ShaderDesc{
		Name:       m.Name,
		Stage:      stage,
		BindPoints: make([]metadata.BindPoint, 0, len(m.Bind)),
	}
	for i, b := range m.Bind {
		kind, err := metadata.BindPointKindFromString(b.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: bind %d ('%s'): %w", core.ErrReflectionFailure, i, b.Name, err)
		}
		count := uint32(1)
		if b.Count != nil {
			count = *b.Count
		}
		desc.BindPoints = append(desc.BindPoints, metadata.BindPoint{
			Name:      b.Name,
			Kind:      kind,
			Register:  b.Register,
			Count:     count,
			Unused:    b.Unused,
			Variables: b.Variables,
		})
	}
	return desc, nil
}
