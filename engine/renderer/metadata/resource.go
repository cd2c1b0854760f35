package metadata

import "path/filepath"

type ResourceType int

/** @brief Shader binding sources the asset layer understands. */
const (
	/** @brief Not a shader source. */
	ResourceTypeNone ResourceType = iota
	/** @brief A TOML binding manifest describing one compiled shader (.shadercfg). */
	ResourceTypeShaderManifest
	/** @brief WGSL source; every entry point becomes one shader (.wgsl). */
	ResourceTypeShaderSource
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShaderManifest:
		return "manifest"
	case ResourceTypeShaderSource:
		return "wgsl"
	}
	return "none"
}

// ResourceTypeForPath classifies a file by extension.
func ResourceTypeForPath(path string) ResourceType {
	switch filepath.Ext(path) {
	case ".shadercfg":
		return ResourceTypeShaderManifest
	case ".wgsl":
		return ResourceTypeShaderSource
	default:
		return ResourceTypeNone
	}
}

/**
 * @brief A generic structure for a loaded resource. All shader loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The loader type which handled this resource. */
	Type ResourceType
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the source file in bytes. */
	DataSize uint64
	/** @brief The binding descriptions found in the file. */
	Shaders []*ShaderDesc
}
