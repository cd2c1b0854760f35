package metadata

import (
	"fmt"
	"strings"
)

/** @brief Shader stages available in the system. */
type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageHull
	ShaderStageDomain
	ShaderStageGeometry
	ShaderStagePixel
	ShaderStageCompute
	/** @brief Number of stages, not a stage. */
	ShaderStageCount
)

/** @brief Number of stages a graphics pipeline can bind. */
const GraphicsStageCount = 5

/**
 * @brief The order in which graphics stages are visited when building
 * layouts and hashing shader combinations. Changing it changes every hash.
 */
var GraphicsStageOrder = [GraphicsStageCount]ShaderStage{
	ShaderStageVertex,
	ShaderStageHull,
	ShaderStageDomain,
	ShaderStageGeometry,
	ShaderStagePixel,
}

var shaderStageNames = [ShaderStageCount]string{
	ShaderStageVertex:   "vertex",
	ShaderStageHull:     "hull",
	ShaderStageDomain:   "domain",
	ShaderStageGeometry: "geometry",
	ShaderStagePixel:    "pixel",
	ShaderStageCompute:  "compute",
}

func (s ShaderStage) String() string {
	if s < ShaderStageCount {
		return shaderStageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

func (s ShaderStage) IsValid() bool {
	return s < ShaderStageCount
}

func (s ShaderStage) IsGraphics() bool {
	return s < ShaderStageCompute
}

// ShaderStageFromString accepts the stage names plus the usual short forms.
func ShaderStageFromString(s string) (ShaderStage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vertex", "vs":
		return ShaderStageVertex, nil
	case "hull", "hs":
		return ShaderStageHull, nil
	case "domain", "ds":
		return ShaderStageDomain, nil
	case "geometry", "gs":
		return ShaderStageGeometry, nil
	case "pixel", "fragment", "ps":
		return ShaderStagePixel, nil
	case "compute", "cs":
		return ShaderStageCompute, nil
	}
	return 0, fmt.Errorf("string %s is not a valid ShaderStage", s)
}

/** @brief The kind of resource a shader bind point refers to. */
type BindPointKind uint8

const (
	/** @brief A constant buffer (cbuffer, uniform block). Register class b. */
	BindPointConstantBuffer BindPointKind = iota
	/** @brief A read-only resource: texture, typed or structured buffer. Register class t. */
	BindPointTexture
	/** @brief A read-write resource. Register class u. */
	BindPointUnorderedAccess
	/** @brief A sampler state. Register class s. */
	BindPointSampler
)

func (k BindPointKind) String() string {
	switch k {
	case BindPointConstantBuffer:
		return "cbuffer"
	case BindPointTexture:
		return "texture"
	case BindPointUnorderedAccess:
		return "uav"
	case BindPointSampler:
		return "sampler"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func BindPointKindFromString(s string) (BindPointKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cbuffer", "constant_buffer", "cbv", "uniform":
		return BindPointConstantBuffer, nil
	case "texture", "srv", "buffer", "structured_buffer":
		return BindPointTexture, nil
	case "uav", "rw_texture", "rw_buffer", "storage":
		return BindPointUnorderedAccess, nil
	case "sampler":
		return BindPointSampler, nil
	}
	return 0, fmt.Errorf("string %s is not a valid BindPointKind", s)
}

/** @brief A member variable of a constant buffer. */
type ShaderVariable struct {
	Name string `toml:"name"`
	/** @brief True when the compiler kept a reference to this variable. */
	Referenced bool `toml:"referenced"`
}

/** @brief A single resource bind point declared by a compiled shader. */
type BindPoint struct {
	Name     string        `toml:"name"`
	Kind     BindPointKind `toml:"-"`
	Register uint32        `toml:"register"`
	/** @brief Number of consecutive registers, greater than 1 for arrays. */
	Count uint32 `toml:"count"`
	/**
	 * @brief Declared but not referenced by the shader. Constant buffers
	 * derive this from their variables when any are listed.
	 */
	Unused bool `toml:"unused"`
	/** @brief Constant buffer members, empty for other kinds. */
	Variables []ShaderVariable `toml:"variables"`
}

/**
 * @brief The API neutral binding metadata of one compiled shader. Front ends
 * (manifest files, WGSL) produce it; the reflector consumes it.
 */
type ShaderDesc struct {
	Name       string
	Stage      ShaderStage
	BindPoints []BindPoint
}
