package dx12

import (
	"fmt"

	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

// The enumerations below carry the numeric values of their D3D12 counterparts
// so a device can pass them through unchanged.

/** @brief D3D12_SHADER_VISIBILITY */
type ShaderVisibility uint32

const (
	ShaderVisibilityAll      ShaderVisibility = 0
	ShaderVisibilityVertex   ShaderVisibility = 1
	ShaderVisibilityHull     ShaderVisibility = 2
	ShaderVisibilityDomain   ShaderVisibility = 3
	ShaderVisibilityGeometry ShaderVisibility = 4
	ShaderVisibilityPixel    ShaderVisibility = 5
)

var stageVisibility = [metadata.ShaderStageCount]ShaderVisibility{
	metadata.ShaderStageVertex:   ShaderVisibilityVertex,
	metadata.ShaderStageHull:     ShaderVisibilityHull,
	metadata.ShaderStageDomain:   ShaderVisibilityDomain,
	metadata.ShaderStageGeometry: ShaderVisibilityGeometry,
	metadata.ShaderStagePixel:    ShaderVisibilityPixel,
	metadata.ShaderStageCompute:  ShaderVisibilityAll,
}

// VisibilityForStage maps a stage to the visibility its root parameters get.
// Compute pipelines only have one stage, so everything is visible to all.
func VisibilityForStage(stage metadata.ShaderStage) ShaderVisibility {
	return stageVisibility[stage]
}

func (v ShaderVisibility) String() string {
	switch v {
	case ShaderVisibilityAll:
		return "all"
	case ShaderVisibilityVertex:
		return "vertex"
	case ShaderVisibilityHull:
		return "hull"
	case ShaderVisibilityDomain:
		return "domain"
	case ShaderVisibilityGeometry:
		return "geometry"
	case ShaderVisibilityPixel:
		return "pixel"
	}
	return fmt.Sprintf("visibility(%d)", uint32(v))
}

/** @brief D3D12_DESCRIPTOR_RANGE_TYPE */
type DescriptorRangeType uint32

const (
	DescriptorRangeTypeSRV     DescriptorRangeType = 0
	DescriptorRangeTypeUAV     DescriptorRangeType = 1
	DescriptorRangeTypeCBV     DescriptorRangeType = 2
	DescriptorRangeTypeSampler DescriptorRangeType = 3
)

// Letter returns the HLSL register class letter.
func (t DescriptorRangeType) Letter() string {
	switch t {
	case DescriptorRangeTypeSRV:
		return "T"
	case DescriptorRangeTypeUAV:
		return "U"
	case DescriptorRangeTypeCBV:
		return "C"
	case DescriptorRangeTypeSampler:
		return "S"
	}
	return "?"
}

/** @brief D3D12_ROOT_PARAMETER_TYPE */
type RootParameterType uint32

const (
	RootParameterTypeDescriptorTable RootParameterType = 0
	RootParameterType32BitConstants  RootParameterType = 1
	RootParameterTypeCBV             RootParameterType = 2
	RootParameterTypeSRV             RootParameterType = 3
	RootParameterTypeUAV             RootParameterType = 4
)

// DWORDCost is the share of the 64 DWORD root signature budget the parameter
// consumes. Constants are accounted per value by the caller.
func (t RootParameterType) DWORDCost() int {
	switch t {
	case RootParameterTypeDescriptorTable:
		return 1
	case RootParameterType32BitConstants:
		return 1
	default:
		return 2
	}
}

func (t RootParameterType) String() string {
	switch t {
	case RootParameterTypeDescriptorTable:
		return "table"
	case RootParameterType32BitConstants:
		return "constants"
	case RootParameterTypeCBV:
		return "cbv"
	case RootParameterTypeSRV:
		return "srv"
	case RootParameterTypeUAV:
		return "uav"
	}
	return fmt.Sprintf("parameter(%d)", uint32(t))
}

/** @brief D3D12_DESCRIPTOR_HEAP_TYPE, limited to the shader visible heaps. */
type DescriptorHeapType uint32

const (
	DescriptorHeapTypeCBVSRVUAV DescriptorHeapType = 0
	DescriptorHeapTypeSampler   DescriptorHeapType = 1
)

/** @brief D3D12_ROOT_SIGNATURE_FLAGS */
type RootSignatureFlags uint32

const (
	RootSignatureFlagNone                           RootSignatureFlags = 0
	RootSignatureFlagAllowInputAssemblerInputLayout RootSignatureFlags = 0x1
	RootSignatureFlagDenyVertexShaderRootAccess     RootSignatureFlags = 0x2
	RootSignatureFlagDenyHullShaderRootAccess       RootSignatureFlags = 0x4
	RootSignatureFlagDenyDomainShaderRootAccess     RootSignatureFlags = 0x8
	RootSignatureFlagDenyGeometryShaderRootAccess   RootSignatureFlags = 0x10
	RootSignatureFlagDenyPixelShaderRootAccess      RootSignatureFlags = 0x20
)

var stageDenyFlags = [metadata.GraphicsStageCount]RootSignatureFlags{
	metadata.ShaderStageVertex:   RootSignatureFlagDenyVertexShaderRootAccess,
	metadata.ShaderStageHull:     RootSignatureFlagDenyHullShaderRootAccess,
	metadata.ShaderStageDomain:   RootSignatureFlagDenyDomainShaderRootAccess,
	metadata.ShaderStageGeometry: RootSignatureFlagDenyGeometryShaderRootAccess,
	metadata.ShaderStagePixel:    RootSignatureFlagDenyPixelShaderRootAccess,
}

/** @brief D3D12_DESCRIPTOR_RANGE */
type DescriptorRange struct {
	RangeType                         DescriptorRangeType
	NumDescriptors                    uint32
	BaseShaderRegister                uint32
	RegisterSpace                     uint32
	OffsetInDescriptorsFromTableStart uint32
}

/** @brief D3D12_ROOT_DESCRIPTOR */
type RootDescriptor struct {
	ShaderRegister uint32
	RegisterSpace  uint32
}

/**
 * @brief A descriptor table parameter. Ranges are referenced by position in
 * the owning layout's DescriptorRanges slice.
 */
type RootDescriptorTable struct {
	FirstRange int
	NumRanges  int
}

/** @brief D3D12_ROOT_PARAMETER */
type RootParameter struct {
	ParameterType    RootParameterType
	ShaderVisibility ShaderVisibility
	/** @brief Valid for CBV, SRV and UAV parameters. */
	Descriptor RootDescriptor
	/** @brief Valid for descriptor table parameters. */
	Table RootDescriptorTable
}

/** @brief D3D12_STATIC_SAMPLER_DESC, reduced to the fields the layout decides. */
type StaticSampler struct {
	Filter           uint32
	AddressU         uint32
	AddressV         uint32
	AddressW         uint32
	MaxAnisotropy    uint32
	ComparisonFunc   uint32
	ShaderRegister   uint32
	RegisterSpace    uint32
	ShaderVisibility ShaderVisibility
}

/** @brief Everything a device needs to serialize a root signature. */
type RootSignatureDesc struct {
	Parameters     []RootParameter
	Ranges         []DescriptorRange
	StaticSamplers []StaticSampler
	Flags          RootSignatureFlags
}

// DWORDCost sums the root signature budget used by all parameters.
func (d *RootSignatureDesc) DWORDCost() int {
	cost := 0
	for i := range d.Parameters {
		cost += d.Parameters[i].ParameterType.DWORDCost()
	}
	return cost
}
