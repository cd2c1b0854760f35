package dx12

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

func noSharedSlots() ReflectOptions {
	opts := DefaultReflectOptions()
	opts.SharedSlots = nil
	return opts
}

func TestLayoutSharedConstantBufferAcrossStages(t *testing.T) {
	vs := mustReflect(t, noSharedSlots(), "vs", metadata.ShaderStageVertex, cbuffer("PerBatch", 0, 1, true))

	shared := noSharedSlots()
	shared.SharedSlots = []uint8{0}
	ps := mustReflect(t, shared, "ps", metadata.ShaderStagePixel, cbuffer("PerBatch", 0, 1, true))
	require.True(t, ps.Bindings.ConstantBuffers.Ranges[0].Shared)

	var l PipelineLayout
	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(), ps, vs))

	require.Len(t, l.ConstantViews, 1)
	cb := l.ConstantViews[0]
	assert.Equal(t, uint8(0), cb.ShaderSlot)
	require.Len(t, l.RootParameters, 1)
	assert.Equal(t, ShaderVisibilityAll, l.RootParameters[cb.RootParameterIndex].ShaderVisibility)
	assert.True(t, l.HasStage(metadata.ShaderStageVertex))
	assert.True(t, l.HasStage(metadata.ShaderStagePixel))
}

func TestLayoutSharedDedup(t *testing.T) {
	opts := DefaultReflectOptions()
	vs := mustReflect(t, opts, "vs", metadata.ShaderStageVertex, cbuffer("PerView", 6, 1, true))
	ps := mustReflect(t, opts, "ps", metadata.ShaderStagePixel, cbuffer("PerView", 6, 1, true))

	var l PipelineLayout
	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(), vs, ps))

	require.Len(t, l.ConstantViews, 1)
	assert.Equal(t, metadata.ShaderStageVertex, l.ConstantViews[0].Stage)
	require.Len(t, l.RootParameters, 1)
	assert.Equal(t, RootParameterTypeCBV, l.RootParameters[0].ParameterType)
	assert.Equal(t, ShaderVisibilityAll, l.RootParameters[0].ShaderVisibility)
	assert.Equal(t, uint32(1<<metadata.ShaderStageVertex|1<<metadata.ShaderStagePixel), l.StageMask)
}

func TestLayoutUnusedConstantBufferPlaceholder(t *testing.T) {
	vs := mustReflect(t, DefaultReflectOptions(), "vs", metadata.ShaderStageVertex,
		cbuffer("PerBatch", 0, 1, true),
		cbuffer("SkinQuat", 3, 1, false),
	)

	var l PipelineLayout
	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(), vs))

	require.Len(t, l.RootParameters, 2)
	for _, p := range l.RootParameters {
		assert.Equal(t, RootParameterTypeCBV, p.ParameterType)
		assert.Equal(t, ShaderVisibilityVertex, p.ShaderVisibility)
	}
	assert.Equal(t, uint32(3), l.RootParameters[1].Descriptor.ShaderRegister)
	require.Len(t, l.ConstantViews, 1)
	assert.Equal(t, uint8(0), l.ConstantViews[0].ShaderSlot)
}

func TestLayoutUnusedResourcesBecomeRootDescriptors(t *testing.T) {
	tex := bindPoint("shadow", metadata.BindPointTexture, 2, 2)
	tex.Unused = true
	rw := bindPoint("out", metadata.BindPointUnorderedAccess, 0, 1)
	rw.Unused = true
	ps := mustReflect(t, DefaultReflectOptions(), "ps", metadata.ShaderStagePixel, tex, rw)

	var l PipelineLayout
	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(), ps))

	require.Len(t, l.RootParameters, 3)
	assert.Equal(t, RootParameterTypeSRV, l.RootParameters[0].ParameterType)
	assert.Equal(t, uint32(2), l.RootParameters[0].Descriptor.ShaderRegister)
	assert.Equal(t, RootParameterTypeSRV, l.RootParameters[1].ParameterType)
	assert.Equal(t, uint32(3), l.RootParameters[1].Descriptor.ShaderRegister)
	assert.Equal(t, RootParameterTypeUAV, l.RootParameters[2].ParameterType)
	assert.Empty(t, l.DescriptorTables)
	assert.Zero(t, l.NumDescriptors)
	assert.True(t, l.HasStage(metadata.ShaderStagePixel))
}

// tableShader binds b8..b9, t0, t2, u0, s0 and s3.
func tableShader(t *testing.T, stage metadata.ShaderStage) *Shader {
	return mustReflect(t, DefaultReflectOptions(), "tables", stage,
		cbuffer("Lights", 8, 2, true),
		bindPoint("albedo", metadata.BindPointTexture, 0, 1),
		bindPoint("normal", metadata.BindPointTexture, 2, 1),
		bindPoint("target", metadata.BindPointUnorderedAccess, 0, 1),
		bindPoint("linear", metadata.BindPointSampler, 0, 1),
		bindPoint("point", metadata.BindPointSampler, 3, 1),
	)
}

func TestLayoutMergePolicyFlushes(t *testing.T) {
	tests := []struct {
		name   string
		policy MergePolicy
		tables int
	}{
		{name: "default", policy: DefaultMergePolicy, tables: 3},
		{name: "flush every range", policy: 0, tables: 6},
		{name: "defer everything", policy: MergeCBV | MergeSRV | MergeUAV | MergeSampler, tables: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l PipelineLayout
			require.NoError(t, l.Build(tt.policy, DefaultLimits(), tableShader(t, metadata.ShaderStagePixel)))

			assert.Len(t, l.DescriptorTables, tt.tables)
			assert.Len(t, l.RootParameters, tt.tables)
			assert.Len(t, l.DescriptorRanges, 6)
			assert.Equal(t, uint32(5), l.NumDescriptors)
			assert.Equal(t, uint32(2), l.NumDynamicSamplers)
			assert.Empty(t, l.ConstantViews)
		})
	}
}

func TestLayoutDefaultPolicyTables(t *testing.T) {
	var l PipelineLayout
	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(), tableShader(t, metadata.ShaderStagePixel)))

	assert.Equal(t, []DescriptorTableEntry{
		{Heap: DescriptorHeapTypeCBVSRVUAV, Offset: 0, RootParameterIndex: 0},
		{Heap: DescriptorHeapTypeCBVSRVUAV, Offset: 2, RootParameterIndex: 1},
		{Heap: DescriptorHeapTypeSampler, Offset: 0, RootParameterIndex: 2},
	}, l.DescriptorTables)

	assert.Equal(t, RootDescriptorTable{FirstRange: 1, NumRanges: 3}, l.RootParameters[1].Table)
	assert.Equal(t, []DescriptorRange{
		{RangeType: DescriptorRangeTypeSRV, NumDescriptors: 1, BaseShaderRegister: 0, OffsetInDescriptorsFromTableStart: 0},
		{RangeType: DescriptorRangeTypeSRV, NumDescriptors: 1, BaseShaderRegister: 2, OffsetInDescriptorsFromTableStart: 1},
		{RangeType: DescriptorRangeTypeUAV, NumDescriptors: 1, BaseShaderRegister: 0, OffsetInDescriptorsFromTableStart: 2},
	}, l.DescriptorRanges[1:4])

	require.Len(t, l.TableResources, 5)
	assert.Equal(t, ResourceBinding{Stage: metadata.ShaderStagePixel, ViewType: DescriptorRangeTypeCBV, ShaderSlot: 9, DescriptorOffset: 1}, l.TableResources[1])
	assert.Equal(t, ResourceBinding{Stage: metadata.ShaderStagePixel, ViewType: DescriptorRangeTypeUAV, ShaderSlot: 0, DescriptorOffset: 4}, l.TableResources[4])
	require.Len(t, l.Samplers, 2)
	assert.Equal(t, uint32(1), l.Samplers[1].DescriptorOffset)
	assert.Equal(t, uint8(3), l.Samplers[1].ShaderSlot)

	for _, p := range l.RootParameters {
		assert.Equal(t, ShaderVisibilityPixel, p.ShaderVisibility)
	}
}

func TestLayoutOffsetsContinueAcrossStages(t *testing.T) {
	var l PipelineLayout
	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(),
		tableShader(t, metadata.ShaderStageVertex),
		tableShader(t, metadata.ShaderStagePixel),
	))

	assert.Len(t, l.DescriptorTables, 6)
	assert.Equal(t, uint32(10), l.NumDescriptors)
	assert.Equal(t, uint32(4), l.NumDynamicSamplers)
	assert.Equal(t, uint32(5), l.DescriptorTables[3].Offset)
	assert.Equal(t, uint32(2), l.DescriptorTables[5].Offset)
	assert.Equal(t, ShaderVisibilityVertex, l.RootParameters[0].ShaderVisibility)
	assert.Equal(t, ShaderVisibilityPixel, l.RootParameters[5].ShaderVisibility)
}

func TestLayoutBuildIsIdempotent(t *testing.T) {
	vs := tableShader(t, metadata.ShaderStageVertex)
	ps := mustReflect(t, DefaultReflectOptions(), "ps", metadata.ShaderStagePixel,
		cbuffer("PerView", 6, 1, true),
		bindPoint("albedo", metadata.BindPointTexture, 4, 2),
	)

	var a, b PipelineLayout
	require.NoError(t, a.Build(DefaultMergePolicy, DefaultLimits(), vs, ps))
	require.NoError(t, b.Build(DefaultMergePolicy, DefaultLimits(), vs, ps))
	assert.Equal(t, a.RootParameters, b.RootParameters)
	assert.Equal(t, a.DescriptorRanges, b.DescriptorRanges)
	assert.Equal(t, a.DescriptorTables, b.DescriptorTables)

	require.NoError(t, a.Build(DefaultMergePolicy, DefaultLimits(), vs, ps))
	assert.Equal(t, b.RootParameters, a.RootParameters)
	assert.Equal(t, b.DescriptorRanges, a.DescriptorRanges)
	assert.Equal(t, b.DescriptorTables, a.DescriptorTables)
	assert.Equal(t, b.ConstantViews, a.ConstantViews)
}

func TestLayoutBudgetExceeded(t *testing.T) {
	var bps []metadata.BindPoint
	for reg := uint32(0); reg < 40; reg++ {
		bp := bindPoint("unused", metadata.BindPointTexture, reg, 1)
		bp.Unused = true
		bps = append(bps, bp)
	}
	cs := mustReflect(t, DefaultReflectOptions(), "cs", metadata.ShaderStageCompute, bps...)

	var l PipelineLayout
	err := l.Build(DefaultMergePolicy, DefaultLimits(), cs)
	require.ErrorIs(t, err, core.ErrBudgetExceeded)
	assert.Contains(t, err.Error(), "80 root signature DWORDs")

	limits := DefaultLimits()
	limits.MaxRootParameters = 4
	err = l.Build(DefaultMergePolicy, limits, tableShader(t, metadata.ShaderStageVertex), tableShader(t, metadata.ShaderStagePixel))
	require.ErrorIs(t, err, core.ErrBudgetExceeded)
	assert.Contains(t, err.Error(), "6 root parameters")
}

func TestLayoutFlags(t *testing.T) {
	vs := mustReflect(t, DefaultReflectOptions(), "vs", metadata.ShaderStageVertex, cbuffer("PerBatch", 0, 1, true))
	ps := mustReflect(t, DefaultReflectOptions(), "ps", metadata.ShaderStagePixel)

	var l PipelineLayout
	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(), vs, ps))

	want := RootSignatureFlagAllowInputAssemblerInputLayout |
		RootSignatureFlagDenyHullShaderRootAccess |
		RootSignatureFlagDenyDomainShaderRootAccess |
		RootSignatureFlagDenyGeometryShaderRootAccess |
		RootSignatureFlagDenyPixelShaderRootAccess
	assert.Equal(t, want, l.Flags())
	assert.Equal(t, want, l.Desc().Flags)

	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(), tableShader(t, metadata.ShaderStagePixel)))
	assert.Equal(t, RootSignatureFlags(0x1e), l.Flags())
}

func TestLayoutCompute(t *testing.T) {
	cs := tableShader(t, metadata.ShaderStageCompute)

	var l PipelineLayout
	require.NoError(t, l.BuildCompute(cs, DefaultMergePolicy, DefaultLimits()))
	assert.True(t, l.Compute)
	assert.Equal(t, RootSignatureFlagNone, l.Flags())
	for _, p := range l.RootParameters {
		assert.Equal(t, ShaderVisibilityAll, p.ShaderVisibility)
	}

	assert.Error(t, l.BuildCompute(tableShader(t, metadata.ShaderStagePixel), DefaultMergePolicy, DefaultLimits()))
	assert.Error(t, l.BuildCompute(nil, DefaultMergePolicy, DefaultLimits()))
}

func TestLayoutBuildRejectsBadCombinations(t *testing.T) {
	var l PipelineLayout
	vs := tableShader(t, metadata.ShaderStageVertex)
	cs := tableShader(t, metadata.ShaderStageCompute)

	assert.Error(t, l.Build(DefaultMergePolicy, DefaultLimits(), vs, cs))
	assert.Error(t, l.Build(DefaultMergePolicy, DefaultLimits(), vs, vs))
}

func TestLayoutBuildGraphicsSkipsAbsentStages(t *testing.T) {
	var shaders [metadata.GraphicsStageCount]*Shader
	shaders[metadata.ShaderStagePixel] = tableShader(t, metadata.ShaderStagePixel)

	var l PipelineLayout
	require.NoError(t, l.BuildGraphics(shaders, DefaultMergePolicy, DefaultLimits()))
	assert.Equal(t, uint32(1<<metadata.ShaderStagePixel), l.PresentMask)
	assert.Equal(t, uint32(1<<metadata.ShaderStagePixel), l.StageMask)
}

func TestMergePolicyFromConfig(t *testing.T) {
	assert.Equal(t, DefaultMergePolicy, MergePolicyFromConfig(core.DefaultConfig().Layout.Merge))
	assert.Equal(t, MergeCBV|MergeSampler, MergePolicyFromConfig(core.MergeConfig{CBV: true, Sampler: true}))
}

func TestLayoutDescriptionIsACopy(t *testing.T) {
	var l PipelineLayout
	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(), tableShader(t, metadata.ShaderStagePixel)))

	desc := l.Desc()
	desc.Parameters[0].ShaderVisibility = ShaderVisibilityAll
	assert.Equal(t, ShaderVisibilityPixel, l.RootParameters[0].ShaderVisibility)
	assert.Equal(t, 3, desc.DWORDCost())
}

func TestLayoutDescribe(t *testing.T) {
	opts := DefaultReflectOptions()
	opts.Diagnostics = true
	vs := mustReflect(t, opts, "vs", metadata.ShaderStageVertex, cbuffer("PerView", 6, 1, true))
	ps := mustReflect(t, opts, "ps", metadata.ShaderStagePixel,
		cbuffer("PerView", 6, 1, true),
		bindPoint("albedo", metadata.BindPointTexture, 4, 1),
		bindPoint("normal", metadata.BindPointTexture, 5, 1),
		bindPoint("linear", metadata.BindPointSampler, 0, 1),
	)

	var l PipelineLayout
	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(), vs, ps))

	var sb strings.Builder
	require.NoError(t, l.Describe(&sb))
	out := sb.String()

	assert.Contains(t, out, "Root parameters (3, 4 DWORDs")
	assert.Contains(t, out, "Vertex   shader stage: C  6 -> root  0 PerView")
	assert.Contains(t, out, "Resource Heap Descriptor Tables (2 descriptors):")
	assert.Contains(t, out, "Pixel    shader stage: T  4 ->  0 albedo")
	assert.Contains(t, out, "Pixel    shader stage: T  5 ->  1 normal")
	assert.Contains(t, out, "Sampler Heap Descriptor Tables (1 descriptors):")
	assert.Contains(t, out, "Pixel    shader stage: S  0 ->  0 linear")
	assert.Contains(t, out, "T4..5@+0")
}

func TestSamplersAreTabledNotStatic(t *testing.T) {
	var l PipelineLayout
	require.NoError(t, l.Build(DefaultMergePolicy, DefaultLimits(), tableShader(t, metadata.ShaderStagePixel)))
	assert.NotEmpty(t, l.Samplers)
	assert.Empty(t, l.StaticSamplers)

	// Static samplers supplied by the caller still count against the ceiling.
	limits := DefaultLimits()
	limits.MaxStaticSamplers = 2
	l.StaticSamplers = make([]StaticSampler, 3)
	assert.ErrorIs(t, l.Validate(limits), core.ErrBudgetExceeded)
}
