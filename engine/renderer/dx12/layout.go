package dx12

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

/**
 * @brief Selects, per resource class, whether descriptor table flushes are
 * deferred to the end of the heap group (bit set) or done after every range
 * of that class (bit clear). Applies to every layout built by one cache.
 */
type MergePolicy uint8

const (
	MergeCBV MergePolicy = 1 << iota
	MergeSRV
	MergeUAV
	MergeSampler
)

// DefaultMergePolicy builds one table per heap and stage for read-only,
// read-write and sampler ranges, and one table per constant buffer range.
const DefaultMergePolicy = MergeSRV | MergeUAV | MergeSampler

func MergePolicyFromConfig(cfg core.MergeConfig) MergePolicy {
	var p MergePolicy
	if cfg.CBV {
		p |= MergeCBV
	}
	if cfg.SRV {
		p |= MergeSRV
	}
	if cfg.UAV {
		p |= MergeUAV
	}
	if cfg.Sampler {
		p |= MergeSampler
	}
	return p
}

func (p MergePolicy) defers(c ResourceClass) bool {
	return p&(1<<c) != 0
}

/** @brief Ceilings checked before a layout is handed to a device. */
type Limits struct {
	MaxRootParameters      int
	MaxRootSignatureDWORDs int
	MaxDescriptorRanges    int
	MaxDescriptorTables    int
	MaxStaticSamplers      int
}

func DefaultLimits() Limits {
	return LimitsFromConfig(core.DefaultConfig().Limits)
}

func LimitsFromConfig(cfg core.LimitsConfig) Limits {
	return Limits{
		MaxRootParameters:      cfg.MaxRootParameters,
		MaxRootSignatureDWORDs: cfg.MaxRootSignatureDWORDs,
		MaxDescriptorRanges:    cfg.MaxDescriptorRanges,
		MaxDescriptorTables:    cfg.MaxDescriptorTables,
		MaxStaticSamplers:      cfg.MaxStaticSamplers,
	}
}

/**
 * @brief A constant buffer realized as a root descriptor, so it can be
 * updated without touching a descriptor table.
 */
type ConstantBufferBinding struct {
	Stage              metadata.ShaderStage
	ShaderSlot         uint8
	RootParameterIndex int
}

/** @brief A table backed resource or sampler slot, written at draw time. */
type ResourceBinding struct {
	Stage            metadata.ShaderStage
	ViewType         DescriptorRangeType
	ShaderSlot       uint8
	DescriptorOffset uint32
}

/** @brief A realized descriptor table: heap and base offset within it. */
type DescriptorTableEntry struct {
	Heap               DescriptorHeapType
	Offset             uint32
	RootParameterIndex int
}

/**
 * @brief The root signature layout of one shader combination, plus the
 * bookkeeping needed to bind resources against it.
 */
type PipelineLayout struct {
	ConstantViews  []ConstantBufferBinding
	TableResources []ResourceBinding
	Samplers       []ResourceBinding

	RootParameters   []RootParameter
	DescriptorRanges []DescriptorRange
	DescriptorTables []DescriptorTableEntry
	StaticSamplers   []StaticSampler

	/** @brief Descriptors in the CBV/SRV/UAV heap per bind. */
	NumDescriptors uint32
	/** @brief Descriptors in the sampler heap per bind. */
	NumDynamicSamplers uint32

	/** @brief Bit (1 << stage) set when that stage owns at least one root parameter. */
	StageMask uint32
	/** @brief Bit (1 << stage) set for every stage that had a shader. */
	PresentMask uint32
	Compute     bool

	/** @brief Per stage binding names, only filled when shaders carry diagnostics. */
	Names [metadata.ShaderStageCount]BindingNames
}

// descriptor table accumulation state for one heap
type tableCursor struct {
	heap       DescriptorHeapType
	firstRange int
	tableStart uint32
	counter    *uint32
}

// Clear resets the layout so it can be rebuilt.
func (l *PipelineLayout) Clear() {
	*l = PipelineLayout{}
}

// Build clears the layout and rebuilds it from the given shaders. Shaders are
// visited in graphics stage order regardless of argument order; a compute
// shader must be alone. Nil entries are skipped.
func (l *PipelineLayout) Build(policy MergePolicy, limits Limits, shaders ...*Shader) error {
	l.Clear()

	var byStage [metadata.ShaderStageCount]*Shader
	for _, s := range shaders {
		if s == nil {
			continue
		}
		if !s.Stage.IsValid() {
			return fmt.Errorf("func Build: shader '%s' has invalid stage %s", s.Name, s.Stage)
		}
		if byStage[s.Stage] != nil {
			return fmt.Errorf("func Build: shaders '%s' and '%s' both bind the %s stage", byStage[s.Stage].Name, s.Name, s.Stage)
		}
		byStage[s.Stage] = s
	}

	if cs := byStage[metadata.ShaderStageCompute]; cs != nil {
		for _, stage := range metadata.GraphicsStageOrder {
			if byStage[stage] != nil {
				return fmt.Errorf("func Build: compute shader '%s' cannot be combined with %s shader '%s'", cs.Name, stage, byStage[stage].Name)
			}
		}
		l.Compute = true
		l.buildStage(cs, policy)
	} else {
		for _, stage := range metadata.GraphicsStageOrder {
			if s := byStage[stage]; s != nil {
				l.buildStage(s, policy)
			}
		}
	}

	return l.Validate(limits)
}

// BuildGraphics builds from a stage indexed array of optional shaders.
func (l *PipelineLayout) BuildGraphics(shaders [metadata.GraphicsStageCount]*Shader, policy MergePolicy, limits Limits) error {
	return l.Build(policy, limits, shaders[:]...)
}

func (l *PipelineLayout) BuildCompute(shader *Shader, policy MergePolicy, limits Limits) error {
	if shader == nil || shader.Stage != metadata.ShaderStageCompute {
		return errors.New("func BuildCompute: a compute shader is required")
	}
	return l.Build(policy, limits, shader)
}

func (l *PipelineLayout) buildStage(s *Shader, policy MergePolicy) {
	stage := s.Stage
	visibility := VisibilityForStage(stage)
	contributed := false

	l.PresentMask |= 1 << stage
	l.Names[stage] = s.Names

	// Root constant buffers.
	for _, r := range s.Bindings.ConstantBuffers.Ranges {
		if !r.RootEligible() {
			continue
		}
		for reg := int(r.ShaderRegister); reg < r.End(); reg++ {
			slot := uint8(reg)
			contributed = true

			existing := l.findRootConstantBuffer(slot)
			switch {
			case r.Shared:
				if existing >= 0 {
					l.RootParameters[existing].ShaderVisibility = ShaderVisibilityAll
					if !l.hasConstantView(existing) {
						l.ConstantViews = append(l.ConstantViews, ConstantBufferBinding{Stage: stage, ShaderSlot: slot, RootParameterIndex: existing})
					}
					continue
				}
				idx := l.addRootDescriptor(RootParameterTypeCBV, slot, ShaderVisibilityAll)
				l.ConstantViews = append(l.ConstantViews, ConstantBufferBinding{Stage: stage, ShaderSlot: slot, RootParameterIndex: idx})
			case existing >= 0 && l.RootParameters[existing].ShaderVisibility == ShaderVisibilityAll:
				// Already bound for every stage by a shared declaration.
			case !r.Used:
				// Null view placeholder, nothing to update at run time.
				l.addRootDescriptor(RootParameterTypeCBV, slot, visibility)
			default:
				idx := l.addRootDescriptor(RootParameterTypeCBV, slot, visibility)
				l.ConstantViews = append(l.ConstantViews, ConstantBufferBinding{Stage: stage, ShaderSlot: slot, RootParameterIndex: idx})
			}
		}
	}

	// Descriptor tables, CBV/SRV/UAV heap first, then samplers.
	resources := l.newCursor(DescriptorHeapTypeCBVSRVUAV, &l.NumDescriptors)
	for _, c := range []ResourceClass{ResourceClassConstantBuffer, ResourceClassInput, ResourceClassOutput} {
		for _, r := range s.Bindings.Class(c).Ranges {
			if c == ResourceClassConstantBuffer && r.RootEligible() {
				continue
			}
			if c != ResourceClassConstantBuffer && !r.Used {
				// There is no valid descriptor to put in a table slot, bind a
				// null root view per register instead.
				paramType := RootParameterTypeSRV
				if c == ResourceClassOutput {
					paramType = RootParameterTypeUAV
				}
				for reg := int(r.ShaderRegister); reg < r.End(); reg++ {
					l.addRootDescriptor(paramType, uint8(reg), visibility)
				}
				contributed = true
				continue
			}
			l.appendRange(&resources, stage, c, r)
			if !policy.defers(c) {
				contributed = l.flush(&resources, visibility) || contributed
			}
		}
	}
	contributed = l.flush(&resources, visibility) || contributed

	samplers := l.newCursor(DescriptorHeapTypeSampler, &l.NumDynamicSamplers)
	for _, r := range s.Bindings.Samplers.Ranges {
		l.appendRange(&samplers, stage, ResourceClassSampler, r)
		if !policy.defers(ResourceClassSampler) {
			contributed = l.flush(&samplers, visibility) || contributed
		}
	}
	contributed = l.flush(&samplers, visibility) || contributed

	if contributed {
		l.StageMask |= 1 << stage
	}
}

func (l *PipelineLayout) newCursor(heap DescriptorHeapType, counter *uint32) tableCursor {
	return tableCursor{
		heap:       heap,
		firstRange: len(l.DescriptorRanges),
		tableStart: *counter,
		counter:    counter,
	}
}

func (l *PipelineLayout) appendRange(cur *tableCursor, stage metadata.ShaderStage, c ResourceClass, r BindingRange) {
	viewType := c.RangeType()
	l.DescriptorRanges = append(l.DescriptorRanges, DescriptorRange{
		RangeType:                         viewType,
		NumDescriptors:                    uint32(r.Count),
		BaseShaderRegister:                uint32(r.ShaderRegister),
		RegisterSpace:                     0,
		OffsetInDescriptorsFromTableStart: *cur.counter - cur.tableStart,
	})
	for reg := int(r.ShaderRegister); reg < r.End(); reg++ {
		binding := ResourceBinding{
			Stage:            stage,
			ViewType:         viewType,
			ShaderSlot:       uint8(reg),
			DescriptorOffset: *cur.counter,
		}
		if c == ResourceClassSampler {
			l.Samplers = append(l.Samplers, binding)
		} else {
			l.TableResources = append(l.TableResources, binding)
		}
		*cur.counter++
	}
}

// flush turns the ranges accumulated since the previous flush into one
// descriptor table parameter. Reports whether a table was emitted.
func (l *PipelineLayout) flush(cur *tableCursor, visibility ShaderVisibility) bool {
	n := len(l.DescriptorRanges) - cur.firstRange
	if n == 0 {
		return false
	}
	idx := len(l.RootParameters)
	l.RootParameters = append(l.RootParameters, RootParameter{
		ParameterType:    RootParameterTypeDescriptorTable,
		ShaderVisibility: visibility,
		Table:            RootDescriptorTable{FirstRange: cur.firstRange, NumRanges: n},
	})
	l.DescriptorTables = append(l.DescriptorTables, DescriptorTableEntry{
		Heap:               cur.heap,
		Offset:             cur.tableStart,
		RootParameterIndex: idx,
	})
	cur.firstRange = len(l.DescriptorRanges)
	cur.tableStart = *cur.counter
	return true
}

func (l *PipelineLayout) addRootDescriptor(paramType RootParameterType, register uint8, visibility ShaderVisibility) int {
	l.RootParameters = append(l.RootParameters, RootParameter{
		ParameterType:    paramType,
		ShaderVisibility: visibility,
		Descriptor:       RootDescriptor{ShaderRegister: uint32(register)},
	})
	return len(l.RootParameters) - 1
}

func (l *PipelineLayout) findRootConstantBuffer(register uint8) int {
	for i, p := range l.RootParameters {
		if p.ParameterType == RootParameterTypeCBV && p.Descriptor.ShaderRegister == uint32(register) {
			return i
		}
	}
	return -1
}

func (l *PipelineLayout) hasConstantView(rootParameterIndex int) bool {
	return slices.ContainsFunc(l.ConstantViews, func(cb ConstantBufferBinding) bool {
		return cb.RootParameterIndex == rootParameterIndex
	})
}

// Validate checks the layout against the ceilings. Any violation wraps
// core.ErrBudgetExceeded.
func (l *PipelineLayout) Validate(limits Limits) error {
	check := func(what string, got, max int) error {
		if got > max {
			return fmt.Errorf("%w: %d %s, limit is %d", core.ErrBudgetExceeded, got, what, max)
		}
		return nil
	}
	desc := RootSignatureDesc{Parameters: l.RootParameters}
	return errors.Join(
		check("root parameters", len(l.RootParameters), limits.MaxRootParameters),
		check("root signature DWORDs", desc.DWORDCost(), limits.MaxRootSignatureDWORDs),
		check("descriptor ranges", len(l.DescriptorRanges), limits.MaxDescriptorRanges),
		check("descriptor tables", len(l.DescriptorTables), limits.MaxDescriptorTables),
		check("static samplers", len(l.StaticSamplers), limits.MaxStaticSamplers),
	)
}

// Flags derives the root signature flags. Graphics stages that own no root
// parameter are denied root access, whether or not they had a shader.
func (l *PipelineLayout) Flags() RootSignatureFlags {
	if l.Compute {
		return RootSignatureFlagNone
	}
	flags := RootSignatureFlagNone
	if l.PresentMask&(1<<metadata.ShaderStageVertex) != 0 {
		flags |= RootSignatureFlagAllowInputAssemblerInputLayout
	}
	for _, stage := range metadata.GraphicsStageOrder {
		if l.StageMask&(1<<stage) == 0 {
			flags |= stageDenyFlags[stage]
		}
	}
	return flags
}

// HasStage reports whether the stage owns at least one root parameter.
func (l *PipelineLayout) HasStage(stage metadata.ShaderStage) bool {
	return l.StageMask&(1<<stage) != 0
}

// Desc returns a copy of the layout in the shape a device serializes.
func (l *PipelineLayout) Desc() *RootSignatureDesc {
	return &RootSignatureDesc{
		Parameters:     slices.Clone(l.RootParameters),
		Ranges:         slices.Clone(l.DescriptorRanges),
		StaticSamplers: slices.Clone(l.StaticSamplers),
		Flags:          l.Flags(),
	}
}
