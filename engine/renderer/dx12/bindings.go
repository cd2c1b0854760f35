package dx12

import (
	"math"

	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

/** @brief The four register classes a shader binds. */
type ResourceClass uint8

const (
	ResourceClassConstantBuffer ResourceClass = iota
	ResourceClassInput
	ResourceClassOutput
	ResourceClassSampler
	ResourceClassCount
)

var resourceClassRangeTypes = [ResourceClassCount]DescriptorRangeType{
	ResourceClassConstantBuffer: DescriptorRangeTypeCBV,
	ResourceClassInput:          DescriptorRangeTypeSRV,
	ResourceClassOutput:         DescriptorRangeTypeUAV,
	ResourceClassSampler:        DescriptorRangeTypeSampler,
}

func (c ResourceClass) RangeType() DescriptorRangeType {
	return resourceClassRangeTypes[c]
}

func resourceClassForKind(kind metadata.BindPointKind) (ResourceClass, bool) {
	switch kind {
	case metadata.BindPointConstantBuffer:
		return ResourceClassConstantBuffer, true
	case metadata.BindPointTexture:
		return ResourceClassInput, true
	case metadata.BindPointUnorderedAccess:
		return ResourceClassOutput, true
	case metadata.BindPointSampler:
		return ResourceClassSampler, true
	}
	return 0, false
}

/**
 * @brief One contiguous run of shader registers of a single resource class.
 */
type BindingRange struct {
	ShaderRegister uint8
	Count          uint8
	/** @brief Referenced by the shader, as opposed to a required placeholder. */
	Used bool
	/** @brief Bound identically by every stage declaring it. */
	Shared bool
	/** @brief May be coalesced with an adjacent range. */
	Mergeable bool
}

// End is one past the last register of the range.
func (r BindingRange) End() int {
	return int(r.ShaderRegister) + int(r.Count)
}

// RootEligible reports whether a constant buffer range is placed directly in
// the root signature instead of a descriptor table.
func (r BindingRange) RootEligible() bool {
	return !r.Used || r.Count == 1
}

/** @brief The ranges of one resource class, in ascending register order. */
type BindingRanges struct {
	Ranges []BindingRange
	/** @brief Total registers over all ranges. */
	DescriptorCount int
}

// Append adds a binding to the class, extending an adjacent range with the
// same flags in place when both sides are mergeable and not shared.
func (b *BindingRanges) Append(register, count uint8, used, shared, mergeable bool) {
	b.DescriptorCount += int(count)

	if mergeable && !shared {
		for i := len(b.Ranges) - 1; i >= 0; i-- {
			r := &b.Ranges[i]
			if !r.Mergeable || r.Shared || r.Used != used {
				continue
			}
			if r.End() != int(register) || int(r.Count)+int(count) > math.MaxUint8 {
				continue
			}
			r.Count += count
			return
		}
	}

	b.Ranges = append(b.Ranges, BindingRange{
		ShaderRegister: register,
		Count:          count,
		Used:           used,
		Shared:         shared,
		Mergeable:      mergeable,
	})
}

/** @brief The reflected register usage of one shader. */
type ReflectedBindings struct {
	ConstantBuffers BindingRanges
	InputResources  BindingRanges
	OutputResources BindingRanges
	Samplers        BindingRanges
}

// Class returns the range list of the given resource class.
func (rb *ReflectedBindings) Class(c ResourceClass) *BindingRanges {
	switch c {
	case ResourceClassConstantBuffer:
		return &rb.ConstantBuffers
	case ResourceClassInput:
		return &rb.InputResources
	case ResourceClassOutput:
		return &rb.OutputResources
	case ResourceClassSampler:
		return &rb.Samplers
	}
	return nil
}
