package dx12

import (
	"cmp"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

// ReflectOptions controls how bind points are classified.
type ReflectOptions struct {
	// Constant buffer registers at or below this slot keep their individual
	// layout and are never merged.
	LegacyPerInstanceSlot uint8
	// Constant buffer registers that are bound identically by every stage.
	SharedSlots []uint8
	// Keep bind point names for layout dumps.
	Diagnostics bool
}

func DefaultReflectOptions() ReflectOptions {
	cfg := core.DefaultConfig()
	return ReflectOptionsFromConfig(cfg)
}

func ReflectOptionsFromConfig(cfg *core.Config) ReflectOptions {
	return ReflectOptions{
		LegacyPerInstanceSlot: cfg.Layout.LegacyPerInstanceSlot,
		SharedSlots:           slices.Clone(cfg.Layout.SharedSlots),
		Diagnostics:           cfg.Layout.Diagnostics,
	}
}

// BindingKey identifies one register of one class inside a shader.
type BindingKey struct {
	Class    ResourceClass
	Register uint8
}

// BindingNames is the diagnostics side-table: register to declared name.
type BindingNames map[BindingKey]string

// Shader is a reflected shader: immutable once returned by Reflect.
type Shader struct {
	Name     string
	Stage    metadata.ShaderStage
	Bindings ReflectedBindings
	// Hash covers stage and bindings only.
	Hash uint64
	// Names is nil unless diagnostics were enabled.
	Names BindingNames
}

// Reflect classifies the bind points of a compiled shader into merged
// binding ranges. It fails as a whole on any malformed bind point.
func Reflect(desc *metadata.ShaderDesc, opts ReflectOptions) (*Shader, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil shader description", core.ErrReflectionFailure)
	}
	if !desc.Stage.IsValid() {
		return nil, fmt.Errorf("%w: shader '%s' has invalid stage %s", core.ErrReflectionFailure, desc.Name, desc.Stage)
	}

	var perClass [ResourceClassCount][]metadata.BindPoint
	for _, bp := range desc.BindPoints {
		class, ok := resourceClassForKind(bp.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: shader '%s' bind point '%s' has unknown kind %s", core.ErrReflectionFailure, desc.Name, bp.Name, bp.Kind)
		}
		if bp.Count == 0 {
			return nil, fmt.Errorf("%w: shader '%s' bind point '%s' binds zero registers", core.ErrReflectionFailure, desc.Name, bp.Name)
		}
		if uint64(bp.Register)+uint64(bp.Count) > 256 {
			return nil, fmt.Errorf("%w: shader '%s' bind point '%s' register %d+%d is out of range", core.ErrReflectionFailure, desc.Name, bp.Name, bp.Register, bp.Count)
		}
		perClass[class] = append(perClass[class], bp)
	}

	shader := &Shader{
		Name:  desc.Name,
		Stage: desc.Stage,
	}
	if opts.Diagnostics {
		shader.Names = make(BindingNames)
	}

	for c := ResourceClass(0); c < ResourceClassCount; c++ {
		bps := perClass[c]
		slices.SortStableFunc(bps, func(a, b metadata.BindPoint) int {
			return cmp.Compare(a.Register, b.Register)
		})

		ranges := shader.Bindings.Class(c)
		end := uint32(0)
		for i, bp := range bps {
			if i > 0 && bp.Register < end {
				return nil, fmt.Errorf("%w: shader '%s' bind point '%s' overlaps register %s%d", core.ErrReflectionFailure, desc.Name, bp.Name, c.RangeType().Letter(), bp.Register)
			}
			end = bp.Register + bp.Count

			register, count := uint8(bp.Register), uint8(bp.Count)
			used, shared, mergeable := !bp.Unused, false, true
			if c == ResourceClassConstantBuffer {
				used = constantBufferUsed(bp)
				shared = slices.Contains(opts.SharedSlots, register)
				mergeable = register > opts.LegacyPerInstanceSlot
			}
			ranges.Append(register, count, used, shared, mergeable)

			if shader.Names != nil {
				for r := uint32(0); r < bp.Count; r++ {
					shader.Names[BindingKey{Class: c, Register: uint8(bp.Register + r)}] = bp.Name
				}
			}
		}
	}

	shader.Hash = hashBindings(shader.Stage, &shader.Bindings)
	return shader, nil
}

// constantBufferUsed: a buffer counts as used when any member is referenced.
// Buffers reflected without members fall back to the bind point flag.
func constantBufferUsed(bp metadata.BindPoint) bool {
	if len(bp.Variables) == 0 {
		return !bp.Unused
	}
	for _, v := range bp.Variables {
		if v.Referenced {
			return true
		}
	}
	return false
}
