package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

/**
 * @brief Reflects WGSL source through naga. Each entry point becomes one
 * shader named "<file>.<entry>".
 *
 * WGSL @group/@binding pairs map to HLSL registers through Bindings, the same
 * table the naga HLSL backend uses. Without an entry a resource lands on
 * register @binding of space @group; only space 0 is supported.
 */
type WGSLLoader struct {
	Bindings map[hlsl.ResourceBinding]hlsl.BindTarget
}

func (wl *WGSLLoader) Load(path string) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	descs, err := wl.Reflect(name, string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &metadata.Resource{
		Type:     metadata.ResourceTypeShaderSource,
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Shaders:  descs,
	}, nil
}

// Reflect parses and lowers WGSL source and returns one description per
// entry point, in declaration order.
func (wl *WGSLLoader) Reflect(name, source string) ([]*metadata.ShaderDesc, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrReflectionFailure, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrReflectionFailure, err)
	}
	if len(module.EntryPoints) == 0 {
		return nil, fmt.Errorf("%w: '%s' declares no entry points", core.ErrReflectionFailure, name)
	}

	descs := make([]*metadata.ShaderDesc, 0, len(module.EntryPoints))
	for _, ep := range module.EntryPoints {
		desc, err := wl.reflectEntryPoint(module, name, ep)
		if err != nil {
			return nil, fmt.Errorf("%w: entry point '%s': %w", core.ErrReflectionFailure, ep.Name, err)
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

func stageForEntryPoint(stage ir.ShaderStage) (metadata.ShaderStage, error) {
	switch stage {
	case ir.StageVertex:
		return metadata.ShaderStageVertex, nil
	case ir.StageFragment:
		return metadata.ShaderStagePixel, nil
	case ir.StageCompute:
		return metadata.ShaderStageCompute, nil
	}
	return 0, fmt.Errorf("unsupported stage %d", stage)
}

func (wl *WGSLLoader) reflectEntryPoint(module *ir.Module, name string, ep ir.EntryPoint) (*metadata.ShaderDesc, error) {
	stage, err := stageForEntryPoint(ep.Stage)
	if err != nil {
		return nil, err
	}
	usage := collectUsage(module, &ep.Function)

	desc := &metadata.ShaderDesc{
		Name:  name + "." + ep.Name,
		Stage: stage,
	}
	for h, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		kind, ok := bindPointKind(module, gv)
		if !ok {
			continue
		}
		register, count, err := wl.register(module, gv)
		if err != nil {
			return nil, fmt.Errorf("global '%s': %w", gv.Name, err)
		}

		handle := ir.GlobalVariableHandle(h)
		bp := metadata.BindPoint{
			Name:     gv.Name,
			Kind:     kind,
			Register: register,
			Count:    count,
			Unused:   !usage.globals[handle],
		}
		if kind == metadata.BindPointConstantBuffer {
			bp.Variables = uniformVariables(module, gv, usage, handle)
		}
		desc.BindPoints = append(desc.BindPoints, bp)
	}
	return desc, nil
}

// register resolves the HLSL register and register count of a global.
func (wl *WGSLLoader) register(module *ir.Module, gv ir.GlobalVariable) (uint32, uint32, error) {
	target, ok := wl.Bindings[hlsl.ResourceBinding{Group: gv.Binding.Group, Binding: gv.Binding.Binding}]
	if !ok {
		if gv.Binding.Group > 0xff {
			return 0, 0, fmt.Errorf("group %d is out of range", gv.Binding.Group)
		}
		target = hlsl.DefaultBindTarget().WithSpace(uint8(gv.Binding.Group)).WithRegister(gv.Binding.Binding)
	}
	if target.Space != 0 {
		return 0, 0, fmt.Errorf("@group(%d) @binding(%d) maps to register space %d, only space 0 is supported",
			gv.Binding.Group, gv.Binding.Binding, target.Space)
	}

	count := uint32(1)
	if arr, ok := innerType(module, gv.Type).(ir.ArrayType); ok && gv.Space == ir.SpaceHandle {
		if arr.Size.Constant == nil {
			return 0, 0, fmt.Errorf("runtime sized resource arrays need an explicit binding array size")
		}
		count = *arr.Size.Constant
	}
	if target.BindingArraySize != nil {
		count = *target.BindingArraySize
	}
	return target.Register, count, nil
}

func innerType(module *ir.Module, h ir.TypeHandle) ir.TypeInner {
	if int(h) >= len(module.Types) {
		return nil
	}
	return module.Types[h].Inner
}

func bindPointKind(module *ir.Module, gv ir.GlobalVariable) (metadata.BindPointKind, bool) {
	switch gv.Space {
	case ir.SpaceUniform:
		return metadata.BindPointConstantBuffer, true
	case ir.SpaceStorage:
		if gv.Access == ir.StorageRead {
			return metadata.BindPointTexture, true
		}
		return metadata.BindPointUnorderedAccess, true
	case ir.SpaceHandle:
		inner := innerType(module, gv.Type)
		if arr, ok := inner.(ir.ArrayType); ok {
			inner = innerType(module, arr.Base)
		}
		switch t := inner.(type) {
		case ir.SamplerType:
			return metadata.BindPointSampler, true
		case ir.ImageType:
			if t.Class == ir.ImageClassStorage {
				return metadata.BindPointUnorderedAccess, true
			}
			return metadata.BindPointTexture, true
		}
	}
	return 0, false
}

// uniformVariables lists the struct members of a uniform buffer and whether
// the entry point reads them. Reading the whole buffer counts for every member.
func uniformVariables(module *ir.Module, gv ir.GlobalVariable, usage *entryUsage, handle ir.GlobalVariableHandle) []metadata.ShaderVariable {
	st, ok := innerType(module, gv.Type).(ir.StructType)
	if !ok {
		return []metadata.ShaderVariable{{Name: gv.Name, Referenced: usage.globals[handle]}}
	}
	members := usage.members[handle]
	whole := usage.globals[handle] && len(members) == 0
	vars := make([]metadata.ShaderVariable, len(st.Members))
	for i, m := range st.Members {
		vars[i] = metadata.ShaderVariable{
			Name:       m.Name,
			Referenced: whole || members[uint32(i)],
		}
	}
	return vars
}

type entryUsage struct {
	globals map[ir.GlobalVariableHandle]bool
	members map[ir.GlobalVariableHandle]map[uint32]bool
}

// collectUsage walks the entry function, which lives inline in its entry
// point, and every module function it calls.
func collectUsage(module *ir.Module, entry *ir.Function) *entryUsage {
	usage := &entryUsage{
		globals: make(map[ir.GlobalVariableHandle]bool),
		members: make(map[ir.GlobalVariableHandle]map[uint32]bool),
	}
	pending := usage.visit(entry, nil)

	visited := make(map[ir.FunctionHandle]bool)
	for len(pending) > 0 {
		fh := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if visited[fh] || int(fh) >= len(module.Functions) {
			continue
		}
		visited[fh] = true
		pending = usage.visit(&module.Functions[fh], pending)
	}
	return usage
}

// visit records the globals fn touches and appends the functions it calls.
func (u *entryUsage) visit(fn *ir.Function, pending []ir.FunctionHandle) []ir.FunctionHandle {
	for _, expr := range fn.Expressions {
		switch e := expr.Kind.(type) {
		case ir.ExprGlobalVariable:
			u.globals[e.Variable] = true
		case ir.ExprAccessIndex:
			if int(e.Base) >= len(fn.Expressions) {
				continue
			}
			if base, ok := fn.Expressions[e.Base].Kind.(ir.ExprGlobalVariable); ok {
				if u.members[base.Variable] == nil {
					u.members[base.Variable] = make(map[uint32]bool)
				}
				u.members[base.Variable][e.Index] = true
			}
		}
	}
	return appendCalls(pending, fn.Body)
}

func appendCalls(pending []ir.FunctionHandle, block []ir.Statement) []ir.FunctionHandle {
	for _, stmt := range block {
		switch s := stmt.Kind.(type) {
		case ir.StmtCall:
			pending = append(pending, s.Function)
		case ir.StmtBlock:
			pending = appendCalls(pending, s.Block)
		case ir.StmtIf:
			pending = appendCalls(pending, s.Accept)
			pending = appendCalls(pending, s.Reject)
		case ir.StmtLoop:
			pending = appendCalls(pending, s.Body)
			pending = appendCalls(pending, s.Continuing)
		case ir.StmtSwitch:
			for _, c := range s.Cases {
				pending = appendCalls(pending, c.Body)
			}
		}
	}
	return pending
}
