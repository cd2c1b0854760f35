package dx12

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

/** @brief Shaders of a graphics pipeline, indexed by stage. Absent stages are nil. */
type GraphicsInitParams struct {
	Shaders [metadata.GraphicsStageCount]*Shader
}

type ComputeInitParams struct {
	Shader *Shader
}

// stageKey is the per-stage hash tuple used to verify cache hits.
type stageKey [metadata.GraphicsStageCount]uint64

/**
 * @brief A realized root signature and the layout that produced it. Shared
 * by the cache and every holder of a reference; the cache releases the
 * native object.
 */
type RootSignature struct {
	native NativeRootSignature
	layout *PipelineLayout
	hash   uint64
	key    stageKey

	refs atomic.Int32
}

// Realize builds the native object for an already built layout.
func Realize(device Device, layout *PipelineLayout) (NativeRootSignature, error) {
	blob, err := device.SerializeRootSignature(layout.Desc())
	if err != nil {
		return nil, fmt.Errorf("%w: serialize: %w", core.ErrRealizationFailure, err)
	}
	native, err := device.CreateRootSignature(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: create: %w", core.ErrRealizationFailure, err)
	}
	return native, nil
}

func (rs *RootSignature) GetNativeHandle() NativeRootSignature {
	return rs.native
}

func (rs *RootSignature) GetHash() uint64 {
	return rs.hash
}

// GetPipelineLayout returns the layout. It must be treated as read-only.
func (rs *RootSignature) GetPipelineLayout() *PipelineLayout {
	return rs.layout
}

func (rs *RootSignature) IsCompute() bool {
	return rs.hash&computeHashBit != 0
}

// RefCount is the number of outstanding references handed out by the cache.
func (rs *RootSignature) RefCount() int32 {
	return rs.refs.Load()
}

func (rs *RootSignature) AddRef() {
	rs.refs.Add(1)
}

// Release drops a reference obtained from Acquire. The native object stays
// alive until the cache trims or is destroyed.
func (rs *RootSignature) Release() {
	for {
		n := rs.refs.Load()
		if n <= 0 {
			core.LogWarn("root signature %016x released more often than acquired", rs.hash)
			return
		}
		if rs.refs.CompareAndSwap(n, n-1) {
			return
		}
	}
}

func (rs *RootSignature) destroy() error {
	if rs.native == nil {
		return nil
	}
	err := rs.native.Release()
	rs.native = nil
	return err
}
