package dx12

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/rootsig/engine/core"
	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

// computeHashBit partitions the key space: set for compute, clear for graphics.
const computeHashBit uint64 = 1

var ErrSignatureCacheNilDevice = errors.New("dx12: signature cache needs a device")

type CacheOptions struct {
	Policy MergePolicy
	Limits Limits
}

func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		Policy: DefaultMergePolicy,
		Limits: DefaultLimits(),
	}
}

/**
 * @brief Deduplicates root signatures by the binding hashes of their shaders.
 *
 * SignatureCache is safe for concurrent use: lookups take a read lock, misses
 * build and realize under the write lock after re-checking, so one native
 * object exists per shader combination. Failures are never cached.
 */
type SignatureCache struct {
	device Device
	opts   CacheOptions

	mu      sync.RWMutex
	entries map[uint64][]*RootSignature

	metrics core.CacheMetrics
}

func NewSignatureCache(device Device, opts CacheOptions) (*SignatureCache, error) {
	if device == nil {
		return nil, ErrSignatureCacheNilDevice
	}
	return &SignatureCache{
		device:  device,
		opts:    opts,
		entries: make(map[uint64][]*RootSignature),
	}, nil
}

// GraphicsHash combines the per-stage shader hashes (0 for absent stages) in
// graphics stage order, with the compute bit cleared.
func GraphicsHash(params GraphicsInitParams) uint64 {
	key := graphicsKey(params)
	return hashStages(key[:]) &^ computeHashBit
}

// ComputeHash is the shader hash with the compute bit set.
func ComputeHash(params ComputeInitParams) uint64 {
	if params.Shader == nil {
		return computeHashBit
	}
	return params.Shader.Hash | computeHashBit
}

func graphicsKey(params GraphicsInitParams) stageKey {
	var key stageKey
	for i, stage := range metadata.GraphicsStageOrder {
		if s := params.Shaders[stage]; s != nil {
			key[i] = s.Hash
		}
	}
	return key
}

func (c *SignatureCache) AcquireGraphics(params GraphicsInitParams) (*RootSignature, error) {
	for stage, s := range params.Shaders {
		if s != nil && s.Stage != metadata.ShaderStage(stage) {
			return nil, fmt.Errorf("func AcquireGraphics: shader '%s' is a %s shader in the %s slot", s.Name, s.Stage, metadata.ShaderStage(stage))
		}
	}
	key := graphicsKey(params)
	return c.acquire(GraphicsHash(params), key, func(l *PipelineLayout) error {
		return l.BuildGraphics(params.Shaders, c.opts.Policy, c.opts.Limits)
	})
}

func (c *SignatureCache) AcquireCompute(params ComputeInitParams) (*RootSignature, error) {
	if params.Shader == nil {
		return nil, errors.New("func AcquireCompute: a compute shader is required")
	}
	key := stageKey{params.Shader.Hash}
	return c.acquire(ComputeHash(params), key, func(l *PipelineLayout) error {
		return l.BuildCompute(params.Shader, c.opts.Policy, c.opts.Limits)
	})
}

func (c *SignatureCache) lookup(hash uint64, key stageKey) *RootSignature {
	for _, rs := range c.entries[hash] {
		if rs.key == key {
			return rs
		}
	}
	return nil
}

func (c *SignatureCache) acquire(hash uint64, key stageKey, build func(*PipelineLayout) error) (*RootSignature, error) {
	c.mu.RLock()
	if rs := c.lookup(hash, key); rs != nil {
		rs.AddRef()
		c.mu.RUnlock()
		c.metrics.Hit()
		return rs, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if rs := c.lookup(hash, key); rs != nil {
		rs.AddRef()
		c.metrics.Hit()
		return rs, nil
	}
	if len(c.entries[hash]) > 0 {
		core.LogWarn("root signature hash %016x collides for different shader combinations", hash)
	}

	clock := core.StartClock()
	layout := &PipelineLayout{}
	if err := build(layout); err != nil {
		c.metrics.Failure()
		core.LogError("root signature %016x: %s", hash, err)
		return nil, err
	}
	native, err := Realize(c.device, layout)
	if err != nil {
		c.metrics.Failure()
		core.LogError("root signature %016x: %s", hash, err)
		return nil, err
	}

	rs := &RootSignature{
		native: native,
		layout: layout,
		hash:   hash,
		key:    key,
	}
	rs.AddRef()
	c.entries[hash] = append(c.entries[hash], rs)
	clock.Stop()
	c.metrics.Miss(clock.Elapsed())

	core.LogDebug("root signature %016x created as %s: %d parameters, %d ranges, %d tables",
		hash, native.Name(), len(layout.RootParameters), len(layout.DescriptorRanges), len(layout.DescriptorTables))
	return rs, nil
}

// Trim destroys every signature without outstanding references and returns
// how many were removed.
func (c *SignatureCache) Trim() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	removed := 0
	for hash, bucket := range c.entries {
		kept := bucket[:0]
		for _, rs := range bucket {
			if rs.RefCount() > 0 {
				kept = append(kept, rs)
				continue
			}
			if err := rs.destroy(); err != nil {
				errs = append(errs, err)
			}
			removed++
		}
		if len(kept) == 0 {
			delete(c.entries, hash)
		} else {
			c.entries[hash] = kept
		}
	}
	return removed, errors.Join(errs...)
}

// Destroy releases every native object regardless of outstanding references
// and empties the cache. References held elsewhere must not be used after.
func (c *SignatureCache) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, bucket := range c.entries {
		for _, rs := range bucket {
			if err := rs.destroy(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	c.entries = make(map[uint64][]*RootSignature)
	c.metrics.Reset()
	return errors.Join(errs...)
}

/** @brief A snapshot of cache usage. */
type CacheStats struct {
	Hits          uint64
	Misses        uint64
	Failures      uint64
	HitRate       float64
	MissLatencyMS float64
	Graphics      int
	Compute       int
}

func (c *SignatureCache) Stats() CacheStats {
	stats := CacheStats{
		Hits:          c.metrics.Hits(),
		Misses:        c.metrics.Misses(),
		Failures:      c.metrics.Failures(),
		HitRate:       c.metrics.HitRate(),
		MissLatencyMS: c.metrics.MissLatencyMS(),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for hash, bucket := range c.entries {
		if hash&computeHashBit != 0 {
			stats.Compute += len(bucket)
		} else {
			stats.Graphics += len(bucket)
		}
	}
	return stats
}

// Size is the number of cached signatures.
func (c *SignatureCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, bucket := range c.entries {
		n += len(bucket)
	}
	return n
}
