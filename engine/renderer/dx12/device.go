package dx12

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Device is the part of the graphics driver the signature cache needs.
// Both calls are blocking and are not retried by the caller.
type Device interface {
	SerializeRootSignature(desc *RootSignatureDesc) ([]byte, error)
	CreateRootSignature(blob []byte) (NativeRootSignature, error)
}

// NativeRootSignature is a realized, immutable driver object.
type NativeRootSignature interface {
	Name() string
	Release() error
}

var rootSignatureMagic = [4]byte{'R', 'T', 'S', '0'}

const rootSignatureBlobVersion uint32 = 1

var (
	errBlobTooShort = errors.New("root signature blob is truncated")
	errBlobMagic    = errors.New("root signature blob has a bad header")
)

/**
 * @brief A device that realizes root signatures in process. It validates
 * descriptions the way a driver would and hands out uuid named objects.
 * Used by tooling and tests; safe for concurrent use.
 */
type NullDevice struct {
	live    atomic.Int64
	created atomic.Int64

	mu       sync.Mutex
	failNext int
}

func NewNullDevice() *NullDevice {
	return &NullDevice{}
}

// FailNext makes the next n SerializeRootSignature calls fail.
func (d *NullDevice) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

// Live is the number of created and not yet released native objects.
func (d *NullDevice) Live() int64 {
	return d.live.Load()
}

// Created is the total number of native objects ever created.
func (d *NullDevice) Created() int64 {
	return d.created.Load()
}

func (d *NullDevice) SerializeRootSignature(desc *RootSignatureDesc) ([]byte, error) {
	d.mu.Lock()
	if d.failNext > 0 {
		d.failNext--
		d.mu.Unlock()
		return nil, errors.New("device lost")
	}
	d.mu.Unlock()

	if desc == nil {
		return nil, errors.New("nil root signature description")
	}
	if cost := desc.DWORDCost(); cost > 64 {
		return nil, fmt.Errorf("root signature uses %d DWORDs, the limit is 64", cost)
	}

	buf := &bytes.Buffer{}
	w := func(v any) {
		// bytes.Buffer writes never fail.
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
	buf.Write(rootSignatureMagic[:])
	w(rootSignatureBlobVersion)
	w(uint32(desc.Flags))
	w(uint32(len(desc.Parameters)))
	for i, p := range desc.Parameters {
		w(uint32(p.ParameterType))
		w(uint32(p.ShaderVisibility))
		if p.ParameterType != RootParameterTypeDescriptorTable {
			w(p.Descriptor.ShaderRegister)
			w(p.Descriptor.RegisterSpace)
			continue
		}
		t := p.Table
		if t.NumRanges <= 0 || t.FirstRange < 0 || t.FirstRange+t.NumRanges > len(desc.Ranges) {
			return nil, fmt.Errorf("root parameter %d references ranges [%d, %d) of %d", i, t.FirstRange, t.FirstRange+t.NumRanges, len(desc.Ranges))
		}
		w(uint32(t.NumRanges))
		for _, r := range desc.Ranges[t.FirstRange : t.FirstRange+t.NumRanges] {
			if r.NumDescriptors == 0 || uint64(r.BaseShaderRegister)+uint64(r.NumDescriptors) > 1<<32-1 {
				return nil, fmt.Errorf("root parameter %d has an invalid %s range at register %d", i, r.RangeType.Letter(), r.BaseShaderRegister)
			}
			w(r)
		}
	}
	w(uint32(len(desc.StaticSamplers)))
	for _, s := range desc.StaticSamplers {
		w(s)
	}
	return buf.Bytes(), nil
}

func (d *NullDevice) CreateRootSignature(blob []byte) (NativeRootSignature, error) {
	if len(blob) < 8 {
		return nil, errBlobTooShort
	}
	if !bytes.Equal(blob[:4], rootSignatureMagic[:]) || binary.LittleEndian.Uint32(blob[4:8]) != rootSignatureBlobVersion {
		return nil, errBlobMagic
	}
	d.live.Add(1)
	d.created.Add(1)
	return &nullRootSignature{
		name:   "rootsig-" + uuid.NewString(),
		device: d,
	}, nil
}

type nullRootSignature struct {
	name     string
	released atomic.Bool
	device   *NullDevice
}

func (s *nullRootSignature) Name() string {
	return s.name
}

func (s *nullRootSignature) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return fmt.Errorf("root signature %s released twice", s.name)
	}
	s.device.live.Add(-1)
	return nil
}
