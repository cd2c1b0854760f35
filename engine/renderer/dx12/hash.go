package dx12

import (
	"encoding/binary"
	"hash"
	"hash/fnv"

	"github.com/spaghettifunk/rootsig/engine/renderer/metadata"
)

// hashBindings hashes everything that influences a layout built from the
// shader: its stage and the flags of every range. Names and pointers are left
// out so the value is stable across runs and machines.
func hashBindings(stage metadata.ShaderStage, rb *ReflectedBindings) uint64 {
	h := fnv.New64a()
	hashWriteUint32(h, uint32(stage))
	for c := ResourceClass(0); c < ResourceClassCount; c++ {
		ranges := rb.Class(c)
		hashWriteUint32(h, uint32(len(ranges.Ranges)))
		for _, r := range ranges.Ranges {
			_, _ = h.Write([]byte{r.ShaderRegister, r.Count, flagByte(r)})
		}
	}
	return h.Sum64()
}

func flagByte(r BindingRange) byte {
	var b byte
	if r.Used {
		b |= 1
	}
	if r.Shared {
		b |= 2
	}
	if r.Mergeable {
		b |= 4
	}
	return b
}

// hashStages combines per-stage shader hashes in stage order.
func hashStages(hashes []uint64) uint64 {
	h := fnv.New64a()
	for _, v := range hashes {
		hashWriteUint64(h, v)
	}
	return h.Sum64()
}

func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}
