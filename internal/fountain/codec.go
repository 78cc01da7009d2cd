package fountain

import (
	"github.com/johntiver92-beep/meshtastic-apple/internal/javarand"
	"github.com/johntiver92-beep/meshtastic-apple/internal/soliton"
)

// redundancyOverhead returns the fraction of extra coded blocks to send
// beyond K: small transfers need proportionally more redundancy to
// survive the peeling decoder's small-sample variance.
func redundancyOverhead(k int) float64 {
	switch {
	case k <= 10:
		return 0.50
	case k <= 50:
		return 0.25
	default:
		return 0.15
	}
}

// GenerateIndices returns the set of source-block indices XORed together
// to form the coded block carrying the given seed, within a transfer of
// K source blocks. The seed alone (not a position) drives the LCG, so
// the sender and an out-of-order, lossy receiver always agree on the
// indices for a given seed value without needing to know that block's
// transmission position.
//
// The block whose seed equals BlockSeed(transferID, 0) always has
// degree 1 (selecting index 0), bootstrapping the peeling decoder. A
// degree is still drawn from the distribution first so the LCG stream
// advances exactly as far as it does on every other block, keeping it
// synchronized with the peer, which samples unconditionally.
func GenerateIndices(transferID uint32, k int, seed uint16) []int {
	rng := javarand.New(int64(seed))
	cdf := soliton.Build(k)

	degree := soliton.Draw(rng, cdf)
	isBlockZero := seed == BlockSeed(transferID, 0)

	if degree > k {
		degree = k
	}
	if degree < 1 {
		degree = 1
	}

	chosen := make(map[int]struct{}, degree)
	indices := make([]int, 0, degree)
	for len(chosen) < degree {
		idx := rng.NextInt(k)
		if _, dup := chosen[idx]; !dup {
			chosen[idx] = struct{}{}
			indices = append(indices, idx)
		}
	}

	if isBlockZero {
		return []int{0}
	}
	return indices
}

// sourceBlocks splits payload into K fixed-size BlockPayloadSize blocks,
// zero-padding the final block.
func sourceBlocks(payload []byte) [][]byte {
	k := (len(payload) + BlockPayloadSize - 1) / BlockPayloadSize
	if k == 0 {
		k = 1
	}
	blocks := make([][]byte, k)
	for i := 0; i < k; i++ {
		block := make([]byte, BlockPayloadSize)
		start := i * BlockPayloadSize
		end := start + BlockPayloadSize
		if end > len(payload) {
			end = len(payload)
		}
		if start < len(payload) {
			copy(block, payload[start:end])
		}
		blocks[i] = block
	}
	return blocks
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// Encode splits payload into K source blocks and produces N coded data
// blocks, where N = K plus the adaptive redundancy overhead for K,
// rounded up and always at least K+1 so even a K=1 transfer gets one
// repair block.
func Encode(transferID uint32, payload []byte) []DataBlock {
	src := sourceBlocks(payload)
	k := len(src)

	extra := int(float64(k)*redundancyOverhead(k) + 0.999999)
	if extra < 1 {
		extra = 1
	}
	n := k + extra

	blocks := make([]DataBlock, n)
	for i := 0; i < n; i++ {
		seed := BlockSeed(transferID, i)
		indices := GenerateIndices(transferID, k, seed)
		coded := make([]byte, BlockPayloadSize)
		for _, idx := range indices {
			xorInto(coded, src[idx])
		}
		blocks[i] = DataBlock{
			TransferID:  transferID,
			Seed:        seed,
			K:           uint8(k),
			TotalLength: uint16(len(payload)),
			Payload:     coded,
		}
	}
	return blocks
}

// codedEquation is one received coded block plus the source indices it
// XORs together, tracked by the peeling decoder.
type codedEquation struct {
	indices map[int]struct{}
	payload []byte
}

// peel runs the standard LT peeling algorithm: repeatedly find a
// degree-1 equation, resolve its source block, and substitute it into
// every equation that references it. Returns the resolved blocks and
// whether all K were recovered.
func peel(k int, equations []codedEquation) ([][]byte, bool) {
	resolved := make([][]byte, k)
	known := make([]bool, k)
	numKnown := 0

	// Peel working copies so the caller's equations stay intact for the
	// next call, which starts again with no resolved blocks.
	queue := make([]*codedEquation, 0, len(equations))
	for i := range equations {
		eq := codedEquation{
			indices: make(map[int]struct{}, len(equations[i].indices)),
			payload: append([]byte(nil), equations[i].payload...),
		}
		for idx := range equations[i].indices {
			eq.indices[idx] = struct{}{}
		}
		queue = append(queue, &eq)
	}

	changed := true
	for changed && numKnown < k {
		changed = false
		for _, eq := range queue {
			if len(eq.indices) == 0 {
				continue
			}
			if len(eq.indices) == 1 {
				var idx int
				for i := range eq.indices {
					idx = i
				}
				if !known[idx] {
					resolved[idx] = append([]byte(nil), eq.payload...)
					known[idx] = true
					numKnown++
					changed = true
				}
				eq.indices = nil
				continue
			}
			for idx := range eq.indices {
				if known[idx] {
					xorInto(eq.payload, resolved[idx])
					delete(eq.indices, idx)
					changed = true
				}
			}
		}
	}

	return resolved, numKnown == k
}

// Decoder reassembles fountain-coded transfers across possibly
// out-of-order, duplicated or missing blocks.
type Decoder struct {
	k         int
	total     int
	equations []codedEquation
	seen      map[uint16]bool
}

// NewDecoder starts a fresh decode state for a transfer whose first
// observed block carries k source blocks and totalLength payload bytes.
func NewDecoder(k int, totalLength int) *Decoder {
	return &Decoder{
		k:     k,
		total: totalLength,
		seen:  make(map[uint16]bool),
	}
}

// AddBlock feeds one received data block into the decoder. It returns
// the reassembled payload and true once enough blocks have arrived to
// fully resolve all K source blocks.
func (d *Decoder) AddBlock(transferID uint32, block DataBlock) ([]byte, bool) {
	if d.seen[block.Seed] {
		return nil, false
	}
	d.seen[block.Seed] = true

	indices := GenerateIndices(transferID, d.k, block.Seed)
	set := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		set[idx] = struct{}{}
	}

	payload := make([]byte, len(block.Payload))
	copy(payload, block.Payload)

	d.equations = append(d.equations, codedEquation{indices: set, payload: payload})

	resolved, complete := peel(d.k, d.equations)
	if !complete {
		return nil, false
	}

	out := make([]byte, 0, d.k*BlockPayloadSize)
	for _, b := range resolved {
		out = append(out, b...)
	}
	if d.total > 0 && d.total <= len(out) {
		out = out[:d.total]
	}
	return out, true
}

// BlocksReceived reports how many distinct coded blocks have arrived so
// far, used to populate ACK "received" counters.
func (d *Decoder) BlocksReceived() int {
	return len(d.seen)
}
