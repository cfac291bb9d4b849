package codec

import (
	"github.com/klauspost/reedsolomon"
)

// shardSize computes ceil(size/k), matching spec.md §4.1: "shard size is
// computed before padding".
func shardSize(size int64, k int) int64 {
	return (size + int64(k) - 1) / int64(k)
}

func encodeErasure(data []byte, p Policy) ([][]byte, error) {
	size := int64(len(data))
	s := shardSize(size, p.K)

	enc, err := reedsolomon.New(p.K, p.M)
	if err != nil {
		return nil, err
	}

	shards := make([][]byte, p.K+p.M)
	for i := 0; i < p.K; i++ {
		shard := make([]byte, s)
		start := int64(i) * s
		if start < size {
			end := start + s
			if end > size {
				end = size
			}
			copy(shard, data[start:end])
		}
		shards[i] = shard
	}
	for i := p.K; i < p.K+p.M; i++ {
		shards[i] = make([]byte, s)
	}

	if err := enc.Encode(shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// decodeErasure reconstructs any missing shards (fragments[i] == nil means
// missing, positionally identifying the shard slot) and reassembles the
// original size-truncated buffer.
func decodeErasure(fragments [][]byte, p Policy, size int64) ([]byte, error) {
	total := p.K + p.M
	if len(fragments) != total {
		padded := make([][]byte, total)
		copy(padded, fragments)
		fragments = padded
	}

	present := 0
	for _, f := range fragments {
		if f != nil {
			present++
		}
	}
	if present < p.K {
		return nil, &ErrInsufficientFragments{Present: present, Need: p.K}
	}

	enc, err := reedsolomon.New(p.K, p.M)
	if err != nil {
		return nil, err
	}

	shards := make([][]byte, total)
	copy(shards, fragments)
	if err := enc.Reconstruct(shards); err != nil {
		return nil, err
	}

	out := make([]byte, 0, size)
	for i := 0; i < p.K; i++ {
		out = append(out, shards[i]...)
	}
	if int64(len(out)) > size {
		out = out[:size]
	}
	return out, nil
}
