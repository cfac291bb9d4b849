package codec

// Encode splits/duplicates data into the policy's nominal fragment count.
// Pure function: no I/O, no locks (spec.md §4.1).
func Encode(data []byte, p Policy) ([][]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Kind == KindReplication {
		return encodeReplication(data, p), nil
	}
	return encodeErasure(data, p)
}

// Decode reconstructs the original logical data of the given size from
// fragments (nil entries mean "missing", identified positionally). size is
// authoritative for truncation (spec.md §4.1: "the extent record stores the
// original unpadded size").
func Decode(fragments [][]byte, p Policy, size int64) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var (
		out []byte
		err error
	)
	if p.Kind == KindReplication {
		out, err = decodeReplication(fragments, p)
	} else {
		out, err = decodeErasure(fragments, p, size)
	}
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > size {
		out = out[:size]
	}
	return out, nil
}

// Reencode = Encode(Decode(fragments, old), new). Used by rebundle_extent
// for online redundancy-policy transitions.
func Reencode(fragments [][]byte, old, newPolicy Policy, size int64) ([][]byte, error) {
	data, err := Decode(fragments, old, size)
	if err != nil {
		return nil, err
	}
	return Encode(data, newPolicy)
}
