package codec

import "fmt"

// ErrInsufficientFragments is returned by Decode when fewer than
// MinFragmentsForRead fragments are present.
type ErrInsufficientFragments struct {
	Present, Need int
}

func (e *ErrInsufficientFragments) Error() string {
	return fmt.Sprintf("codec: insufficient fragments: present %d, need %d", e.Present, e.Need)
}

func encodeReplication(data []byte, p Policy) [][]byte {
	frags := make([][]byte, p.N)
	for i := range frags {
		cp := make([]byte, len(data))
		copy(cp, data)
		frags[i] = cp
	}
	return frags
}

// decodeReplication returns the first present fragment verbatim.
func decodeReplication(fragments [][]byte, p Policy) ([]byte, error) {
	present := 0
	for _, f := range fragments {
		if f != nil {
			present++
		}
	}
	if present < 1 {
		return nil, &ErrInsufficientFragments{Present: present, Need: 1}
	}
	for _, f := range fragments {
		if f != nil {
			out := make([]byte, len(f))
			copy(out, f)
			return out, nil
		}
	}
	// unreachable given the present check above
	return nil, &ErrInsufficientFragments{Present: 0, Need: 1}
}
