// Package codec implements the redundancy codec: pure encode/decode/reencode
// of byte buffers under a Replication or ErasureCoding policy. No I/O, no
// locks — grounded on the teacher's ec/ec.go (which keeps exactly this
// separation between pure EC math and the I/O-heavy placement jogger).
package codec

import "fmt"

// Kind identifies which strategy a Policy uses.
type Kind int

const (
	KindReplication Kind = iota
	KindErasureCoding
)

// Policy is the sum type from spec.md §3: either Replication{N} or
// ErasureCoding{K,M}. The zero value is invalid; use Replication/ErasureCoding
// constructors.
type Policy struct {
	Kind Kind
	N    int // Replication copy count
	K    int // ErasureCoding data shard count
	M    int // ErasureCoding parity shard count
}

func Replication(n int) Policy {
	return Policy{Kind: KindReplication, N: n}
}

func ErasureCoding(k, m int) Policy {
	return Policy{Kind: KindErasureCoding, K: k, M: m}
}

// Validate enforces the structural constraints from spec.md §3: N>=1,
// k>=1, m>=1, k+m<=256 (GF(2^8)).
func (p Policy) Validate() error {
	switch p.Kind {
	case KindReplication:
		if p.N < 1 {
			return fmt.Errorf("codec: replication requires N>=1, got %d", p.N)
		}
	case KindErasureCoding:
		if p.K < 1 || p.M < 1 {
			return fmt.Errorf("codec: erasure coding requires k>=1 and m>=1, got k=%d m=%d", p.K, p.M)
		}
		if p.K+p.M > 256 {
			return fmt.Errorf("codec: erasure coding k+m must be <=256 (GF(2^8)), got %d", p.K+p.M)
		}
	default:
		return fmt.Errorf("codec: invalid policy kind %d", p.Kind)
	}
	return nil
}

// FragmentCount is the nominal number of fragments a committed extent under
// this policy carries.
func (p Policy) FragmentCount() int {
	if p.Kind == KindReplication {
		return p.N
	}
	return p.K + p.M
}

// MinFragmentsForRead is the minimum present-fragment count decode needs.
func (p Policy) MinFragmentsForRead() int {
	if p.Kind == KindReplication {
		return 1
	}
	return p.K
}

func (p Policy) Equal(other Policy) bool {
	return p.Kind == other.Kind && p.N == other.N && p.K == other.K && p.M == other.M
}

func (p Policy) String() string {
	if p.Kind == KindReplication {
		return fmt.Sprintf("Replication{%d}", p.N)
	}
	return fmt.Sprintf("ErasureCoding{%d,%d}", p.K, p.M)
}
