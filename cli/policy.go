package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redfs/redfs/codec"
)

// parsePolicy accepts the two forms spec.md §6 names for --policy:
// "replication:N" and "erasure:K+M".
func parsePolicy(s string) (codec.Policy, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return codec.Policy{}, fmt.Errorf("policy %q: expected replication:N or erasure:K+M", s)
	}

	switch kind {
	case "replication":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return codec.Policy{}, fmt.Errorf("policy %q: %w", s, err)
		}
		p := codec.Replication(n)
		return p, p.Validate()
	case "erasure":
		k, m, ok := strings.Cut(rest, "+")
		if !ok {
			return codec.Policy{}, fmt.Errorf("policy %q: expected erasure:K+M", s)
		}
		ki, err := strconv.Atoi(k)
		if err != nil {
			return codec.Policy{}, fmt.Errorf("policy %q: %w", s, err)
		}
		mi, err := strconv.Atoi(m)
		if err != nil {
			return codec.Policy{}, fmt.Errorf("policy %q: %w", s, err)
		}
		p := codec.ErasureCoding(ki, mi)
		return p, p.Validate()
	default:
		return codec.Policy{}, fmt.Errorf("policy %q: unknown kind %q", s, kind)
	}
}
