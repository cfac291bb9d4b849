package storage

import (
	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/config"
)

// RecommendWritePolicy is spec.md §4.4's "choice of policy at write time":
// a recommendation only, factored out of write_file itself so it is
// independently testable, per the expansion's supplement from
// original_source/src/policy_engine.rs (scoped down from that file's full
// propose/simulate/execute/audit-trail engine to this one pure rule — no
// component in this system proposes or simulates policy changes outside
// of an explicit change_file_redundancy call, so the rest of that engine
// has nothing to wire into).
func RecommendWritePolicy(cfg *config.Config, sizeBytes int64) codec.Policy {
	if sizeBytes < cfg.ReplicationThreshold {
		return codec.Replication(3)
	}
	return codec.ErasureCoding(4, 2)
}
