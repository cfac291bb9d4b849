// Package classify implements the hot/cold access classifier (spec.md
// §4.6): a fixed three-state Hidden Markov Model smoothing an extent's
// observed access frequency into a Hot/Warm/Cold label, plus the
// lazy-migration policy recommendation that falls out of that label.
// Grounded on original_source/src/hmm_classifier.rs's HmmClassifier (no
// teacher Go analog — the teacher's cluster has no per-object tiering
// model), reimplemented without Viterbi decoding or state-history
// smoothing since spec.md §4.6 only specifies the single-step
// argmax-over-next-state classification, not sequence decoding.
package classify

import (
	"math"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/metadata"
)

// observation is the access-frequency bucket an extent's recent activity
// falls into (spec.md §4.6).
type observation int

const (
	obsVeryHigh observation = iota // >50 ops/day
	obsHigh                        // 10-50 ops/day
	obsMedium                      // 1-10 ops/day
	obsLow                         // <1 op/day
)

func bucketFrequency(opsPerDay float64) observation {
	switch {
	case opsPerDay > 50:
		return obsVeryHigh
	case opsPerDay > 10:
		return obsHigh
	case opsPerDay > 1:
		return obsMedium
	default:
		return obsLow
	}
}

func stateIndex(c metadata.Classification) int {
	switch c {
	case metadata.ClassHot:
		return 0
	case metadata.ClassWarm:
		return 1
	default:
		return 2
	}
}

func indexState(i int) metadata.Classification {
	switch i {
	case 0:
		return metadata.ClassHot
	case 1:
		return metadata.ClassWarm
	default:
		return metadata.ClassCold
	}
}

// transitionLogProbs[from][to], states Hot=0, Warm=1, Cold=2. Favors
// self-transition (spec.md §4.6: "self-transition ≈ 0.5-0.7").
var transitionLogProbs = [3][3]float64{
	{math.Log(0.7), math.Log(0.2), math.Log(0.1)},
	{math.Log(0.25), math.Log(0.5), math.Log(0.25)},
	{math.Log(0.1), math.Log(0.2), math.Log(0.7)},
}

// emissionLogProbs[state][observation], observations VeryHigh=0 ... Low=3.
var emissionLogProbs = [3][4]float64{
	{math.Log(0.6), math.Log(0.3), math.Log(0.07), math.Log(0.03)},
	{math.Log(0.15), math.Log(0.5), math.Log(0.3), math.Log(0.05)},
	{math.Log(0.02), math.Log(0.05), math.Log(0.3), math.Log(0.63)},
}

var ln2 = math.Log(2)

func recencyBonus(recency float64, nextState int) float64 {
	switch {
	case recency < 1 && nextState == 0:
		return ln2
	case recency < 24 && nextState <= 1:
		return ln2 / 2
	default:
		return 0
	}
}

// Classify observes freqPerDay (reads+writes per day of age) and
// recencyHours (hours since the last access) against currentState and
// returns the next state, per spec.md §4.6's exact argmax rule:
// log P(observation|state') + log P(state'|current) + recency_bonus(state').
// Re-initialized on every process start (metadata.AccessStats's history is
// not persisted across restarts, spec.md §3); this function is pure and
// stateless, so "re-initializing" the classifier is simply calling it
// again with freshly loaded counters.
func Classify(freqPerDay float64, recencyHours float64, currentState metadata.Classification) metadata.Classification {
	obs := bucketFrequency(freqPerDay)
	from := stateIndex(currentState)

	bestState := from
	bestScore := math.Inf(-1)
	for next := 0; next < 3; next++ {
		score := emissionLogProbs[next][obs] + transitionLogProbs[from][next] + recencyBonus(recencyHours, next)
		if score > bestScore {
			bestScore = score
			bestState = next
		}
	}
	return indexState(bestState)
}

// RecommendedPolicy maps a classification to its target redundancy policy
// (spec.md §4.6): Hot and Warm extents favor replication's low
// reconstruction cost, Cold extents favor erasure coding's lower storage
// overhead.
func RecommendedPolicy(c metadata.Classification) codec.Policy {
	if c == metadata.ClassCold {
		return codec.ErasureCoding(4, 2)
	}
	return codec.Replication(3)
}
