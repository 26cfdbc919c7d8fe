// Package score combines per-peer signals into normalized round scores.
package score

import (
	"fmt"

	"github.com/ppiankov/scrapenet/internal/dedup"
	"github.com/ppiankov/scrapenet/internal/model"
)

// DefaultMinRelevancy is the tag-match ratio below which a peer is disqualified
const DefaultMinRelevancy = 0.5

// EmptyAgePolicy decides the average age assigned to peers that returned nothing
type EmptyAgePolicy string

const (
	// EmptyAgeBest assigns age 0, the best possible value
	EmptyAgeBest EmptyAgePolicy = "best"
	// EmptyAgeWorst assigns the oldest average age seen in the round
	EmptyAgeWorst EmptyAgePolicy = "worst"
)

// ParseEmptyAgePolicy validates a policy name
func ParseEmptyAgePolicy(s string) (EmptyAgePolicy, error) {
	switch EmptyAgePolicy(s) {
	case "", EmptyAgeBest:
		return EmptyAgeBest, nil
	case EmptyAgeWorst:
		return EmptyAgeWorst, nil
	}
	return "", fmt.Errorf("unknown empty age policy %q", s)
}

// PeerSignals are the per-peer inputs gathered while scanning one round
type PeerSignals struct {
	Empty          bool
	Length         int
	AverageAge     float64 // Seconds
	RelevancyRatio float64
	Format         bool
	Fake           bool
	Correct        float64 // Spot-check outcome, 0 or 1
}

// Inputs is everything the aggregator needs for one round, in peer order
type Inputs struct {
	Peers         []PeerSignals
	SimilarityRaw []float64
}

// Aggregator turns round signals into scores using a weight profile
type Aggregator struct {
	Profile           Profile
	MinRelevancy      float64
	EmptyAge          EmptyAgePolicy
	OracleOutageGrace bool // Skip the correctness rule when no peer could be verified
}

// NewAggregator creates an aggregator with default policies
func NewAggregator(p Profile) *Aggregator {
	return &Aggregator{
		Profile:      p,
		MinRelevancy: DefaultMinRelevancy,
		EmptyAge:     EmptyAgeBest,
	}
}

// Aggregate computes every intermediate array and the final normalized scores.
// Metric arrays always have one entry per peer.
func (a *Aggregator) Aggregate(in Inputs) (model.ScoringMetrics, error) {
	n := len(in.Peers)
	if len(in.SimilarityRaw) != n {
		return model.ScoringMetrics{}, fmt.Errorf("aggregate: %d peers but %d similarity values", n, len(in.SimilarityRaw))
	}

	m := model.NewScoringMetrics(n)
	if n == 0 {
		return m, nil
	}

	for i, p := range in.Peers {
		m.Correct[i] = p.Correct
		m.SimilarityRaw[i] = in.SimilarityRaw[i]
		m.Length[i] = float64(p.Length)
		m.RelevancyRatio[i] = p.RelevancyRatio
		m.Format[i] = flag(p.Format)
		m.Fake[i] = flag(p.Fake)
		m.Empty[i] = flag(p.Empty)
	}
	m.AverageAge = a.averageAges(in.Peers)
	m.Similarity = dedup.Normalize(m.SimilarityRaw)

	// Weighted combination
	ageNorm := smoothNormalize(m.AverageAge)
	lengthNorm := smoothNormalize(m.Length)
	for i := 0; i < n; i++ {
		m.TimeContrib[i] = (1 - ageNorm[i]) * a.Profile.Age
		m.LengthContrib[i] = lengthNorm[i] * a.Profile.Length
		m.SimilarityContrib[i] = (1 - m.Similarity[i]) * a.Profile.Similarity
		m.RelevancyContrib[i] = m.RelevancyRatio[i] * a.Profile.Relevancy
		m.PreFilteredScore[i] = m.TimeContrib[i] + m.LengthContrib[i] + m.SimilarityContrib[i] + m.RelevancyContrib[i]
	}

	// Disqualification happens after combination so the raw score stays visible
	requireCorrect := a.Profile.RequireSpotCheck && !a.outageGraceApplies(in.Peers)
	for i, p := range in.Peers {
		m.FilteredScores[i] = m.PreFilteredScore[i]
		if a.disqualified(p, requireCorrect) {
			m.FilteredScores[i] = 0
		}
	}

	m.NormalizedScores = Normalize(m.FilteredScores)
	return m, nil
}

// disqualified applies the hard rules
func (a *Aggregator) disqualified(p PeerSignals, requireCorrect bool) bool {
	switch {
	case p.Empty, p.Length == 0:
		return true
	case p.Format, p.Fake:
		return true
	case requireCorrect && p.Correct < 1:
		return true
	case p.RelevancyRatio < a.MinRelevancy:
		return true
	}
	return false
}

// outageGraceApplies reports whether the oracle verified nobody although some
// peers had items, which points at an oracle outage rather than cheating
func (a *Aggregator) outageGraceApplies(peers []PeerSignals) bool {
	if !a.OracleOutageGrace {
		return false
	}
	sampled := false
	for _, p := range peers {
		if p.Correct >= 1 {
			return false
		}
		if !p.Empty {
			sampled = true
		}
	}
	return sampled
}

// averageAges applies the empty-batch policy to the per-peer ages
func (a *Aggregator) averageAges(peers []PeerSignals) []float64 {
	ages := make([]float64, len(peers))
	oldest := 0.0
	for i, p := range peers {
		if p.Empty {
			continue
		}
		ages[i] = p.AverageAge
		if p.AverageAge > oldest {
			oldest = p.AverageAge
		}
	}
	if a.EmptyAge == EmptyAgeWorst {
		for i, p := range peers {
			if p.Empty {
				ages[i] = oldest
			}
		}
	}
	return ages
}

// smoothNormalize maps x to (x+1)/(max+1)
func smoothNormalize(xs []float64) []float64 {
	maxX := 0.0
	for _, x := range xs {
		if x > maxX {
			maxX = x
		}
	}
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = (x + 1) / (maxX + 1)
	}
	return out
}

// Normalize divides each score by the total. An all-zero vector is returned
// unchanged instead of dividing by zero.
func Normalize(scores []float64) []float64 {
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	out := make([]float64, len(scores))
	if sum == 0 {
		copy(out, scores)
		return out
	}
	for i, s := range scores {
		out[i] = s / sum
	}
	return out
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
