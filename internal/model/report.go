package model

import "time"

// ScoringMetrics holds every intermediate per-peer array of one scoring round.
// All slices have the same length and follow the order of the queried peers.
// Field names are consumed by downstream dashboards and must stay stable.
type ScoringMetrics struct {
	Correct           []float64 `json:"correct"`            // Spot check outcome, 0 or 1
	Similarity        []float64 `json:"similarity"`         // (raw+1)/(max+1), 1 = most duplicated
	SimilarityRaw     []float64 `json:"similarity_raw"`     // Σ(count(id)-1) over the peer's items
	AverageAge        []float64 `json:"average_age"`        // Mean item age in seconds
	TimeContrib       []float64 `json:"time_contrib"`       // Weighted age contribution
	Length            []float64 `json:"length"`             // Item count
	LengthContrib     []float64 `json:"length_contrib"`     // Weighted length contribution
	SimilarityContrib []float64 `json:"similarity_contrib"` // Weighted uniqueness contribution
	RelevancyRatio    []float64 `json:"relevancy_ratio"`    // Fraction of items mentioning the tag
	RelevancyContrib  []float64 `json:"relevancy_contrib"`  // Weighted relevancy contribution
	Format            []float64 `json:"format"`             // 1 if any structural fault
	Fake              []float64 `json:"fake"`               // 1 if any authenticity fault
	Empty             []float64 `json:"empty"`              // 1 if the peer returned nothing
	PreFilteredScore  []float64 `json:"pre_filtered_score"` // Weighted combination before disqualification
	FilteredScores    []float64 `json:"filtered_scores"`    // After disqualification
	NormalizedScores  []float64 `json:"normalized_scores"`  // filtered / Σ filtered
}

// NewScoringMetrics allocates zeroed arrays for n peers
func NewScoringMetrics(n int) ScoringMetrics {
	mk := func() []float64 { return make([]float64, n) }
	return ScoringMetrics{
		Correct:           mk(),
		Similarity:        mk(),
		SimilarityRaw:     mk(),
		AverageAge:        mk(),
		TimeContrib:       mk(),
		Length:            mk(),
		LengthContrib:     mk(),
		SimilarityContrib: mk(),
		RelevancyRatio:    mk(),
		RelevancyContrib:  mk(),
		Format:            mk(),
		Fake:              mk(),
		Empty:             mk(),
		PreFilteredScore:  mk(),
		FilteredScores:    mk(),
		NormalizedScores:  mk(),
	}
}

// Len returns the number of peers covered by the metrics
func (m ScoringMetrics) Len() int {
	return len(m.NormalizedScores)
}

// SpotCheck records the oracle verification of one peer's sampled item
type SpotCheck struct {
	Peer     int    `json:"peer"`               // Index into the round's peer list
	ItemID   string `json:"item_id,omitempty"`  // Sampled item id
	Key      string `json:"key,omitempty"`      // Key sent to the oracle (id or url)
	Resolved bool   `json:"resolved"`           // Oracle returned the item
	Match    bool   `json:"match"`              // All compared fields agreed
	Reason   string `json:"reason,omitempty"`   // First mismatch or why the sample was not checked
}

// RoundReport is the structured diagnostic record of one scoring round
type RoundReport struct {
	RoundID         string         `json:"round_id"`
	Platform        Platform       `json:"platform"`
	Profile         string         `json:"profile"`
	Formula         string         `json:"formula"`
	SearchKey       string         `json:"search_key"`
	UIDs            []int          `json:"uid"`
	ValidatorHotkey string         `json:"validator_hotkey,omitempty"`
	Block           uint64         `json:"block"`
	CreatedAt       time.Time      `json:"created_at"`
	Metrics         ScoringMetrics `json:"metrics"`
	SpotChecks      []SpotCheck    `json:"spot_checks,omitempty"`
	Faults          [][]string     `json:"faults,omitempty"` // Per peer, human-readable
}

// TopPeer returns the index and normalized score of the best scoring peer, or -1
func (r *RoundReport) TopPeer() (int, float64) {
	best, bestScore := -1, 0.0
	for i, s := range r.Metrics.NormalizedScores {
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}
