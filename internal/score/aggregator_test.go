package score

import (
	"math"
	"math/rand/v2"
	"testing"
)

const tolerance = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func goodPeer(length int, age float64) PeerSignals {
	return PeerSignals{Length: length, AverageAge: age, RelevancyRatio: 1, Correct: 1}
}

func TestAggregate_ExactWeights(t *testing.T) {
	agg := NewAggregator(OracleProfile)
	in := Inputs{
		Peers: []PeerSignals{
			goodPeer(10, 100),
			{Length: 5, AverageAge: 300, RelevancyRatio: 0.5, Correct: 1},
		},
		SimilarityRaw: []float64{0, 3},
	}

	m, err := agg.Aggregate(in)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	// Peer 0: age (101/301), length 11/11, similarity 1/4, relevancy 1
	want0 := (1-101.0/301.0)*0.4 + 1*0.3 + (1-0.25)*0.1 + 1*0.2
	// Peer 1: age 301/301, length 6/11, similarity 4/4, relevancy 0.5
	want1 := 0*0.4 + (6.0/11.0)*0.3 + 0*0.1 + 0.5*0.2

	if !approx(m.PreFilteredScore[0], want0) {
		t.Errorf("Peer 0: expected %f, got %f", want0, m.PreFilteredScore[0])
	}
	if !approx(m.PreFilteredScore[1], want1) {
		t.Errorf("Peer 1: expected %f, got %f", want1, m.PreFilteredScore[1])
	}
	if !approx(m.Similarity[0], 0.25) || !approx(m.Similarity[1], 1) {
		t.Errorf("Unexpected similarity %v", m.Similarity)
	}
	if !approx(m.NormalizedScores[0]+m.NormalizedScores[1], 1) {
		t.Errorf("Expected normalized scores to sum to 1, got %v", m.NormalizedScores)
	}
}

func TestAggregate_NoOracleProfile(t *testing.T) {
	agg := NewAggregator(NoOracleProfile)
	in := Inputs{
		Peers:         []PeerSignals{{Length: 4, AverageAge: 0, RelevancyRatio: 1, Correct: 0}},
		SimilarityRaw: []float64{0},
	}

	m, err := agg.Aggregate(in)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	// Single peer: age_norm 1, length_norm 1, similarity_norm 1
	want := 0*0.2 + 1*0.3 + 0*0.3 + 1*0.2
	if !approx(m.PreFilteredScore[0], want) {
		t.Errorf("Expected %f, got %f", want, m.PreFilteredScore[0])
	}
	if m.FilteredScores[0] == 0 {
		t.Error("Expected no-oracle profile to ignore the spot check")
	}
}

func TestAggregate_DisqualificationRules(t *testing.T) {
	tests := []struct {
		name string
		peer PeerSignals
	}{
		{"format", PeerSignals{Length: 3, RelevancyRatio: 1, Correct: 1, Format: true}},
		{"fake", PeerSignals{Length: 3, RelevancyRatio: 1, Correct: 1, Fake: true}},
		{"failed spot check", PeerSignals{Length: 3, RelevancyRatio: 1, Correct: 0}},
		{"low relevancy", PeerSignals{Length: 3, RelevancyRatio: 0.49, Correct: 1}},
		{"empty", PeerSignals{Empty: true, Correct: 1, RelevancyRatio: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(OracleProfile)
			m, err := agg.Aggregate(Inputs{
				Peers:         []PeerSignals{tt.peer, goodPeer(3, 10)},
				SimilarityRaw: []float64{0, 0},
			})
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			if m.FilteredScores[0] != 0 || m.NormalizedScores[0] != 0 {
				t.Errorf("Expected peer disqualified, got filtered=%f", m.FilteredScores[0])
			}
			if m.PreFilteredScore[0] == 0 && !tt.peer.Empty {
				t.Error("Expected raw score kept for diagnostics")
			}
			if !approx(m.NormalizedScores[1], 1) {
				t.Errorf("Expected remaining peer to take all weight, got %f", m.NormalizedScores[1])
			}
		})
	}
}

func TestAggregate_DisqualificationHoldsForRandomInputs(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	agg := NewAggregator(OracleProfile)

	for round := 0; round < 200; round++ {
		n := 1 + r.IntN(8)
		in := Inputs{Peers: make([]PeerSignals, n), SimilarityRaw: make([]float64, n)}
		for i := range in.Peers {
			length := r.IntN(4)
			in.Peers[i] = PeerSignals{
				Empty:          length == 0,
				Length:         length,
				AverageAge:     r.Float64() * 1000,
				RelevancyRatio: r.Float64(),
				Format:         r.IntN(5) == 0,
				Fake:           r.IntN(5) == 0,
				Correct:        float64(r.IntN(2)),
			}
			in.SimilarityRaw[i] = float64(r.IntN(5))
		}

		m, err := agg.Aggregate(in)
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}

		sum := 0.0
		for i, p := range in.Peers {
			bad := p.Empty || p.Format || p.Fake || p.Correct == 0 || p.RelevancyRatio < 0.5
			if bad && m.FilteredScores[i] != 0 {
				t.Fatalf("Round %d peer %d: expected 0, got %f", round, i, m.FilteredScores[i])
			}
			sum += m.NormalizedScores[i]
		}
		if sum != 0 && !approx(sum, 1) {
			t.Fatalf("Round %d: normalized sum %f", round, sum)
		}
		if m.Len() != n {
			t.Fatalf("Round %d: expected %d entries, got %d", round, n, m.Len())
		}
	}
}

func TestAggregate_AllDisqualifiedPassesThroughZeros(t *testing.T) {
	agg := NewAggregator(OracleProfile)
	m, err := agg.Aggregate(Inputs{
		Peers:         []PeerSignals{{Empty: true}, {Length: 2, Fake: true, RelevancyRatio: 1, Correct: 1}},
		SimilarityRaw: []float64{0, 0},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	for i, v := range m.NormalizedScores {
		if v != 0 {
			t.Errorf("Peer %d: expected 0, got %f", i, v)
		}
	}
}

func TestAggregate_EmptyPeerSignals(t *testing.T) {
	agg := NewAggregator(OracleProfile)
	m, err := agg.Aggregate(Inputs{
		Peers:         []PeerSignals{{Empty: true}, goodPeer(10, 50), goodPeer(10, 50)},
		SimilarityRaw: []float64{0, 10, 10},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if m.Length[0] != 0 || m.RelevancyRatio[0] != 0 || m.FilteredScores[0] != 0 {
		t.Errorf("Unexpected empty peer signals: length=%f relevancy=%f filtered=%f", m.Length[0], m.RelevancyRatio[0], m.FilteredScores[0])
	}
	if m.AverageAge[0] != 0 {
		t.Errorf("Expected best age by default, got %f", m.AverageAge[0])
	}
	if m.Empty[0] != 1 {
		t.Error("Expected empty flag set")
	}
	// Empty peer does not move the similarity maximum
	if !approx(m.Similarity[1], 1) || !approx(m.Similarity[0], 1.0/11.0) {
		t.Errorf("Unexpected similarity %v", m.Similarity)
	}
}

func TestAggregate_EmptyAgeWorst(t *testing.T) {
	agg := NewAggregator(OracleProfile)
	agg.EmptyAge = EmptyAgeWorst

	m, err := agg.Aggregate(Inputs{
		Peers:         []PeerSignals{{Empty: true}, goodPeer(3, 40), goodPeer(3, 90)},
		SimilarityRaw: []float64{0, 0, 0},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if m.AverageAge[0] != 90 {
		t.Errorf("Expected empty peer at the oldest age 90, got %f", m.AverageAge[0])
	}
	if m.TimeContrib[0] != 0 {
		t.Errorf("Expected no freshness credit, got %f", m.TimeContrib[0])
	}
}

func TestAggregate_OracleOutageGrace(t *testing.T) {
	peers := []PeerSignals{
		{Length: 3, RelevancyRatio: 1, Correct: 0},
		{Length: 2, RelevancyRatio: 1, Correct: 0},
	}

	strict := NewAggregator(OracleProfile)
	m, _ := strict.Aggregate(Inputs{Peers: peers, SimilarityRaw: []float64{0, 0}})
	if m.FilteredScores[0] != 0 || m.FilteredScores[1] != 0 {
		t.Error("Expected strict mode to disqualify unverified peers")
	}

	lenient := NewAggregator(OracleProfile)
	lenient.OracleOutageGrace = true
	m, _ = lenient.Aggregate(Inputs{Peers: peers, SimilarityRaw: []float64{0, 0}})
	if m.FilteredScores[0] == 0 || m.FilteredScores[1] == 0 {
		t.Error("Expected grace when nobody could be verified")
	}

	peers[1].Correct = 1
	m, _ = lenient.Aggregate(Inputs{Peers: peers, SimilarityRaw: []float64{0, 0}})
	if m.FilteredScores[0] != 0 {
		t.Error("Expected no grace once any peer verified")
	}
}

func TestAggregate_LengthMismatch(t *testing.T) {
	agg := NewAggregator(OracleProfile)
	if _, err := agg.Aggregate(Inputs{Peers: make([]PeerSignals, 2), SimilarityRaw: []float64{0}}); err == nil {
		t.Error("Expected error for misaligned inputs")
	}
}

func TestAggregate_NoPeers(t *testing.T) {
	m, err := NewAggregator(OracleProfile).Aggregate(Inputs{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Expected empty metrics, got %d", m.Len())
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float64{1, 3})
	if !approx(got[0], 0.25) || !approx(got[1], 0.75) {
		t.Errorf("Unexpected normalization %v", got)
	}
	zeros := Normalize([]float64{0, 0, 0})
	for _, v := range zeros {
		if v != 0 {
			t.Errorf("Expected zeros unchanged, got %v", zeros)
		}
	}
}

func TestProfileByName(t *testing.T) {
	p, err := ProfileByName(" Oracle ")
	if err != nil || p.Name != "oracle" || !p.RequireSpotCheck {
		t.Errorf("Unexpected profile %+v (%v)", p, err)
	}
	if _, err := ProfileByName("llm"); err == nil {
		t.Error("Expected error for unknown profile")
	}
	if p.Formula() == "" {
		t.Error("Expected formula text")
	}
}

func TestParseEmptyAgePolicy(t *testing.T) {
	if p, err := ParseEmptyAgePolicy(""); err != nil || p != EmptyAgeBest {
		t.Errorf("Expected default best, got %q (%v)", p, err)
	}
	if _, err := ParseEmptyAgePolicy("median"); err == nil {
		t.Error("Expected error for unsupported policy")
	}
}
