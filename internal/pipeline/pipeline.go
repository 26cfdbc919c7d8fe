package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/scrapenet/internal/dedup"
	"github.com/ppiankov/scrapenet/internal/model"
	"github.com/ppiankov/scrapenet/internal/oracle"
	"github.com/ppiankov/scrapenet/internal/score"
	"github.com/ppiankov/scrapenet/internal/spotcheck"
	"github.com/ppiankov/scrapenet/internal/validate"
)

// ErrMisaligned is returned when a round has a different number of peers and responses
var ErrMisaligned = errors.New("peers and responses are not aligned")

// Round is the input of one scoring round
type Round struct {
	ID        string // Generated when empty
	Platform  model.Platform
	SearchKey string
	UIDs      []int
	Responses []json.RawMessage // Order-aligned with UIDs; nil for peers that did not answer
	Block     uint64
}

// stage holds the per-platform components
type stage struct {
	validator  *validate.Validator
	verifier   *spotcheck.Verifier // nil when the profile does not spot check
	aggregator *score.Aggregator
}

// Pipeline scores rounds: validate, count duplicates, spot check, aggregate
type Pipeline struct {
	stages map[model.Platform]*stage
	hotkey string
	now    func() time.Time
}

// NewPipeline builds a pipeline for every platform that has a profile configured.
// Profiles that require spot checks need an oracle for their platform.
func NewPipeline(cfg *model.Config, oracles map[model.Platform]oracle.Oracle) (*Pipeline, error) {
	emptyAge, err := score.ParseEmptyAgePolicy(cfg.Scoring.EmptyAge)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		stages: make(map[model.Platform]*stage),
		hotkey: cfg.Hotkey,
		now:    time.Now,
	}

	for _, platform := range model.Platforms() {
		profileName, ok := cfg.Scoring.Profiles[string(platform)]
		if !ok {
			continue
		}
		profile, err := score.ProfileByName(profileName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", platform, err)
		}

		rules, err := validate.RulesFor(platform)
		if err != nil {
			return nil, err
		}

		agg := score.NewAggregator(profile)
		agg.EmptyAge = emptyAge
		agg.OracleOutageGrace = cfg.Scoring.OracleOutageGrace
		if cfg.Scoring.MinRelevancy > 0 {
			agg.MinRelevancy = cfg.Scoring.MinRelevancy
		}

		st := &stage{
			validator:  validate.NewValidator(rules),
			aggregator: agg,
		}

		if profile.RequireSpotCheck {
			o, ok := oracles[platform]
			if !ok || o == nil {
				return nil, fmt.Errorf("%s: profile %q requires an oracle", platform, profile.Name)
			}
			st.verifier, err = spotcheck.NewVerifier(platform, o, spotcheck.Options{
				ChunkSize:     cfg.SpotCheck.ChunkSize,
				MaxAttempts:   cfg.SpotCheck.MaxAttempts,
				LookupTimeout: cfg.SpotCheck.LookupTimeout,
			})
			if err != nil {
				return nil, err
			}
		}

		p.stages[platform] = st
	}

	return p, nil
}

// SetClock replaces the clock used for item ages and report timestamps
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
	for _, st := range p.stages {
		st.validator.Now = now
	}
}

// Verifier exposes the spot-check verifier of a platform, nil if it has none
func (p *Pipeline) Verifier(platform model.Platform) *spotcheck.Verifier {
	if st, ok := p.stages[platform]; ok {
		return st.verifier
	}
	return nil
}

// ScoreRound runs one round end to end. Bad peer content never produces an
// error; only misaligned input or an unconfigured platform does.
func (p *Pipeline) ScoreRound(ctx context.Context, r Round) (*model.RoundReport, error) {
	if len(r.UIDs) != len(r.Responses) {
		return nil, fmt.Errorf("%w: %d uids, %d responses", ErrMisaligned, len(r.UIDs), len(r.Responses))
	}
	st, ok := p.stages[r.Platform]
	if !ok {
		return nil, fmt.Errorf("no scoring stage for platform %q", r.Platform)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	n := len(r.Responses)

	// 1. Validate every response and collect the signals of the same scan
	results := make([]validate.Result, n)
	for i, raw := range r.Responses {
		results[i] = st.validator.Validate(raw, r.SearchKey)
	}

	// 2. Cross-peer duplication, one sequential pass
	hist := dedup.NewHistogram()
	for i, res := range results {
		hist.Add(i, res.IDs)
	}

	// 3. Spot check
	batches := make([][]model.FetchedItem, n)
	for i, res := range results {
		batches[i] = res.Items
	}
	var verdicts []spotcheck.Verdict
	if st.verifier != nil {
		verdicts = st.verifier.Check(ctx, batches)
	}

	// 4. Aggregate
	in := score.Inputs{
		Peers:         make([]score.PeerSignals, n),
		SimilarityRaw: hist.Similarities(n),
	}
	for i, res := range results {
		in.Peers[i] = score.PeerSignals{
			Empty:          res.Empty(),
			Length:         res.Length,
			AverageAge:     res.AverageAge,
			RelevancyRatio: res.RelevancyRatio,
			Format:         res.Format,
			Fake:           res.Fake,
		}
		if verdicts != nil {
			in.Peers[i].Correct = verdicts[i].Correct()
		}
	}
	metrics, err := st.aggregator.Aggregate(in)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	report := &model.RoundReport{
		RoundID:         r.ID,
		Platform:        r.Platform,
		Profile:         st.aggregator.Profile.Name,
		Formula:         st.aggregator.Profile.Formula(),
		SearchKey:       r.SearchKey,
		UIDs:            append([]int(nil), r.UIDs...),
		ValidatorHotkey: p.hotkey,
		Block:           r.Block,
		CreatedAt:       p.now().UTC(),
		Metrics:         metrics,
		Faults:          faultStrings(results),
	}
	for _, v := range verdicts {
		report.SpotChecks = append(report.SpotChecks, v.Record())
	}

	top, topScore := report.TopPeer()
	slog.Info("pipeline: round scored",
		"round", r.ID, "platform", r.Platform, "tag", r.SearchKey, "peers", n,
		"qualified", countPositive(metrics.FilteredScores), "top_peer", top, "top_score", topScore)

	return report, nil
}

func faultStrings(results []validate.Result) [][]string {
	var out [][]string
	hasFaults := false
	for _, res := range results {
		var fs []string
		for _, f := range res.Faults {
			fs = append(fs, f.String())
		}
		if len(fs) > 0 {
			hasFaults = true
		}
		out = append(out, fs)
	}
	if !hasFaults {
		return nil
	}
	return out
}

func countPositive(xs []float64) int {
	c := 0
	for _, x := range xs {
		if x > 0 {
			c++
		}
	}
	return c
}
