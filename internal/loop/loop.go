// Package loop runs the validator cycle: sync the metagraph, query a sample of
// peers, score the round, blend trust and periodically commit weights.
package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ppiankov/scrapenet/internal/model"
	"github.com/ppiankov/scrapenet/internal/network"
	"github.com/ppiankov/scrapenet/internal/pipeline"
	"github.com/ppiankov/scrapenet/internal/sink"
	"github.com/ppiankov/scrapenet/internal/trust"
)

// State names the phase of the cycle
type State string

const (
	StateSyncMetagraph State = "SYNC_METAGRAPH"
	StateSelectPeers   State = "SELECT_PEERS"
	StateQuery         State = "QUERY"
	StateScore         State = "SCORE"
	StateBlendTrust    State = "BLEND_TRUST"
	StateCommitWeights State = "COMMIT_WEIGHTS"
	StateSleep         State = "SLEEP"
)

// ErrNoPeers is returned by a step when no peer is reachable
var ErrNoPeers = errors.New("no reachable peers")

// Querier asks peers for their batches
type Querier interface {
	Query(ctx context.Context, axons []model.Neuron, req network.Request, timeout time.Duration) []json.RawMessage
}

// Scorer scores one round
type Scorer interface {
	ScoreRound(ctx context.Context, r pipeline.Round) (*model.RoundReport, error)
}

// Status is a read-only view of the loop for the status API
type Status struct {
	State      State              `json:"state"`
	Step       int                `json:"step"`
	Block      uint64             `json:"block"`
	LastCommit uint64             `json:"last_commit_block"`
	Peers      int                `json:"peers"`
	Reachable  int                `json:"reachable"`
	Trust      []float64          `json:"trust"`
	LastRound  *model.RoundReport `json:"last_round,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Loop owns the trust vector; only one step mutates it at a time
type Loop struct {
	cfg      *model.Config
	ledger   network.Ledger
	querier  Querier
	scorer   Scorer
	store    trust.Store
	sinks    sink.Sink // Optional
	keywords []string

	Rand  *rand.Rand
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu         sync.RWMutex
	state      State
	step       int
	metagraph  *model.Metagraph
	trust      trust.Vector
	block      uint64
	lastCommit uint64
	lastReset  uint64
	lastRound  *model.RoundReport
	lastErr    error
}

// New creates a loop. sinks may be nil.
func New(cfg *model.Config, ledger network.Ledger, querier Querier, scorer Scorer, store trust.Store, sinks sink.Sink, keywords []string) (*Loop, error) {
	if len(keywords) == 0 {
		return nil, fmt.Errorf("at least one search keyword is required")
	}
	if len(cfg.Loop.Platforms) == 0 {
		return nil, fmt.Errorf("at least one platform is required")
	}
	for _, p := range cfg.Loop.Platforms {
		if !model.Platform(p).Valid() {
			return nil, fmt.Errorf("unknown platform %q", p)
		}
	}
	return &Loop{
		cfg:      cfg,
		ledger:   ledger,
		querier:  querier,
		scorer:   scorer,
		store:    store,
		sinks:    sinks,
		keywords: keywords,
		Now:      time.Now,
		Sleep:    sleepContext,
		state:    StateSleep,
	}, nil
}

// Run initializes trust and steps until ctx is cancelled. Step failures are
// logged and the loop carries on.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.init(ctx); err != nil {
		return err
	}
	slog.Info("loop: started", "peers", l.metagraph.Size(), "block", l.block)

	for {
		if err := l.Step(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("loop: step failed", "step", l.step-1, "state", l.State(), "error", err)
		}

		l.setState(StateSleep)
		if err := l.Sleep(ctx, l.cfg.Loop.Sleep); err != nil {
			break
		}
	}
	slog.Info("loop: stopped", "step", l.step)
	return nil
}

// init syncs the metagraph once and loads the persisted trust vector,
// clearing peers that have no address
func (l *Loop) init(ctx context.Context) error {
	if err := l.syncMetagraph(ctx); err != nil {
		return fmt.Errorf("initial metagraph sync: %w", err)
	}
	v, err := trust.LoadOrNew(ctx, l.store, l.metagraph.Size(), l.cfg.Trust.Initial)
	if err != nil {
		return fmt.Errorf("load trust vector: %w", err)
	}
	l.mu.Lock()
	l.trust = v.Resize(l.metagraph.Size(), l.cfg.Trust.Initial)
	l.trust.MaskUnreachable(l.reachable)
	l.lastReset = l.block
	l.mu.Unlock()
	return nil
}

// Step runs one full cycle except the sleep
func (l *Loop) Step(ctx context.Context) (err error) {
	l.mu.Lock()
	step := l.step
	l.step++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.lastErr = err
		l.mu.Unlock()
	}()

	if l.trust == nil {
		if err := l.init(ctx); err != nil {
			return err
		}
	} else if l.cfg.Loop.SyncEvery <= 1 || step%l.cfg.Loop.SyncEvery == 0 {
		if err := l.syncMetagraph(ctx); err != nil {
			return err
		}
	}

	l.setState(StateSelectPeers)
	platform := model.Platform(l.cfg.Loop.Platforms[step%len(l.cfg.Loop.Platforms)])
	uids := l.samplePeers()
	if len(uids) == 0 {
		return ErrNoPeers
	}
	tag := l.keywords[l.intN(len(l.keywords))]

	l.setState(StateQuery)
	axons := make([]model.Neuron, len(uids))
	for i, uid := range uids {
		axons[i], _ = l.metagraph.Neuron(uid)
	}
	responses := l.querier.Query(ctx, axons, network.Request{
		Platform:  platform,
		SearchKey: tag,
		Version:   l.cfg.Version,
	}, l.cfg.Query.Timeout)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	block, err := l.ledger.Block(ctx)
	if err != nil {
		return fmt.Errorf("read block: %w", err)
	}

	l.setState(StateScore)
	report, err := l.scorer.ScoreRound(ctx, pipeline.Round{
		Platform:  platform,
		SearchKey: tag,
		UIDs:      uids,
		Responses: responses,
		Block:     block,
	})
	if err != nil {
		return fmt.Errorf("score round: %w", err)
	}

	l.setState(StateBlendTrust)
	l.mu.Lock()
	l.block = block
	l.lastRound = report
	blendErr := l.trust.Blend(uids, report.Metrics.NormalizedScores, l.alpha(platform))
	l.mu.Unlock()
	if blendErr != nil {
		return fmt.Errorf("blend trust: %w", blendErr)
	}

	if l.sinks != nil {
		if err := l.sinks.Store(ctx, report, responses); err != nil {
			slog.Warn("loop: diagnostics not fully stored", "round", report.RoundID, "error", err)
		}
	}

	if block > l.lastCommit && block-l.lastCommit > l.cfg.Loop.CommitEveryBlocks {
		l.setState(StateCommitWeights)
		if err := l.commit(ctx, block); err != nil {
			slog.Error("loop: weight commit failed", "block", block, "error", err)
		}
	}

	if reset := l.cfg.Loop.ResetUnreachableBlocks; reset > 0 && l.lastReset+reset < block {
		l.mu.Lock()
		cleared := l.trust.MaskUnreachable(l.reachable)
		l.lastReset = block
		l.mu.Unlock()
		slog.Info("loop: cleared trust of unreachable peers", "block", block, "cleared", cleared)
	}

	l.mu.RLock()
	snapshot := l.trust.Clone()
	l.mu.RUnlock()
	if err := l.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save trust vector: %w", err)
	}

	slog.Info("loop: round complete", "step", step, "platform", platform, "tag", tag, "peers", len(uids), "block", block)
	return nil
}

func (l *Loop) syncMetagraph(ctx context.Context) error {
	l.setState(StateSyncMetagraph)
	mg, err := l.ledger.Metagraph(ctx)
	if err != nil {
		return fmt.Errorf("sync metagraph: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metagraph = mg
	if mg.Block > 0 {
		l.block = mg.Block
	}
	if l.trust != nil {
		l.trust = l.trust.Resize(mg.Size(), l.cfg.Trust.Initial)
	}
	slog.Debug("loop: metagraph synced", "peers", mg.Size(), "reachable", len(mg.ReachableUIDs()))
	return nil
}

// commit submits trust/Σtrust for every uid. An all-zero vector is not committed.
func (l *Loop) commit(ctx context.Context, block uint64) error {
	l.mu.RLock()
	weights := l.trust.Weights()
	l.mu.RUnlock()

	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		slog.Warn("loop: all trust is zero, skipping weight commit", "block", block)
		return nil
	}

	uids := make([]int, len(weights))
	for i := range uids {
		uids[i] = i
	}
	if err := l.ledger.SetWeights(ctx, uids, weights); err != nil {
		return err
	}

	l.mu.Lock()
	l.lastCommit = block
	l.mu.Unlock()
	slog.Info("loop: weights committed", "block", block, "peers", len(uids))
	return nil
}

// samplePeers picks a random subset of reachable uids sized by SampleSize
func (l *Loop) samplePeers() []int {
	reachable := l.metagraph.ReachableUIDs()
	n := SampleSize(len(reachable), l.cfg.Query.MinSample, l.cfg.Query.MaxSample)
	if n > len(reachable) {
		n = len(reachable)
	}
	perm := l.perm(len(reachable))
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = reachable[perm[i]]
	}
	return out
}

// SampleSize is active/3 while fewer than 3*maxSample peers are active,
// clamped to [minSample, maxSample]
func SampleSize(active, minSample, maxSample int) int {
	if active <= 0 {
		active = 1
	}
	size := maxSample
	if active < 3*maxSample {
		size = active / 3
	}
	if size < minSample {
		size = minSample
	}
	if size > maxSample {
		size = maxSample
	}
	return size
}

func (l *Loop) reachable(uid int) bool {
	n, ok := l.metagraph.Neuron(uid)
	return ok && n.Reachable()
}

func (l *Loop) alpha(platform model.Platform) float64 {
	if a, ok := l.cfg.Loop.Alpha[string(platform)]; ok {
		return a
	}
	return 0.7
}

func (l *Loop) intN(n int) int {
	if l.Rand != nil {
		return l.Rand.IntN(n)
	}
	return rand.IntN(n)
}

func (l *Loop) perm(n int) []int {
	if l.Rand != nil {
		return l.Rand.Perm(n)
	}
	return rand.Perm(n)
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// State returns the current phase
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Status returns a copy of the loop state
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Status{
		State:      l.state,
		Step:       l.step,
		Block:      l.block,
		LastCommit: l.lastCommit,
		Peers:      l.metagraph.Size(),
		Trust:      l.trust.Clone(),
		LastRound:  l.lastRound,
		UpdatedAt:  l.Now().UTC(),
	}
	if l.metagraph != nil {
		s.Reachable = len(l.metagraph.ReachableUIDs())
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
