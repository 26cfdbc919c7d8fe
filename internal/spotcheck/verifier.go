// Package spotcheck verifies one random item per peer against an oracle.
package spotcheck

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/ppiankov/scrapenet/internal/model"
	"github.com/ppiankov/scrapenet/internal/oracle"
)

const (
	DefaultChunkSize     = 20
	DefaultMaxAttempts   = 2
	DefaultLookupTimeout = 2 * time.Minute
)

// Verdict is the spot-check outcome for one peer
type Verdict struct {
	Peer     int
	Sampled  bool // Peer had at least one item
	ItemID   string
	Key      string
	Resolved bool // Oracle returned the sampled item
	Match    bool
	Reason   string
}

// Correct returns 1 for a verified sample and 0 otherwise
func (v Verdict) Correct() float64 {
	if v.Match {
		return 1
	}
	return 0
}

// Record converts the verdict to its diagnostic form
func (v Verdict) Record() model.SpotCheck {
	return model.SpotCheck{
		Peer:     v.Peer,
		ItemID:   v.ItemID,
		Key:      v.Key,
		Resolved: v.Resolved,
		Match:    v.Match,
		Reason:   v.Reason,
	}
}

// Options bounds the oracle work done per round
type Options struct {
	ChunkSize     int
	MaxAttempts   int
	LookupTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = DefaultLookupTimeout
	}
	return o
}

// Verifier samples and checks peer batches for one platform
type Verifier struct {
	platform model.Platform
	check    platformCheck
	oracle   oracle.Oracle
	opts     Options

	// Rand drives sampling and chunk order; nil uses the global source
	Rand *rand.Rand
}

// NewVerifier creates a verifier backed by the given oracle
func NewVerifier(platform model.Platform, o oracle.Oracle, opts Options) (*Verifier, error) {
	check, ok := checkFor(platform)
	if !ok {
		return nil, fmt.Errorf("spot check: unknown platform %q", platform)
	}
	return &Verifier{
		platform: platform,
		check:    check,
		oracle:   o,
		opts:     opts.withDefaults(),
	}, nil
}

func (v *Verifier) intn(n int) int {
	if v.Rand != nil {
		return v.Rand.IntN(n)
	}
	return rand.IntN(n)
}

func (v *Verifier) shuffle(keys []string) {
	swap := func(i, j int) { keys[i], keys[j] = keys[j], keys[i] }
	if v.Rand != nil {
		v.Rand.Shuffle(len(keys), swap)
		return
	}
	rand.Shuffle(len(keys), swap)
}

// Check samples one item per non-empty batch, resolves the samples through the
// oracle and compares them. It returns one verdict per batch, in order. Oracle
// failures reduce coverage; they never fail the round.
func (v *Verifier) Check(ctx context.Context, batches [][]model.FetchedItem) []Verdict {
	verdicts := make([]Verdict, len(batches))
	samples := make([]model.FetchedItem, len(batches))
	idsByKey := make(map[string][]string)

	for i, batch := range batches {
		verdicts[i] = Verdict{Peer: i}
		if len(batch) == 0 {
			verdicts[i].Reason = "empty batch"
			continue
		}
		sample := batch[v.intn(len(batch))]
		samples[i] = sample
		verdicts[i].Sampled = true
		verdicts[i].ItemID = sample.ID

		key, ok := v.check.key(sample)
		if !ok || sample.ID == "" {
			verdicts[i].Reason = "sample has no lookup key"
			continue
		}
		verdicts[i].Key = key
		idsByKey[key] = append(idsByKey[key], sample.ID)
	}

	found := v.resolve(ctx, idsByKey)

	for i := range verdicts {
		vd := &verdicts[i]
		if vd.Key == "" {
			continue
		}
		truth, ok := found[vd.ItemID]
		if !ok {
			vd.Reason = "unresolved"
			continue
		}
		vd.Resolved = true
		vd.Match, vd.Reason = v.check.compare(v.check, samples[i], truth)
		if !vd.Match {
			slog.Info("spotcheck: sample mismatch", "platform", v.platform, "peer", i, "id", vd.ItemID, "reason", vd.Reason)
		}
	}

	return verdicts
}

// resolve queries the oracle in chunks until every key is resolved, the
// attempt budget is spent or ctx is done. Results are indexed by item id.
func (v *Verifier) resolve(ctx context.Context, idsByKey map[string][]string) map[string]model.FetchedItem {
	found := make(map[string]model.FetchedItem)
	if len(idsByKey) == 0 || v.oracle == nil {
		return found
	}

	remaining := make([]string, 0, len(idsByKey))
	for key := range idsByKey {
		remaining = append(remaining, key)
	}
	sort.Strings(remaining)
	total := len(remaining)

	for attempt := 0; attempt < v.opts.MaxAttempts && len(remaining) > 0; attempt++ {
		v.shuffle(remaining)
		for start := 0; start < len(remaining); start += v.opts.ChunkSize {
			if ctx.Err() != nil {
				return found
			}
			end := min(start+v.opts.ChunkSize, len(remaining))
			items, err := v.lookup(ctx, remaining[start:end])
			if err != nil {
				slog.Warn("spotcheck: oracle lookup failed", "platform", v.platform, "attempt", attempt+1, "keys", end-start, "error", err)
			}
			for _, item := range items {
				if item.ID != "" {
					found[item.ID] = item
				}
			}
		}

		next := remaining[:0]
		for _, key := range remaining {
			if !anyFound(found, idsByKey[key]) {
				next = append(next, key)
			}
		}
		remaining = next
	}

	slog.Info("spotcheck: oracle coverage", "platform", v.platform, "resolved", total-len(remaining), "total", total)
	return found
}

func (v *Verifier) lookup(ctx context.Context, keys []string) ([]model.FetchedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, v.opts.LookupTimeout)
	defer cancel()
	return v.oracle.Lookup(ctx, append([]string(nil), keys...))
}

func anyFound(found map[string]model.FetchedItem, ids []string) bool {
	for _, id := range ids {
		if _, ok := found[id]; ok {
			return true
		}
	}
	return false
}
