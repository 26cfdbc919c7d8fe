// Package dedup counts how often item ids recur across peers within one round.
package dedup

// Histogram is the per-round id occurrence table.
// It is not safe for concurrent use; build it in one sequential pass.
type Histogram struct {
	counts map[string]int
	byPeer map[int][]string
}

// NewHistogram creates an empty histogram for one round
func NewHistogram() *Histogram {
	return &Histogram{
		counts: make(map[string]int),
		byPeer: make(map[int][]string),
	}
}

// Add records the ids a peer returned. Adding the same peer again replaces its
// previous contribution, so rescanning a batch never double counts.
func (h *Histogram) Add(peer int, ids []string) {
	if prev, ok := h.byPeer[peer]; ok {
		for _, id := range prev {
			h.counts[id]--
			if h.counts[id] <= 0 {
				delete(h.counts, id)
			}
		}
	}
	h.byPeer[peer] = append([]string(nil), ids...)
	for _, id := range ids {
		h.counts[id]++
	}
}

// Count returns how many times id was reported in the round
func (h *Histogram) Count(id string) int {
	return h.counts[id]
}

// Similarity returns Σ(count(id)-1) over the peer's items: the number of times
// the peer's items were also reported elsewhere
func (h *Histogram) Similarity(peer int) int {
	total := 0
	for _, id := range h.byPeer[peer] {
		total += h.counts[id] - 1
	}
	return total
}

// Similarities returns the raw similarity of peers 0..n-1
func (h *Histogram) Similarities(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(h.Similarity(i))
	}
	return out
}

// Normalize maps raw similarities to (s+1)/(max+1), so 1 marks the most duplicated
// peer. With no duplication at all every peer gets 1.
func Normalize(raw []float64) []float64 {
	maxSim := 0.0
	for _, s := range raw {
		if s > maxSim {
			maxSim = s
		}
	}
	out := make([]float64, len(raw))
	for i, s := range raw {
		out[i] = (s + 1) / (maxSim + 1)
	}
	return out
}
