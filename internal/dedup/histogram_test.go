package dedup

import (
	"testing"
)

func TestHistogram_IdenticalPeers(t *testing.T) {
	h := NewHistogram()
	ids := []string{"a", "b", "c", "d", "e"}
	h.Add(0, ids)
	h.Add(1, ids)

	for peer := 0; peer < 2; peer++ {
		if got := h.Similarity(peer); got != len(ids) {
			t.Errorf("Peer %d: expected similarity %d, got %d", peer, len(ids), got)
		}
	}
}

func TestHistogram_DisjointPeers(t *testing.T) {
	h := NewHistogram()
	h.Add(0, []string{"a", "b"})
	h.Add(1, []string{"c"})

	if h.Similarity(0) != 0 || h.Similarity(1) != 0 {
		t.Errorf("Expected zero similarity for disjoint peers")
	}

	norm := Normalize(h.Similarities(2))
	for i, v := range norm {
		if v != 1 {
			t.Errorf("Peer %d: expected neutral 1, got %f", i, v)
		}
	}
}

func TestHistogram_PartialOverlap(t *testing.T) {
	h := NewHistogram()
	h.Add(0, []string{"a", "b", "c"})
	h.Add(1, []string{"a", "x"})
	h.Add(2, []string{"a", "b"})

	// a appears 3 times, b twice
	want := []int{3, 2, 3}
	for peer, w := range want {
		if got := h.Similarity(peer); got != w {
			t.Errorf("Peer %d: expected %d, got %d", peer, w, got)
		}
	}

	norm := Normalize(h.Similarities(3))
	if norm[0] != 1 || norm[2] != 1 {
		t.Errorf("Expected most duplicated peers at 1, got %v", norm)
	}
	if norm[1] != 0.75 {
		t.Errorf("Expected (2+1)/(3+1)=0.75, got %f", norm[1])
	}
}

func TestHistogram_AddIsIdempotentPerPeer(t *testing.T) {
	h := NewHistogram()
	h.Add(0, []string{"a", "b"})
	h.Add(1, []string{"a"})
	h.Add(0, []string{"a", "b"})
	h.Add(0, []string{"a", "b"})

	if got := h.Count("a"); got != 2 {
		t.Errorf("Expected count 2 after re-adding, got %d", got)
	}
	if got := h.Similarity(0); got != 1 {
		t.Errorf("Expected similarity 1, got %d", got)
	}
}

func TestHistogram_ReplaceDropsOldIDs(t *testing.T) {
	h := NewHistogram()
	h.Add(0, []string{"a"})
	h.Add(1, []string{"a"})
	h.Add(1, []string{"z"})

	if h.Count("a") != 1 || h.Similarity(0) != 0 {
		t.Errorf("Expected replaced peer to stop counting, got count(a)=%d", h.Count("a"))
	}
}

func TestHistogram_EmptyPeerIsZero(t *testing.T) {
	h := NewHistogram()
	h.Add(0, []string{"a"})
	h.Add(1, nil)

	sims := h.Similarities(3)
	if sims[1] != 0 || sims[2] != 0 {
		t.Errorf("Expected empty and unknown peers at 0, got %v", sims)
	}
}

func TestNormalize_SinglePeer(t *testing.T) {
	norm := Normalize([]float64{0})
	if len(norm) != 1 || norm[0] != 1 {
		t.Errorf("Expected [1], got %v", norm)
	}
	if len(Normalize(nil)) != 0 {
		t.Error("Expected empty result for no peers")
	}
}
