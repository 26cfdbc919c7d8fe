// Package trust holds the long-lived per-peer trust vector and its persistence.
package trust

import (
	"fmt"
	"math"
)

// Vector is the trust value of every uid on the subnet, each in [0,1]
type Vector []float64

// NewVector creates a vector of n entries set to initial
func NewVector(n int, initial float64) Vector {
	v := make(Vector, n)
	for i := range v {
		v[i] = clamp(initial)
	}
	return v
}

// Resize grows the vector to n, filling new slots with initial, or
// truncates it when the subnet shrank
func (v Vector) Resize(n int, initial float64) Vector {
	if n <= len(v) {
		return v[:n]
	}
	out := make(Vector, n)
	copy(out, v)
	for i := len(v); i < n; i++ {
		out[i] = clamp(initial)
	}
	return out
}

// Blend moves the trust of each scored uid toward its round score:
// trust = alpha*trust + (1-alpha)*score. Uids outside the vector are skipped.
func (v Vector) Blend(uids []int, scores []float64, alpha float64) error {
	if len(uids) != len(scores) {
		return fmt.Errorf("blend: %d uids, %d scores", len(uids), len(scores))
	}
	if alpha < 0 || alpha > 1 {
		return fmt.Errorf("blend: alpha %f outside [0,1]", alpha)
	}
	for i, uid := range uids {
		if uid < 0 || uid >= len(v) {
			continue
		}
		s := scores[i]
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		v[uid] = clamp(alpha*v[uid] + (1-alpha)*s)
	}
	return nil
}

// Zero clears the trust of the given uids
func (v Vector) Zero(uids []int) {
	for _, uid := range uids {
		if uid >= 0 && uid < len(v) {
			v[uid] = 0
		}
	}
}

// MaskUnreachable zeroes every uid for which reachable returns false and
// returns how many were cleared
func (v Vector) MaskUnreachable(reachable func(uid int) bool) int {
	cleared := 0
	for uid := range v {
		if !reachable(uid) && v[uid] != 0 {
			v[uid] = 0
			cleared++
		}
	}
	return cleared
}

// Weights divides by the total. An all-zero vector yields all zeros.
func (v Vector) Weights() []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	out := make([]float64, len(v))
	if sum <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}

// Clone returns an independent copy
func (v Vector) Clone() Vector {
	return append(Vector(nil), v...)
}

func clamp(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
