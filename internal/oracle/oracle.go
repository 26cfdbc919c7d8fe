// Package oracle re-fetches authoritative copies of sampled items for spot checks.
package oracle

import (
	"context"

	"github.com/ppiankov/scrapenet/internal/model"
)

// Oracle resolves item keys (ids or urls, depending on the source) to
// authoritative records. Results are best-effort: missing keys are simply
// absent from the returned slice.
type Oracle interface {
	Lookup(ctx context.Context, keys []string) ([]model.FetchedItem, error)
}

// Func adapts a plain function to the Oracle interface
type Func func(ctx context.Context, keys []string) ([]model.FetchedItem, error)

// Lookup calls f
func (f Func) Lookup(ctx context.Context, keys []string) ([]model.FetchedItem, error) {
	return f(ctx, keys)
}
