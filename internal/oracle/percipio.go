package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/scrapenet/internal/model"
)

// DefaultPercipioURL is the public reddit id lookup service
const DefaultPercipioURL = "https://api.percip.io"

// Percipio resolves reddit fullnames (t3_xxx, t1_xxx) through the percip.io id lookup
type Percipio struct {
	baseURL   string
	transport *Transport
}

// NewPercipio creates a reddit oracle rooted at baseURL
func NewPercipio(baseURL string, transport *Transport) *Percipio {
	if baseURL == "" {
		baseURL = DefaultPercipioURL
	}
	if transport == nil {
		transport = &Transport{}
	}
	return &Percipio{baseURL: strings.TrimRight(baseURL, "/"), transport: transport}
}

// Lookup fetches every id in a single request
func (p *Percipio) Lookup(ctx context.Context, keys []string) ([]model.FetchedItem, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var items []model.FetchedItem
	url := p.baseURL + "/reddit_ids/" + strings.Join(keys, ",")
	if err := p.transport.getJSON(ctx, url, &items); err != nil {
		return nil, fmt.Errorf("percipio lookup: %w", err)
	}

	out := items[:0]
	for _, it := range items {
		if it.ID != "" {
			out = append(out, it)
		}
	}
	return out, nil
}
