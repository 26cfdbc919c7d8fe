// Package network talks to peers and to the chain bridge sidecar.
package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ppiankov/scrapenet/internal/model"
	"github.com/ppiankov/scrapenet/internal/worker"
)

// maxPeerResponseBytes caps a single peer answer
const maxPeerResponseBytes = 8 << 20

// Request is the query sent to every sampled peer
type Request struct {
	Platform  model.Platform `json:"platform"`
	SearchKey string         `json:"search_key"`
	Version   string         `json:"version"`
}

// Querier fans a request out to peers
type Querier struct {
	client  *http.Client
	workers int
	hotkey  string
}

// NewQuerier creates a querier running at most workers requests at once
func NewQuerier(client *http.Client, workers int, hotkey string) *Querier {
	if client == nil {
		client = &http.Client{}
	}
	if workers <= 0 {
		workers = 1
	}
	return &Querier{client: client, workers: workers, hotkey: hotkey}
}

// Query sends req to every axon and returns the raw answers aligned with
// axons. Peers that fail, answer non-2xx or exceed timeout get nil.
func (q *Querier) Query(ctx context.Context, axons []model.Neuron, req Request, timeout time.Duration) []json.RawMessage {
	payload, err := json.Marshal(req)
	if err != nil {
		slog.Error("network: marshal request", "error", err)
		return make([]json.RawMessage, len(axons))
	}

	uids := make([]int, len(axons))
	targets := make([]string, len(axons))
	for i, n := range axons {
		uids[i] = n.UID
		targets[i] = AxonURL(n)
	}

	fetch := func(ctx context.Context, target string) (json.RawMessage, error) {
		return q.post(ctx, target+"/scrape/"+string(req.Platform), payload)
	}

	bodies, details := worker.FanOut(ctx, q.workers, uids, targets, timeout, fetch)

	answered := 0
	for _, d := range details {
		if d.Error != nil {
			slog.Debug("network: peer query failed", "uid", d.UID, "elapsed", d.Elapsed, "error", d.Error)
			continue
		}
		answered++
	}
	slog.Info("network: peers queried", "platform", req.Platform, "tag", req.SearchKey, "sampled", len(axons), "answered", answered)
	return bodies
}

func (q *Querier) post(ctx context.Context, url string, payload []byte) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if q.hotkey != "" {
		httpReq.Header.Set("X-Validator-Hotkey", q.hotkey)
	}

	resp, err := q.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPeerResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("peer returned %d", resp.StatusCode)
	}
	return body, nil
}

// AxonURL returns the base URL a neuron serves on
func AxonURL(n model.Neuron) string {
	return "http://" + net.JoinHostPort(n.IP, strconv.Itoa(n.Port))
}
