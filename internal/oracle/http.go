package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ppiankov/scrapenet/internal/httputil"
	"github.com/ppiankov/scrapenet/internal/worker"
)

// maxResponseBytes caps oracle response bodies
const maxResponseBytes = 16 << 20

// Transport is the HTTP plumbing shared by the remote oracles
type Transport struct {
	Client     *http.Client
	Limiter    *worker.Limiter // Optional per-host throttle
	UserAgent  string
	MaxRetries int
}

// do sends req after the limiter admits it, retrying transient failures,
// and returns the body of a 2xx response
func (t *Transport) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx, req.URL.String()); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, t.MaxRetries)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func (t *Transport) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	body, err := t.do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
