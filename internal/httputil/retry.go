// Package httputil provides HTTP helpers shared by the oracle and network clients.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ppiankov/scrapenet/internal/util"
)

// RetryBaseDelay is the first backoff step; it doubles on every retry.
// Tests override it to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

const defaultMaxRetries = 3

// NewClient creates an HTTP client with the shared proxy settings
func NewClient(timeout time.Duration, httpProxy, httpsProxy, noProxy string) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               util.NewProxyFunc(httpProxy, httpsProxy, noProxy),
			MaxIdleConnsPerHost: 16,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return nil
		},
	}
}

// DoWithRetry executes req and retries rate limiting (429), server errors (5xx)
// and transient network failures with exponential backoff. When maxRetries is 0
// the default is used. After the last retry the final response is returned so
// the caller can inspect the status.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		retryable := false
		switch {
		case err != nil:
			if ctx.Err() != nil || !isTransient(err) || attempt >= maxRetries {
				return nil, err
			}
			retryable = true
		case IsRetryableStatus(resp.StatusCode):
			if attempt >= maxRetries {
				return resp, nil
			}
			// Drain and close before retrying
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			retryable = true
		}
		if !retryable {
			return resp, nil
		}

		backoff := time.Duration(1<<uint(attempt)) * RetryBaseDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// IsRetryableStatus returns true for statuses that indicate transient failures
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

// isTransient reports network errors worth retrying
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
