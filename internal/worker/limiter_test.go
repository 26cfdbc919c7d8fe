package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_PerHost(t *testing.T) {
	l := NewLimiter(1, 1)

	if !l.Allow("https://api.apify.com/v2/acts") {
		t.Error("Expected first request allowed")
	}
	if l.Allow("https://api.apify.com/v2/other") {
		t.Error("Expected second request to the same host throttled")
	}
	if !l.Allow("https://api.percip.io/reddit_ids/1") {
		t.Error("Expected other host to have its own budget")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 1)
	for i := 0; i < 50; i++ {
		if !l.Allow("https://example.com/") {
			t.Fatalf("Request %d throttled with rate disabled", i)
		}
	}
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	l := NewLimiter(0.01, 1)
	l.Allow("https://slow.example/")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://slow.example/"); err == nil {
		t.Error("Expected wait to fail when the context ends first")
	}
}

func TestLimiter_BadURL(t *testing.T) {
	l := NewLimiter(1, 1)
	if err := l.Wait(context.Background(), "not a url"); err == nil {
		t.Error("Expected error for url without host")
	}
	if l.Allow("::") {
		t.Error("Expected unparsable url rejected")
	}
}

func TestLimiter_SetCrawlDelayOnlySlowsDown(t *testing.T) {
	l := NewLimiter(100, 1)
	l.SetCrawlDelay("example.com", time.Hour)
	l.Allow("https://example.com/a")
	if l.Allow("https://example.com/b") {
		t.Error("Expected crawl delay to throttle")
	}

	l.SetCrawlDelay("example.com", time.Millisecond)
	if l.Allow("https://example.com/c") {
		t.Error("Expected shorter crawl delay not to speed the host up")
	}
}

func TestLimiter_SetHostRate(t *testing.T) {
	l := NewLimiter(0.001, 1)
	l.SetHostRate("fast.example", 1000, 5)
	for i := 0; i < 5; i++ {
		if !l.Allow("https://fast.example/") {
			t.Fatalf("Request %d throttled despite burst", i)
		}
	}
}
