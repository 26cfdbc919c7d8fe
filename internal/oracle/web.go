package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/ppiankov/scrapenet/internal/model"
	"github.com/ppiankov/scrapenet/internal/util"
)

// ErrDisallowed is returned for pages robots.txt forbids
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Web resolves items by fetching their public pages and reading the page
// metadata. Keys that are URLs are fetched directly; other keys are expanded
// through a template containing {key}.
type Web struct {
	platform  model.Platform
	template  string
	transport *Transport
	robots    *util.RobotsChecker
}

// NewWeb creates a page-scraping oracle. robots may be nil to skip robots.txt.
func NewWeb(platform model.Platform, template string, transport *Transport, robots *util.RobotsChecker) *Web {
	if transport == nil {
		transport = &Transport{}
	}
	return &Web{platform: platform, template: template, transport: transport, robots: robots}
}

// Lookup fetches each key's page. Pages that fail are skipped; an error is
// returned only when nothing could be fetched.
func (w *Web) Lookup(ctx context.Context, keys []string) ([]model.FetchedItem, error) {
	var items []model.FetchedItem
	var lastErr error
	for _, key := range keys {
		if ctx.Err() != nil {
			return items, ctx.Err()
		}
		item, err := w.fetch(ctx, key)
		if err != nil {
			slog.Debug("oracle: page lookup failed", "platform", w.platform, "key", key, "error", err)
			lastErr = err
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 && lastErr != nil {
		return nil, fmt.Errorf("web lookup: %w", lastErr)
	}
	return items, nil
}

func (w *Web) pageURL(key string) (string, error) {
	if u, err := url.Parse(key); err == nil && u.Scheme != "" && u.Host != "" {
		return key, nil
	}
	if !strings.Contains(w.template, "{key}") {
		return "", fmt.Errorf("key %q is not a url and no page template is configured", key)
	}
	return strings.ReplaceAll(w.template, "{key}", url.PathEscape(key)), nil
}

func (w *Web) fetch(ctx context.Context, key string) (model.FetchedItem, error) {
	pageURL, err := w.pageURL(key)
	if err != nil {
		return model.FetchedItem{}, err
	}

	if w.robots != nil {
		allowed, delay, err := w.robots.CanFetch(ctx, pageURL)
		if err != nil {
			return model.FetchedItem{}, err
		}
		if !allowed {
			return model.FetchedItem{}, fmt.Errorf("%s: %w", pageURL, ErrDisallowed)
		}
		if delay > 0 && w.transport.Limiter != nil {
			u, _ := url.Parse(pageURL)
			w.transport.Limiter.SetCrawlDelay(u.Host, delay)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return model.FetchedItem{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	body, err := w.transport.do(ctx, req)
	if err != nil {
		return model.FetchedItem{}, err
	}

	item, err := parsePage(body, "")
	if err != nil {
		return model.FetchedItem{}, err
	}
	item.ID = idFromKey(key)
	if isURL(key) || item.URL == "" {
		item.URL = pageURL
	}
	if w.platform == model.PlatformReddit {
		item.DataType = redditDataType(item.ID)
	}
	return item, nil
}

// parsePage reads the OpenGraph and article metadata of an HTML page
func parsePage(data []byte, contentType string) (model.FetchedItem, error) {
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	utf8data, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if !utf8.Valid(data) {
			return model.FetchedItem{}, fmt.Errorf("decode page: %w", err)
		}
		utf8data = data
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(utf8data))
	if err != nil {
		return model.FetchedItem{}, fmt.Errorf("parse page: %w", err)
	}

	meta := func(selectors ...string) string {
		for _, sel := range selectors {
			if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
				return v
			}
		}
		return ""
	}

	item := model.FetchedItem{
		URL:       meta(`meta[property="og:url"]`),
		Title:     meta(`meta[property="og:title"]`),
		Text:      meta(`meta[property="og:description"]`, `meta[name="description"]`),
		Timestamp: meta(`meta[property="article:published_time"]`, `meta[itemprop="datePublished"]`),
		Username:  meta(`meta[property="article:author"]`, `meta[name="author"]`),
	}
	if item.Timestamp == "" {
		item.Timestamp = strings.TrimSpace(doc.Find("time[datetime]").First().AttrOr("datetime", ""))
	}
	if item.Title == "" {
		item.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if item.Timestamp == "" {
		return model.FetchedItem{}, fmt.Errorf("page has no publication time")
	}
	return item, nil
}

func isURL(key string) bool {
	u, err := url.Parse(key)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// idFromKey returns the last path segment of url keys and the key itself otherwise
func idFromKey(key string) string {
	if !isURL(key) {
		return key
	}
	u, _ := url.Parse(key)
	return path.Base(strings.TrimRight(u.Path, "/"))
}

func redditDataType(id string) model.DataType {
	switch {
	case strings.HasPrefix(id, "t1_"):
		return model.DataTypeComment
	case strings.HasPrefix(id, "t3_"):
		return model.DataTypePost
	}
	return ""
}
