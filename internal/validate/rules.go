package validate

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ppiankov/scrapenet/internal/model"
)

// Rules holds the per-platform field and authenticity checks
type Rules struct {
	Platform         model.Platform
	Required         []string // Keys that must be present
	NonEmpty         []string // Present keys that must also be non-empty
	TimestampLayouts []string // Tried in order
	CheckURLIdentity bool     // id must be a substring and the last path segment of url
	RelevancyFields  []string // Fields searched for the round tag
}

// TwitterRules returns the checks applied to tweets
func TwitterRules() Rules {
	return Rules{
		Platform: model.PlatformTwitter,
		Required: []string{"id", "url", "text", "timestamp", "username"},
		NonEmpty: []string{"id", "url", "timestamp", "username"},
		TimestampLayouts: []string{
			"2006-01-02 15:04:05Z07:00",
			time.RFC3339Nano,
		},
		CheckURLIdentity: true,
		RelevancyFields:  []string{"text", "username"},
	}
}

// RedditRules returns the checks applied to reddit posts and comments
func RedditRules() Rules {
	return Rules{
		Platform: model.PlatformReddit,
		Required: []string{"id", "text", "timestamp", "dataType"},
		NonEmpty: []string{"id", "timestamp", "dataType"},
		TimestampLayouts: []string{
			time.RFC3339Nano,
			"2006-01-02T15:04:05.999999999",
			"2006-01-02 15:04:05Z07:00",
			"2006-01-02 15:04:05",
		},
		RelevancyFields: []string{"title", "text"},
	}
}

// RulesFor returns the rules for a platform
func RulesFor(p model.Platform) (Rules, error) {
	switch p {
	case model.PlatformTwitter:
		return TwitterRules(), nil
	case model.PlatformReddit:
		return RedditRules(), nil
	}
	return Rules{}, fmt.Errorf("unknown platform %q", p)
}

// ParseTimestamp parses s with the first matching layout.
// Zone-less layouts are read as UTC.
func (r Rules) ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range r.TimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Relevant reports whether the item mentions tag in any relevancy field, ignoring case
func (r Rules) Relevant(item model.FetchedItem, tag string) bool {
	tag = strings.ToLower(tag)
	for _, name := range r.RelevancyFields {
		if strings.Contains(strings.ToLower(fieldValue(item, name)), tag) {
			return true
		}
	}
	return false
}

// checkURLIdentity verifies that the id is embedded in the url and is its last path segment
func checkURLIdentity(id, rawURL string) (bool, string) {
	if id == "" || rawURL == "" {
		return true, ""
	}
	if !strings.Contains(rawURL, id) {
		return false, "id not found in url"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, "unparseable url"
	}
	if last := path.Base(u.Path); last != id {
		return false, fmt.Sprintf("url ends in %q", last)
	}
	return true, ""
}
