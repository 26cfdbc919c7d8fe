package spotcheck

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/scrapenet/internal/model"
	"github.com/ppiankov/scrapenet/internal/validate"
)

var (
	urlPattern            = regexp.MustCompile(`https?://\S+`)
	leadingMentions       = regexp.MustCompile(`^(?:@\w+\s*)+`)
	tweetStatusURLPattern = regexp.MustCompile(`(twitter\.com|x\.com)/\w+/status/\d+`)
)

// NormalizeText unescapes HTML entities, drops links and leading @mentions and
// collapses whitespace. Case is preserved.
func NormalizeText(s string) string {
	s = html.UnescapeString(s)
	s = urlPattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = leadingMentions.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// platformCheck holds how samples are keyed and compared for one platform
type platformCheck struct {
	rules     validate.Rules
	precision time.Duration
	key       func(item model.FetchedItem) (string, bool)
	compare   func(c platformCheck, sample, truth model.FetchedItem) (bool, string)
}

func checkFor(p model.Platform) (platformCheck, bool) {
	switch p {
	case model.PlatformTwitter:
		return platformCheck{
			rules:     validate.TwitterRules(),
			precision: time.Minute,
			key:       tweetKey,
			compare:   compareTweet,
		}, true
	case model.PlatformReddit:
		return platformCheck{
			rules:     validate.RedditRules(),
			precision: time.Second,
			key:       idKey,
			compare:   compareRedditItem,
		}, true
	}
	return platformCheck{}, false
}

// tweetKey looks tweets up by status url
func tweetKey(item model.FetchedItem) (string, bool) {
	if item.URL == "" || !tweetStatusURLPattern.MatchString(item.URL) {
		return "", false
	}
	return item.URL, true
}

func idKey(item model.FetchedItem) (string, bool) {
	return item.ID, item.ID != ""
}

// sameTimestamp compares at the platform precision, falling back to exact
// string equality when either side does not parse
func (c platformCheck) sameTimestamp(a, b string) bool {
	ta, errA := c.rules.ParseTimestamp(a)
	tb, errB := c.rules.ParseTimestamp(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ta.Truncate(c.precision).Equal(tb.Truncate(c.precision))
}

func compareTweet(c platformCheck, sample, truth model.FetchedItem) (bool, string) {
	if NormalizeText(sample.Text) != NormalizeText(truth.Text) {
		return false, "text mismatch"
	}
	if !c.sameTimestamp(sample.Timestamp, truth.Timestamp) {
		return false, "timestamp mismatch"
	}
	if strings.TrimPrefix(sample.Username, "@") != strings.TrimPrefix(truth.Username, "@") {
		return false, "username mismatch"
	}
	return true, ""
}

func compareRedditItem(c platformCheck, sample, truth model.FetchedItem) (bool, string) {
	var titleOK bool
	switch truth.DataType {
	case model.DataTypeComment:
		titleOK = truth.Title == ""
	default:
		titleOK = truth.Title == sample.Title
	}
	if !titleOK {
		return false, "title mismatch"
	}

	// Some sources return an empty body for media posts
	if truth.Text != "" && NormalizeText(sample.Text) != NormalizeText(truth.Text) {
		return false, "text mismatch"
	}
	if !c.sameTimestamp(sample.Timestamp, truth.Timestamp) {
		return false, "timestamp mismatch"
	}
	return true, ""
}
