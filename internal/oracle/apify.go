package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/scrapenet/internal/model"
)

const (
	// DefaultApifyURL is the Apify platform API
	DefaultApifyURL = "https://api.apify.com"
	// DefaultTweetActor fetches tweets by status URL
	DefaultTweetActor = "61RPP7dywgiy0JPD0"

	twitterCreatedAtLayout = "Mon Jan 02 15:04:05 -0700 2006"
	tweetTimestampLayout   = "2006-01-02 15:04:05-07:00"
)

// Apify resolves tweet status URLs by running a tweet scraper actor synchronously
type Apify struct {
	baseURL   string
	actorID   string
	token     string
	transport *Transport
}

// NewApify creates a twitter oracle for actorID authenticated by token
func NewApify(baseURL, actorID, token string, transport *Transport) (*Apify, error) {
	if token == "" {
		return nil, fmt.Errorf("apify oracle requires an api key")
	}
	if baseURL == "" {
		baseURL = DefaultApifyURL
	}
	if actorID == "" {
		actorID = DefaultTweetActor
	}
	if transport == nil {
		transport = &Transport{}
	}
	return &Apify{
		baseURL:   strings.TrimRight(baseURL, "/"),
		actorID:   actorID,
		token:     token,
		transport: transport,
	}, nil
}

type apifyTweetInput struct {
	MaxItems          int      `json:"maxItems"`
	MaxTweetsPerQuery int      `json:"maxTweetsPerQuery"`
	OnlyImage         bool     `json:"onlyImage"`
	OnlyQuote         bool     `json:"onlyQuote"`
	OnlyTwitterBlue   bool     `json:"onlyTwitterBlue"`
	OnlyVerifiedUsers bool     `json:"onlyVerifiedUsers"`
	OnlyVideo         bool     `json:"onlyVideo"`
	StartURLs         []string `json:"startUrls"`
}

type apifyTweet struct {
	ID         string `json:"id"`
	TwitterURL string `json:"twitterUrl"`
	URL        string `json:"url"`
	Text       string `json:"text"`
	LikeCount  int    `json:"likeCount"`
	CreatedAt  string `json:"createdAt"`
	Author     struct {
		UserName string `json:"userName"`
	} `json:"author"`
	Entities struct {
		Hashtags []struct {
			Text string `json:"text"`
		} `json:"hashtags"`
	} `json:"entities"`
	NoResults bool `json:"noResults"`
}

// Lookup runs the actor over the status URLs and maps its dataset items
func (a *Apify) Lookup(ctx context.Context, keys []string) ([]model.FetchedItem, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(apifyTweetInput{
		MaxItems:          len(keys),
		MaxTweetsPerQuery: 1,
		StartURLs:         keys,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		a.baseURL, url.PathEscape(a.actorID), url.QueryEscape(a.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := a.transport.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("apify actor %s: %w", a.actorID, err)
	}

	var tweets []apifyTweet
	if err := json.Unmarshal(body, &tweets); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	items := make([]model.FetchedItem, 0, len(tweets))
	for _, tw := range tweets {
		item, err := tw.toItem()
		if err != nil {
			slog.Warn("oracle: skipping apify item", "id", tw.ID, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (tw apifyTweet) toItem() (model.FetchedItem, error) {
	if tw.NoResults || tw.ID == "" {
		return model.FetchedItem{}, fmt.Errorf("no tweet in dataset item")
	}
	created, err := time.Parse(twitterCreatedAtLayout, tw.CreatedAt)
	if err != nil {
		return model.FetchedItem{}, fmt.Errorf("createdAt: %w", err)
	}

	link := tw.TwitterURL
	if link == "" {
		link = tw.URL
	}
	var hashtags []string
	for _, h := range tw.Entities.Hashtags {
		hashtags = append(hashtags, "#"+h.Text)
	}

	return model.FetchedItem{
		ID:        tw.ID,
		URL:       link,
		Text:      tw.Text,
		Timestamp: created.UTC().Format(tweetTimestampLayout),
		Username:  tw.Author.UserName,
		DataType:  model.DataTypeTweet,
		Likes:     tw.LikeCount,
		Hashtags:  hashtags,
	}, nil
}
