package model

// FetchedItem is one scraped content unit as served by a miner
type FetchedItem struct {
	ID        string   `json:"id"`                  // Platform-unique identifier (e.g. tweet id, reddit fullname t3_xxx)
	URL       string   `json:"url"`                 // Canonical content address
	Text      string   `json:"text"`                // Body content, may be empty on some platforms
	Title     string   `json:"title,omitempty"`     // Post-type items only
	Timestamp string   `json:"timestamp"`           // Creation time as served by the scraper
	Username  string   `json:"username,omitempty"`  // Author handle
	DataType  DataType `json:"dataType,omitempty"`  // post, comment, tweet
	Likes     int      `json:"likes,omitempty"`     // Upvotes or likes at scrape time
	Community string   `json:"community,omitempty"` // Subreddit or equivalent
	Hashtags  []string `json:"hashtags,omitempty"`
}

// Batch is the ordered set of items one peer returned for one query round
type Batch []FetchedItem

// Platform identifies the content source a round queries
type Platform string

const (
	PlatformTwitter Platform = "twitter"
	PlatformReddit  Platform = "reddit"
)

// Platforms lists every platform the validator knows how to score
func Platforms() []Platform {
	return []Platform{PlatformTwitter, PlatformReddit}
}

// Valid reports whether p is a known platform
func (p Platform) Valid() bool {
	switch p {
	case PlatformTwitter, PlatformReddit:
		return true
	}
	return false
}

// DataType distinguishes item kinds for field-presence rules
type DataType string

const (
	DataTypePost    DataType = "post"
	DataTypeComment DataType = "comment"
	DataTypeTweet   DataType = "tweet"
)
