package model

import "time"

// Source tags attached to captured tweets. Timeline feeds translate to their
// singular form when individual entries are normalized.
const (
	SourceLike              = "like"
	SourceBookmark          = "bookmark"
	SourceLikesTimeline     = "likes_timeline"
	SourceBookmarksTimeline = "bookmarks_timeline"
	SourceQuote             = "quote"
	SourceView              = "view"
)

// Metrics holds the engagement counters of a tweet.
type Metrics struct {
	Likes    int `json:"likes"`
	Retweets int `json:"retweets"`
	Replies  int `json:"replies"`
	Quotes   int `json:"quotes"`
}

// NormalizedTweet is the canonical record produced by the parser and moved
// through the buffer to the remote store. Field names mirror the remote
// store's column names.
type NormalizedTweet struct {
	TweetID        string           `json:"tweet_id"`
	TweetURL       string           `json:"tweet_url"`
	FullText       string           `json:"full_text"`
	UserName       string           `json:"user_name"`
	UserScreenName string           `json:"user_screen_name"`
	UserAvatarURL  string           `json:"user_avatar_url"`
	MediaURLs      []string         `json:"media_urls"`
	VideoURL       string           `json:"video_url,omitempty"`
	CreatedAt      time.Time        `json:"tweet_created_at"`
	Metrics        Metrics          `json:"metrics"`
	IsQuoted       bool             `json:"is_quoted"`
	QuotedTweet    *NormalizedTweet `json:"quoted_tweet,omitempty"`
	Source         string           `json:"source"`
	CapturedAt     time.Time        `json:"captured_at"`
}

// BufferRecord wraps a NormalizedTweet as stored in the local buffer.
type BufferRecord struct {
	LocalID   int64
	TweetID   string
	Tweet     NormalizedTweet
	Timestamp time.Time
	Synced    bool
}

// MinerStatus is the background miner's state machine position.
type MinerStatus string

const (
	StatusIdle     MinerStatus = "IDLE"
	StatusSyncing  MinerStatus = "SYNCING"
	StatusCooldown MinerStatus = "COOLDOWN"
	StatusOffline  MinerStatus = "OFFLINE"
)

// Credentials are harvested from observed page traffic, never generated.
// JSON keys match the MINER_AUTH_UPDATE payload emitted by the hook.
type Credentials struct {
	Authorization string `json:"authorization"`
	CsrfToken     string `json:"csrfToken"`
	ObservedURL   string `json:"url"`
	UserAgent     string `json:"userAgent"`
}

// Cursors holds the opaque pagination tokens, one per polled feed.
type Cursors struct {
	Likes     string `json:"likes"`
	Bookmarks string `json:"bookmarks"`
}

// MinerStats tracks miner progress across restarts.
type MinerStats struct {
	TotalCaptured     int       `json:"totalCaptured"`
	LastRunAt         time.Time `json:"lastRunAt"`
	ConsecutiveErrors int       `json:"consecutiveErrors"`
}

// MinerState is the persisted process-wide miner state. Mutated only through
// the buffer's read-merge-write UpdateState.
type MinerState struct {
	Status        MinerStatus  `json:"status"`
	Credentials   *Credentials `json:"credentials,omitempty"`
	Cursors       Cursors      `json:"cursors"`
	Stats         MinerStats   `json:"stats"`
	CooldownUntil time.Time    `json:"cooldownUntil"`
}

// DefaultMinerState is the state before any credentials have been observed.
func DefaultMinerState() MinerState {
	return MinerState{Status: StatusOffline}
}
