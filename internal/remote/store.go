// Package remote delivers captured tweets to the backing store the
// dashboard reads from. Two drivers exist: a direct Postgres connection
// and a PostgREST-compatible HTTP endpoint. Both upsert on tweet_id so
// redelivery after a failed batch is harmless.
package remote

import (
	"context"
	"fmt"
	"time"

	"apex/internal/config"
	"apex/internal/model"
)

// TweetRecord is the remote table's row shape.
type TweetRecord struct {
	TweetID        string    `json:"tweet_id"`
	TweetURL       string    `json:"tweet_url"`
	FullText       string    `json:"full_text"`
	UserName       string    `json:"user_name"`
	UserScreenName string    `json:"user_screen_name"`
	UserAvatarURL  string    `json:"user_avatar_url"`
	MediaURLs      []string  `json:"media_urls"`
	VideoURL       *string   `json:"video_url"`
	TweetCreatedAt time.Time `json:"tweet_created_at"`
	Likes          int       `json:"likes"`
	Retweets       int       `json:"retweets"`
	Replies        int       `json:"replies"`
	Quotes         int       `json:"quotes"`
	IsQuoted       bool      `json:"is_quoted"`
	Source         string    `json:"source"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Store is the upsert contract the sync dispatcher depends on. Upsert is
// all-or-nothing over the batch: a partial write must return an error.
type Store interface {
	Upsert(ctx context.Context, records []TweetRecord) error
	Close() error
}

// FromNormalized maps a buffered tweet to the remote row shape.
func FromNormalized(t model.NormalizedTweet) TweetRecord {
	rec := TweetRecord{
		TweetID:        t.TweetID,
		TweetURL:       t.TweetURL,
		FullText:       t.FullText,
		UserName:       t.UserName,
		UserScreenName: t.UserScreenName,
		UserAvatarURL:  t.UserAvatarURL,
		MediaURLs:      t.MediaURLs,
		TweetCreatedAt: t.CreatedAt,
		Likes:          t.Metrics.Likes,
		Retweets:       t.Metrics.Retweets,
		Replies:        t.Metrics.Replies,
		Quotes:         t.Metrics.Quotes,
		IsQuoted:       t.IsQuoted,
		Source:         t.Source,
		CapturedAt:     t.CapturedAt,
	}
	if t.VideoURL != "" {
		v := t.VideoURL
		rec.VideoURL = &v
	}
	if rec.MediaURLs == nil {
		rec.MediaURLs = []string{}
	}
	return rec
}

// Open builds the configured store driver.
func Open(cfg config.RemoteConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("remote driver postgres requires a dsn")
		}
		return OpenPostgres(cfg.DSN)
	case "rest", "":
		if cfg.RestURL == "" {
			return nil, fmt.Errorf("remote driver rest requires a base url")
		}
		return NewRestStore(cfg.RestURL, cfg.RestKey), nil
	default:
		return nil, fmt.Errorf("unknown remote driver %q", cfg.Driver)
	}
}
