package parser

import (
	"bytes"
	"encoding/json"
)

// Raw GraphQL response shapes. Only the subset of fields the normalizer
// extracts is declared; everything else is ignored by encoding/json.

// xTimeLayout is the legacy created_at layout used across X's API.
const xTimeLayout = "Mon Jan 02 15:04:05 +0000 2006"

type tweetResult struct {
	RestID string          `json:"rest_id"`
	Legacy json.RawMessage `json:"legacy"`
	Core   struct {
		UserResults struct {
			Result userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	// TweetWithVisibilityResults wraps the real result one level deeper.
	Tweet              *tweetResult `json:"tweet"`
	QuotedStatusResult struct {
		Result json.RawMessage `json:"result"`
	} `json:"quoted_status_result"`
}

type tweetLegacy struct {
	FullText      string `json:"full_text"`
	CreatedAt     string `json:"created_at"`
	FavoriteCount int    `json:"favorite_count"`
	RetweetCount  int    `json:"retweet_count"`
	ReplyCount    int    `json:"reply_count"`
	QuoteCount    int    `json:"quote_count"`
	IsQuoteStatus bool   `json:"is_quote_status"`
	Entities      struct {
		Media []mediaEntity `json:"media"`
	} `json:"entities"`
}

type mediaEntity struct {
	Type          string `json:"type"`
	MediaURLHTTPS string `json:"media_url_https"`
	VideoInfo     struct {
		Variants []videoVariant `json:"variants"`
	} `json:"video_info"`
}

type videoVariant struct {
	Bitrate *int   `json:"bitrate"`
	URL     string `json:"url"`
}

type userResult struct {
	// Pre-2024 shape: everything under legacy.
	Legacy struct {
		Name            string `json:"name"`
		ScreenName      string `json:"screen_name"`
		ProfileImageURL string `json:"profile_image_url_https"`
	} `json:"legacy"`
	// Newer shape: identity under core, avatar split out.
	Core struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
	} `json:"core"`
	Avatar struct {
		ImageURL string `json:"image_url"`
	} `json:"avatar"`
}

type timelineObj struct {
	Instructions []timelineInstruction `json:"instructions"`
}

type timelineInstruction struct {
	Type    string          `json:"type"`
	Entries []timelineEntry `json:"entries"`
	Entry   *timelineEntry  `json:"entry"`
}

type timelineEntry struct {
	EntryID string `json:"entryId"`
	Content struct {
		EntryType   string          `json:"entryType"`
		TypeName    string          `json:"__typename"`
		ItemContent json.RawMessage `json:"itemContent"`
		Value       string          `json:"value"`
		CursorType  string          `json:"cursorType"`
	} `json:"content"`
}

// present reports whether a raw message resolved to an actual value.
func present(m json.RawMessage) bool {
	t := bytes.TrimSpace(m)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}
