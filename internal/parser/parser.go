// Package parser flattens X.com GraphQL responses into NormalizedTweet
// records. All functions are pure: no I/O, no shared state, and a payload
// that matches no known shape is a miss, never an error.
package parser

import (
	"encoding/json"
	"time"

	"apex/internal/model"
)

// rootExtractor attempts to locate the tweet result object under one known
// response nesting. Extractors are tried in fixed priority order; the first
// that resolves wins.
type rootExtractor func(raw []byte) (json.RawMessage, bool)

var rootExtractors = []rootExtractor{
	extractCreateTweet,
	extractFavoriteTweet,
	extractCreateBookmark,
	extractTweetLookup,
}

func extractCreateTweet(raw []byte) (json.RawMessage, bool) {
	var env struct {
		Data struct {
			CreateTweet struct {
				TweetResults struct {
					Result json.RawMessage `json:"result"`
				} `json:"tweet_results"`
			} `json:"create_tweet"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	r := env.Data.CreateTweet.TweetResults.Result
	return r, present(r)
}

func extractFavoriteTweet(raw []byte) (json.RawMessage, bool) {
	var env struct {
		Data struct {
			FavoriteTweet struct {
				Result json.RawMessage `json:"result"`
			} `json:"favorite_tweet"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	r := env.Data.FavoriteTweet.Result
	return r, present(r)
}

func extractCreateBookmark(raw []byte) (json.RawMessage, bool) {
	var env struct {
		Data struct {
			CreateBookmark struct {
				TweetResults struct {
					Result json.RawMessage `json:"result"`
				} `json:"tweet_results"`
			} `json:"create_bookmark"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	r := env.Data.CreateBookmark.TweetResults.Result
	return r, present(r)
}

func extractTweetLookup(raw []byte) (json.RawMessage, bool) {
	var env struct {
		Data struct {
			TweetResult struct {
				Result json.RawMessage `json:"result"`
			} `json:"tweetResult"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	r := env.Data.TweetResult.Result
	return r, present(r)
}

// NormalizeTweet locates and flattens a single tweet inside a raw GraphQL
// payload. The second return value is false when the payload holds no
// recognizable tweet; that is the expected outcome for most traffic.
func NormalizeTweet(raw []byte, sourceTag string) (*model.NormalizedTweet, bool) {
	for _, extract := range rootExtractors {
		if result, ok := extract(raw); ok {
			return normalizeResult(result, sourceTag)
		}
	}
	return nil, false
}

func normalizeResult(resRaw json.RawMessage, sourceTag string) (*model.NormalizedTweet, bool) {
	var res tweetResult
	if err := json.Unmarshal(resRaw, &res); err != nil {
		return nil, false
	}
	if res.Tweet != nil {
		res = *res.Tweet
	}
	if !present(res.Legacy) {
		return nil, false
	}
	var legacy tweetLegacy
	if err := json.Unmarshal(res.Legacy, &legacy); err != nil {
		return nil, false
	}

	now := time.Now().UTC()
	author := resolveAuthor(res.Core.UserResults.Result)
	mediaURLs, videoURL := extractMedia(legacy.Entities.Media)

	createdAt := now
	if legacy.CreatedAt != "" {
		if t, err := time.Parse(xTimeLayout, legacy.CreatedAt); err == nil {
			createdAt = t.UTC()
		}
	}

	tweetID := res.RestID
	if tweetID == "" {
		tweetID = "unknown"
	}

	segment := author.screenName
	if !author.resolved {
		// X's own permalink placeholder when the author is unknown.
		segment = "i/web"
	}

	var quoted *model.NormalizedTweet
	if legacy.IsQuoteStatus && sourceTag != model.SourceQuote && present(res.QuotedStatusResult.Result) {
		if q, ok := normalizeQuoted(res.QuotedStatusResult.Result); ok {
			quoted = q
		}
	}

	return &model.NormalizedTweet{
		TweetID:        tweetID,
		TweetURL:       "https://x.com/" + segment + "/status/" + tweetID,
		FullText:       legacy.FullText,
		UserName:       author.name,
		UserScreenName: author.screenName,
		UserAvatarURL:  author.avatarURL,
		MediaURLs:      mediaURLs,
		VideoURL:       videoURL,
		CreatedAt:      createdAt,
		Metrics: model.Metrics{
			Likes:    legacy.FavoriteCount,
			Retweets: legacy.RetweetCount,
			Replies:  legacy.ReplyCount,
			Quotes:   legacy.QuoteCount,
		},
		IsQuoted:    sourceTag == model.SourceQuote,
		QuotedTweet: quoted,
		Source:      sourceTag,
		CapturedAt:  now,
	}, true
}

// normalizeQuoted re-wraps a nested quoted result as a generic lookup payload
// and normalizes it one level deep. The quote source tag stops any further
// quote-of-a-quote recursion.
func normalizeQuoted(result json.RawMessage) (*model.NormalizedTweet, bool) {
	var wrapper struct {
		Data struct {
			TweetResult struct {
				Result json.RawMessage `json:"result"`
			} `json:"tweetResult"`
		} `json:"data"`
	}
	wrapper.Data.TweetResult.Result = result
	b, err := json.Marshal(wrapper)
	if err != nil {
		return nil, false
	}
	return NormalizeTweet(b, model.SourceQuote)
}

type author struct {
	name       string
	screenName string
	avatarURL  string
	resolved   bool
}

// authorResolvers are tried in priority order, newest shape first; the
// upstream user shape has shifted across API versions and both must be
// tolerated without a version flag.
var authorResolvers = []func(userResult) (author, bool){
	resolveCoreAuthor,
	resolveLegacyAuthor,
}

func resolveLegacyAuthor(u userResult) (author, bool) {
	if u.Legacy.ScreenName == "" && u.Legacy.Name == "" {
		return author{}, false
	}
	return author{
		name:       u.Legacy.Name,
		screenName: u.Legacy.ScreenName,
		avatarURL:  u.Legacy.ProfileImageURL,
		resolved:   u.Legacy.ScreenName != "",
	}, true
}

func resolveCoreAuthor(u userResult) (author, bool) {
	if u.Core.ScreenName == "" && u.Core.Name == "" {
		return author{}, false
	}
	return author{
		name:       u.Core.Name,
		screenName: u.Core.ScreenName,
		avatarURL:  u.Avatar.ImageURL,
		resolved:   u.Core.ScreenName != "",
	}, true
}

func resolveAuthor(u userResult) author {
	for _, resolve := range authorResolvers {
		if a, ok := resolve(u); ok {
			if a.name == "" {
				a.name = "Unknown"
			}
			if a.screenName == "" {
				a.screenName = "unknown"
			}
			return a
		}
	}
	return author{name: "Unknown", screenName: "unknown"}
}

// extractMedia collects photo URLs and video thumbnails into one ordered
// list, and picks the highest-bitrate variant (first max wins) as the video
// URL.
func extractMedia(media []mediaEntity) ([]string, string) {
	urls := []string{}
	var videoURL string
	for _, m := range media {
		switch m.Type {
		case "photo":
			if m.MediaURLHTTPS != "" {
				urls = append(urls, m.MediaURLHTTPS)
			}
		case "video", "animated_gif":
			if m.MediaURLHTTPS != "" {
				urls = append(urls, m.MediaURLHTTPS)
			}
			best := -1
			for _, v := range m.VideoInfo.Variants {
				if v.Bitrate == nil {
					continue
				}
				if *v.Bitrate > best {
					best = *v.Bitrate
					videoURL = v.URL
				}
			}
		}
	}
	return urls, videoURL
}
