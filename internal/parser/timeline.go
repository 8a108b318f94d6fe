package parser

import (
	"encoding/json"
	"strings"

	"apex/internal/model"
)

// timelineExtractor locates the instruction list under one known container
// path. Tried in fixed order, first hit wins.
type timelineExtractor func(raw []byte) (timelineObj, bool)

var timelineExtractors = []timelineExtractor{
	extractUserTimeline,
	extractUserTimelineV2,
	extractBookmarkTimelineV2,
	extractBookmarkTimeline,
}

func extractUserTimeline(raw []byte) (timelineObj, bool) {
	var env struct {
		Data struct {
			User struct {
				Result struct {
					Timeline struct {
						Timeline timelineObj `json:"timeline"`
					} `json:"timeline"`
				} `json:"result"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return timelineObj{}, false
	}
	tl := env.Data.User.Result.Timeline.Timeline
	return tl, len(tl.Instructions) > 0
}

func extractUserTimelineV2(raw []byte) (timelineObj, bool) {
	var env struct {
		Data struct {
			User struct {
				Result struct {
					TimelineV2 struct {
						Timeline timelineObj `json:"timeline"`
					} `json:"timeline_v2"`
				} `json:"result"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return timelineObj{}, false
	}
	tl := env.Data.User.Result.TimelineV2.Timeline
	return tl, len(tl.Instructions) > 0
}

func extractBookmarkTimelineV2(raw []byte) (timelineObj, bool) {
	var env struct {
		Data struct {
			BookmarkTimelineV2 struct {
				Timeline timelineObj `json:"timeline"`
			} `json:"bookmark_timeline_v2"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return timelineObj{}, false
	}
	tl := env.Data.BookmarkTimelineV2.Timeline
	return tl, len(tl.Instructions) > 0
}

func extractBookmarkTimeline(raw []byte) (timelineObj, bool) {
	var env struct {
		Data struct {
			BookmarkTimeline struct {
				Timeline timelineObj `json:"timeline"`
			} `json:"bookmark_timeline"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return timelineObj{}, false
	}
	tl := env.Data.BookmarkTimeline.Timeline
	return tl, len(tl.Instructions) > 0
}

func locateTimeline(raw []byte) (timelineObj, bool) {
	for _, extract := range timelineExtractors {
		if tl, ok := extract(raw); ok {
			return tl, true
		}
	}
	return timelineObj{}, false
}

// singularSource translates a feed tag to the per-tweet source tag.
func singularSource(feedTag string) string {
	switch feedTag {
	case model.SourceLikesTimeline:
		return model.SourceLike
	case model.SourceBookmarksTimeline:
		return model.SourceBookmark
	default:
		return feedTag
	}
}

// NormalizeTimeline extracts every embedded tweet from a paginated timeline
// payload. Entries without a tweet result (cursors, prompts, modules) are
// skipped silently; an unrecognizable payload yields an empty sequence.
func NormalizeTimeline(raw []byte, feedTag string) []model.NormalizedTweet {
	tl, ok := locateTimeline(raw)
	if !ok {
		return nil
	}
	tag := singularSource(feedTag)
	var out []model.NormalizedTweet
	for _, ins := range tl.Instructions {
		if ins.Type != "TimelineAddEntries" {
			continue
		}
		for _, entry := range ins.Entries {
			result, ok := entryTweetResult(entry)
			if !ok {
				continue
			}
			if t, ok := normalizeResult(result, tag); ok {
				out = append(out, *t)
			}
		}
	}
	return out
}

func entryTweetResult(entry timelineEntry) (json.RawMessage, bool) {
	if entry.Content.ItemContent == nil {
		return nil, false
	}
	var item struct {
		TweetResults struct {
			Result json.RawMessage `json:"result"`
		} `json:"tweet_results"`
	}
	if err := json.Unmarshal(entry.Content.ItemContent, &item); err != nil {
		return nil, false
	}
	r := item.TweetResults.Result
	return r, present(r)
}

// ExtractBottomCursor walks a timeline payload for the designated bottom
// cursor entry and returns its value. The second return is false when no
// bottom cursor exists, in which case the caller keeps its previous cursor.
func ExtractBottomCursor(raw []byte) (string, bool) {
	tl, ok := locateTimeline(raw)
	if !ok {
		return "", false
	}
	for _, ins := range tl.Instructions {
		entries := ins.Entries
		if ins.Entry != nil {
			entries = append(entries, *ins.Entry)
		}
		for _, entry := range entries {
			c := entry.Content
			if c.EntryType != "TimelineTimelineCursor" && c.TypeName != "TimelineTimelineCursor" {
				continue
			}
			if c.CursorType == "Bottom" || strings.Contains(entry.EntryID, "cursor-bottom") {
				return c.Value, c.Value != ""
			}
		}
	}
	return "", false
}
