package parser

import (
	"testing"

	"apex/internal/model"
)

const likesTimelineFixture = `{
	"data": {
		"user": {
			"result": {
				"timeline": {
					"timeline": {
						"instructions": [
							{"type": "TimelineClearCache"},
							{
								"type": "TimelineAddEntries",
								"entries": [
									{
										"entryId": "tweet-1",
										"content": {
											"entryType": "TimelineTimelineItem",
											"itemContent": {"tweet_results": {"result": {"rest_id": "1", "legacy": {"full_text": "one"}}}}
										}
									},
									{
										"entryId": "who-to-follow",
										"content": {"entryType": "TimelineTimelineModule"}
									},
									{
										"entryId": "tweet-2",
										"content": {
											"entryType": "TimelineTimelineItem",
											"itemContent": {"tweet_results": {"result": {"rest_id": "2", "legacy": {"full_text": "two"}}}}
										}
									},
									{
										"entryId": "tweet-3",
										"content": {
											"entryType": "TimelineTimelineItem",
											"itemContent": {"tweet_results": {"result": {"rest_id": "3", "legacy": {"full_text": "three"}}}}
										}
									},
									{
										"entryId": "cursor-top-aaa",
										"content": {"entryType": "TimelineTimelineCursor", "cursorType": "Top", "value": "TOP_CURSOR"}
									},
									{
										"entryId": "cursor-bottom-bbb",
										"content": {"entryType": "TimelineTimelineCursor", "cursorType": "Bottom", "value": "BOTTOM_CURSOR"}
									}
								]
							}
						]
					}
				}
			}
		}
	}
}`

func TestNormalizeTimelineExtractsTweetEntries(t *testing.T) {
	tweets := NormalizeTimeline([]byte(likesTimelineFixture), model.SourceLikesTimeline)
	if len(tweets) != 3 {
		t.Fatalf("expected 3 tweets, got %d", len(tweets))
	}
	for i, want := range []string{"1", "2", "3"} {
		if tweets[i].TweetID != want {
			t.Fatalf("entry %d: got id %s", i, tweets[i].TweetID)
		}
		if tweets[i].Source != model.SourceLike {
			t.Fatalf("entry %d: source %s", i, tweets[i].Source)
		}
	}
}

func TestNormalizeTimelineBookmarkFeedTag(t *testing.T) {
	body := `{
		"data": {
			"bookmark_timeline_v2": {
				"timeline": {
					"instructions": [{
						"type": "TimelineAddEntries",
						"entries": [{
							"entryId": "tweet-9",
							"content": {"itemContent": {"tweet_results": {"result": {"rest_id": "9", "legacy": {"full_text": "kept"}}}}}
						}]
					}]
				}
			}
		}
	}`
	tweets := NormalizeTimeline([]byte(body), model.SourceBookmarksTimeline)
	if len(tweets) != 1 {
		t.Fatalf("expected 1 tweet, got %d", len(tweets))
	}
	if tweets[0].Source != model.SourceBookmark {
		t.Fatalf("source: %s", tweets[0].Source)
	}
}

func TestNormalizeTimelineUnrecognizedPayload(t *testing.T) {
	for _, c := range []string{``, `{}`, `{"data": {"user": {}}}`} {
		if got := NormalizeTimeline([]byte(c), model.SourceLikesTimeline); len(got) != 0 {
			t.Fatalf("expected empty result for %q, got %d", c, len(got))
		}
	}
}

func TestExtractBottomCursor(t *testing.T) {
	cursor, ok := ExtractBottomCursor([]byte(likesTimelineFixture))
	if !ok || cursor != "BOTTOM_CURSOR" {
		t.Fatalf("cursor: %q ok=%v", cursor, ok)
	}

	if _, ok := ExtractBottomCursor([]byte(`{}`)); ok {
		t.Fatal("expected no cursor in empty payload")
	}
}

func TestExtractBottomCursorFromReplaceInstruction(t *testing.T) {
	body := `{
		"data": {
			"user": {
				"result": {
					"timeline_v2": {
						"timeline": {
							"instructions": [{
								"type": "TimelineReplaceEntry",
								"entry": {
									"entryId": "cursor-bottom-xyz",
									"content": {"__typename": "TimelineTimelineCursor", "cursorType": "Bottom", "value": "NEXT"}
								}
							}]
						}
					}
				}
			}
		}
	}`
	cursor, ok := ExtractBottomCursor([]byte(body))
	if !ok || cursor != "NEXT" {
		t.Fatalf("cursor: %q ok=%v", cursor, ok)
	}
}
