// Package hook is the page-context capture tap. It registers read-only
// observers on the site's GraphQL traffic, classifies each captured
// response by its endpoint, and relays raw payloads and harvested
// credentials onto the page bus. It never parses tweet payloads itself.
package hook

import (
	"net/http"
	"strings"

	"apex/internal/bus"
	"apex/internal/logging"
	"apex/internal/model"
	"apex/internal/netobs"
)

// PublicBearer is the site's public web-app bearer token. It is the same
// for every anonymous web session and is sent alongside the per-session
// csrf token harvested from observed requests.
const PublicBearer = "Bearer AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

// Action tags attached to captured payloads. The processor maps them to
// the canonical source tags.
const (
	ActionLike              = model.SourceLike
	ActionBookmark          = model.SourceBookmark
	ActionLikesTimeline     = model.SourceLikesTimeline
	ActionBookmarksTimeline = model.SourceBookmarksTimeline
	ActionView              = model.SourceView
)

// classifiers map endpoint name fragments to actions. Order matters:
// "Likes" must be tested before the timeline fallthrough, and specific
// mutation endpoints before feed endpoints.
var classifiers = []struct {
	fragment string
	action   string
}{
	{"CreateLike", ActionLike},
	{"FavoriteTweet", ActionLike},
	{"CreateBookmark", ActionBookmark},
	{"Likes", ActionLikesTimeline},
	{"Bookmarks", ActionBookmarksTimeline},
}

// Classify maps a GraphQL URL to its capture action. Unrecognized
// endpoints are passive views.
func Classify(url string) string {
	for _, c := range classifiers {
		if strings.Contains(url, c.fragment) {
			return c.action
		}
	}
	return ActionView
}

// Hook taps an observer and relays captures to the page bus.
type Hook struct {
	bus *bus.Bus
}

// Attach registers the capture and credential taps on obs. The observer
// dispatches callbacks with private body copies, so the hook holds no
// state beyond the bus handle.
func Attach(obs netobs.NetworkObserver, b *bus.Bus) *Hook {
	h := &Hook{bus: b}
	obs.OnResponse("/graphql/", h.onGraphQL)
	obs.OnRequestStart("/i/api/graphql/", h.onAPIRequest)
	return h
}

func (h *Hook) onGraphQL(url string, body []byte) {
	if len(body) == 0 {
		return
	}
	action := Classify(url)
	if !h.bus.PostPage(bus.Capture(body, action)) {
		logging.Warn("capture dropped, page bus full", map[string]any{"action": action})
	}
}

// onAPIRequest harvests session credentials from authenticated feed
// requests. A request without a ct0 cookie belongs to a logged-out
// session and is skipped silently.
func (h *Hook) onAPIRequest(url string, header http.Header) {
	if !strings.Contains(url, "Likes") && !strings.Contains(url, "Bookmarks") {
		return
	}
	ct0 := csrfFromCookie(header.Get("Cookie"))
	if ct0 == "" {
		return
	}
	creds := model.Credentials{
		Authorization: PublicBearer,
		CsrfToken:     ct0,
		ObservedURL:   url,
		UserAgent:     header.Get("User-Agent"),
	}
	if !h.bus.PostPage(bus.AuthUpdate(creds)) {
		logging.Warn("auth update dropped, page bus full", nil)
	}
}

func csrfFromCookie(cookie string) string {
	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "ct0="); ok {
			return v
		}
	}
	return ""
}
