package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"apex/internal/bus"
	"apex/internal/model"
)

type fakeBuffer struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newFakeBuffer() *fakeBuffer { return &fakeBuffer{seen: map[string]bool{}} }

func (f *fakeBuffer) AddIfAbsent(_ context.Context, t model.NormalizedTweet) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.seen[t.TweetID] {
		return false, nil
	}
	f.seen[t.TweetID] = true
	return true, nil
}

func favoritePayload(id, text string) json.RawMessage {
	return json.RawMessage(`{"data":{"favorite_tweet":{"result":{
		"rest_id":"` + id + `",
		"legacy":{"full_text":"` + text + `","created_at":"Mon Jan 02 15:04:05 +0000 2023"},
		"core":{"user_results":{"result":{"legacy":{"name":"Bob","screen_name":"bob"}}}}
	}}}}`)
}

func likesTimelinePayload() json.RawMessage {
	entry := func(id string) string {
		return `{"entryId":"tweet-` + id + `","content":{"entryType":"TimelineTimelineItem",
			"itemContent":{"tweet_results":{"result":{
				"rest_id":"` + id + `",
				"legacy":{"full_text":"t` + id + `","created_at":"Mon Jan 02 15:04:05 +0000 2023"},
				"core":{"user_results":{"result":{"legacy":{"name":"Bob","screen_name":"bob"}}}}
			}}}}}`
	}
	return json.RawMessage(`{"data":{"user":{"result":{"timeline_v2":{"timeline":{
		"instructions":[{"type":"TimelineAddEntries","entries":[` +
		entry("1") + `,` + entry("2") + `]}]}}}}}}`)
}

func drain(t *testing.T, p *Processor, b *bus.Bus) {
	t.Helper()
	ctx := context.Background()
	for {
		select {
		case m := <-b.Page:
			p.handle(ctx, m)
		default:
			return
		}
	}
}

func popBackground(b *bus.Bus) (bus.Message, bool) {
	select {
	case m := <-b.Background:
		return m, true
	default:
		return bus.Message{}, false
	}
}

func TestCaptureInsertsAndTriggersSync(t *testing.T) {
	b := bus.New()
	buf := newFakeBuffer()
	p := New(b, buf, nil)

	b.PostPage(bus.Capture(favoritePayload("42", "hello"), model.SourceLike))
	drain(t, p, b)

	if !buf.seen["42"] {
		t.Fatal("tweet 42 not buffered")
	}
	m, ok := popBackground(b)
	if !ok || m.Type != bus.TypeTriggerSync {
		t.Fatalf("background message = %+v %v, want trigger sync", m, ok)
	}
}

func TestDuplicateCaptureStillRequestsSync(t *testing.T) {
	b := bus.New()
	buf := newFakeBuffer()
	q := NewQueueNotifier()
	var toasts []string
	q.Ready(func(s string) { toasts = append(toasts, s) })
	p := New(b, buf, q)

	b.PostPage(bus.Capture(favoritePayload("42", "hello"), model.SourceLike))
	drain(t, p, b)
	popBackground(b)

	b.PostPage(bus.Capture(favoritePayload("42", "hello"), model.SourceLike))
	drain(t, p, b)

	m, ok := popBackground(b)
	if !ok || m.Type != bus.TypeTriggerSync {
		t.Fatalf("duplicate single capture did not request sync (got %+v ok=%v)", m, ok)
	}
	if len(buf.seen) != 1 {
		t.Fatalf("buffered records = %d, want 1", len(buf.seen))
	}
	if len(toasts) != 2 {
		t.Fatalf("toasts = %v, want an acknowledgement for both captures", toasts)
	}
}

func TestAuthUpdateForwardedVerbatim(t *testing.T) {
	b := bus.New()
	p := New(b, newFakeBuffer(), nil)

	creds := model.Credentials{Authorization: "Bearer x", CsrfToken: "ct0", ObservedURL: "u", UserAgent: "ua"}
	b.PostPage(bus.AuthUpdate(creds))
	drain(t, p, b)

	m, ok := popBackground(b)
	if !ok || m.Type != bus.TypeAuthUpdate {
		t.Fatalf("background message = %+v %v", m, ok)
	}
	if m.Auth == nil || *m.Auth != creds {
		t.Fatalf("credentials altered in relay: %+v", m.Auth)
	}
}

func TestTimelineCaptureFanOut(t *testing.T) {
	b := bus.New()
	buf := newFakeBuffer()
	p := New(b, buf, nil)

	b.PostPage(bus.Capture(likesTimelinePayload(), model.SourceLikesTimeline))
	drain(t, p, b)

	if !buf.seen["1"] || !buf.seen["2"] {
		t.Fatalf("timeline entries not buffered: %v", buf.seen)
	}
	m, ok := popBackground(b)
	if !ok || m.Type != bus.TypeTriggerSync {
		t.Fatalf("background message = %+v %v", m, ok)
	}
}

func TestTimelineAllDuplicatesDoesNotRequestSync(t *testing.T) {
	b := bus.New()
	buf := newFakeBuffer()
	p := New(b, buf, nil)

	b.PostPage(bus.Capture(likesTimelinePayload(), model.SourceLikesTimeline))
	drain(t, p, b)
	popBackground(b)

	b.PostPage(bus.Capture(likesTimelinePayload(), model.SourceLikesTimeline))
	drain(t, p, b)

	if _, ok := popBackground(b); ok {
		t.Fatal("all-duplicate timeline batch requested a sync")
	}
}

func TestUnparsablePayloadIgnored(t *testing.T) {
	b := bus.New()
	buf := newFakeBuffer()
	p := New(b, buf, nil)

	b.PostPage(bus.Capture(json.RawMessage(`{"data":{}}`), model.SourceLike))
	drain(t, p, b)

	if len(buf.seen) != 0 {
		t.Fatalf("unexpected buffered records: %v", buf.seen)
	}
	if _, ok := popBackground(b); ok {
		t.Fatal("parse miss triggered a sync")
	}
}

func TestStorageFaultSwallowed(t *testing.T) {
	b := bus.New()
	buf := newFakeBuffer()
	buf.err = errors.New("disk full")
	p := New(b, buf, nil)

	b.PostPage(bus.Capture(favoritePayload("42", "hello"), model.SourceLike))
	drain(t, p, b)

	if _, ok := popBackground(b); ok {
		t.Fatal("failed write triggered a sync")
	}
}

func TestQueueNotifierFlushOnReady(t *testing.T) {
	q := NewQueueNotifier()
	q.Notify("first")
	q.Notify("second")

	var got []string
	q.Ready(func(s string) { got = append(got, s) })
	q.Notify("third")

	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestNotificationOnNewCapture(t *testing.T) {
	b := bus.New()
	q := NewQueueNotifier()
	var got []string
	q.Ready(func(s string) { got = append(got, s) })
	p := New(b, newFakeBuffer(), q)

	b.PostPage(bus.Capture(favoritePayload("42", "hello"), model.SourceLike))
	drain(t, p, b)

	if len(got) != 1 {
		t.Fatalf("notifications = %v", got)
	}
}

func TestNotificationTruncatesOnRuneBoundary(t *testing.T) {
	b := bus.New()
	q := NewQueueNotifier()
	var got []string
	q.Ready(func(s string) { got = append(got, s) })
	p := New(b, newFakeBuffer(), q)

	long := strings.Repeat("ü", 100)
	b.PostPage(bus.Capture(favoritePayload("42", long), model.SourceLike))
	drain(t, p, b)

	if len(got) != 1 {
		t.Fatalf("notifications = %v", got)
	}
	if !utf8.ValidString(got[0]) {
		t.Fatalf("toast is not valid UTF-8: %q", got[0])
	}
	if !strings.Contains(got[0], strings.Repeat("ü", 80)+"…") {
		t.Fatalf("toast not truncated at 80 runes: %q", got[0])
	}
}
