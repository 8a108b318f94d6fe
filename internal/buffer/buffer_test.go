package buffer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"apex/internal/model"
)

func testTweet(id string) model.NormalizedTweet {
	return model.NormalizedTweet{
		TweetID:    id,
		TweetURL:   "https://x.com/bob/status/" + id,
		FullText:   "text " + id,
		UserName:   "Bob",
		Source:     model.SourceLike,
		CapturedAt: time.Now().UTC(),
	}
}

func TestAddIfAbsentIdempotent(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	ins, err := s.AddIfAbsent(ctx, testTweet("42"))
	if err != nil || !ins {
		t.Fatalf("first insert: ins=%v err=%v", ins, err)
	}
	ins, err = s.AddIfAbsent(ctx, testTweet("42"))
	if err != nil {
		t.Fatal(err)
	}
	if ins {
		t.Fatal("second insert must be a no-op")
	}
	total, unsynced, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || unsynced != 1 {
		t.Fatalf("counts: total=%d unsynced=%d", total, unsynced)
	}
}

func TestAddIfAbsentConcurrentSameID(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AddIfAbsent(ctx, testTweet("same")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent insert errored: %v", err)
	}
	total, _, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("expected exactly one record, got %d", total)
	}
}

func TestListUnsyncedAndMarkSynced(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.AddIfAbsent(ctx, testTweet(fmt.Sprintf("id-%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := s.ListUnsynced(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	// insertion order
	for i, r := range recs {
		if r.TweetID != fmt.Sprintf("id-%d", i) {
			t.Fatalf("order broken at %d: %s", i, r.TweetID)
		}
	}

	ids := []string{recs[0].TweetID, recs[1].TweetID, "no-such-id"}
	if err := s.MarkSynced(ctx, ids); err != nil {
		t.Fatal(err)
	}
	recs, err = s.ListUnsynced(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 unsynced left, got %d", len(recs))
	}
	if recs[0].TweetID != "id-2" {
		t.Fatalf("unexpected head after sync: %s", recs[0].TweetID)
	}
}

func TestMarkSyncedEmptySet(t *testing.T) {
	s, _ := Open(":memory:")
	defer s.Close()
	if err := s.MarkSynced(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}

func TestRecentAndSearch(t *testing.T) {
	s, _ := Open(":memory:")
	defer s.Close()
	ctx := context.Background()

	a := testTweet("1")
	a.FullText = "Kubernetes controllers reconcile state"
	b := testTweet("2")
	b.FullText = "sourdough starter day three"
	b.Source = model.SourceBookmark
	for _, tw := range []model.NormalizedTweet{a, b} {
		if _, err := s.AddIfAbsent(ctx, tw); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.Recent(ctx, model.SourceBookmark, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].TweetID != "2" {
		t.Fatalf("source filter: %+v", recs)
	}

	recs, err = s.Search(ctx, "KUBERNETES", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].TweetID != "1" {
		t.Fatalf("search: %+v", recs)
	}
}

func TestMinerStateRoundTrip(t *testing.T) {
	s, _ := Open(":memory:")
	defer s.Close()
	ctx := context.Background()

	st, err := s.LoadState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != model.StatusOffline {
		t.Fatalf("fresh state should be OFFLINE, got %s", st.Status)
	}

	_, err = s.UpdateState(ctx, func(m *model.MinerState) {
		m.Status = model.StatusIdle
		m.Credentials = &model.Credentials{CsrfToken: "ct0value", Authorization: "Bearer x"}
		m.Cursors.Likes = "CURSOR_A"
	})
	if err != nil {
		t.Fatal(err)
	}

	st, err = s.LoadState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != model.StatusIdle || st.Cursors.Likes != "CURSOR_A" {
		t.Fatalf("state: %+v", st)
	}
	if st.Credentials == nil || st.Credentials.CsrfToken != "ct0value" {
		t.Fatalf("credentials: %+v", st.Credentials)
	}
}
