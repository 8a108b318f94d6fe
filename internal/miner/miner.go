// Package miner is the background polling scheduler. It owns the
// persisted miner state machine, replays observed timeline endpoints with
// harvested credentials, and feeds results through the normalizer into
// the same buffer the page capture path writes to.
package miner

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"apex/internal/buffer"
	"apex/internal/bus"
	"apex/internal/config"
	"apex/internal/logging"
	"apex/internal/metrics"
	"apex/internal/model"
	"apex/internal/parser"
)

// Dispatcher drains the unsynced buffer. Nil disables sync dispatch.
type Dispatcher interface {
	SyncPending(ctx context.Context) error
}

type Miner struct {
	cfg    config.Config
	store  *buffer.Store
	client *Client
	bus    *bus.Bus
	syncer Dispatcher

	// IdleFunc reports whether the host is idle; an idle host skips the
	// cycle but keeps the schedule alive. Nil means never idle.
	IdleFunc func() bool

	// now is swappable in tests.
	now func() time.Time
}

func New(cfg config.Config, store *buffer.Store, client *Client, b *bus.Bus, syncer Dispatcher) *Miner {
	return &Miner{
		cfg:    cfg,
		store:  store,
		client: client,
		bus:    b,
		syncer: syncer,
		now:    time.Now,
	}
}

// Run processes background messages and scheduled ticks until ctx ends.
// A tick is armed only after the previous cycle fully completes, so poll
// cycles never overlap.
func (m *Miner) Run(ctx context.Context) {
	timer := time.NewTimer(m.tickDelay())
	defer timer.Stop()

	// A process that last stopped in OFFLINE rests there until an auth
	// update arrives, even when rejected credentials are still stored.
	if st, err := m.store.LoadState(ctx); err == nil && !armAtStart(st) {
		stopTimer(timer)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.bus.Background:
			switch msg.Type {
			case bus.TypeAuthUpdate:
				if msg.Auth == nil {
					continue
				}
				m.handleAuthUpdate(ctx, *msg.Auth)
				stopTimer(timer)
				timer.Reset(m.rearmDelay())
			case bus.TypeTriggerSync:
				m.sync(ctx)
			}
		case <-timer.C:
			reschedule := m.Cycle(ctx)
			m.sync(ctx)
			if reschedule {
				timer.Reset(m.tickDelay())
			}
		}
	}
}

// Cycle runs one poll attempt and reports whether the next tick should be
// armed. Only an OFFLINE outcome stops rescheduling.
func (m *Miner) Cycle(ctx context.Context) bool {
	start := time.Now()
	defer metrics.ObservePollDuration(start)

	st, err := m.store.LoadState(ctx)
	if err != nil {
		logging.Error("miner state load failed", map[string]any{"err": err.Error()})
		return true
	}

	now := m.now()
	if now.Before(st.CooldownUntil) {
		m.setStatus(ctx, model.StatusCooldown)
		metrics.PollCycles.WithLabelValues("cooldown").Inc()
		return true
	}
	if st.Credentials == nil {
		m.setStatus(ctx, model.StatusOffline)
		metrics.PollCycles.WithLabelValues("offline").Inc()
		return false
	}
	if m.IdleFunc != nil && m.IdleFunc() {
		m.setStatus(ctx, model.StatusIdle)
		metrics.PollCycles.WithLabelValues("idle_skip").Inc()
		return true
	}

	m.setStatus(ctx, model.StatusSyncing)
	creds := *st.Credentials
	cursor := cursorFor(st.Cursors, creds.ObservedURL)

	body, status, err := m.client.FetchTimeline(ctx, creds, cursor)
	if err != nil {
		logging.Error("poll request failed", map[string]any{"err": err.Error()})
		m.recordFailure(ctx, model.StatusIdle, time.Time{})
		metrics.PollCycles.WithLabelValues("error").Inc()
		return true
	}
	switch {
	case status == 429:
		until := now.Add(m.cfg.CooldownPenalty())
		logging.Warn("rate limited, entering cooldown", map[string]any{"until": until.Format(time.RFC3339)})
		m.recordFailure(ctx, model.StatusCooldown, until)
		metrics.PollCycles.WithLabelValues("rate_limited").Inc()
		return true
	case status == 401 || status == 403:
		// Credentials are kept so an operator can inspect them; only a
		// fresh auth update re-arms the schedule.
		logging.Warn("auth rejected, going offline", map[string]any{"status": status})
		m.recordFailure(ctx, model.StatusOffline, time.Time{})
		metrics.PollCycles.WithLabelValues("auth_rejected").Inc()
		return false
	case status < 200 || status > 299:
		logging.Warn("unexpected poll status", map[string]any{"status": status})
		m.recordFailure(ctx, model.StatusIdle, time.Time{})
		metrics.PollCycles.WithLabelValues("http_error").Inc()
		return true
	}

	m.ingest(ctx, body, creds.ObservedURL, cursor, now)
	metrics.PollCycles.WithLabelValues("success").Inc()
	return true
}

// ingest normalizes a successful poll response, buffers new records, and
// advances the feed cursor when the response carries a new bottom cursor.
func (m *Miner) ingest(ctx context.Context, body []byte, observedURL, prevCursor string, now time.Time) {
	feedTag := feedTagFor(observedURL)
	tweets := parser.NormalizeTimeline(body, feedTag)
	var fresh int
	for _, t := range tweets {
		inserted, err := m.store.AddIfAbsent(ctx, t)
		if err != nil {
			logging.Error("buffer write failed", map[string]any{"tweet_id": t.TweetID, "err": err.Error()})
			continue
		}
		metrics.Captures.WithLabelValues(t.Source).Inc()
		if inserted {
			fresh++
			metrics.BufferInserts.Inc()
		} else {
			metrics.BufferDuplicates.Inc()
		}
	}

	next, found := parser.ExtractBottomCursor(body)
	if _, err := m.store.UpdateState(ctx, func(st *model.MinerState) {
		st.Status = model.StatusIdle
		if found && next != prevCursor {
			setCursor(&st.Cursors, observedURL, next)
		}
		st.Stats.TotalCaptured += fresh
		st.Stats.LastRunAt = now
		st.Stats.ConsecutiveErrors = 0
	}); err != nil {
		logging.Error("miner state save failed", map[string]any{"err": err.Error()})
	}
	logging.Info("poll cycle complete", map[string]any{"feed": feedTag, "new": fresh, "seen": len(tweets)})
}

// handleAuthUpdate installs fresh credentials and clears any stale
// cooldown so the rearmed tick can use them promptly.
func (m *Miner) handleAuthUpdate(ctx context.Context, creds model.Credentials) {
	if _, err := m.store.UpdateState(ctx, func(st *model.MinerState) {
		st.Credentials = &creds
		st.Status = model.StatusIdle
		st.CooldownUntil = time.Time{}
	}); err != nil {
		logging.Error("miner state save failed", map[string]any{"err": err.Error()})
		return
	}
	logging.Info("credentials updated", map[string]any{"feed": feedTagFor(creds.ObservedURL)})
}

func (m *Miner) recordFailure(ctx context.Context, status model.MinerStatus, cooldownUntil time.Time) {
	if _, err := m.store.UpdateState(ctx, func(st *model.MinerState) {
		st.Status = status
		if !cooldownUntil.IsZero() {
			st.CooldownUntil = cooldownUntil
		}
		st.Stats.ConsecutiveErrors++
	}); err != nil {
		logging.Error("miner state save failed", map[string]any{"err": err.Error()})
	}
}

func (m *Miner) setStatus(ctx context.Context, status model.MinerStatus) {
	if _, err := m.store.UpdateState(ctx, func(st *model.MinerState) {
		st.Status = status
	}); err != nil {
		logging.Error("miner state save failed", map[string]any{"err": err.Error()})
	}
}

func (m *Miner) sync(ctx context.Context) {
	if m.syncer == nil {
		return
	}
	if err := m.syncer.SyncPending(ctx); err != nil {
		logging.Error("sync dispatch failed", map[string]any{"err": err.Error()})
	}
}

func (m *Miner) tickDelay() time.Duration {
	base := time.Duration(m.cfg.Miner.IntervalSeconds) * time.Second
	if base <= 0 {
		base = 5 * time.Minute
	}
	jitter := time.Duration(m.cfg.Miner.JitterSeconds) * time.Second
	if jitter > 0 {
		base += time.Duration(rand.Int63n(int64(jitter)))
	}
	return base
}

func (m *Miner) rearmDelay() time.Duration {
	if m.cfg.Miner.RearmDelaySeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(m.cfg.Miner.RearmDelaySeconds) * time.Second
}

// armAtStart reports whether a restarting miner should resume its polling
// schedule. OFFLINE is a resting state: 401/403 keeps the credentials
// around for inspection, so their presence alone is not enough.
func armAtStart(st model.MinerState) bool {
	return st.Credentials != nil && st.Status != model.StatusOffline
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func cursorFor(c model.Cursors, observedURL string) string {
	if strings.Contains(observedURL, "Bookmarks") {
		return c.Bookmarks
	}
	return c.Likes
}

func setCursor(c *model.Cursors, observedURL, cursor string) {
	if strings.Contains(observedURL, "Bookmarks") {
		c.Bookmarks = cursor
		return
	}
	c.Likes = cursor
}
