// Package processor is the relay between the page hook and the background
// context. It classifies each raw capture, normalizes it, persists new
// tweets to the local buffer, and forwards auth updates and sync triggers
// to the background bus. A storage fault never stops the loop.
package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"apex/internal/bus"
	"apex/internal/logging"
	"apex/internal/metrics"
	"apex/internal/model"
	"apex/internal/parser"
)

// Notifier surfaces capture results to the user. Notifications posted
// before Ready is called are queued and flushed on Ready, mirroring a UI
// that attaches after the pipeline starts.
type Notifier interface {
	Notify(text string)
}

// QueueNotifier buffers notifications until the sink is attached.
type QueueNotifier struct {
	mu      sync.Mutex
	ready   bool
	pending []string
	sink    func(string)
}

func NewQueueNotifier() *QueueNotifier { return &QueueNotifier{} }

func (q *QueueNotifier) Notify(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.ready {
		q.pending = append(q.pending, text)
		return
	}
	q.sink(text)
}

// Ready attaches the sink and flushes everything queued so far.
func (q *QueueNotifier) Ready(sink func(string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = true
	q.sink = sink
	for _, text := range q.pending {
		sink(text)
	}
	q.pending = nil
}

// Buffer is the slice of the local store the processor needs.
type Buffer interface {
	AddIfAbsent(ctx context.Context, t model.NormalizedTweet) (bool, error)
}

type Processor struct {
	bus      *bus.Bus
	buf      Buffer
	notifier Notifier
}

func New(b *bus.Bus, buf Buffer, n Notifier) *Processor {
	return &Processor{bus: b, buf: buf, notifier: n}
}

// Run drains the page bus until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.bus.Page:
			p.handle(ctx, m)
		}
	}
}

func (p *Processor) handle(ctx context.Context, m bus.Message) {
	switch m.Type {
	case bus.TypeAuthUpdate:
		// Credentials pass through untouched; the miner owns them.
		p.bus.PostBackground(m)
	case bus.TypeRawCapture:
		if m.Capture == nil {
			return
		}
		p.handleCapture(ctx, *m.Capture)
	}
}

func (p *Processor) handleCapture(ctx context.Context, rc bus.RawCapture) {
	if isTimelineAction(rc.Action) {
		p.handleTimeline(ctx, rc)
		return
	}
	tweet, ok := parser.NormalizeTweet(rc.Payload, rc.Action)
	if !ok {
		metrics.ParseMisses.Inc()
		return
	}
	if _, err := p.store(ctx, *tweet); err != nil {
		return
	}
	// A duplicate still gets the ack and the sync request; the buffer's
	// unique index already settled what is new.
	p.notify(*tweet)
	p.bus.PostBackground(bus.TriggerSync())
}

func (p *Processor) handleTimeline(ctx context.Context, rc bus.RawCapture) {
	tweets := parser.NormalizeTimeline(rc.Payload, rc.Action)
	if len(tweets) == 0 {
		metrics.ParseMisses.Inc()
		return
	}
	var fresh int
	for _, t := range tweets {
		inserted, err := p.store(ctx, t)
		if err != nil {
			continue
		}
		if inserted {
			fresh++
		}
	}
	if fresh > 0 {
		logging.Info("timeline captured", map[string]any{"feed": rc.Action, "new": fresh, "seen": len(tweets)})
		p.bus.PostBackground(bus.TriggerSync())
	}
}

// store persists one normalized tweet, counting the outcome. Errors are
// logged and swallowed so a bad disk does not take down capture.
func (p *Processor) store(ctx context.Context, t model.NormalizedTweet) (bool, error) {
	inserted, err := p.buf.AddIfAbsent(ctx, t)
	if err != nil {
		logging.Error("buffer write failed", map[string]any{"tweet_id": t.TweetID, "err": err.Error()})
		return false, err
	}
	metrics.Captures.WithLabelValues(t.Source).Inc()
	if inserted {
		metrics.BufferInserts.Inc()
	} else {
		metrics.BufferDuplicates.Inc()
	}
	return inserted, nil
}

func (p *Processor) notify(t model.NormalizedTweet) {
	if p.notifier == nil {
		return
	}
	text := t.FullText
	if runes := []rune(text); len(runes) > 80 {
		text = string(runes[:80]) + "…"
	}
	p.notifier.Notify(fmt.Sprintf("Captured @%s: %s", t.UserScreenName, text))
}

func isTimelineAction(action string) bool {
	return strings.HasSuffix(action, "_timeline")
}
