// Package syncer drains the unsynced buffer into the remote store. It is
// triggered opportunistically after captures and after every poll cycle,
// so it must be idempotent and cheap when the buffer is empty.
package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"apex/internal/buffer"
	"apex/internal/logging"
	"apex/internal/metrics"
	"apex/internal/remote"
)

const defaultBatchSize = 50

type Syncer struct {
	store     *buffer.Store
	remote    remote.Store
	batchSize int
}

func New(store *buffer.Store, rs remote.Store, batchSize int) *Syncer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Syncer{store: store, remote: rs, batchSize: batchSize}
}

// SyncPending drains one batch of unsynced records. Records are marked
// synced only after the remote upsert is confirmed; any failure leaves the
// whole batch unsynced for the next trigger.
func (s *Syncer) SyncPending(ctx context.Context) error {
	records, err := s.store.ListUnsynced(ctx, s.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batchID := uuid.NewString()
	start := time.Now()
	out := make([]remote.TweetRecord, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, remote.FromNormalized(r.Tweet))
		ids = append(ids, r.TweetID)
	}

	if err := s.remote.Upsert(ctx, out); err != nil {
		metrics.SyncErrors.Inc()
		logging.Error("sync batch failed", map[string]any{"batch": batchID, "size": len(out), "err": err.Error()})
		return err
	}
	if err := s.store.MarkSynced(ctx, ids); err != nil {
		// The rows will be re-upserted next trigger; the remote side is
		// idempotent on tweet_id.
		logging.Error("mark synced failed", map[string]any{"batch": batchID, "err": err.Error()})
		return err
	}
	metrics.SyncBatches.Inc()
	metrics.ObserveSyncDuration(start)
	logging.Info("sync batch delivered", map[string]any{"batch": batchID, "size": len(out)})
	return nil
}

// Drain repeats SyncPending until the buffer has no unsynced records or a
// batch fails. Used by the one-shot sync command.
func (s *Syncer) Drain(ctx context.Context) error {
	for {
		_, unsynced, err := s.store.Counts(ctx)
		if err != nil {
			return err
		}
		if unsynced == 0 {
			return nil
		}
		if err := s.SyncPending(ctx); err != nil {
			return err
		}
	}
}
