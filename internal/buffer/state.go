package buffer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"apex/internal/model"
)

// LoadState returns the persisted miner state, or the default offline state
// when none has been saved yet.
func (s *Store) LoadState(ctx context.Context) (model.MinerState, error) {
	var blob string
	err := s.sql.QueryRowContext(ctx, `SELECT blob FROM miner_state WHERE id=1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultMinerState(), nil
	}
	if err != nil {
		return model.MinerState{}, fmt.Errorf("load miner state: %w", err)
	}
	var st model.MinerState
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		return model.MinerState{}, fmt.Errorf("decode miner state: %w", err)
	}
	return st, nil
}

// SaveState persists the full miner state blob.
func (s *Store) SaveState(ctx context.Context, st model.MinerState) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode miner state: %w", err)
	}
	_, err = s.sql.ExecContext(ctx,
		`INSERT INTO miner_state(id, blob) VALUES(1, ?) ON CONFLICT(id) DO UPDATE SET blob=excluded.blob`,
		string(blob))
	if err != nil {
		return fmt.Errorf("save miner state: %w", err)
	}
	return nil
}

// UpdateState funnels every miner-state mutation through one
// read-merge-write cycle, keeping the last-writer-wins contract in a single
// place.
func (s *Store) UpdateState(ctx context.Context, merge func(*model.MinerState)) (model.MinerState, error) {
	st, err := s.LoadState(ctx)
	if err != nil {
		return model.MinerState{}, err
	}
	merge(&st)
	if err := s.SaveState(ctx, st); err != nil {
		return model.MinerState{}, err
	}
	return st, nil
}
