package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RestStore upserts through a PostgREST-compatible endpoint (Supabase).
// The merge-duplicates preference with an on_conflict target makes the
// POST an upsert keyed on tweet_id.
type RestStore struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewRestStore(baseURL, apiKey string) *RestStore {
	return &RestStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *RestStore) Upsert(ctx context.Context, records []TweetRecord) error {
	if len(records) == 0 {
		return nil
	}
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	url := s.baseURL + "/rest/v1/tweets?on_conflict=tweet_id"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upsert rejected: status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

func (s *RestStore) Close() error { return nil }
