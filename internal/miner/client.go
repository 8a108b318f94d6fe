package miner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"apex/internal/model"
)

// maxResponseBytes caps timeline payload reads. Real pages are well under
// a megabyte.
const maxResponseBytes = 16 << 20

// Client issues authenticated timeline requests. It replays the feed URL
// observed by the hook, substituting the pagination cursor, so it never
// has to know endpoint query ids or the account's user id.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(requestsPerSec float64) *Client {
	if requestsPerSec <= 0 {
		requestsPerSec = 0.5
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

// FetchTimeline performs one polling request with creds and cursor.
// A non-2xx status is not an error; the caller drives the state machine
// off the status code. err is reserved for transport failures.
func (c *Client) FetchTimeline(ctx context.Context, creds model.Credentials, cursor string) (body []byte, status int, err error) {
	if creds.ObservedURL == "" {
		return nil, 0, errors.New("no observed feed endpoint")
	}
	target, err := substituteCursor(creds.ObservedURL, cursor)
	if err != nil {
		return nil, 0, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	setBrowserHeaders(req, creds)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read timeline body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// substituteCursor rewrites the GraphQL variables query param with the
// given cursor. An empty cursor removes any stale cursor so the feed is
// fetched from its head.
func substituteCursor(observed, cursor string) (string, error) {
	u, err := url.Parse(observed)
	if err != nil {
		return "", fmt.Errorf("parse observed url: %w", err)
	}
	q := u.Query()
	vars := map[string]any{"count": 50}
	if raw := q.Get("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return "", fmt.Errorf("parse observed variables: %w", err)
		}
	}
	if cursor != "" {
		vars["cursor"] = cursor
	} else {
		delete(vars, "cursor")
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}
	q.Set("variables", string(b))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// setBrowserHeaders shapes the request like the web client's own calls.
func setBrowserHeaders(req *http.Request, creds model.Credentials) {
	req.Header.Set("authorization", creds.Authorization)
	req.Header.Set("x-csrf-token", creds.CsrfToken)
	req.Header.Set("x-twitter-auth-type", "OAuth2Session")
	req.Header.Set("x-twitter-active-user", "yes")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "*/*")
	req.Header.Set("cookie", "ct0="+creds.CsrfToken)
	if creds.UserAgent != "" {
		req.Header.Set("user-agent", creds.UserAgent)
	}
}

// feedTagFor classifies an observed feed URL into its timeline tag.
func feedTagFor(observed string) string {
	if strings.Contains(observed, "Bookmarks") {
		return model.SourceBookmarksTimeline
	}
	return model.SourceLikesTimeline
}
