package netobs

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Exchange is one recorded HTTP exchange, as captured by the record script
// or written by hand in tests.
type Exchange struct {
	URL           string            `json:"url"`
	RequestHeader map[string]string `json:"requestHeader,omitempty"`
	Body          json.RawMessage   `json:"body,omitempty"`
}

// ReplayObserver feeds recorded exchanges through the same hook machinery
// as live traffic. Dispatch is synchronous so tests see deterministic
// ordering.
type ReplayObserver struct {
	hooks hookSet
}

func NewReplayObserver() *ReplayObserver { return &ReplayObserver{} }

func (o *ReplayObserver) OnResponse(urlPattern string, fn ResponseFunc) {
	o.hooks.addResponse(urlPattern, fn)
}

func (o *ReplayObserver) OnRequestStart(urlPattern string, fn RequestFunc) {
	o.hooks.addRequest(urlPattern, fn)
}

// Feed replays one exchange: request-start hooks first, then response hooks.
func (o *ReplayObserver) Feed(ex Exchange) {
	header := http.Header{}
	for k, v := range ex.RequestHeader {
		header.Set(k, v)
	}
	for _, fn := range o.hooks.matchRequest(ex.URL) {
		fn(ex.URL, header)
	}
	if len(ex.Body) == 0 {
		return
	}
	for _, fn := range o.hooks.matchResponse(ex.URL) {
		fn(ex.URL, ex.Body)
	}
}

// FeedNDJSON replays newline-delimited exchanges from r.
func (o *ReplayObserver) FeedNDJSON(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ex Exchange
		if err := json.Unmarshal(sc.Bytes(), &ex); err != nil {
			return fmt.Errorf("replay line %d: %w", line, err)
		}
		o.Feed(ex)
	}
	return sc.Err()
}
