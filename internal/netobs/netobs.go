// Package netobs abstracts how the pipeline watches the site's network
// traffic. The hook is written against NetworkObserver only, so the same
// capture logic runs behind a live MITM proxy or a recorded traffic replay.
package netobs

import (
	"net/http"
	"strings"
	"sync"
)

// ResponseFunc receives the request URL and the full response body of a
// matched exchange. The body is a private copy; callbacks must not assume
// they run on any particular goroutine.
type ResponseFunc func(url string, body []byte)

// RequestFunc receives the request URL and headers of a matched exchange
// before the request leaves.
type RequestFunc func(url string, header http.Header)

// NetworkObserver is the capability the hook needs: read-only shadowing of
// requests and responses whose URL contains a pattern. Observation never
// alters what the real client sees.
type NetworkObserver interface {
	OnResponse(urlPattern string, fn ResponseFunc)
	OnRequestStart(urlPattern string, fn RequestFunc)
}

type respHook struct {
	pattern string
	fn      ResponseFunc
}

type reqHook struct {
	pattern string
	fn      RequestFunc
}

// hookSet holds registered callbacks; shared by the observer implementations.
type hookSet struct {
	mu        sync.RWMutex
	responses []respHook
	requests  []reqHook
}

func (h *hookSet) addResponse(pattern string, fn ResponseFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, respHook{pattern, fn})
}

func (h *hookSet) addRequest(pattern string, fn RequestFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, reqHook{pattern, fn})
}

func (h *hookSet) matchResponse(url string) []ResponseFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []ResponseFunc
	for _, r := range h.responses {
		if strings.Contains(url, r.pattern) {
			out = append(out, r.fn)
		}
	}
	return out
}

func (h *hookSet) matchRequest(url string) []RequestFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []RequestFunc
	for _, r := range h.requests {
		if strings.Contains(url, r.pattern) {
			out = append(out, r.fn)
		}
	}
	return out
}
