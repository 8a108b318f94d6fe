package netobs

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/elazarl/goproxy"

	"apex/internal/logging"
)

// ProxyObserver observes live traffic through a MITM forward proxy. The
// browser is pointed at the proxy; matched exchanges are shadowed and
// dispatched asynchronously while the original response flows through
// untouched.
type ProxyObserver struct {
	proxy  *goproxy.ProxyHttpServer
	server *http.Server
	hooks  hookSet
}

func NewProxyObserver() *ProxyObserver {
	o := &ProxyObserver{proxy: goproxy.NewProxyHttpServer()}
	o.proxy.OnRequest().HandleConnect(goproxy.AlwaysMitm)
	o.proxy.OnRequest().DoFunc(func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		url := req.URL.String()
		if fns := o.hooks.matchRequest(url); len(fns) > 0 {
			header := req.Header.Clone()
			for _, fn := range fns {
				go fn(url, header)
			}
		}
		return req, nil
	})
	o.proxy.OnResponse().DoFunc(func(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
		return o.shadow(resp, ctx)
	})
	return o
}

func (o *ProxyObserver) OnResponse(urlPattern string, fn ResponseFunc) {
	o.hooks.addResponse(urlPattern, fn)
}

func (o *ProxyObserver) OnRequestStart(urlPattern string, fn RequestFunc) {
	o.hooks.addRequest(urlPattern, fn)
}

// ListenAndServe runs the proxy on addr until the listener fails or
// Shutdown is called.
func (o *ProxyObserver) ListenAndServe(addr string) error {
	o.server = &http.Server{Addr: addr, Handler: o.proxy}
	return o.server.ListenAndServe()
}

// Shutdown stops the proxy listener, waiting for in-flight exchanges.
func (o *ProxyObserver) Shutdown(ctx context.Context) error {
	if o.server == nil {
		return nil
	}
	return o.server.Shutdown(ctx)
}

// shadow clones a matched response body for the callbacks and hands the
// original bytes back to the client unchanged.
func (o *ProxyObserver) shadow(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	if resp == nil || ctx.Req == nil {
		return resp
	}
	url := ctx.Req.URL.String()
	fns := o.hooks.matchResponse(url)
	if len(fns) == 0 {
		return resp
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		logging.Warn("proxy_shadow_read", map[string]any{"url": url, "error": err.Error()})
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return resp
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	for _, fn := range fns {
		cp := make([]byte, len(body))
		copy(cp, body)
		go fn(url, cp)
	}
	return resp
}
