package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"

	"updrive/internal/api"
)

type tokenKey struct{}

// forwardedRequestHeaders are the only client headers sent to the backend.
var forwardedRequestHeaders = []string{"Content-Type", "Content-Length", "Accept", "User-Agent"}

// relayedResponseHeaders are the only backend headers sent to the browser.
var relayedResponseHeaders = []string{"Content-Type", "Content-Length", "Content-Disposition", "Retry-After", "WWW-Authenticate"}

func (b *Bridge) handleProxy(w http.ResponseWriter, r *http.Request) {
	token, ok := b.cookieToken(w, r)
	if !ok {
		return
	}
	ctx := context.WithValue(r.Context(), tokenKey{}, token)
	b.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func (b *Bridge) rewrite(pr *httputil.ProxyRequest) {
	out := pr.Out
	out.URL.Scheme = b.backend.Scheme
	out.URL.Host = b.backend.Host
	out.URL.Path = b.backendPath(pr.In.URL.Path)
	out.URL.RawPath = ""
	out.URL.RawQuery = pr.In.URL.RawQuery
	out.Host = ""

	out.Header = copyHeaders(pr.In.Header, forwardedRequestHeaders)
	if token, _ := pr.In.Context().Value(tokenKey{}).(string); token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if ip := peerIP(pr.In); ip != "" {
		out.Header.Set(api.ForwardedForHeader, ip)
	}
}

func filterResponseHeaders(resp *http.Response) error {
	resp.Header = copyHeaders(resp.Header, relayedResponseHeaders)
	return nil
}

func (b *Bridge) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		b.logger.Debug("client went away", "path", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	b.backendUnreachable(w, r, err)
}

func copyHeaders(src http.Header, keys []string) http.Header {
	dst := make(http.Header, len(keys))
	for _, key := range keys {
		if values := src.Values(key); len(values) > 0 {
			dst[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
		}
	}
	return dst
}

// peerIP is the browser's address as seen by the bridge. Incoming
// X-Forwarded-For is ignored.
func peerIP(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
