// Package bridge serves the browser-facing tier. It holds the access token in
// an HttpOnly cookie and forwards requests to the core API as a bearer token.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"updrive/internal/api"
	internalauth "updrive/internal/auth"
)

const (
	rememberFor       = 30 * 24 * time.Hour
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
	formMaxBody       = 64 << 10
)

// Options configures a Bridge.
type Options struct {
	APIURL       string
	SecureCookie bool
	Logger       *slog.Logger
	Transport    http.RoundTripper
}

// Bridge converts cookie sessions into bearer calls against the core API.
type Bridge struct {
	backend      *url.URL
	client       *api.Client
	transfer     *http.Client
	proxy        *httputil.ReverseProxy
	logger       *slog.Logger
	secureCookie bool
}

// New validates the backend URL and builds the proxy.
func New(opts Options) (*Bridge, error) {
	raw := strings.TrimSpace(opts.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("backend api url is required")
	}
	backend, err := url.Parse(raw)
	if err != nil || backend.Scheme == "" || backend.Host == "" {
		return nil, fmt.Errorf("invalid backend api url %q", raw)
	}
	backend.Path = strings.TrimRight(backend.Path, "/")

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	b := &Bridge{
		backend:      backend,
		client:       api.NewClient(backend.String()).WithToken(""),
		transfer:     &http.Client{Transport: transport},
		logger:       logger,
		secureCookie: opts.SecureCookie,
	}
	b.proxy = &httputil.ReverseProxy{
		Rewrite:        b.rewrite,
		Transport:      transport,
		FlushInterval:  -1,
		ModifyResponse: filterResponseHeaders,
		ErrorHandler:   b.proxyError,
	}
	return b, nil
}

// Handler returns the bridge's routes wrapped in request logging.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", b.handleHealth)
	mux.HandleFunc("POST /login", b.handleLogin)
	mux.HandleFunc("POST /logout", b.handleLogout)
	mux.HandleFunc("POST /register", b.handleRegister)
	mux.HandleFunc("POST /web/api/upload", b.handleUpload)
	mux.HandleFunc("/web/api/", b.handleProxy)
	return b.withRequestLogging(mux)
}

// ListenAndServe runs the bridge until ctx is cancelled.
func (b *Bridge) ListenAndServe(ctx context.Context, addr string) error {
	b.logger.Info("starting bridge", "addr", addr, "backend", b.backend.String())
	server := &http.Server{
		Addr:              addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// cookieToken returns the session token or writes 401.
func (b *Bridge) cookieToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := internalauth.CookieExtractor(internalauth.CookieName)(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthenticated"})
		return "", false
	}
	return token, true
}

// backendPath maps /web/api/... onto the backend's /api/....
func (b *Bridge) backendPath(inPath string) string {
	rest := strings.TrimPrefix(inPath, "/web/api")
	return b.backend.Path + "/api" + rest
}

func (b *Bridge) backendUnreachable(w http.ResponseWriter, r *http.Request, err error) {
	b.logger.Error("backend unreachable", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusBadGateway, api.ErrorResponse{Error: "backend unreachable", Code: "backend_unreachable"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (b *Bridge) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		status := rw.status
		if status == 0 {
			status = http.StatusOK
		}
		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if status >= 500 {
			b.logger.Error("bridge request complete", fields...)
			return
		}
		b.logger.Debug("bridge request complete", fields...)
	})
}
