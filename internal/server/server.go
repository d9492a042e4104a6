package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"updrive/internal/audit"
	internalauth "updrive/internal/auth"
	"updrive/internal/blobstore"
	"updrive/internal/config"
	"updrive/internal/store"
)

const (
	allowRemoteEnvKey      = "UPDRIVE_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 30 * time.Second
	writeTimeout           = 60 * time.Second
	idleTimeout            = 60 * time.Second
	shutdownTimeout        = 10 * time.Second
	uploadConcurrencyLimit = 8
)

// Options wires a Server to its stores and settings.
type Options struct {
	Addr              string
	Users             store.UserStore
	Files             store.FileStore
	Blobs             blobstore.BlobStore
	Tokens            *internalauth.TokenIssuer
	Logger            *slog.Logger
	Audit             *audit.Logger
	Metrics           *Metrics
	MaxUploadBytes    int64
	DefaultQuotaBytes int64
	CORS              config.CORSConfig
	RateLimit         config.RateLimitConfig
	TrustedProxies    []string
	AppName           string
	AppVersion        string
}

// Server wraps HTTP handlers for the updrive API.
type Server struct {
	addr           string
	users          store.UserStore
	auth           *AuthService
	files          *FileService
	downloads      *downloadCounter
	extractors     []internalauth.TokenExtractor
	logger         *slog.Logger
	audit          *audit.Logger
	metrics        *Metrics
	cors           *corsPolicy
	limiter        *rateLimiter
	loginLimiter   *loginRateLimiter
	uploadLimiter  chan struct{}
	compress       func(http.Handler) http.HandlerFunc
	trustedProxies []netip.Prefix
	maxUploadBytes int64
	appName        string
	appVersion     string
}

// New creates a new server instance.
func New(opts Options) (*Server, error) {
	if opts.Users == nil || opts.Files == nil {
		return nil, fmt.Errorf("user and file stores are required")
	}
	if opts.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditLog := opts.Audit
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	appName := opts.AppName
	if appName == "" {
		appName = config.AppName
	}
	appVersion := opts.AppVersion
	if appVersion == "" {
		appVersion = config.AppVersion
	}

	trustedProxies, err := parseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}
	compress, err := newJSONCompressor()
	if err != nil {
		return nil, fmt.Errorf("response compression: %w", err)
	}

	s := &Server{
		addr:           opts.Addr,
		users:          opts.Users,
		auth:           NewAuthService(opts.Users, opts.Tokens, opts.DefaultQuotaBytes),
		files:          NewFileService(opts.Files, opts.Blobs, opts.MaxUploadBytes, logger, metrics, auditLog),
		downloads:      newDownloadCounter(opts.Files, logger, metrics),
		extractors:     internalauth.DefaultExtractors(),
		logger:         logger,
		audit:          auditLog,
		metrics:        metrics,
		cors:           newCORSPolicy(opts.CORS),
		loginLimiter:   newLoginRateLimiter(loginMaxFailures, loginWindow, loginBlockFor),
		uploadLimiter:  make(chan struct{}, uploadConcurrencyLimit),
		compress:       compress,
		trustedProxies: trustedProxies,
		maxUploadBytes: opts.MaxUploadBytes,
		appName:        appName,
		appVersion:     appVersion,
	}
	if opts.RateLimit.Enabled {
		s.limiter = newRateLimiter(opts.RateLimit.RequestsPerMinute, time.Minute)
	}
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// ListenAndServe starts the HTTP server and its background workers. It shuts
// down gracefully when ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	stopWorkers := s.startWorkers()
	defer stopWorkers()

	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
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

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// startWorkers launches the background workers. The returned func cancels
// them and blocks until queued download counts are written.
func (s *Server) startWorkers() func() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.downloads.run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.limiter.run(ctx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
