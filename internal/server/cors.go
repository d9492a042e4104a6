package server

import (
	"net/http"
	"strings"

	"updrive/internal/config"
)

type corsPolicy struct {
	origins     []string
	anyOrigin   bool
	methods     string
	headers     string
	anyHeader   bool
	credentials bool
}

func newCORSPolicy(cfg config.CORSConfig) *corsPolicy {
	if len(cfg.AllowOrigins) == 0 {
		return nil
	}
	p := &corsPolicy{credentials: cfg.AllowCredentials}
	for _, origin := range cfg.AllowOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			p.anyOrigin = true
			continue
		}
		if origin != "" {
			p.origins = append(p.origins, origin)
		}
	}

	p.methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	if len(cfg.AllowMethods) > 0 && !containsWildcard(cfg.AllowMethods) {
		p.methods = strings.ToUpper(strings.Join(cfg.AllowMethods, ", "))
	}
	if len(cfg.AllowHeaders) == 0 || containsWildcard(cfg.AllowHeaders) {
		p.anyHeader = true
	} else {
		p.headers = strings.Join(cfg.AllowHeaders, ", ")
	}
	return p
}

func containsWildcard(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "*" {
			return true
		}
	}
	return false
}

func (p *corsPolicy) allowedOrigin(origin string) bool {
	if p.anyOrigin {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	for _, allowed := range p.origins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// withCORS answers preflight requests and decorates cross-origin responses.
// The request origin is echoed rather than "*" so credentials stay usable.
func (s *Server) withCORS(next http.Handler) http.Handler {
	if s.cors == nil {
		return next
	}
	p := s.cors
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !p.allowedOrigin(origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		h.Set("Access-Control-Expose-Headers", "Content-Disposition, Content-Length, Retry-After")

		if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
			next.ServeHTTP(w, r)
			return
		}

		h.Set("Access-Control-Allow-Methods", p.methods)
		if p.anyHeader {
			if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
				h.Set("Access-Control-Allow-Headers", requested)
			}
		} else {
			h.Set("Access-Control-Allow-Headers", p.headers)
		}
		h.Set("Access-Control-Max-Age", "600")
		w.WriteHeader(http.StatusNoContent)
	})
}
