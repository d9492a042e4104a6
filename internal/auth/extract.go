package auth

import (
	"net/http"
	"strings"
)

// CookieName holds the access token on browser-facing tiers.
const CookieName = "access_token"

// TokenExtractor pulls a raw token from a request, or returns "".
type TokenExtractor func(r *http.Request) string

// HeaderExtractor reads Authorization as either a raw token or "Bearer <token>".
func HeaderExtractor(r *http.Request) string {
	value := strings.TrimSpace(r.Header.Get("Authorization"))
	if value == "" {
		return ""
	}
	if len(value) > len("bearer ") && strings.EqualFold(value[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(value[len("bearer "):])
	}
	if strings.Contains(value, " ") {
		return ""
	}
	return value
}

// CookieExtractor reads the named cookie.
func CookieExtractor(name string) TokenExtractor {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(cookie.Value)
	}
}

// DefaultExtractors tries the Authorization header, then the access_token cookie.
func DefaultExtractors() []TokenExtractor {
	return []TokenExtractor{HeaderExtractor, CookieExtractor(CookieName)}
}

// ExtractToken returns the first non-empty token found.
func ExtractToken(r *http.Request, extractors ...TokenExtractor) string {
	for _, extract := range extractors {
		if token := extract(r); token != "" {
			return token
		}
	}
	return ""
}
