package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("secret", "HS256", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, expires, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiry, got %v", expires)
	}
	subject, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if subject != "alice" {
		t.Fatalf("expected alice, got %q", subject)
	}
}

func TestTokenIssuerRejectsExpired(t *testing.T) {
	issuer, err := NewTokenIssuer("secret", "HS256", time.Minute)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	issued := time.Now().Add(-2 * time.Hour)
	issuer.now = func() time.Time { return issued }
	token, _, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	issuer.now = time.Now
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuerRejectsForeignSignatures(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret", "HS256", time.Hour)
	other, _ := NewTokenIssuer("other-secret", "HS256", time.Hour)

	token, _, err := other.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong secret to fail, got %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := issuer.Parse(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg none to fail, got %v", err)
	}

	if _, err := issuer.Parse("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected garbage to fail, got %v", err)
	}
}

func TestNewTokenIssuerValidation(t *testing.T) {
	if _, err := NewTokenIssuer("", "HS256", time.Hour); err == nil {
		t.Fatal("expected missing secret error")
	}
	if _, err := NewTokenIssuer("secret", "RS256", time.Hour); err == nil {
		t.Fatal("expected unsupported algorithm error")
	}
	if _, err := NewTokenIssuer("secret", "hs512", time.Hour); err != nil {
		t.Fatalf("expected lowercase HS512 to be accepted: %v", err)
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{name: "bearer header", header: "Bearer abc", want: "abc"},
		{name: "lowercase bearer", header: "bearer abc", want: "abc"},
		{name: "raw header", header: "abc", want: "abc"},
		{name: "other scheme", header: "Basic Zm9vOmJhcg==", want: ""},
		{name: "cookie fallback", cookie: "xyz", want: "xyz"},
		{name: "header wins", header: "Bearer abc", cookie: "xyz", want: "abc"},
		{name: "nothing", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: CookieName, Value: tt.cookie})
			}
			if got := ExtractToken(r, DefaultExtractors()...); got != tt.want {
				t.Fatalf("ExtractToken()=%q want %q", got, tt.want)
			}
		})
	}
}
