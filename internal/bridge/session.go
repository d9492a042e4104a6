package bridge

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"updrive/internal/api"
	internalauth "updrive/internal/auth"
)

// handleLogin exchanges form credentials for a token and stores it in the
// session cookie.
func (b *Bridge) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "username and password are required", Code: "invalid_argument"})
		return
	}

	resp, err := b.client.Token(api.WithForwardedFor(r.Context(), peerIP(r)), username, password)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			if apiErr.Status == http.StatusTooManyRequests {
				writeJSON(w, http.StatusTooManyRequests, api.ErrorResponse{Error: apiErr.Message, Code: "resource_exhausted"})
				return
			}
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "invalid credentials", Code: "unauthorized"})
			return
		}
		b.backendUnreachable(w, r, err)
		return
	}
	if resp.AccessToken == "" {
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "login failed, no token", Code: "internal"})
		return
	}

	cookie := &http.Cookie{
		Name:     internalauth.CookieName,
		Value:    resp.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   b.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if remember, _ := strconv.ParseBool(r.PostForm.Get("remember")); remember || r.PostForm.Get("remember") == "on" {
		cookie.MaxAge = int(rememberFor / time.Second)
	}
	http.SetCookie(w, cookie)
	http.Redirect(w, r, "/drive", http.StatusSeeOther)
}

func (b *Bridge) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     internalauth.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   b.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleRegister forwards the form to the backend's JSON registration.
func (b *Bridge) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	_, err := b.client.Register(api.WithForwardedFor(r.Context(), peerIP(r)), api.RegisterRequest{
		Username: r.PostForm.Get("username"),
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	})
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
				Error:     "register failed: " + apiErr.Message,
				Code:      apiErr.Code,
				ErrorCode: apiErr.ErrorCode,
			})
			return
		}
		b.backendUnreachable(w, r, err)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, formMaxBody)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid form body", Code: "invalid_argument"})
		return false
	}
	return true
}
