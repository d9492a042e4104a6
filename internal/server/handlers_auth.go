package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"updrive/internal/api"
	"updrive/internal/audit"
)

const defaultFormMaxBody = 64 << 10

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	user, err := s.auth.Register(r.Context(), req)
	if err != nil {
		s.audit.LogRegistration(strings.TrimSpace(req.Username), audit.ResultDenied, err.Error(), s.clientIP(r))
		s.writeServiceError(w, r, err)
		return
	}
	s.audit.LogRegistration(user.Username, audit.ResultAllowed, "", s.clientIP(r))
	s.writeJSON(w, http.StatusCreated, api.NewUserResponse(user))
}

// handleToken implements the OAuth2 password form flow.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, defaultFormMaxBody)
	if err := r.ParseForm(); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid form body"), ErrCodeInvalidArgument))
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if strings.TrimSpace(username) == "" || password == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("username and password are required"), ErrCodeMissingRequired))
		return
	}

	now := time.Now().UTC()
	limiterKey := s.loginAttemptKey(username, r)
	if !s.loginLimiter.Allow(limiterKey, now) {
		writeRetryAfter(w, s.loginLimiter.RetryAfter(limiterKey, now))
		s.audit.LogAuth(username, "password", audit.ResultDenied, "rate limited", s.clientIP(r))
		s.writeErrorReq(w, r, http.StatusTooManyRequests, apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many login attempts; retry later"),
		})
		return
	}

	result, err := s.auth.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			s.loginLimiter.RegisterFailure(limiterKey, now)
			s.audit.LogAuth(username, "password", audit.ResultDenied, "invalid credentials", s.clientIP(r))
			s.writeErrorReq(w, r, http.StatusUnauthorized, makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeInvalidCredentials, err))
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.loginLimiter.Reset(limiterKey)
	s.audit.LogAuth(result.User.Username, "password", audit.ResultAllowed, "", s.clientIP(r))

	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, http.StatusOK, api.TokenResponse{AccessToken: result.Token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.NewUserResponse(principal.User))
}

func (s *Server) loginAttemptKey(username string, r *http.Request) string {
	user := strings.ToLower(strings.TrimSpace(username))
	if user == "" {
		user = "<empty>"
	}
	ip := s.clientIP(r)
	if ip == "" {
		ip = "<unknown>"
	}
	return ip + "|" + user
}
