package server

import (
	"errors"
	"fmt"
	"net/http"

	internalauth "updrive/internal/auth"
	"updrive/internal/audit"
)

// withAuth requires a valid access token from the Authorization header or
// the access_token cookie.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := internalauth.ExtractToken(r, s.extractors...)
		authType := authTypeCookie
		if internalauth.HeaderExtractor(r) != "" {
			authType = authTypeBearer
		}
		if token == "" {
			s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("not authenticated")))
			return
		}

		user, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, internalauth.ErrInvalidToken) {
				s.audit.LogAuth("", authType, audit.ResultDenied, err.Error(), s.clientIP(r))
				s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(err))
				return
			}
			s.writeServiceError(w, r, err)
			return
		}

		ctx := contextWithAuthPrincipal(r.Context(), authPrincipal{AuthType: authType, User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withAuthFunc(fn http.HandlerFunc) http.Handler {
	return s.withAuth(fn)
}

// requirePrincipal writes 401 when the request carries no authenticated user.
func (s *Server) requirePrincipal(w http.ResponseWriter, r *http.Request) (authPrincipal, bool) {
	principal, ok := authPrincipalFromContext(r.Context())
	if !ok {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("not authenticated")))
		return authPrincipal{}, false
	}
	return principal, true
}
