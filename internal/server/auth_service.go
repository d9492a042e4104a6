package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"updrive/internal/api"
	internalauth "updrive/internal/auth"
	"updrive/internal/models"
	"updrive/internal/store"
)

const (
	authTypeBearer = "bearer"
	authTypeCookie = "cookie"
)

var errInvalidCredentials = errors.New("incorrect username or password")

// AuthService registers accounts, checks passwords and resolves access tokens.
type AuthService struct {
	users        store.UserStore
	tokens       *internalauth.TokenIssuer
	defaultQuota int64
	now          func() time.Time
}

type authLoginResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

func NewAuthService(users store.UserStore, tokens *internalauth.TokenIssuer, defaultQuota int64) *AuthService {
	return &AuthService{
		users:        users,
		tokens:       tokens,
		defaultQuota: defaultQuota,
		now:          time.Now,
	}
}

// Register validates the request and creates an account with the default quota.
func (a *AuthService) Register(ctx context.Context, req api.RegisterRequest) (*models.User, error) {
	username, err := internalauth.NormalizeUsername(req.Username)
	if err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidUsername)
	}
	email, err := internalauth.NormalizeEmail(req.Email)
	if err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidEmail)
	}
	hash, err := internalauth.HashPassword(req.Password)
	if err != nil {
		return nil, badRequestCode(err, ErrCodeInvalidPassword)
	}
	return a.users.CreateUser(ctx, store.CreateUserInput{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		QuotaBytes:   a.defaultQuota,
		CreatedAt:    a.now().UTC(),
	})
}

// Login verifies a password and issues an access token.
func (a *AuthService) Login(ctx context.Context, username, password string) (*authLoginResult, error) {
	normalized, err := internalauth.NormalizeUsername(username)
	if err != nil {
		return nil, errInvalidCredentials
	}
	if strings.TrimSpace(password) == "" {
		return nil, errInvalidCredentials
	}

	user, err := a.users.GetUserByUsername(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil || !internalauth.VerifyPassword(user.PasswordHash, password) {
		return nil, errInvalidCredentials
	}

	token, expiresAt, err := a.tokens.Issue(user.Username)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &authLoginResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves a token to its account. Unknown subjects are invalid.
func (a *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	subject, err := a.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	user, err := a.users.GetUserByUsername(ctx, subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, internalauth.ErrInvalidToken
	}
	return user, nil
}
