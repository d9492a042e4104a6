package api

import (
	"time"

	"updrive/internal/models"
)

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// InfoResponse is returned by the root endpoint.
type InfoResponse struct {
	AppName    string `json:"app_name" yaml:"app_name"`
	AppVersion string `json:"app_version" yaml:"app_version"`
	Status     string `json:"status" yaml:"status"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer access token.
type TokenResponse struct {
	AccessToken string `json:"access_token" yaml:"access_token"`
	TokenType   string `json:"token_type" yaml:"token_type"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID         int64     `json:"id" yaml:"id"`
	Username   string    `json:"username" yaml:"username"`
	Email      string    `json:"email,omitempty" yaml:"email,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UsedBytes  int64     `json:"used_bytes" yaml:"used_bytes"`
	QuotaBytes int64     `json:"quota_bytes" yaml:"quota_bytes"`
}

// NewUserResponse drops private fields from a user.
func NewUserResponse(user *models.User) UserResponse {
	if user == nil {
		return UserResponse{}
	}
	return UserResponse{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		CreatedAt:  user.CreatedAt,
		UsedBytes:  user.UsedBytes,
		QuotaBytes: user.QuotaBytes,
	}
}

// FolderCreateRequest creates a folder; a nil ParentID places it at the root.
type FolderCreateRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

// RenameRequest changes a file's display name.
type RenameRequest struct {
	NewName string `json:"new_name"`
}

// MoveRequest moves a file; a nil FolderID moves it to the root.
type MoveRequest struct {
	FolderID *int64 `json:"folder_id"`
}
