package store

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrFolderNotFound = errors.New("folder not found")
	ErrFileNotFound   = errors.New("file not found")
	ErrForbidden      = errors.New("not allowed")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrUsernameTaken  = errors.New("username already registered")
	ErrEmailTaken     = errors.New("email already registered")
)
