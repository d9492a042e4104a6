package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"updrive/internal/models"
)

const userColumns = "id, username, COALESCE(email, ''), password_hash, used_bytes, quota_bytes, created_at"

// CreateUserInput carries the fields for a new account.
type CreateUserInput struct {
	Username     string
	Email        string
	PasswordHash string
	QuotaBytes   int64
	CreatedAt    time.Time
}

// CreateUser inserts an account with zero usage.
func (s *Store) CreateUser(ctx context.Context, in CreateUserInput) (_ *models.User, err error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return nil, fmt.Errorf("password hash is required")
	}
	if in.QuotaBytes < 0 {
		return nil, fmt.Errorf("quota_bytes must be >= 0")
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE username = ? LIMIT 1", in.Username).Scan(&exists)
	if err == nil {
		err = ErrUsernameTaken
		return nil, err
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	if in.Email != "" {
		err = tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE email = ? LIMIT 1", in.Email).Scan(&exists)
		if err == nil {
			err = ErrEmailTaken
			return nil, err
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, used_bytes, quota_bytes, created_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, in.Username, nullIfEmpty(in.Email), in.PasswordHash, in.QuotaBytes, dbFormatTime(in.CreatedAt))
	if err != nil {
		switch {
		case isUniqueViolation(err, "users.username"):
			err = ErrUsernameTaken
		case isUniqueViolation(err, "users.email"):
			err = ErrEmailTaken
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return &models.User{
		ID:           id,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		UsedBytes:    0,
		QuotaBytes:   in.QuotaBytes,
		CreatedAt:    in.CreatedAt.UTC(),
	}, nil
}

// GetUserByUsername returns nil when no account matches.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ? LIMIT 1`, username)
	return scanUser(row)
}

// GetUserByID returns nil when no account matches.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id)
	return scanUser(row)
}

func scanUser(scanner interface {
	Scan(dest ...any) error
}) (*models.User, error) {
	var user models.User
	var createdAt string
	if err := scanner.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.UsedBytes, &user.QuotaBytes, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = parsed
	return &user, nil
}
