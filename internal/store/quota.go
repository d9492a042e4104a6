package store

import (
	"context"
	"database/sql"
	"fmt"

	"updrive/internal/models"
)

// GetUsage returns the ledger snapshot for one account.
func (s *Store) GetUsage(ctx context.Context, userID int64) (models.Usage, error) {
	var used, quota int64
	err := s.db.QueryRowContext(ctx, "SELECT used_bytes, quota_bytes FROM users WHERE id = ?", userID).Scan(&used, &quota)
	if err == sql.ErrNoRows {
		return models.Usage{}, ErrUserNotFound
	}
	if err != nil {
		return models.Usage{}, err
	}
	return models.NewUsage(used, quota), nil
}

// reserveTx adds size to the owner's usage only when it stays within quota.
// Check and increment are a single statement.
func reserveTx(ctx context.Context, tx *sql.Tx, userID, size int64) error {
	if size < 0 {
		return fmt.Errorf("size must be >= 0")
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE users
		SET used_bytes = used_bytes + ?
		WHERE id = ? AND used_bytes + ? <= quota_bytes
	`, size, userID, size)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id = ?", userID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	return ErrQuotaExceeded
}

// releaseTx subtracts size from the owner's usage, floored at zero.
func releaseTx(ctx context.Context, tx *sql.Tx, userID, size int64) error {
	if size < 0 {
		return fmt.Errorf("size must be >= 0")
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET used_bytes = MAX(0, used_bytes - ?)
		WHERE id = ?
	`, size, userID)
	return err
}
