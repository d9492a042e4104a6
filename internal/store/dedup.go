package store

import (
	"context"
	"database/sql"
	"strings"
)

// findStorageBySHA256Tx returns the storage name of any record already
// holding content with the given digest, or "" when none does.
func findStorageBySHA256Tx(ctx context.Context, tx *sql.Tx, sha string) (string, error) {
	sha = strings.ToLower(strings.TrimSpace(sha))
	if sha == "" {
		return "", nil
	}
	var name string
	err := tx.QueryRowContext(ctx, `
		SELECT storage_name FROM files
		WHERE sha256 = ?
		ORDER BY id ASC
		LIMIT 1
	`, sha).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// countStorageRefsTx counts records still pointing at one blob.
func countStorageRefsTx(ctx context.Context, tx *sql.Tx, storageName string) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE storage_name = ?", storageName).Scan(&count)
	return count, err
}

// ReferencedStorageNames returns every storage name referenced by a record.
func (s *Store) ReferencedStorageNames(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT storage_name FROM files")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}
