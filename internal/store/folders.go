package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"updrive/internal/models"
)

const folderColumns = "id, name, owner_id, parent_id, created_at"

// FolderFilter selects folders of one owner. A nil ParentID lists root folders
// unless AllLevels is set.
type FolderFilter struct {
	OwnerID   int64
	ParentID  *int64
	AllLevels bool
}

// CreateFolder inserts a folder under parentID, or at the root when nil.
func (s *Store) CreateFolder(ctx context.Context, ownerID int64, name string, parentID *int64, now time.Time) (_ *models.Folder, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("folder name is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
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

	if parentID != nil {
		if err = checkFolderOwnerTx(ctx, tx, *parentID, ownerID); err != nil {
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO folders (name, owner_id, parent_id, created_at)
		VALUES (?, ?, ?, ?)
	`, name, ownerID, nullInt64(parentID), dbFormatTime(now))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return &models.Folder{
		ID:        id,
		Name:      name,
		OwnerID:   ownerID,
		ParentID:  parentID,
		CreatedAt: now.UTC(),
	}, nil
}

// GetFolder returns nil when no folder matches.
func (s *Store) GetFolder(ctx context.Context, id int64) (*models.Folder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	return scanFolder(row)
}

// ListFolders returns folders newest first.
func (s *Store) ListFolders(ctx context.Context, filter FolderFilter) ([]models.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders WHERE owner_id = ?`
	args := []any{filter.OwnerID}
	switch {
	case filter.AllLevels:
	case filter.ParentID == nil:
		query += " AND parent_id IS NULL"
	default:
		query += " AND parent_id = ?"
		args = append(args, *filter.ParentID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	folders := []models.Folder{}
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		if folder != nil {
			folders = append(folders, *folder)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return folders, nil
}

// checkFolderOwnerTx reports ErrFolderNotFound or ErrForbidden.
func checkFolderOwnerTx(ctx context.Context, tx *sql.Tx, folderID, ownerID int64) error {
	var owner int64
	err := tx.QueryRowContext(ctx, "SELECT owner_id FROM folders WHERE id = ?", folderID).Scan(&owner)
	if err == sql.ErrNoRows {
		return ErrFolderNotFound
	}
	if err != nil {
		return err
	}
	if owner != ownerID {
		return ErrForbidden
	}
	return nil
}

func scanFolder(scanner interface {
	Scan(dest ...any) error
}) (*models.Folder, error) {
	var folder models.Folder
	var parentID sql.NullInt64
	var createdAt string
	if err := scanner.Scan(&folder.ID, &folder.Name, &folder.OwnerID, &parentID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	folder.ParentID = ptrFromNull(parentID)
	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	folder.CreatedAt = parsed
	return &folder, nil
}
