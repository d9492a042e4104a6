package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"updrive/internal/models"
)

const fileColumns = "id, uuid, owner_id, folder_id, original_name, storage_name, size, COALESCE(mime_type, ''), COALESCE(sha256, ''), download_count, created_at"

// CreateFileInput describes a freshly written blob to register.
type CreateFileInput struct {
	UUID         string
	OwnerID      int64
	FolderID     *int64
	OriginalName string
	StorageName  string
	Size         int64
	MimeType     string
	SHA256       string
	CreatedAt    time.Time
}

// CreateFileResult reports the inserted record. When Deduplicated is set the
// record points at an existing blob and the fresh one is redundant.
type CreateFileResult struct {
	File         *models.File
	Deduplicated bool
}

// DeleteFileResult reports the removed record. BlobOrphaned is set when no
// other record references its storage name.
type DeleteFileResult struct {
	File         *models.File
	BlobOrphaned bool
}

// FileFilter selects one owner's files. With InFolder set only files directly
// under FolderID (nil for root) are returned.
type FileFilter struct {
	OwnerID  int64
	InFolder bool
	FolderID *int64
	Limit    int
	Offset   int
}

// CreateFile checks the target folder, reserves quota, resolves duplicate
// content and inserts the record in one transaction.
func (s *Store) CreateFile(ctx context.Context, in CreateFileInput) (_ *CreateFileResult, err error) {
	in.OriginalName = strings.TrimSpace(in.OriginalName)
	in.StorageName = strings.TrimSpace(in.StorageName)
	in.SHA256 = strings.ToLower(strings.TrimSpace(in.SHA256))
	if in.StorageName == "" {
		return nil, fmt.Errorf("storage_name is required")
	}
	if in.Size < 0 {
		return nil, fmt.Errorf("size must be >= 0")
	}
	if in.UUID == "" {
		in.UUID = uuid.NewString()
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

	if in.FolderID != nil {
		if err = checkFolderOwnerTx(ctx, tx, *in.FolderID, in.OwnerID); err != nil {
			return nil, err
		}
	}
	if err = reserveTx(ctx, tx, in.OwnerID, in.Size); err != nil {
		return nil, err
	}

	existing, err := findStorageBySHA256Tx(ctx, tx, in.SHA256)
	if err != nil {
		return nil, err
	}
	storageName := in.StorageName
	deduplicated := false
	if existing != "" && existing != in.StorageName {
		storageName = existing
		deduplicated = true
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO files (uuid, owner_id, folder_id, original_name, storage_name, size, mime_type, sha256, download_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, in.UUID, in.OwnerID, nullInt64(in.FolderID), in.OriginalName, storageName, in.Size,
		nullIfEmpty(in.MimeType), nullIfEmpty(in.SHA256), dbFormatTime(in.CreatedAt))
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

	return &CreateFileResult{
		File: &models.File{
			ID:           id,
			UUID:         in.UUID,
			OwnerID:      in.OwnerID,
			FolderID:     in.FolderID,
			OriginalName: in.OriginalName,
			StorageName:  storageName,
			Size:         in.Size,
			MimeType:     in.MimeType,
			SHA256:       in.SHA256,
			CreatedAt:    in.CreatedAt.UTC(),
		},
		Deduplicated: deduplicated,
	}, nil
}

// GetFileByUUID returns nil when no record matches.
func (s *Store) GetFileByUUID(ctx context.Context, id string) (*models.File, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE uuid = ?`, id)
	return scanFile(row)
}

// ListFiles returns files newest first.
func (s *Store) ListFiles(ctx context.Context, filter FileFilter) ([]models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = ?`
	args := []any{filter.OwnerID}
	if filter.InFolder {
		if filter.FolderID == nil {
			query += " AND folder_id IS NULL"
		} else {
			query += " AND folder_id = ?"
			args = append(args, *filter.FolderID)
		}
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, max(filter.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []models.File{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		if file != nil {
			files = append(files, *file)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// MoveFile places the file under folderID, or at the root when nil.
func (s *Store) MoveFile(ctx context.Context, id string, requesterID int64, folderID *int64) (_ *models.File, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	file, err := ownedFileTx(ctx, tx, id, requesterID)
	if err != nil {
		return nil, err
	}
	if folderID != nil {
		if err = checkFolderOwnerTx(ctx, tx, *folderID, requesterID); err != nil {
			return nil, err
		}
	}
	if _, err = tx.ExecContext(ctx, "UPDATE files SET folder_id = ? WHERE id = ?", nullInt64(folderID), file.ID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	file.FolderID = folderID
	return file, nil
}

// RenameFile changes the display name only.
func (s *Store) RenameFile(ctx context.Context, id string, requesterID int64, newName string) (_ *models.File, err error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, fmt.Errorf("new name is required")
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

	file, err := ownedFileTx(ctx, tx, id, requesterID)
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, "UPDATE files SET original_name = ? WHERE id = ?", newName, file.ID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	file.OriginalName = newName
	return file, nil
}

// DeleteFile removes the record, releases its size from the owner's usage
// and reports whether the blob lost its last reference.
func (s *Store) DeleteFile(ctx context.Context, id string, requesterID int64) (_ *DeleteFileResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	file, err := ownedFileTx(ctx, tx, id, requesterID)
	if err != nil {
		return nil, err
	}
	if err = releaseTx(ctx, tx, file.OwnerID, file.Size); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM files WHERE id = ?", file.ID); err != nil {
		return nil, err
	}
	refs, err := countStorageRefsTx(ctx, tx, file.StorageName)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return &DeleteFileResult{File: file, BlobOrphaned: refs == 0}, nil
}

// IncrementDownloadCount bumps the counter by one.
func (s *Store) IncrementDownloadCount(ctx context.Context, fileID int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE files SET download_count = download_count + 1 WHERE id = ?", fileID)
	return err
}

func ownedFileTx(ctx context.Context, tx *sql.Tx, id string, requesterID int64) (*models.File, error) {
	file, err := scanFile(tx.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE uuid = ?`, strings.TrimSpace(id)))
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, ErrFileNotFound
	}
	if file.OwnerID != requesterID {
		return nil, ErrForbidden
	}
	return file, nil
}

func scanFile(scanner interface {
	Scan(dest ...any) error
}) (*models.File, error) {
	var file models.File
	var folderID sql.NullInt64
	var createdAt string
	if err := scanner.Scan(
		&file.ID,
		&file.UUID,
		&file.OwnerID,
		&folderID,
		&file.OriginalName,
		&file.StorageName,
		&file.Size,
		&file.MimeType,
		&file.SHA256,
		&file.DownloadCount,
		&createdAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	file.FolderID = ptrFromNull(folderID)
	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	file.CreatedAt = parsed
	return &file, nil
}
