package store

import (
	"context"
	"time"

	"updrive/internal/models"
)

// UserStore abstracts account storage.
type UserStore interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUsage(ctx context.Context, userID int64) (models.Usage, error)
}

// FileStore abstracts the logical file registry and folder tree.
type FileStore interface {
	CreateFile(ctx context.Context, in CreateFileInput) (*CreateFileResult, error)
	GetFileByUUID(ctx context.Context, uuid string) (*models.File, error)
	ListFiles(ctx context.Context, filter FileFilter) ([]models.File, error)
	MoveFile(ctx context.Context, uuid string, requesterID int64, folderID *int64) (*models.File, error)
	RenameFile(ctx context.Context, uuid string, requesterID int64, newName string) (*models.File, error)
	DeleteFile(ctx context.Context, uuid string, requesterID int64) (*DeleteFileResult, error)
	IncrementDownloadCount(ctx context.Context, fileID int64) error
	ReferencedStorageNames(ctx context.Context) (map[string]struct{}, error)

	CreateFolder(ctx context.Context, ownerID int64, name string, parentID *int64, now time.Time) (*models.Folder, error)
	GetFolder(ctx context.Context, id int64) (*models.Folder, error)
	ListFolders(ctx context.Context, filter FolderFilter) ([]models.Folder, error)

	StoreInfo(ctx context.Context) (*StoreInfo, error)
}

var (
	_ UserStore = (*Store)(nil)
	_ FileStore = (*Store)(nil)
)
