package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"updrive/internal/audit"
	"updrive/internal/blobstore"
	"updrive/internal/models"
	"updrive/internal/store"
)

const (
	maxNameLength = 255

	uploadResultAccepted = "accepted"
	uploadResultTooLarge = "too_large"
	uploadResultQuota    = "quota_exceeded"
	uploadResultRejected = "rejected"
	uploadResultFailed   = "failed"

	blobRemovedDedup    = "dedup"
	blobRemovedRejected = "rejected"
	blobRemovedDeleted  = "deleted"
)

// FileService coordinates the blob store with the file registry.
type FileService struct {
	files          store.FileStore
	blobs          blobstore.BlobStore
	maxUploadBytes int64
	logger         *slog.Logger
	metrics        *Metrics
	audit          *audit.Logger
	now            func() time.Time
}

// UploadInput is one streamed upload.
type UploadInput struct {
	OwnerID     int64
	FolderID    *int64
	Filename    string
	ContentType string
	Body        io.Reader
}

func NewFileService(files store.FileStore, blobs blobstore.BlobStore, maxUploadBytes int64, logger *slog.Logger, metrics *Metrics, auditLog *audit.Logger) *FileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileService{
		files:          files,
		blobs:          blobs,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		metrics:        metrics,
		audit:          auditLog,
		now:            time.Now,
	}
}

// Upload writes the body to a fresh blob, then registers it. Bytes hit disk
// before any check, so every rejection removes the fresh blob first.
func (f *FileService) Upload(ctx context.Context, in UploadInput) (*models.File, error) {
	name := uploadDisplayName(in.Filename)
	if name == "" {
		return nil, badRequestCode(fmt.Errorf("filename is required"), ErrCodeMissingRequired)
	}
	if in.Body == nil {
		return nil, badRequestCode(fmt.Errorf("upload body is required"), ErrCodeMissingRequired)
	}

	body := in.Body
	if f.maxUploadBytes > 0 {
		body = io.LimitReader(in.Body, f.maxUploadBytes+1)
	}
	written, err := f.blobs.Write(ctx, name, body)
	if err != nil {
		if isMaxBytesError(err) {
			f.metrics.RecordUpload(uploadResultTooLarge, 0)
			return nil, f.tooLarge()
		}
		if errors.Is(err, blobstore.ErrIO) {
			f.metrics.RecordUpload(uploadResultFailed, 0)
			return nil, storageFailure(err)
		}
		f.metrics.RecordUpload(uploadResultFailed, 0)
		return nil, badRequestCode(fmt.Errorf("upload interrupted: %w", err), ErrCodeInvalidMultipart)
	}

	if f.maxUploadBytes > 0 && written.SizeBytes > f.maxUploadBytes {
		f.discardBlob(ctx, written.StorageName, blobRemovedRejected)
		f.metrics.RecordUpload(uploadResultTooLarge, 0)
		f.audit.LogFileOp(in.OwnerID, "upload", "", audit.ResultDenied, written.SizeBytes, "file too large")
		return nil, f.tooLarge()
	}

	result, err := f.files.CreateFile(ctx, store.CreateFileInput{
		OwnerID:      in.OwnerID,
		FolderID:     in.FolderID,
		OriginalName: name,
		StorageName:  written.StorageName,
		Size:         written.SizeBytes,
		MimeType:     resolveMediaType(in.ContentType, name),
		SHA256:       written.SHA256,
		CreatedAt:    f.now().UTC(),
	})
	if err != nil {
		f.discardBlob(ctx, written.StorageName, blobRemovedRejected)
		switch {
		case errors.Is(err, store.ErrQuotaExceeded):
			f.metrics.RecordUpload(uploadResultQuota, 0)
			f.audit.LogFileOp(in.OwnerID, "upload", "", audit.ResultDenied, written.SizeBytes, "quota exceeded")
		case errors.Is(err, store.ErrForbidden):
			f.metrics.RecordUpload(uploadResultRejected, 0)
			f.audit.LogAuthz(in.OwnerID, "upload", "folder", folderIDString(in.FolderID), audit.ResultDenied, "folder owned by another user")
		case errors.Is(err, store.ErrFolderNotFound):
			f.metrics.RecordUpload(uploadResultRejected, 0)
		default:
			f.metrics.RecordUpload(uploadResultFailed, 0)
		}
		return nil, domainError(err)
	}

	if result.Deduplicated {
		f.discardBlob(ctx, written.StorageName, blobRemovedDedup)
		f.metrics.RecordDedup(written.SizeBytes)
	}
	f.metrics.RecordUpload(uploadResultAccepted, written.SizeBytes)
	f.audit.LogFileOp(in.OwnerID, "upload", result.File.UUID, audit.ResultAllowed, written.SizeBytes, dedupDetail(result.Deduplicated))
	return result.File, nil
}

func (f *FileService) tooLarge() error {
	return payloadTooLarge(fmt.Errorf("file too large; max %d MB", f.maxUploadBytes/(1024*1024)))
}

// Open authorises a download and returns the record with a reader over its blob.
func (f *FileService) Open(ctx context.Context, fileID string, requesterID int64) (*models.File, io.ReadCloser, error) {
	file, err := f.authorize(ctx, fileID, requesterID, "download")
	if err != nil {
		return nil, nil, err
	}
	rc, err := f.blobs.Open(ctx, file.StorageName)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			f.logger.Error("blob missing for registered file", "file_id", file.UUID, "storage_name", file.StorageName)
		}
		return nil, nil, domainError(err)
	}
	return file, rc, nil
}

// Delete removes the record and, when it was the last reference, its blob.
func (f *FileService) Delete(ctx context.Context, fileID string, requesterID int64) error {
	result, err := f.files.DeleteFile(ctx, fileID, requesterID)
	if err != nil {
		f.auditDenied(requesterID, "delete", fileID, err)
		return domainError(err)
	}
	if result.BlobOrphaned {
		f.discardBlob(ctx, result.File.StorageName, blobRemovedDeleted)
	}
	f.audit.LogFileOp(requesterID, "delete", result.File.UUID, audit.ResultAllowed, result.File.Size, "")
	return nil
}

// Rename changes a file's display name.
func (f *FileService) Rename(ctx context.Context, fileID string, requesterID int64, newName string) (*models.File, error) {
	name, err := validateDisplayName(newName, "new_name")
	if err != nil {
		return nil, err
	}
	file, err := f.files.RenameFile(ctx, fileID, requesterID, name)
	if err != nil {
		f.auditDenied(requesterID, "rename", fileID, err)
		return nil, domainError(err)
	}
	return file, nil
}

// Move places a file under folderID, or at the root when nil.
func (f *FileService) Move(ctx context.Context, fileID string, requesterID int64, folderID *int64) (*models.File, error) {
	file, err := f.files.MoveFile(ctx, fileID, requesterID, folderID)
	if err != nil {
		f.auditDenied(requesterID, "move", fileID, err)
		return nil, domainError(err)
	}
	return file, nil
}

// List returns the requester's files, newest first.
func (f *FileService) List(ctx context.Context, filter store.FileFilter) ([]models.File, error) {
	files, err := f.files.ListFiles(ctx, filter)
	if err != nil {
		return nil, domainError(err)
	}
	if files == nil {
		files = []models.File{}
	}
	return files, nil
}

// Drive lists the folders and files directly under folderID or the root.
func (f *FileService) Drive(ctx context.Context, ownerID int64, folderID *int64) (*models.DriveListing, error) {
	if folderID != nil {
		if err := f.ownedFolder(ctx, ownerID, *folderID, "drive"); err != nil {
			return nil, err
		}
	}
	folders, err := f.files.ListFolders(ctx, store.FolderFilter{OwnerID: ownerID, ParentID: folderID})
	if err != nil {
		return nil, domainError(err)
	}
	files, err := f.files.ListFiles(ctx, store.FileFilter{OwnerID: ownerID, InFolder: true, FolderID: folderID, Limit: -1})
	if err != nil {
		return nil, domainError(err)
	}
	if folders == nil {
		folders = []models.Folder{}
	}
	if files == nil {
		files = []models.File{}
	}
	return &models.DriveListing{Folders: folders, Files: files}, nil
}

// CreateFolder validates the name and delegates parent checks to the store.
func (f *FileService) CreateFolder(ctx context.Context, ownerID int64, name string, parentID *int64) (*models.Folder, error) {
	clean := strings.TrimSpace(name)
	if clean == "" || utf8.RuneCountInString(clean) > maxNameLength {
		return nil, badRequestCode(fmt.Errorf("folder name must be 1-%d characters", maxNameLength), ErrCodeInvalidFolderName)
	}
	folder, err := f.files.CreateFolder(ctx, ownerID, clean, parentID, f.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrForbidden) {
			f.audit.LogAuthz(ownerID, "create", "folder", folderIDString(parentID), audit.ResultDenied, "parent owned by another user")
		}
		return nil, domainError(err)
	}
	return folder, nil
}

// ListFolders returns every folder of the owner.
func (f *FileService) ListFolders(ctx context.Context, ownerID int64) ([]models.Folder, error) {
	folders, err := f.files.ListFolders(ctx, store.FolderFilter{OwnerID: ownerID, AllLevels: true})
	if err != nil {
		return nil, domainError(err)
	}
	if folders == nil {
		folders = []models.Folder{}
	}
	return folders, nil
}

// ValidateFolder checks a folder filter against the owner.
func (f *FileService) ValidateFolder(ctx context.Context, ownerID int64, folderID *int64) error {
	if folderID == nil {
		return nil
	}
	return f.ownedFolder(ctx, ownerID, *folderID, "list")
}

func (f *FileService) ownedFolder(ctx context.Context, ownerID, folderID int64, verb string) error {
	folder, err := f.files.GetFolder(ctx, folderID)
	if err != nil {
		return domainError(err)
	}
	if folder == nil {
		return notFoundCode(fmt.Errorf("folder not found"), ErrCodeFolderNotFound)
	}
	if folder.OwnerID != ownerID {
		f.audit.LogAuthz(ownerID, verb, "folder", folderIDString(&folderID), audit.ResultDenied, "folder owned by another user")
		return forbidden(fmt.Errorf("no access to folder"))
	}
	return nil
}

func (f *FileService) authorize(ctx context.Context, fileID string, requesterID int64, verb string) (*models.File, error) {
	file, err := f.files.GetFileByUUID(ctx, fileID)
	if err != nil {
		return nil, domainError(err)
	}
	if file == nil {
		return nil, notFoundCode(fmt.Errorf("file not found"), ErrCodeFileNotFound)
	}
	if file.OwnerID != requesterID {
		f.audit.LogAuthz(requesterID, verb, "file", fileID, audit.ResultDenied, "file owned by another user")
		return nil, forbidden(fmt.Errorf("not allowed"))
	}
	return file, nil
}

func (f *FileService) auditDenied(requesterID int64, verb, fileID string, err error) {
	if errors.Is(err, store.ErrForbidden) {
		f.audit.LogAuthz(requesterID, verb, "file", fileID, audit.ResultDenied, err.Error())
	}
}

// discardBlob removes a blob that no record references. Failures are logged
// and left for gc.
func (f *FileService) discardBlob(ctx context.Context, storageName, reason string) {
	ctx = context.WithoutCancel(ctx)
	if err := f.blobs.Remove(ctx, storageName); err != nil {
		f.logger.Warn("remove blob", "storage_name", storageName, "reason", reason, "error", err)
		return
	}
	f.metrics.RecordBlobRemoved(reason)
}

// uploadDisplayName keeps only the final element of a client-supplied path.
func uploadDisplayName(filename string) string {
	name := strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return strings.TrimSpace(name)
}

func validateDisplayName(name, field string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", badRequestCode(fmt.Errorf("%s is required", field), ErrCodeMissingRequired)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", badRequestCode(fmt.Errorf("%s must be at most %d characters", field, maxNameLength), ErrCodeInvalidArgument)
	}
	return name, nil
}

// resolveMediaType prefers the declared part type, then the extension.
func resolveMediaType(declared, name string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != models.DefaultMediaType {
		if _, _, err := mime.ParseMediaType(declared); err == nil {
			return declared
		}
	}
	if guessed := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); guessed != "" {
		return guessed
	}
	if declared != "" {
		return declared
	}
	return models.DefaultMediaType
}

func isMaxBytesError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func dedupDetail(deduplicated bool) string {
	if deduplicated {
		return "deduplicated"
	}
	return ""
}

func folderIDString(id *int64) string {
	if id == nil {
		return "root"
	}
	return strconv.FormatInt(*id, 10)
}
