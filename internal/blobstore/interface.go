package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrIO marks a failure to open or write the backing file.
	ErrIO = errors.New("blob storage i/o failure")
	// ErrBlobNotFound is returned by Open when no blob exists under the name.
	ErrBlobNotFound = errors.New("blob not found")
)

// WriteResult describes one persisted upload payload.
type WriteResult struct {
	SizeBytes   int64
	SHA256      string
	StorageName string
	Path        string
}

// BlobInfo describes one blob found on disk.
type BlobInfo struct {
	StorageName string
	SizeBytes   int64
	ModTime     time.Time
}

// BlobStore is the byte-storage abstraction used by FileService.
type BlobStore interface {
	Write(ctx context.Context, displayName string, r io.Reader) (WriteResult, error)
	Locate(name string) (string, bool)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) ([]BlobInfo, error)
}
