package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	writeChunkSize   = 1 << 20 // 1 MiB
	maxSanitizedName = 200
)

// LocalStore keeps blobs as flat files named {token}_{sanitized name}.
type LocalStore struct {
	root string
}

// NewLocalStore creates a blob store rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute blob directory.
func (s *LocalStore) Root() string {
	return s.root
}

// Write streams r to a fresh blob while hashing it. A failed write removes
// the partial file before returning.
func (s *LocalStore) Write(ctx context.Context, displayName string, r io.Reader) (WriteResult, error) {
	var zero WriteResult
	if s == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	name := NewStorageName(displayName)
	path := filepath.Join(s.root, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return zero, fmt.Errorf("%w: open %s: %w", ErrIO, name, err)
	}
	discard := func() {
		_ = f.Close()
		_ = os.Remove(path)
	}

	h := sha256.New()
	dst := &trackingWriter{w: f}
	n, err := io.CopyBuffer(io.MultiWriter(dst, h), r, make([]byte, writeChunkSize))
	if err != nil {
		discard()
		if dst.err != nil {
			return zero, fmt.Errorf("%w: write %s: %w", ErrIO, name, err)
		}
		return zero, fmt.Errorf("read upload: %w", err)
	}
	if err := f.Sync(); err != nil {
		discard()
		return zero, fmt.Errorf("%w: sync %s: %w", ErrIO, name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return zero, fmt.Errorf("%w: close %s: %w", ErrIO, name, err)
	}

	return WriteResult{
		SizeBytes:   n,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		StorageName: name,
		Path:        path,
	}, nil
}

// Locate returns the on-disk path for name when the blob exists.
func (s *LocalStore) Locate(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	path, err := s.pathFromName(name)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Open returns a reader for blob content.
func (s *LocalStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if s == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.pathFromName(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, name, err)
	}
	return f, nil
}

// Remove deletes a blob. Missing files are ignored.
func (s *LocalStore) Remove(ctx context.Context, name string) error {
	if s == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFromName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List enumerates blobs sorted by name.
func (s *LocalStore) List(ctx context.Context) ([]BlobInfo, error) {
	if s == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	blobs := make([]BlobInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		blobs = append(blobs, BlobInfo{StorageName: entry.Name(), SizeBytes: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].StorageName < blobs[j].StorageName })
	return blobs, nil
}

// NewStorageName returns a fresh random token joined with the sanitized display name.
func NewStorageName(displayName string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	safe := SanitizeName(displayName)
	if safe == "" {
		return token
	}
	return token + "_" + safe
}

// SanitizeName keeps letters, digits, space, '.', '_' and '-' and trims
// surrounding whitespace.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	for len(out) > maxSanitizedName {
		_, size := utf8.DecodeLastRuneInString(out)
		out = out[:len(out)-size]
	}
	out = strings.TrimSpace(out)
	if out == "." || out == ".." {
		return ""
	}
	return out
}

func (s *LocalStore) pathFromName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("storage name is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid storage name")
	}
	return filepath.Join(s.root, name), nil
}

type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
