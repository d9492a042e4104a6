package server

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"updrive/internal/audit"
	"updrive/internal/blobstore"
	"updrive/internal/store"
)

const (
	blobRemovedOrphan = "orphan"

	// DefaultGCGracePeriod protects blobs written by uploads that have not
	// committed their record yet.
	DefaultGCGracePeriod = time.Hour
)

// BlobGCOptions configures one orphan sweep.
type BlobGCOptions struct {
	Apply       bool
	GracePeriod time.Duration
	Logger      *slog.Logger
	Audit       *audit.Logger
	Metrics     *Metrics
	Now         func() time.Time
}

// BlobGCResult reports one GC run result.
type BlobGCResult struct {
	CandidateCount int      `json:"candidate_count" yaml:"candidate_count"`
	DeletedCount   int      `json:"deleted_count" yaml:"deleted_count"`
	FailedCount    int      `json:"failed_count" yaml:"failed_count"`
	SkippedRecent  int      `json:"skipped_recent" yaml:"skipped_recent"`
	ReclaimedBytes int64    `json:"reclaimed_bytes" yaml:"reclaimed_bytes"`
	Candidates     []string `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	DryRun         bool     `json:"dry_run" yaml:"dry_run"`
}

// GCBlobs finds blobs on disk that no file record references and, when
// opts.Apply is set, removes them. Blobs younger than the grace period are
// left alone.
func GCBlobs(ctx context.Context, files store.FileStore, blobs blobstore.BlobStore, opts BlobGCOptions) (BlobGCResult, error) {
	result := BlobGCResult{DryRun: !opts.Apply}
	if files == nil || blobs == nil {
		return result, fmt.Errorf("file and blob stores are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditLog := opts.Audit
	if auditLog == nil {
		auditLog = audit.Nop()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	grace := opts.GracePeriod
	if grace < 0 {
		grace = 0
	}
	start := now()
	cutoff := start.Add(-grace)

	// List blobs before reading references so a record committed in between
	// is seen as referenced.
	onDisk, err := blobs.List(ctx)
	if err != nil {
		return result, fmt.Errorf("list blobs: %w", err)
	}
	referenced, err := files.ReferencedStorageNames(ctx)
	if err != nil {
		return result, fmt.Errorf("list referenced blobs: %w", err)
	}

	sort.Slice(onDisk, func(i, j int) bool { return onDisk[i].StorageName < onDisk[j].StorageName })
	for _, blob := range onDisk {
		if _, ok := referenced[blob.StorageName]; ok {
			continue
		}
		if blob.ModTime.After(cutoff) {
			result.SkippedRecent++
			continue
		}
		result.CandidateCount++
		result.Candidates = append(result.Candidates, blob.StorageName)
		if !opts.Apply {
			result.ReclaimedBytes += blob.SizeBytes
			continue
		}
		if err := blobs.Remove(ctx, blob.StorageName); err != nil {
			logger.Warn("orphan blob removal failed", "storage_name", blob.StorageName, "error", err)
			result.FailedCount++
			continue
		}
		opts.Metrics.RecordBlobRemoved(blobRemovedOrphan)
		result.DeletedCount++
		result.ReclaimedBytes += blob.SizeBytes
	}

	auditLog.LogGC(result.CandidateCount, result.DeletedCount, result.FailedCount, result.ReclaimedBytes, result.DryRun, now().Sub(start))
	logger.Info("blob gc complete",
		"dry_run", result.DryRun,
		"candidates", result.CandidateCount,
		"deleted", result.DeletedCount,
		"failed", result.FailedCount,
		"skipped_recent", result.SkippedRecent,
		"reclaimed_bytes", result.ReclaimedBytes,
	)
	return result, nil
}
