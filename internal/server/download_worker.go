package server

import (
	"context"
	"log/slog"
	"time"

	"updrive/internal/store"
)

const (
	downloadQueueSize     = 256
	downloadUpdateTimeout = 5 * time.Second
)

// downloadCounter applies download_count increments off the request path.
type downloadCounter struct {
	files   store.FileStore
	queue   chan int64
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration
}

func newDownloadCounter(files store.FileStore, logger *slog.Logger, metrics *Metrics) *downloadCounter {
	if logger == nil {
		logger = slog.Default()
	}
	return &downloadCounter{
		files:   files,
		queue:   make(chan int64, downloadQueueSize),
		logger:  logger,
		metrics: metrics,
		timeout: downloadUpdateTimeout,
	}
}

// enqueue never blocks; a full queue drops the increment.
func (d *downloadCounter) enqueue(fileID int64) {
	if d == nil {
		return
	}
	select {
	case d.queue <- fileID:
	default:
		d.logger.Warn("download counter queue full; dropping increment", "file_id", fileID)
		d.metrics.RecordDownloadDropped()
	}
}

// run applies queued increments until ctx is cancelled, then drains what is
// already queued.
func (d *downloadCounter) run(ctx context.Context) {
	if d == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case fileID := <-d.queue:
			d.apply(fileID)
		}
	}
}

// drain applies every increment currently queued and returns.
func (d *downloadCounter) drain() {
	for {
		select {
		case fileID := <-d.queue:
			d.apply(fileID)
		default:
			return
		}
	}
}

func (d *downloadCounter) apply(fileID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.files.IncrementDownloadCount(ctx, fileID); err != nil {
		d.logger.Error("increment download count", "file_id", fileID, "error", err)
	}
}
