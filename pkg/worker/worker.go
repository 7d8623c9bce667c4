// Package worker runs the asynchronous ingest pipeline: it drains the
// job queue, unpacks landed archives, builds the commitment tree and
// materializes everything into the blob store. Only after the full
// batch is durable does it flip the per-file existence keys that make
// downloads visible.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/syncx-labs/syncx/pkg/archive"
	"github.com/syncx-labs/syncx/pkg/blob"
	"github.com/syncx-labs/syncx/pkg/cache"
	"github.com/syncx-labs/syncx/pkg/merkle"
	"github.com/syncx-labs/syncx/pkg/observability"
	"github.com/syncx-labs/syncx/pkg/paths"
)

// Options wires the worker to its adapters.
type Options struct {
	Queue cache.Queue
	Cache cache.Cache
	Blobs blob.Store

	// WorkDir roots the scratch tree shared with the server.
	WorkDir string

	// Concurrency bounds in-flight jobs; MaxAttempts and BackoffBase
	// govern retry before dead-lettering.
	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration

	Obs    *observability.Provider
	Logger *slog.Logger
}

// Worker consumes ingest jobs.
type Worker struct {
	queue       cache.Queue
	cache       cache.Cache
	blobs       blob.Store
	workDir     string
	concurrency int
	maxAttempts int
	backoffBase time.Duration
	obs         *observability.Provider
	logger      *slog.Logger
}

// New builds a Worker, applying defaults for zero option values.
func New(opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}

	return &Worker{
		queue:       opts.Queue,
		cache:       opts.Cache,
		blobs:       opts.Blobs,
		workDir:     opts.WorkDir,
		concurrency: opts.Concurrency,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		obs:         opts.Obs,
		logger:      logger.With("component", "worker"),
	}
}

// Run blocks draining the queue until ctx is cancelled. In-flight
// jobs are drained before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	sem := make(chan struct{}, w.concurrency)

	for {
		id, err := w.queue.BlockingPop(ctx, cache.JobQueue)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			w.logger.Error("queue pop failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.backoffBase):
			}
			continue
		}

		select {
		case sem <- struct{}{}:
			go func(id string) {
				defer func() { <-sem }()
				w.runJob(ctx, id)
			}(id)
		case <-ctx.Done():
			// The popped job must not be lost to shutdown.
			w.runJob(context.WithoutCancel(ctx), id)
		}
	}

	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}
	return nil
}

// runJob retries ProcessJob with exponential backoff, dead-lettering
// the id once attempts are exhausted.
func (w *Worker) runJob(ctx context.Context, id string) {
	if w.obs != nil {
		w.obs.JobStarted(ctx)
		defer w.obs.JobFinished(ctx)
	}

	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		start := time.Now()
		err = w.ProcessJob(ctx, id)
		if err == nil {
			if w.obs != nil {
				w.obs.RecordDuration(ctx, time.Since(start))
			}
			return
		}

		w.logger.Warn("ingest attempt failed",
			"id", id, "attempt", attempt, "max_attempts", w.maxAttempts, "error", err)
		if w.obs != nil {
			w.obs.RecordError(ctx, err)
		}

		if attempt < w.maxAttempts {
			select {
			case <-ctx.Done():
				// Shutdown mid-retry: the job was already popped, so
				// park it in the dead-letter list instead of losing it.
				w.deadLetter(id, err)
				return
			case <-time.After(w.backoffBase << (attempt - 1)):
			}
		}
	}

	w.deadLetter(id, err)
}

// deadLetter parks an unrecoverable job id. The push runs on a fresh
// context so shutdown cannot drop a popped job.
func (w *Worker) deadLetter(id string, err error) {
	w.logger.Error("ingest job dead-lettered", "id", id, "error", err)
	if dlqErr := w.queue.Push(context.Background(), cache.DeadLetterQueue, id); dlqErr != nil {
		w.logger.Error("dead-letter push failed", "id", id, "error", dlqErr)
	}
}

// ProcessJob ingests one batch: locate the archive, unpack it, build
// the tree, upload members plus tree, then publish existence keys.
func (w *Worker) ProcessJob(ctx context.Context, id string) error {
	if w.obs != nil {
		var span trace.Span
		ctx, span = w.obs.StartSpan(ctx, "ingest.process")
		defer span.End()
	}

	zipPath, err := w.locateArchive(ctx, id)
	if err != nil {
		return err
	}

	unpackDir := filepath.Join(w.workDir, paths.WipUploadsDir(id))
	if err := os.RemoveAll(unpackDir); err != nil {
		return fmt.Errorf("clear unpack dir: %w", err)
	}
	if err := os.MkdirAll(unpackDir, 0o755); err != nil {
		return fmt.Errorf("create unpack dir: %w", err)
	}
	if err := archive.Unpack(zipPath, unpackDir); err != nil {
		return fmt.Errorf("unpack %s: %w", id, err)
	}

	names, contents, err := readMembers(unpackDir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("archive for %s holds no files", id)
	}

	tree, err := merkle.NewTree(contents)
	if err != nil {
		return fmt.Errorf("build tree for %s: %w", id, err)
	}
	treeBytes, err := tree.Serialize()
	if err != nil {
		return fmt.Errorf("serialize tree for %s: %w", id, err)
	}

	treePath := filepath.Join(w.workDir, paths.LocalMerkleTreePath(id))
	if err := os.MkdirAll(filepath.Dir(treePath), 0o755); err != nil {
		return fmt.Errorf("create tree dir: %w", err)
	}
	if err := os.WriteFile(treePath, treeBytes, 0o644); err != nil {
		return fmt.Errorf("write tree for %s: %w", id, err)
	}

	// Keep the raw archive durable alongside the expanded batch.
	zipBytes, err := os.ReadFile(zipPath)
	if err != nil {
		return fmt.Errorf("read archive for %s: %w", id, err)
	}
	if err := w.blobs.Put(ctx, paths.ZipObjectName(id), zipBytes); err != nil {
		return fmt.Errorf("upload archive for %s: %w", id, err)
	}

	for i, name := range names {
		if err := w.blobs.Put(ctx, paths.BackupObjectName(id, name), contents[i]); err != nil {
			return fmt.Errorf("upload member %s: %w", name, err)
		}
	}
	if err := w.blobs.Put(ctx, paths.BackupObjectName(id, paths.MerkleTreeFileName(id)), treeBytes); err != nil {
		return fmt.Errorf("upload tree for %s: %w", id, err)
	}

	// Existence keys flip last: a download never sees a half-written
	// batch.
	for _, name := range names {
		if err := w.cache.Set(ctx, paths.ExistenceKey(id, name), "true"); err != nil {
			return fmt.Errorf("publish existence of %s: %w", name, err)
		}
	}

	w.cleanupScratch(id, zipPath, unpackDir, treePath)

	w.logger.Info("batch ingested", "id", id, "files", len(names), "root", tree.Root())
	return nil
}

// locateArchive prefers the server's local landing zip, falling back
// to the durable copy in the blob store.
func (w *Worker) locateArchive(ctx context.Context, id string) (string, error) {
	zipPath := filepath.Join(w.workDir, paths.LocalZipPath(id))
	if _, err := os.Stat(zipPath); err == nil {
		return zipPath, nil
	}

	data, err := w.blobs.Get(ctx, paths.ZipObjectName(id))
	if err != nil {
		return "", fmt.Errorf("locate archive for %s: %w", id, err)
	}
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return "", fmt.Errorf("create landing dir: %w", err)
	}
	if err := os.WriteFile(zipPath, data, 0o644); err != nil {
		return "", fmt.Errorf("stage archive for %s: %w", id, err)
	}
	return zipPath, nil
}

// readMembers lists the unpacked files, sorted by name for a stable
// upload order. Archives are flat, so subdirectories are ignored.
func readMembers(dir string) ([]string, [][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("list unpacked members: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	contents := make([][]byte, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("read member %s: %w", name, err)
		}
		contents[i] = data
	}
	return names, contents, nil
}

// cleanupScratch removes per-job scratch state. Failures are logged,
// not fatal; the batch is already durable.
func (w *Worker) cleanupScratch(id, zipPath, unpackDir, treePath string) {
	for _, target := range []string{unpackDir, treePath, zipPath} {
		if err := os.RemoveAll(target); err != nil {
			w.logger.Warn("scratch cleanup failed", "id", id, "path", target, "error", err)
		}
	}
}
