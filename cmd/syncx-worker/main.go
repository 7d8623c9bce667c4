// syncx-worker drains the ingest queue: it unpacks landed archives,
// builds the commitment tree, materializes the batch into the blob
// store and publishes the per-file existence keys.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/syncx-labs/syncx/pkg/blob"
	"github.com/syncx-labs/syncx/pkg/cache"
	"github.com/syncx-labs/syncx/pkg/config"
	"github.com/syncx-labs/syncx/pkg/observability"
	"github.com/syncx-labs/syncx/pkg/worker"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 1 {
		switch args[1] {
		case "help", "-h", "--help":
			_, _ = fmt.Fprintln(stdout, "Usage: syncx-worker\n\nAll configuration comes from the environment; see README.md.")
			return 0
		default:
			_, _ = fmt.Fprintf(stderr, "unknown argument %q\n", args[1])
			return 2
		}
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "configuration error:", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obsCfg := observability.DefaultConfig("syncx-worker")
	obsCfg.OTLPEndpoint = cfg.OTELEndpoint
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shCtx)
	}()

	redisClient, err := cache.New(cache.Config{
		URL:            cfg.RedisURL,
		MaxOpen:        cfg.Tuning.CachePool.MaxOpen,
		MinIdle:        cfg.Tuning.CachePool.MinIdle,
		IdleTTL:        cfg.Tuning.CachePool.IdleTTL(),
		AcquireTimeout: cfg.Tuning.CachePool.AcquireTimeout(),
	})
	if err != nil {
		logger.Error("redis init failed", "error", err)
		return 1
	}
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = redisClient.Ping(pingCtx)
	cancel()
	if err != nil {
		logger.Error("redis unreachable", "error", err)
		return 1
	}

	blobs, err := blob.NewStore(ctx, blob.FactoryConfig{
		Backend:            blob.Backend(cfg.BlobBackend),
		GCSBucket:          cfg.GCSBucketName,
		GCSCredentialsJSON: []byte(cfg.GCSCredentialsJSON),
		S3Bucket:           cfg.S3Bucket,
		S3Region:           cfg.S3Region,
		S3Endpoint:         cfg.S3Endpoint,
		BaseDir:            cfg.BlobDir,
	})
	if err != nil {
		logger.Error("blob store init failed", "error", err)
		return 1
	}

	concurrency := cfg.Tuning.Worker.Concurrency
	if env := os.Getenv("WORKER_CONCURRENCY"); env != "" {
		n, err := strconv.Atoi(env)
		if err != nil || n <= 0 {
			_, _ = fmt.Fprintln(stderr, "WORKER_CONCURRENCY must be a positive integer")
			return 1
		}
		concurrency = n
	}

	w := worker.New(worker.Options{
		Queue:       redisClient,
		Cache:       redisClient,
		Blobs:       blobs,
		WorkDir:     ".",
		Concurrency: concurrency,
		MaxAttempts: cfg.Tuning.Worker.MaxAttempts,
		BackoffBase: cfg.Tuning.Worker.BackoffBase(),
		Obs:         obs,
		Logger:      logger,
	})

	logger.Info("worker draining queue", "concurrency", concurrency)
	if err := w.Run(ctx); err != nil {
		logger.Error("worker failed", "error", err)
		return 1
	}
	logger.Info("worker stopped")
	return 0
}
