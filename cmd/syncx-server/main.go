// syncx-server is the HTTP front end: client registration, archive
// upload into the landing zone, and verified file download.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/syncx-labs/syncx/pkg/auth"
	"github.com/syncx-labs/syncx/pkg/blob"
	"github.com/syncx-labs/syncx/pkg/cache"
	"github.com/syncx-labs/syncx/pkg/config"
	"github.com/syncx-labs/syncx/pkg/observability"
	"github.com/syncx-labs/syncx/pkg/server"
	"github.com/syncx-labs/syncx/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 1 {
		switch args[1] {
		case "help", "-h", "--help":
			_, _ = fmt.Fprintln(stdout, "Usage: syncx-server\n\nAll configuration comes from the environment; see README.md.")
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

	obsCfg := observability.DefaultConfig("syncx-server")
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

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("postgres open failed", "error", err)
		return 1
	}
	defer db.Close()

	pgDocs := store.NewPostgresDocs(db, cfg.DBName)
	if err := pgDocs.Migrate(ctx); err != nil {
		logger.Error("postgres migration failed", "error", err)
		return 1
	}
	docs := store.NewCachedDocs(pgDocs, redisClient)

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

	srv := server.New(server.Options{
		Docs:      docs,
		Cache:     redisClient,
		Queue:     redisClient,
		Blobs:     blobs,
		Tokens:    auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExp),
		WorkDir:   ".",
		Obs:       obs,
		Logger:    logger,
		RateRPS:   50,
		RateBurst: 100,
	})

	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ServerAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return 1
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		return 1
	}
	return 0
}
