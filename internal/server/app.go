// Package server initializes and runs the share server: metadata
// repository, blob storage, share service, cleanup sweeper and the HTTP API,
// with graceful shutdown on SIGINT, SIGTERM or SIGQUIT.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/zkshare/internal/clock"
	"github.com/dmitrijs2005/zkshare/internal/logging"
	"github.com/dmitrijs2005/zkshare/internal/server/blobstore"
	"github.com/dmitrijs2005/zkshare/internal/server/config"
	"github.com/dmitrijs2005/zkshare/internal/server/httpapi"
	"github.com/dmitrijs2005/zkshare/internal/server/jobs"
	"github.com/dmitrijs2005/zkshare/internal/server/repositories/sharedfiles"
	"github.com/dmitrijs2005/zkshare/internal/server/services"
	"github.com/dmitrijs2005/zkshare/internal/server/shared/db"
)

// newRepositoryManager is a test seam.
var newRepositoryManager = db.New

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   db.RepositoryManager
	sweeper *jobs.Sweeper
	http    *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stdout, level, c.LogJSON)

	gin.SetMode(gin.ReleaseMode)

	repos, err := newRepositoryManager(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	blobs, presigner, err := newBlobStore(ctx, c)
	if err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	store := sharedfiles.NewStore(repos.SharedFiles(), blobs, sharedfiles.StoreOptions{
		Transactor: repos.Transactor(),
		Logger:     logger,
	})

	opts := services.ShareOptions{
		BaseURL:             c.BaseURL,
		SecretKey:           []byte(c.SecretKey),
		MaxUploadSize:       c.MaxUploadSize,
		ManageTokenValidity: c.ManageTokenValidity,
		PresignTTL:          c.PresignTTL,
	}
	if c.PresignDownloads && presigner != nil {
		opts.Presigner = presigner
	}

	clk := clock.Real()
	share := services.NewShareService(store, clk, logger, opts)

	return &App{
		config:  c,
		logger:  logger,
		repos:   repos,
		sweeper: jobs.NewSweeper(store, clk, c.CleanupInterval, logger),
		http: httpapi.NewServer(c.HTTPAddr, logger, share, httpapi.Options{
			MaxUploadSize: c.MaxUploadSize,
			RateLimitRPS:  c.RateLimitRPS,
			RateBurst:     c.RateBurst,
			Clock:         clk,
		}),
	}, nil
}

// newBlobStore builds the configured backend. The presigner is only
// non-nil for S3.
func newBlobStore(ctx context.Context, c *config.Config) (blobstore.BlobStore, services.Presigner, error) {
	switch c.Storage {
	case config.StorageS3:
		s, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Region:    c.S3Region,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
			Bucket:    c.S3Bucket,
			Endpoint:  c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.StorageFS:
		s, err := blobstore.NewFSStore(c.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case config.StorageMemory:
		return blobstore.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", c.Storage)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startSweeper(ctx context.Context) {
	if err := app.sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.logger.Error(ctx, "sweeper stopped", "error", err)
	}
}

// Run migrates the schema, then serves until ctx is canceled or a signal
// arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"address", app.config.HTTPAddr,
		"storage", app.config.Storage,
		"presign", app.config.PresignDownloads,
	)

	if err := app.repos.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startSweeper(ctx)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "Stopped")
	return app.repos.Close()
}
