// Package server wires the ingestion pipeline, similarity search and health
// checks behind the HTTP adapter, and runs it until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/docingest/internal/logging"
	"github.com/dmitrijs2005/docingest/internal/server/blobsink"
	"github.com/dmitrijs2005/docingest/internal/server/config"
	"github.com/dmitrijs2005/docingest/internal/server/embedding"
	"github.com/dmitrijs2005/docingest/internal/server/extraction"
	"github.com/dmitrijs2005/docingest/internal/server/health"
	"github.com/dmitrijs2005/docingest/internal/server/httpapi"
	"github.com/dmitrijs2005/docingest/internal/server/pipeline"
	"github.com/dmitrijs2005/docingest/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/docingest/internal/server/screening"
	"github.com/dmitrijs2005/docingest/internal/server/search"
	"github.com/dmitrijs2005/docingest/internal/server/staging"
	"github.com/dmitrijs2005/docingest/internal/server/store"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

// seams for tests
var (
	openDB       = repomanager.Open
	newS3Sink    = blobsink.NewS3Sink
	newRepoMgr   = repomanager.NewPostgresRepositoryManager
	stdoutLogger = func(level string) logging.Logger { return logging.NewJSON(os.Stdout, level) }
)

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := stdoutLogger(c.LogLevel).With("environment", c.Environment)

	app := &App{config: c, logger: logger}

	gateway, err := app.initStore(ctx)
	if err != nil {
		return nil, err
	}

	area, err := staging.New(c.StagingRoot)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("staging init error: %w", err)
	}

	embedder := embedding.New(c.EmbeddingConfig(), logger)
	blobs := app.initBlobSink(ctx)

	extractor := extraction.New()
	extractor.MaxTextBytes = c.MaxFileSize

	p, err := pipeline.New(pipeline.Deps{
		Screener:  screening.NewPolicyScreener(c.MaxFileSize, c.DeniedMediaTypes),
		Extractor: extractor,
		Embedder:  embedder,
		Blobs:     blobs,
		Store:     gateway,
		Staging:   area,
		Logger:    logger,
	}, pipeline.Options{Environment: c.Environment})
	if err != nil {
		app.close()
		return nil, err
	}

	searcher := search.New(gateway, embedder, c.SearchCacheSize, c.SearchCacheTTL, logger)
	checker := health.NewChecker(gateway, embedder, blobs, c.Environment)

	handler := httpapi.NewHandler(p, searcher, checker, logger)
	app.server = httpapi.NewServer(c.HTTPAddr, handler.Routes(), c.ShutdownTimeout, logger)

	return app, nil
}

func (app *App) initStore(ctx context.Context) (store.Gateway, error) {
	if app.config.StoreBackend == config.StoreBackendMemory {
		app.logger.Warn(ctx, "Using in-memory store, records are lost on restart")
		return store.NewMemory(app.config.Environment), nil
	}

	db, err := openDB(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepoMgr()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	app.db = db
	return store.NewPostgres(db, rm, app.config.Environment), nil
}

// initBlobSink falls back to a disabled sink; uploads are optional.
func (app *App) initBlobSink(ctx context.Context) blobsink.Sink {
	if app.config.S3Bucket == "" {
		return blobsink.Disabled{}
	}
	s, err := newS3Sink(ctx, blobsink.S3Config{
		RootUser:     app.config.S3RootUser,
		RootPassword: app.config.S3RootPassword,
		Bucket:       app.config.S3Bucket,
		Region:       app.config.S3Region,
		BaseEndpoint: app.config.S3BaseEndpoint,
	})
	if err != nil {
		app.logger.Warn(ctx, "Blob storage disabled", "error", err.Error())
		return blobsink.Disabled{}
	}
	return s
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

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	err := app.server.Run(ctx)
	if err != nil {
		app.logger.Error(ctx, err.Error())
	}

	app.close()
	app.logger.Info(context.Background(), "App stopped")
	return err
}

func (app *App) close() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(context.Background(), "db close error", "error", err.Error())
		}
		app.db = nil
	}
}
