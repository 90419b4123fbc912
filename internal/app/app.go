// Package app wires together the report worker's adapters and job handler:
// the same construction-then-lifecycle shape as the teacher's App, cut down
// to this worker's dependency graph — no portfolio/market services, no
// price scheduler or warm cache, just the three store adapters, the
// pipeline engine, the job handler, and the queue adapter that drives it.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"github.com/surrealdb/surrealdb.go"

	"github.com/aiobjectives/report-worker/internal/config"
	"github.com/aiobjectives/report-worker/internal/handler"
	"github.com/aiobjectives/report-worker/internal/obslog"
	"github.com/aiobjectives/report-worker/internal/pipeline/genaiengine"
	"github.com/aiobjectives/report-worker/internal/queue"
	"github.com/aiobjectives/report-worker/internal/queue/pubsubqueue"
	"github.com/aiobjectives/report-worker/internal/store/metadatastore"
	"github.com/aiobjectives/report-worker/internal/store/objectstore"
	"github.com/aiobjectives/report-worker/internal/store/statelock"
)

// App holds every constructed adapter and the job handler they back, plus
// the queue adapter that drives it.
type App struct {
	Config  *config.Config
	Logger  *obslog.Logger
	Objects objectstore.Store
	Meta    metadatastore.Store
	State   statelock.Store
	Handler *handler.Handler
	Queue   queue.Adapter

	metaDB      *surrealdb.DB
	redisClient redis.UniversalClient
}

// getBinaryDir returns the directory containing the running executable,
// falling back to the current working directory if it can't be resolved.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolveConfigPaths mirrors the teacher's layered lookup order: an
// explicit path wins outright; otherwise try the REPORT_WORKER_CONFIG env
// var, a binary-directory-relative file, then a dev-mode fallback for
// running straight out of the source tree. New loads only the first of
// these that exists, so a later entry never overrides an earlier one.
func resolveConfigPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	var paths []string
	if v := os.Getenv("REPORT_WORKER_CONFIG"); v != "" {
		paths = append(paths, v)
	}
	paths = append(paths, filepath.Join(getBinaryDir(), "report-worker.toml"))
	paths = append(paths, "config/report-worker.toml")
	return paths
}

// New constructs every adapter and the job handler wiring them together.
// configPath may be empty, in which case resolveConfigPaths applies the
// same lookup order the teacher's NewApp uses.
func New(ctx context.Context, configPath string) (*App, error) {
	paths := resolveConfigPaths(configPath)
	for i, p := range paths {
		if _, err := os.Stat(p); err == nil {
			paths = paths[i : i+1]
			break
		}
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}

	logger := obslog.New(cfg.Logging.Level)

	gcsClient, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: construct GCS client: %w", err)
	}
	objects := objectstore.New(gcsClient, cfg.Bucket.Name, logger)
	if cerr := objects.HealthCheck(ctx); cerr != nil {
		return nil, fmt.Errorf("app: object store health check: %w", cerr)
	}

	metaDB, err := surrealdb.New(cfg.Metadata.Address)
	if err != nil {
		return nil, fmt.Errorf("app: connect surrealdb: %w", err)
	}
	if _, err := metaDB.SignIn(ctx, map[string]interface{}{
		"user": cfg.Metadata.Username,
		"pass": cfg.Metadata.Password,
	}); err != nil {
		return nil, fmt.Errorf("app: sign in to surrealdb: %w", err)
	}
	if err := metaDB.Use(ctx, cfg.Metadata.Namespace, cfg.Metadata.Database); err != nil {
		return nil, fmt.Errorf("app: select surrealdb namespace/database: %w", err)
	}
	table := cfg.Metadata.CollectionFor(cfg.Environment)
	defineTable := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
	if _, err := surrealdb.Query[any](ctx, metaDB, defineTable, nil); err != nil {
		return nil, fmt.Errorf("app: define surrealdb table %s: %w", table, err)
	}
	meta := metadatastore.New(metaDB, table, logger)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Lock.Addr,
		Password: cfg.Lock.Password,
		DB:       cfg.Lock.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("app: ping redis: %w", err)
	}
	state := statelock.New(redisClient, logger)

	engine := genaiengine.New(
		genaiengine.WithRateLimit(cfg.Pipeline.RequestsPerSecond),
		genaiengine.WithLogger(logger),
	)

	h := handler.New(objects, meta, state, engine, logger, handler.Config{
		LockTTL: cfg.Lock.GetTTL(),
	})

	pubsubClient, err := pubsub.NewClient(ctx, cfg.Queue.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("app: construct pubsub client: %w", err)
	}
	q := pubsubqueue.New(pubsubClient, cfg.Queue.Subscription, cfg.Concurrency.Cap, logger)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Objects:     objects,
		Meta:        meta,
		State:       state,
		Handler:     h,
		Queue:       q,
		metaDB:      metaDB,
		redisClient: redisClient,
	}, nil
}

// Run blocks, subscribing to the queue and dispatching every delivery
// through the handler, until ctx is canceled or the subscription fails.
func (a *App) Run(ctx context.Context) error {
	return a.Queue.Subscribe(ctx, a.Handler.Handle)
}

// Close releases every adapter's underlying connection, best-effort and in
// reverse construction order — mirroring the teacher's Close shutdown
// ordering (stop consumers before closing the resources they depend on).
func (a *App) Close(ctx context.Context) {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("app: close queue adapter")
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("app: close redis client")
		}
	}
	if a.metaDB != nil {
		a.metaDB.Close(ctx)
	}
}
