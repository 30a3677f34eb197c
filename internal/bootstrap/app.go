package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"maintenance-backend/internal/consolidation"
	"maintenance-backend/internal/queue"
	"maintenance-backend/internal/services/health"
	"maintenance-backend/internal/shared/config"
	"maintenance-backend/internal/shared/server"
	"maintenance-backend/internal/shared/storage/db"
	"maintenance-backend/internal/shared/storage/object"
	localstore "maintenance-backend/internal/shared/storage/object/local"
	s3store "maintenance-backend/internal/shared/storage/object/s3"
	"maintenance-backend/internal/staging"
	"maintenance-backend/internal/workorders"
)

// App holds shared dependencies for every entrypoint.
type App struct {
	Config               config.Config
	Router               *gin.Engine
	DB                   *sql.DB
	Store                object.ObjectStore
	Queue                queue.Client
	WorkOrdersRepo       workorders.Repo
	ConsolidationService *consolidation.Service
	Stager               *staging.Stager
	Replayer             *staging.Replayer
	ConsolidationHandler *consolidation.Handler
	StagingHandler       *staging.Handler
	Health               *health.Service
}

// Build prepares shared dependencies and the HTTP router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:               app.Config,
		ConsolidationHandler: app.ConsolidationHandler,
		StagingHandler:       app.StagingHandler,
		Health:               app.Health,
	})

	return app, nil
}

// Close releases the database pool. The Lambda singleton is left open for
// reuse across invocations.
func (a *App) Close() {
	if a == nil || a.DB == nil || db.IsLambdaRuntime() {
		return
	}
	if err := a.DB.Close(); err != nil {
		log.Printf("bootstrap: close database: %v", err)
	}
}

// EngineConfig maps application settings onto the consolidation engine.
func EngineConfig(cfg config.Config) consolidation.Config {
	out := consolidation.DefaultConfig()
	if cfg.ConsolidationWindowDays > 0 {
		out.WindowDays = cfg.ConsolidationWindowDays
	}
	if cfg.SimilarityThreshold > 0 {
		out.SimilarityThreshold = cfg.SimilarityThreshold
	}
	if cfg.EscalationThreshold > 0 {
		out.EscalationThreshold = cfg.EscalationThreshold
	}
	if cfg.MaxUpdateAttempts > 0 {
		out.MaxUpdateAttempts = cfg.MaxUpdateAttempts
	}
	return out
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	// Dev databases are migrated on start; other environments run cmd/migrate.
	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			log.Printf("bootstrap: migrations failed; using in-memory repositories: %v", err)
			_ = sqlDB.Close()
			return nil, nil
		}
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.WorkOrderQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.WorkOrderQueueURL, cfg.AWSRegion)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var repo workorders.Repo
	if app.DB != nil {
		repo = &workorders.PGRepo{DB: app.DB}
	} else {
		repo = workorders.NewMemoryRepo()
	}

	svc, err := consolidation.NewService(repo, EngineConfig(app.Config))
	if err != nil {
		return err
	}

	stager := staging.NewStager(app.Store, app.Queue)
	replayer := staging.NewReplayer(stager, svc)

	app.WorkOrdersRepo = repo
	app.ConsolidationService = svc
	app.Stager = stager
	app.Replayer = replayer
	app.ConsolidationHandler = consolidation.NewHandler(svc)
	app.StagingHandler = staging.NewHandler(stager, replayer)

	var pinger health.Pinger
	if app.DB != nil {
		pinger = app.DB
	}
	app.Health = health.NewService(pinger, app.Config.ObjectStoreType, app.Queue != nil)
	return nil
}
