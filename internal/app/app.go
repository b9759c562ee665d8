package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/data/db"
	"github.com/yungbote/dats-backend/internal/data/repos"
	types "github.com/yungbote/dats-backend/internal/domain"
	httpx "github.com/yungbote/dats-backend/internal/http"
	"github.com/yungbote/dats-backend/internal/jobs/worker"
	"github.com/yungbote/dats-backend/internal/observability"
	"github.com/yungbote/dats-backend/internal/pkg/envutil"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    *repos.Set
	Clients  *Clients
	Services Services
	Server   *httpx.Server
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
	workers      []*worker.Worker
	bgOnce       sync.Once
}

// NewLogger reads LOG_MODE (development or production).
func NewLogger() (*logger.Logger, error) {
	logMode := strings.TrimSpace(os.Getenv("LOG_MODE"))
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

func openDB(log *logger.Logger) (*db.Service, error) {
	svc, err := db.NewService(log, db.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	return svc, nil
}

// Migrate applies the schema and exits. Used by the migrate command.
func Migrate(log *logger.Logger) error {
	if err := envutil.Load(log); err != nil {
		return err
	}
	svc, err := openDB(log)
	if err != nil {
		return err
	}
	defer svc.Close()
	if err := db.AutoMigrateAll(svc.DB()); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	log.Info("Schema migrated")
	return nil
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	if err := envutil.Load(log); err != nil {
		return nil, err
	}
	cfg := LoadConfig(log)

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     envutil.String("APP_VERSION", "dev"),
	})

	dbService, err := openDB(log)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, err
	}
	theDB := dbService.DB()
	if envutil.Bool("DB_AUTO_MIGRATE", true) {
		if err := db.AutoMigrateAll(theDB); err != nil {
			_ = dbService.Close()
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}

	set := repos.NewSet(theDB, log)
	clients, err := wireClients(ctx, log, cfg, theDB)
	if err != nil {
		_ = dbService.Close()
		_ = otelShutdown(ctx)
		return nil, err
	}
	services, err := wireServices(theDB, log, set, clients)
	if err != nil {
		clients.Close()
		_ = dbService.Close()
		_ = otelShutdown(ctx)
		return nil, err
	}

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        set,
		Clients:      clients,
		Services:     services,
		Server:       wireServer(log, cfg, theDB, services, clients, metrics),
		Metrics:      metrics,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// startBackground launches the metrics endpoint and its collectors once per
// process.
func (a *App) startBackground(ctx context.Context) {
	a.bgOnce.Do(func() {
		if a.Metrics == nil {
			return
		}
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		if a.DB.Dialector.Name() == db.DriverPostgres {
			a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		}
		a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)
		if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
			a.Metrics.StartRedisCollector(ctx, a.Log, addr)
		}
	})
}

// StartWorkers runs the job worker loops for one device until ctx ends.
func (a *App) StartWorkers(ctx context.Context, device types.Device) error {
	if !device.Valid() {
		return fmt.Errorf("invalid worker device %q (allowed: cpu, gpu)", device)
	}
	a.startBackground(ctx)
	w := worker.New(
		a.Log,
		worker.ConfigFromEnv(device),
		a.Services.Registry,
		a.Repos.JobRuns,
		a.Repos.JobRunEvents,
		a.Services.Notifier,
		a.Services.Waker,
	)
	w.Start(ctx)
	a.workers = append(a.workers, w)
	a.Log.Info("Job worker started", "device", device)
	return nil
}

// Serve runs the HTTP API until ctx ends, then drains in-flight requests.
func (a *App) Serve(ctx context.Context) error {
	a.startBackground(ctx)
	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(ctx, func(ev realtime.JobEvent) {
			a.Log.Debug("Job event",
				"job_id", ev.JobID,
				"job_type", ev.JobType,
				"kind", ev.Kind,
				"status", ev.Status,
				"stage", ev.Stage,
			)
		}); err != nil {
			a.Log.Warn("Job event forwarder not started", "error", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		errCh <- a.Server.Run(a.Cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// Wait blocks until every started worker has returned.
func (a *App) Wait() {
	for _, w := range a.workers {
		w.Wait()
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
