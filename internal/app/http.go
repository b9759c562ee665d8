package app

import (
	"context"

	"gorm.io/gorm"

	httpx "github.com/yungbote/dats-backend/internal/http"
	httpH "github.com/yungbote/dats-backend/internal/http/handlers"
	"github.com/yungbote/dats-backend/internal/observability"
	"github.com/yungbote/dats-backend/internal/pkg/envutil"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func dbPinger(db *gorm.DB) httpH.Pinger {
	return pingFunc(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
}

func wireServer(log *logger.Logger, cfg Config, db *gorm.DB, services Services, clients *Clients, metrics *observability.Metrics) *httpx.Server {
	log.Info("Wiring HTTP server...")
	checks := map[string]httpH.Pinger{"db": dbPinger(db)}
	if envutil.Bool("HEALTH_CHECK_MODEL_WORKER", false) && clients.ModelWorker != nil {
		checks["model_worker"] = pingFunc(clients.ModelWorker.Health)
	}
	return httpx.NewServer(httpx.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		ServiceName:    cfg.ServiceName,
		TracingEnabled: envutil.Bool("OTEL_ENABLED", false),
		CORSOrigins:    cfg.CORSOrigins,

		PreprocessingHandler: httpH.NewPreprocessingHandler(log, services.Ingestion, cfg.MaxUploadBytes),
		JobHandler:           httpH.NewJobHandler(services.Jobs),
		StatusHandler:        httpH.NewStatusHandler(services.Status),
		AnalysisHandler:      httpH.NewAnalysisHandler(services.Jobs, services.Tagrec, services.COTA),
		ProjectHandler:       httpH.NewProjectHandler(services.Metadata, clients.Index),
		HealthHandler:        httpH.NewHealthHandler(checks),
	})
}
