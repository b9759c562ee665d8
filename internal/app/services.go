package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/analysis/cota"
	"github.com/yungbote/dats-backend/internal/analysis/duplicates"
	"github.com/yungbote/dats-backend/internal/analysis/tagrec"
	"github.com/yungbote/dats-backend/internal/data/repos"
	"github.com/yungbote/dats-backend/internal/ingestion"
	"github.com/yungbote/dats-backend/internal/jobs"
	jobruntime "github.com/yungbote/dats-backend/internal/jobs/runtime"
	"github.com/yungbote/dats-backend/internal/pipeline"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/realtime"
	"github.com/yungbote/dats-backend/internal/services/metadata"
	"github.com/yungbote/dats-backend/internal/status"
)

type Services struct {
	Registry *jobruntime.Registry
	Notifier realtime.JobNotifier
	Waker    realtime.Waker

	Jobs      jobs.Service
	Metadata  metadata.Service
	Pipeline  *pipeline.Pipeline
	Ingestion ingestion.Service
	Tagrec    tagrec.Service
	COTA      cota.Service
	Status    status.Service
}

type registrar interface {
	Register(reg *jobruntime.Registry) error
}

func wireServices(db *gorm.DB, log *logger.Logger, set *repos.Set, clients *Clients) (Services, error) {
	log.Info("Wiring services...")

	// Without redis, events stay in-process and only local workers are woken.
	var (
		notifier realtime.JobNotifier = realtime.NoopNotifier()
		waker    realtime.Waker       = realtime.NewLocalWaker()
	)
	if clients.Bus != nil {
		notifier = clients.Bus
		waker = clients.Bus
	}

	reg := jobruntime.NewRegistry()
	jobService := jobs.NewService(log, reg, set.JobRuns, set.JobRunEvents, notifier, waker)
	metadataService := metadata.NewService(db, log, set.Metadata, set.Documents)

	pipe := pipeline.New(pipeline.Deps{
		DB:          db,
		Log:         log,
		Repos:       set,
		Storage:     clients.Storage,
		Text:        clients.ModelWorker,
		PDF:         clients.ModelWorker,
		Transcriber: clients.Transcriber,
		Detector:    clients.Detector,
		Images:      clients.ModelWorker,
		Media:       clients.Media,
		Vectors:     clients.Vectors,
		Index:       clients.Index,
		Metadata:    metadataService,
		Jobs:        jobService,
		Config:      pipeline.ConfigFromEnv(),
	})
	ingestionService := ingestion.NewService(db, log, set, clients.Storage, jobService, ingestion.ConfigFromEnv())
	tagrecService := tagrec.NewService(db, log, set, clients.Vectors)
	cotaService := cota.NewService(log, set, clients.Vectors, clients.ModelWorker)

	for name, r := range map[string]registrar{
		"pipeline":   pipe,
		"ingestion":  ingestionService,
		"tagrec":     tagrecService,
		"cota":       cotaService,
		"duplicates": duplicates.NewJob(log, set),
	} {
		if err := r.Register(reg); err != nil {
			return Services{}, fmt.Errorf("register %s jobs: %w", name, err)
		}
	}

	return Services{
		Registry:  reg,
		Notifier:  notifier,
		Waker:     waker,
		Jobs:      jobService,
		Metadata:  metadataService,
		Pipeline:  pipe,
		Ingestion: ingestionService,
		Tagrec:    tagrecService,
		COTA:      cotaService,
		Status:    status.NewService(log, set),
	}, nil
}
