package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/dats-backend/internal/observability"
	"github.com/yungbote/dats-backend/internal/pipeline"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/gcp"
	"github.com/yungbote/dats-backend/internal/platform/localmedia"
	"github.com/yungbote/dats-backend/internal/platform/modelworker"
	"github.com/yungbote/dats-backend/internal/platform/search"
	"github.com/yungbote/dats-backend/internal/platform/storage"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
	"github.com/yungbote/dats-backend/internal/realtime"
)

type Clients struct {
	Storage     storage.Store
	Vectors     vectorstore.Store
	Index       search.Index
	ModelWorker *modelworker.Client
	Transcriber pipeline.Transcriber
	Detector    pipeline.Detector
	Media       localmedia.Tools
	// Bus is nil when REDIS_ADDR is unset; the process then runs single-node.
	Bus *realtime.RedisBus

	closers []func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, db *gorm.DB) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	store, err := resolveObjectStore(ctx, log)
	if err != nil {
		return nil, err
	}
	c.Storage = store

	vectors, err := resolveVectorStore(ctx, log, cfg, db)
	if err != nil {
		return nil, err
	}
	c.Vectors = vectors

	c.Index = search.Noop()
	if search.Enabled() {
		scfg, err := search.ResolveConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("resolve search config: %w", err)
		}
		es, err := search.NewElasticsearch(log, scfg)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch: %w", err)
		}
		c.Index = es
	}

	mw, err := modelworker.NewFromEnv(log, observeModelWorker)
	if err != nil {
		return nil, fmt.Errorf("init model worker client: %w", err)
	}
	if err := checkModelWorker(ctx, mw); err != nil {
		return nil, err
	}
	c.ModelWorker = mw
	c.Transcriber = mw
	c.Detector = mw

	if cfg.TranscribeProvider == ProviderGCP {
		speech, err := gcp.NewSpeech(ctx, log, cfg.DefaultLanguage)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init speech client: %w", err)
		}
		c.Transcriber = speech
		c.closers = append(c.closers, speech.Close)
	}
	if cfg.DetectProvider == ProviderGCP {
		vision, err := gcp.NewVision(ctx, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init vision client: %w", err)
		}
		c.Detector = vision
		c.closers = append(c.closers, vision.Close)
	}

	c.Media = localmedia.New(log, cfg.MediaWorkRoot)

	bus, err := realtime.NewRedisBusFromEnv(log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init redis bus: %w", err)
	}
	if bus != nil {
		c.Bus = bus
		c.closers = append(c.closers, bus.Close)
	}
	return c, nil
}

func observeModelWorker(op, status string, dur time.Duration) {
	observability.Current().ObserveModelWorker(op, status, dur)
}

// checkModelWorker refuses to start against a worker that does not serve
// its base route.
func checkModelWorker(ctx context.Context, mw *modelworker.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := mw.Health(ctx); err != nil {
		return fmt.Errorf("model worker at %s unavailable: %w", mw.BaseURL(), err)
	}
	return nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
	c.closers = nil
}
