package app

import (
	"strings"
	"time"

	"github.com/yungbote/dats-backend/internal/pkg/envutil"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type Config struct {
	ServiceName string
	Environment string
	HTTPAddr    string
	MetricsAddr string
	CORSOrigins []string

	// VectorProvider selects the embedding store: qdrant, pgvector or memory.
	VectorProvider string
	// TranscribeProvider and DetectProvider select modelworker or gcp.
	TranscribeProvider string
	DetectProvider     string
	DefaultLanguage    string
	MediaWorkRoot      string

	WorkerInProcess bool
	WorkerDevice    string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

const (
	ProviderModelWorker = "modelworker"
	ProviderGCP         = "gcp"
)

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		ServiceName:        envutil.String("SERVICE_NAME", "dats-backend"),
		Environment:        envutil.String("APP_ENV", "development"),
		HTTPAddr:           envutil.String("HTTP_ADDR", ":"+envutil.String("PORT", "8080")),
		MetricsAddr:        envutil.String("METRICS_ADDR", ":9090"),
		CORSOrigins:        splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		VectorProvider:     strings.ToLower(envutil.String("VECTOR_PROVIDER", string(VectorProviderQdrant))),
		TranscribeProvider: strings.ToLower(envutil.String("TRANSCRIBE_PROVIDER", ProviderModelWorker)),
		DetectProvider:     strings.ToLower(envutil.String("DETECT_PROVIDER", ProviderModelWorker)),
		DefaultLanguage:    envutil.String("PREPRO_DEFAULT_LANGUAGE", "en"),
		MediaWorkRoot:      envutil.String("MEDIA_WORK_ROOT", ""),
		WorkerInProcess:    envutil.Bool("WORKER_INPROCESS", true),
		WorkerDevice:       strings.ToLower(envutil.String("WORKER_DEVICE", "cpu")),
		MaxUploadBytes:     int64(envutil.Int("MAX_UPLOAD_MB", 512)) << 20,
		ShutdownTimeout:    envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	if log != nil {
		log.Info("Config loaded",
			"env", cfg.Environment,
			"http_addr", cfg.HTTPAddr,
			"vector_provider", cfg.VectorProvider,
			"transcribe_provider", cfg.TranscribeProvider,
			"detect_provider", cfg.DetectProvider,
			"worker_inprocess", cfg.WorkerInProcess,
		)
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
