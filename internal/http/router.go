package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/dats-backend/internal/http/handlers"
	httpMW "github.com/yungbote/dats-backend/internal/http/middleware"
	"github.com/yungbote/dats-backend/internal/observability"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	TracingEnabled bool
	CORSOrigins    []string

	PreprocessingHandler *httpH.PreprocessingHandler
	JobHandler           *httpH.JobHandler
	StatusHandler        *httpH.StatusHandler
	AnalysisHandler      *httpH.AnalysisHandler
	ProjectHandler       *httpH.ProjectHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		name := cfg.ServiceName
		if name == "" {
			name = "dats-backend"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	// Preprocessing
	if cfg.PreprocessingHandler != nil {
		r.POST("/projects/:id/preprocess", cfg.PreprocessingHandler.StartPreprocessing)
		r.GET("/prepro/:id", cfg.PreprocessingHandler.GetJob)
		r.POST("/prepro/:id/abort", cfg.PreprocessingHandler.Abort)
		r.POST("/prepro/:id/retry", cfg.PreprocessingHandler.Retry)
	}

	// Jobs
	if cfg.JobHandler != nil {
		r.GET("/jobs/:id", cfg.JobHandler.GetJob)
		r.POST("/jobs/:id/abort", cfg.JobHandler.AbortJob)
		r.GET("/projects/:id/jobs", cfg.JobHandler.ListProjectJobs)
	}

	if cfg.StatusHandler != nil {
		r.GET("/projects/:id/status", cfg.StatusHandler.ProjectStatus)
	}

	if cfg.ProjectHandler != nil {
		r.POST("/projects/:id/metadata", cfg.ProjectHandler.CreateMetadata)
		r.GET("/projects/:id/search", cfg.ProjectHandler.Search)
	}

	// Analysis
	if cfg.AnalysisHandler != nil {
		r.POST("/projects/:id/duplicates", cfg.AnalysisHandler.DetectDuplicates)
		r.POST("/projects/:id/tag-recommendations", cfg.AnalysisHandler.RecommendTags)
		r.GET("/projects/:id/tag-recommendations", cfg.AnalysisHandler.PendingRecommendations)
		r.POST("/tag-recommendations/review", cfg.AnalysisHandler.ReviewRecommendations)
		r.POST("/projects/:id/cotas", cfg.AnalysisHandler.CreateCOTA)
		r.GET("/cotas/:id", cfg.AnalysisHandler.GetCOTA)
		r.POST("/cotas/:id/refine", cfg.AnalysisHandler.RefineCOTA)
	}

	return r
}
