package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/dats-backend/internal/domain"
	domainjobs "github.com/yungbote/dats-backend/internal/domain/jobs"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
)

type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	apiInflight   *Gauge
	uploadBytes   *CounterVec
	jobRuns       *CounterVec
	jobDuration   *HistogramVec
	stageDuration *HistogramVec
	payloads      *CounterVec
	modelWorker   *HistogramVec
	vectorOps     *HistogramVec
	queueDepth    *GaugeVec
	pgStats       *GaugeVec
	redisUp       *Gauge
	redisPing     *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// Current returns nil when metrics are disabled. Every method is nil-safe.
func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("dats_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("dats_api_request_duration_seconds", "API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"}, latencyBuckets),
		apiInflight: NewGauge("dats_api_inflight_requests", "In-flight API requests."),
		uploadBytes: NewCounterVec("dats_api_upload_bytes_total", "Request body bytes received by route.", []string{"route"}),
		jobRuns:     NewCounterVec("dats_job_runs_total", "Finished job runs by type/status.", []string{"job_type", "status"}),
		jobDuration: NewHistogramVec("dats_job_run_duration_seconds", "Job run duration in seconds by type/status.",
			[]string{"job_type", "status"}, []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600}),
		stageDuration: NewHistogramVec("dats_pipeline_stage_duration_seconds", "Pipeline stage duration by modality/stage/status.",
			[]string{"modality", "stage", "status"}, latencyBuckets),
		payloads: NewCounterVec("dats_prepro_payloads_total", "Terminal preprocessing payloads by doctype/status.", []string{"doctype", "status"}),
		modelWorker: NewHistogramVec("dats_model_worker_request_duration_seconds", "Model worker request latency by endpoint/status.",
			[]string{"endpoint", "status"}, []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900}),
		vectorOps: NewHistogramVec("dats_vector_store_operation_duration_seconds", "Vector store operation latency by provider/op/status.",
			[]string{"provider", "operation", "status"}, latencyBuckets),
		queueDepth: NewGaugeVec("dats_job_queue_depth", "Job runs by status.", []string{"status"}),
		pgStats:    NewGaugeVec("dats_db_pool", "Database pool stats.", []string{"stat"}),
		redisUp:    NewGauge("dats_redis_up", "Redis reachable (1) or not (0)."),
		redisPing:  NewGauge("dats_redis_ping_seconds", "Last redis ping latency."),
	}
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []collector{
		m.apiRequests, m.apiLatency, m.apiInflight, m.uploadBytes,
		m.jobRuns, m.jobDuration, m.stageDuration, m.payloads,
		m.modelWorker, m.vectorOps,
		m.queueDepth, m.pgStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method, route = orUnknown(method), orUnknown(route)
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

// ObserveUpload counts body bytes of upload requests. Unknown lengths are
// ignored.
func (m *Metrics) ObserveUpload(route string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.uploadBytes.Add(float64(bytes), orUnknown(route))
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveJobRun(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	jobType, status = orUnknown(jobType), orUnknown(status)
	m.jobRuns.Inc(jobType, status)
	m.jobDuration.Observe(dur.Seconds(), jobType, status)
}

func (m *Metrics) ObserveStage(modality, stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Observe(dur.Seconds(), orUnknown(modality), orUnknown(stage), orUnknown(status))
}

func (m *Metrics) IncPayload(doctype, status string) {
	if m == nil {
		return
	}
	m.payloads.Inc(orUnknown(doctype), orUnknown(status))
}

func (m *Metrics) ObserveModelWorker(endpoint, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.modelWorker.Observe(dur.Seconds(), orUnknown(endpoint), orUnknown(status))
}

func (m *Metrics) ObserveVectorOp(provider, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.Observe(dur.Seconds(), orUnknown(provider), orUnknown(op), orUnknown(status))
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	statuses := []string{
		domainjobs.StatusWaiting, domainjobs.StatusRunning,
		domainjobs.StatusFinished, domainjobs.StatusError, domainjobs.StatusAborted,
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.collectQueueDepth(ctx, db, statuses); err != nil && log != nil {
					log.Warn("metrics: job queue depth query failed", "error", err)
				}
			}
		}
	}()
}

func (m *Metrics) collectQueueDepth(ctx context.Context, db *gorm.DB, statuses []string) error {
	for _, s := range statuses {
		m.queueDepth.Set(0, s)
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.JobRun{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		m.queueDepth.Set(float64(row.Count), orUnknown(strings.TrimSpace(row.Status)))
	}
	return nil
}
