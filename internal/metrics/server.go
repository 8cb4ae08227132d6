// =============================================================================
// 文件: internal/metrics/server.go
// 描述: Metrics 与健康检查 HTTP 服务 - Prometheus 标准格式
// =============================================================================
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 健康状态
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const shutdownTimeout = 5 * time.Second

// HealthStatus 健康状态
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Ready 健康或降级时仍可提供服务
func (h HealthStatus) Ready() bool {
	return h.Status == StatusHealthy || h.Status == StatusDegraded
}

// ComponentHealth 组件健康状态
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// MetricsServer 指标服务器
type MetricsServer struct {
	listen      string
	metricsPath string
	healthPath  string

	registry *prometheus.Registry
	live     atomic.Bool

	mu    sync.RWMutex
	check func() HealthStatus
}

// NewMetricsServer 创建指标服务器
func NewMetricsServer(listen, metricsPath, healthPath string) *MetricsServer {
	// 自定义 registry，避免污染全局
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &MetricsServer{
		listen:      listen,
		metricsPath: metricsPath,
		healthPath:  healthPath,
		registry:    registry,
	}
	s.live.Store(true)
	return s
}

// MustRegisterCollector 注册收集器（失败时 panic）
func (s *MetricsServer) MustRegisterCollector(c prometheus.Collector) {
	s.registry.MustRegister(c)
}

// Registry 指标 registry
func (s *MetricsServer) Registry() *prometheus.Registry {
	return s.registry
}

// SetHealthCheck 设置健康检查函数，未设置时始终健康
func (s *MetricsServer) SetHealthCheck(fn func() HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.check = fn
}

// SetHealthy 设置存活状态，运行出错后置为 false
func (s *MetricsServer) SetHealthy(healthy bool) {
	s.live.Store(healthy)
}

// Handler 构建 HTTP 路由
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(s.healthPath, s.handleHealth)
	mux.HandleFunc(s.healthPath+"/live", s.handleLive)
	mux.HandleFunc(s.healthPath+"/ready", s.handleReady)

	mux.Handle(s.metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          s.registry,
	}))

	return mux
}

// Serve 阻塞运行，ctx 取消时优雅关闭
func (s *MetricsServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *MetricsServer) status() HealthStatus {
	s.mu.RLock()
	check := s.check
	s.mu.RUnlock()

	if check == nil {
		return HealthStatus{Status: StatusHealthy, Timestamp: time.Now()}
	}
	return check()
}

func (s *MetricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.status()

	w.Header().Set("Content-Type", "application/json")
	if !status.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (s *MetricsServer) handleLive(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, s.live.Load(), "OK", "NOT OK")
}

func (s *MetricsServer) handleReady(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, s.status().Ready(), "READY", "NOT READY")
}

func writeProbe(w http.ResponseWriter, ok bool, yes, no string) {
	if ok {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(yes))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(no))
}
