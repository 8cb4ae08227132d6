// =============================================================================
// 文件: internal/metrics/gauges.go
// 描述: 实时埋点指标（Counter/Gauge/Histogram）- 仿真运行进度
// =============================================================================
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics 仿真运行指标集合
type RunMetrics struct {
	Iterations prometheus.Counter
	Progress   prometheus.Gauge // 已组装 / 总长度
	Completed  prometheus.Gauge

	IterationDuration  prometheus.Histogram
	IterationsToFinish prometheus.Histogram
	TransfersTotal     *prometheus.CounterVec
}

// NewRunMetrics 创建指标集合并注册
func NewRunMetrics(registry *prometheus.Registry) *RunMetrics {
	m := &RunMetrics{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sim",
			Name:      "iterations_total",
			Help:      "Simulation iterations executed",
		}),

		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sim",
			Name:      "progress_ratio",
			Help:      "Fraction of the payload assembled in order by the receiver",
		}),

		Completed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sim",
			Name:      "completed",
			Help:      "Whether the current transfer completed (1 = yes)",
		}),

		IterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sim",
			Name:      "iteration_duration_seconds",
			Help:      "Wall time of one simulation iteration",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),

		IterationsToFinish: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sim",
			Name:      "iterations_to_finish",
			Help:      "Iterations needed per finished transfer",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),

		TransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sim",
			Name:      "transfers_total",
			Help:      "Finished transfers by outcome",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.Iterations,
		m.Progress,
		m.Completed,
		m.IterationDuration,
		m.IterationsToFinish,
		m.TransfersTotal,
	)

	return m
}

// RecordIteration 记录一轮
func (m *RunMetrics) RecordIteration(seconds float64, received, total int) {
	m.Iterations.Inc()
	m.IterationDuration.Observe(seconds)
	if total > 0 {
		m.Progress.Set(float64(received) / float64(total))
	} else {
		m.Progress.Set(1)
	}
}

// RecordTransfer 记录一次传输结束
func (m *RunMetrics) RecordTransfer(iterations int, completed bool) {
	m.IterationsToFinish.Observe(float64(iterations))
	if completed {
		m.Completed.Set(1)
		m.TransfersTotal.WithLabelValues("completed").Inc()
	} else {
		m.Completed.Set(0)
		m.TransfersTotal.WithLabelValues("incomplete").Inc()
	}
}
