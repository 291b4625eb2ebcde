// Package metrics 导出转发与镜像同步相关的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatrelay"

// Metrics 指标集合
// 所有方法对 nil 接收者安全，测试中可直接传 nil
type Metrics struct {
	registry *prometheus.Registry

	streams        *prometheus.CounterVec
	streamBytes    prometheus.Counter
	streamDuration prometheus.Histogram
	parseWarnings  prometheus.Counter
	mirrorWrites   *prometheus.CounterVec
	dualWrites     *prometheus.CounterVec
	historySource  *prometheus.CounterVec
}

// New 创建指标集合并注册到独立的 registry
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.streams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "streams_total",
			Help:      "Relayed chat streams by outcome",
		},
		[]string{"status"},
	)
	m.streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "stream_bytes_total",
			Help:      "Bytes forwarded from upstream to clients",
		},
	)
	m.streamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "stream_duration_seconds",
			Help:      "Wall time of relayed streams",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
	m.parseWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "parse_warnings_total",
			Help:      "Malformed side-channel event lines",
		},
	)
	m.mirrorWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "writes_total",
			Help:      "Flush-phase mirror write-backs by result",
		},
		[]string{"result"},
	)
	m.dualWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "dual_writes_total",
			Help:      "Rename/delete steps against provider and mirror",
		},
		[]string{"op", "stage", "result"},
	)
	m.historySource = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "pages_total",
			Help:      "History pages served by source",
		},
		[]string{"source"},
	)

	m.registry.MustRegister(
		m.streams,
		m.streamBytes,
		m.streamDuration,
		m.parseWarnings,
		m.mirrorWrites,
		m.dualWrites,
		m.historySource,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordStream 记录一次转发
func (m *Metrics) RecordStream(status string, bytes int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(status).Inc()
	m.streamBytes.Add(float64(bytes))
	m.streamDuration.Observe(elapsed.Seconds())
}

// RecordParseWarning 记录一条无法解析的事件行
func (m *Metrics) RecordParseWarning() {
	if m == nil {
		return
	}
	m.parseWarnings.Inc()
}

// RecordMirrorWrite 记录流结束后的镜像回写
func (m *Metrics) RecordMirrorWrite(result string) {
	if m == nil {
		return
	}
	m.mirrorWrites.WithLabelValues(result).Inc()
}

// RecordDualWrite 记录重命名/删除的单个步骤
func (m *Metrics) RecordDualWrite(op, stage string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dualWrites.WithLabelValues(op, stage, result).Inc()
}

// RecordHistory 记录历史分页的数据来源
func (m *Metrics) RecordHistory(source string) {
	if m == nil {
		return
	}
	m.historySource.WithLabelValues(source).Inc()
}
