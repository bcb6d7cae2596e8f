package service

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// award workflows.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	complaintDecisions   *prometheus.CounterVec
	rosterApprovals      *prometheus.CounterVec
	pointsAwarded        *prometheus.CounterVec
	notarizationDuration prometheus.Histogram
	notarizationFailures prometheus.Counter
	jobsEnqueued         *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	complaintDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "complaint_decisions_total",
		Help: "Complaint decisions by outcome",
	}, []string{"decision"})

	rosterApprovals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roster_approvals_total",
		Help: "Roster approvals by outcome",
	}, []string{"outcome"})

	pointsAwarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "points_awarded_total",
		Help: "Points appended to the ledger by source",
	}, []string{"source"})

	notarizationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notarization_duration_seconds",
		Help:    "Time to submit a notarization and receive its receipt",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
	})

	notarizationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notarization_failures_total",
		Help: "Failed notarization submissions",
	})

	jobsEnqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "background_jobs_enqueued_total",
		Help: "Background jobs enqueued by queue and result",
	}, []string{"queue", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		complaintDecisions, rosterApprovals, pointsAwarded, notarizationDuration, notarizationFailures, jobsEnqueued, goroutines)
	registry.MustRegister(hostCollectors()...)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:             registry,
		handler:              handler,
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLatency:         cacheLatency,
		cacheWrite:           cacheWrite,
		cacheHitRatio:        cacheHitRatio,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
		complaintDecisions:   complaintDecisions,
		rosterApprovals:      rosterApprovals,
		pointsAwarded:        pointsAwarded,
		notarizationDuration: notarizationDuration,
		notarizationFailures: notarizationFailures,
		jobsEnqueued:         jobsEnqueued,
	}
}

// hostCollectors samples process and host resources through gopsutil on every scrape.
func hostCollectors() []prometheus.Collector {
	proc, _ := process.NewProcess(int32(os.Getpid()))

	rss := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "process_resident_memory_sampled_bytes",
		Help: "Resident set size of the API process",
	}, func() float64 {
		if proc == nil {
			return 0
		}
		info, err := proc.MemoryInfo()
		if err != nil || info == nil {
			return 0
		}
		return float64(info.RSS)
	})

	cpu := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "process_cpu_load_ratio",
		Help: "CPU load of the API process (0-1 per core)",
	}, func() float64 {
		if proc == nil {
			return 0
		}
		pct, err := proc.CPUPercent()
		if err != nil {
			return 0
		}
		return pct / 100.0
	})

	sysMem := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "host_memory_used_ratio",
		Help: "Fraction of host memory in use",
	}, func() float64 {
		stat, err := mem.VirtualMemory()
		if err != nil || stat == nil {
			return 0
		}
		return stat.UsedPercent / 100.0
	})

	return []prometheus.Collector{rss, cpu, sysMem}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordComplaintDecision counts an approve or reject.
func (m *MetricsService) RecordComplaintDecision(decision string) {
	if m == nil {
		return
	}
	m.complaintDecisions.WithLabelValues(decision).Inc()
}

// RecordRosterApproval counts a bulk approval by outcome ("approved", "partial", "failed").
func (m *MetricsService) RecordRosterApproval(outcome string) {
	if m == nil {
		return
	}
	m.rosterApprovals.WithLabelValues(outcome).Inc()
}

// AddPointsAwarded adds appended points for a ledger source.
func (m *MetricsService) AddPointsAwarded(source string, points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.pointsAwarded.WithLabelValues(source).Add(float64(points))
}

// ObserveNotarization records the latency of a submission and whether it failed.
func (m *MetricsService) ObserveNotarization(duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.notarizationDuration.Observe(duration.Seconds())
	if failed {
		m.notarizationFailures.Inc()
	}
}

// RecordJobEnqueue counts background job submissions.
func (m *MetricsService) RecordJobEnqueue(queue string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.jobsEnqueued.WithLabelValues(queue, result).Inc()
}
