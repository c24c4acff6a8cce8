package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/construction-graphrag/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal        *prometheus.CounterVec
	queryDuration     *prometheus.HistogramVec
	querySources      *prometheus.HistogramVec
	noContextTotal    *prometheus.CounterVec
	routeTotal        *prometheus.CounterVec
	sourceHitsTotal   *prometheus.CounterVec
	sourceFailures    *prometheus.CounterVec
	degradedEmbedding *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "graphrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total answered queries by route kind.",
		},
		[]string{"service", "endpoint", "route"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphrag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	querySources := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphrag",
			Subsystem: "query",
			Name:      "sources",
			Help:      "Distribution of cited sources per answered query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "endpoint"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "query",
			Name:      "no_context_total",
			Help:      "Total queries answered without retrieved context.",
		},
		[]string{"service"},
	)
	routeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "router",
			Name:      "decisions_total",
			Help:      "Routing decisions by kind and template.",
		},
		[]string{"service", "kind", "template"},
	)
	sourceHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "retrieval",
			Name:      "source_hits_total",
			Help:      "Hits returned by each retrieval source.",
		},
		[]string{"service", "source"},
	)
	sourceFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "retrieval",
			Name:      "source_failures_total",
			Help:      "Retrieval source calls that failed and were skipped.",
		},
		[]string{"service", "source"},
	)
	degradedEmbedding := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "retrieval",
			Name:      "degraded_embeddings_total",
			Help:      "Query embeddings replaced by a placeholder after retries ran out.",
		},
		[]string{"service", "embedder"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		queryDuration,
		querySources,
		noContextTotal,
		routeTotal,
		sourceHitsTotal,
		sourceFailures,
		degradedEmbedding,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		service:           service,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		queryTotal:        queryTotal,
		queryDuration:     queryDuration,
		querySources:      querySources,
		noContextTotal:    noContextTotal,
		routeTotal:        routeTotal,
		sourceHitsTotal:   sourceHitsTotal,
		sourceFailures:    sourceFailures,
		degradedEmbedding: degradedEmbedding,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordQuery(endpoint string, route domain.RouteKind, sourceCount int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	m.queryTotal.WithLabelValues(m.service, endpoint, string(route)).Inc()
	m.querySources.WithLabelValues(m.service, endpoint).Observe(float64(sourceCount))
	m.queryDuration.WithLabelValues(m.service, endpoint).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveSourceHits(source domain.SourceKind, hits int) {
	if hits <= 0 {
		return
	}
	m.sourceHitsTotal.WithLabelValues(m.service, string(source)).Add(float64(hits))
}

func (m *HTTPServerMetrics) ObserveSourceFailure(source domain.SourceKind) {
	m.sourceFailures.WithLabelValues(m.service, string(source)).Inc()
}

func (m *HTTPServerMetrics) ObserveDegradedEmbedding(embedder string) {
	if embedder == "" {
		embedder = "unknown"
	}
	m.degradedEmbedding.WithLabelValues(m.service, embedder).Inc()
}

func (m *HTTPServerMetrics) ObserveNoContext() {
	m.noContextTotal.WithLabelValues(m.service).Inc()
}

func (m *HTTPServerMetrics) ObserveRoute(decision domain.RouteDecision) {
	template := string(decision.Template)
	if template == "" {
		template = "none"
	}
	m.routeTotal.WithLabelValues(m.service, string(decision.Kind), template).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
