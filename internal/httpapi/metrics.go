package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evald",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evald",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "evald",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	generateRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evald",
			Subsystem: "generate",
			Name:      "requests_total",
			Help:      "Total generate calls by outcome",
		},
		[]string{"outcome"},
	)

	generatePromptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "evald",
			Subsystem: "generate",
			Name:      "prompts_total",
			Help:      "Total prompts submitted for generation",
		},
	)

	generateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "evald",
			Subsystem: "generate",
			Name:      "duration_seconds",
			Help:      "Duration of generate calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	backendReplicas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "evald",
			Subsystem: "backend",
			Name:      "replicas",
			Help:      "Number of replicas in the resolved plan",
		},
	)

	backendIdleDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "evald",
			Subsystem: "backend",
			Name:      "idle_devices",
			Help:      "Visible devices left idle by the resolved plan",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight,
		generateRequestsTotal, generatePromptsTotal, generateDuration,
		backendReplicas, backendIdleDevices)
}

// ObservePlan records the resolved plan shape. Called once per handle at
// mux construction; the plan never changes afterwards.
func ObservePlan(replicas, idleDevices int) {
	backendReplicas.Set(float64(replicas))
	backendIdleDevices.Set(float64(idleDevices))
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		method := r.Method
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()

		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		statusLabel := itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// ObserveGenerate records one generate call's batch size, duration, and outcome.
func ObserveGenerate(batch int, dur time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	generateRequestsTotal.WithLabelValues(outcome).Inc()
	generatePromptsTotal.Add(float64(batch))
	generateDuration.Observe(dur.Seconds())
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// fast integer to ascii for small set of status codes
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
