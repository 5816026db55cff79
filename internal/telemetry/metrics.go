package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// Evaluations counts safety evaluations by slug, stage and aggregate outcome.
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safety_evaluations_total",
			Help: "Safety evaluations by slug, stage and outcome",
		},
		[]string{"slug", "stage", "outcome"},
	)
	// TriggeredRules counts every rule that matched, not only the selected one.
	TriggeredRules = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safety_triggered_rules_total",
			Help: "Triggered safety rules by slug and rule id",
		},
		[]string{"slug", "rule_id"},
	)
	// Notices counts fail-open degrades. Unknown slugs in production are a
	// configuration bug and should alert.
	Notices = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safety_notices_total",
			Help: "Fail-open evaluation notices by kind",
		},
		[]string{"kind"},
	)
	CatalogRules = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "safety_catalog_rules",
		Help: "Number of rules in the active catalog",
	})
)

var initOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpReqs, httpDur, Evaluations, TriggeredRules, Notices, CatalogRules)
	})
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		// the route pattern is only known once chi has routed the request
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		httpReqs.WithLabelValues(route, r.Method, strconv.Itoa(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
