package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "story_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "story_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "story_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	postDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "story_layer",
			Subsystem: "quota",
			Name:      "post_decisions_total",
			Help:      "Total number of story post authorization decisions.",
		},
		[]string{"outcome", "tier"},
	)

	creditsSpent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "story_layer",
			Subsystem: "quota",
			Name:      "credits_spent_total",
			Help:      "Total credits debited for over-quota posts.",
		},
	)

	viewsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "story_layer",
			Subsystem: "engagement",
			Name:      "views_total",
			Help:      "Total number of story view recordings.",
		},
		[]string{"result"},
	)

	reactionsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "story_layer",
			Subsystem: "engagement",
			Name:      "reactions_total",
			Help:      "Total number of story reactions recorded.",
		},
		[]string{"reaction"},
	)

	storiesExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "story_layer",
			Subsystem: "stories",
			Name:      "expired_total",
			Help:      "Total number of stories marked expired by the sweeper.",
		},
	)

	storiesPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "story_layer",
			Subsystem: "stories",
			Name:      "purged_total",
			Help:      "Total number of stories removed by the retention job.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		postDecisions,
		creditsSpent,
		viewsRecorded,
		reactionsRecorded,
		storiesExpired,
		storiesPurged,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordPostDecision records the outcome of a story post authorization.
func RecordPostDecision(outcome, tier string) {
	if tier == "" {
		tier = "unknown"
	}
	postDecisions.WithLabelValues(outcome, tier).Inc()
}

// RecordCreditsSpent records credits debited for an over-quota post.
func RecordCreditsSpent(amount int64) {
	if amount > 0 {
		creditsSpent.Add(float64(amount))
	}
}

// RecordView records a view attempt. Result is one of "created", "duplicate"
// or "skipped".
func RecordView(result string) {
	viewsRecorded.WithLabelValues(result).Inc()
}

// RecordReaction records a recorded reaction by type.
func RecordReaction(reaction string) {
	reactionsRecorded.WithLabelValues(reaction).Inc()
}

// RecordExpired records stories transitioned to expired by the sweeper.
func RecordExpired(count int64) {
	if count > 0 {
		storiesExpired.Add(float64(count))
	}
}

// RecordPurged records stories removed by the retention job.
func RecordPurged(count int64) {
	if count > 0 {
		storiesPurged.Add(float64(count))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "stories" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/stories"
	}
	switch parts[1] {
	case "me", "following":
		return "/stories/" + parts[1]
	}
	if len(parts) == 2 {
		return "/stories/:story"
	}
	return "/stories/:story/" + parts[2]
}
