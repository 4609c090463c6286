package gateway

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// observability spans and counts every routed request. Spans flow to whatever
// tracer provider the process installed; the default no-op provider keeps the
// middleware harmless when tracing is not configured.
type observability struct {
	tracer    trace.Tracer
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

var (
	gatewayObsOnce sync.Once
	gatewayObs     *observability
)

func newObservability() *observability {
	gatewayObsOnce.Do(func() {
		requests := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boxchain",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "HTTP requests processed by the query gateway.",
		}, []string{"route", "method", "status"})
		durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "boxchain",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of gateway HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"})
		prometheus.MustRegister(requests, durations)
		gatewayObs = &observability{
			tracer:    otel.Tracer("boxchain-gateway"),
			requests:  requests,
			durations: durations,
		}
	})
	return gatewayObs
}

// middleware wraps a routed handler in a span and records the request
// counters once the response is written.
func (o *observability) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := o.tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
		))
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", recorder.status),
		)
		span.End()
		o.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		o.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
