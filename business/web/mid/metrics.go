package mid

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/dimfeld/httptreemux/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusRequests *prometheus.CounterVec
	prometheusErrors   prometheus.Counter
	prometheusPanics   prometheus.Counter
	prometheusDuration *prometheus.HistogramVec
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "utxochain",
			Subsystem: "web",
			Name:      "requests",
			Help:      "Number of requests handled by route",
		},
		[]string{"method", "route"},
	)

	prometheusErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "utxochain",
			Subsystem: "web",
			Name:      "errors",
			Help:      "Number of requests that returned an error",
		},
	)

	prometheusPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "utxochain",
			Subsystem: "web",
			Name:      "panics",
			Help:      "Number of requests that panicked",
		},
	)

	prometheusDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "utxochain",
			Subsystem: "web",
			Name:      "request_duration_seconds",
			Help:      "Duration of requests by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
}

// Metrics updates program counters.
func Metrics() web.Middleware {
	initPrometheusMetrics()

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			began := time.Now()

			// Call the next handler.
			err := handler(ctx, w, r)

			// The route is the path pattern so the series stay bounded.
			route := routeOf(r)
			prometheusRequests.WithLabelValues(r.Method, route).Inc()
			prometheusDuration.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())

			if err != nil {
				prometheusErrors.Inc()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}

// routeOf returns the matched route pattern or the raw path when the router
// has no match data.
func routeOf(r *http.Request) string {
	if route := httptreemux.ContextRoute(r.Context()); route != "" {
		return route
	}
	return r.URL.Path
}
