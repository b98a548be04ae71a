package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_requests_total",
			Help: "Total HTTP requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inapp_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inapp_in_flight",
		Help: "In-flight HTTP requests",
	})
	DeliveryEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inapp_delivery_events_total",
			Help: "Delivery engine events by kind (refreshes, shows, drops)",
		}, []string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal, Latency, InFlight, DeliveryEvents)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

// PromSink is the default telemetry sink: every reported delivery event
// increments a counter by kind. Fire-and-forget by construction.
type PromSink struct{}

func (PromSink) Report(kind string, _ map[string]string) {
	DeliveryEvents.WithLabelValues(kind).Inc()
}

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
