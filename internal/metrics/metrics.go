package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	OrdersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders persisted after a successful reservation",
	})

	OrdersCanceled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_canceled_total",
		Help: "Orders moved to the canceled status",
	})

	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Forward status transitions by target status",
		},
		[]string{"to"},
	)

	ReservationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservation_failures_total",
		Help: "Reservations refused for insufficient stock",
	})

	RestoreFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_restore_failures_total",
		Help: "Line items whose stock could not be restored on cancel",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OrdersCreated,
		OrdersCanceled,
		StatusTransitions,
		ReservationFailures,
		RestoreFailures,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
