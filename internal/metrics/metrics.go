package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parkingnear"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	requestTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_transitions_total",
			Help:      "Parking request state transitions by target status.",
		},
		[]string{"status"},
	)

	billsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_generated_total",
			Help:      "Bills created for completed requests.",
		},
	)

	billsPaid = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_paid_total",
			Help:      "Bills moved to PAID by source.",
		},
		[]string{"source"}, // payment, external
	)

	paymentsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_rejected_total",
			Help:      "Payment attempts rejected before recording.",
		},
		[]string{"reason"},
	)

	notificationsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbox notifications by delivery result.",
		},
		[]string{"result"}, // sent, retry, failed
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			requestTransitions,
			billsGenerated,
			billsPaid,
			paymentsRejected,
			notificationsDelivered,
		)
	})
}

// IncHTTP increments the counter for a route and status code.
func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncTransition(status string) {
	requestTransitions.WithLabelValues(status).Inc()
}

func IncBillGenerated() {
	billsGenerated.Inc()
}

func IncBillPaid(source string) {
	billsPaid.WithLabelValues(source).Inc()
}

func IncPaymentRejected(reason string) {
	paymentsRejected.WithLabelValues(reason).Inc()
}

func IncNotification(result string) {
	notificationsDelivered.WithLabelValues(result).Inc()
}
