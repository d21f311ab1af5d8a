package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mts_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mts_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TicketsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mts_tickets_issued_total",
			Help: "Total number of tickets issued",
		},
		[]string{"fare"},
	)

	TicketsPaidTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mts_tickets_paid_total",
			Help: "Total number of tickets marked paid",
		},
		[]string{"channel"},
	)

	TicketScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mts_ticket_scans_total",
			Help: "Total number of gate scans",
		},
		[]string{"direction", "result"},
	)

	TicketsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mts_tickets_expired_total",
			Help: "Total number of tickets moved to expired",
		},
	)

	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mts_ledger_operations_total",
			Help: "Total number of ledger entries appended",
		},
		[]string{"kind", "outcome"},
	)

	RefundRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mts_refund_requests_total",
			Help: "Total number of refund requests created",
		},
	)

	RefundsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mts_refunds_processed_total",
			Help: "Total number of refund requests processed",
		},
		[]string{"channel", "status"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mts_gateway_request_duration_seconds",
			Help:    "Payment gateway call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "code"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mts_notifications_total",
			Help: "Total number of push notifications handled",
		},
		[]string{"status"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mts_notification_queue_length",
			Help: "Current length of notification queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTicketIssued(fare string) {
	TicketsIssuedTotal.WithLabelValues(fare).Inc()
}

func RecordTicketPaid(channel string) {
	TicketsPaidTotal.WithLabelValues(channel).Inc()
}

func RecordTicketScan(direction, result string) {
	TicketScansTotal.WithLabelValues(direction, result).Inc()
}

func RecordTicketsExpired(n int) {
	if n > 0 {
		TicketsExpiredTotal.Add(float64(n))
	}
}

func RecordLedgerOperation(kind, outcome string) {
	LedgerOperationsTotal.WithLabelValues(kind, outcome).Inc()
}

func RecordRefundRequest() {
	RefundRequestsTotal.Inc()
}

func RecordRefundProcessed(channel, status string) {
	RefundsProcessedTotal.WithLabelValues(channel, status).Inc()
}

func RecordGatewayRequest(operation, code string, duration time.Duration) {
	GatewayRequestDuration.WithLabelValues(operation, code).Observe(duration.Seconds())
}

func RecordNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}
