package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/gates/scan", "200", 0.05)
	RecordHTTPRequest("POST", "/gates/scan", "200", 0.02)
	RecordHTTPRequest("POST", "/gates/scan", "409", 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/gates/scan", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/gates/scan", "409")))
	assert.Equal(t, 1, testutil.CollectAndCount(HTTPRequestDuration))
}

func TestRecordTicketScan(t *testing.T) {
	TicketScansTotal.Reset()

	RecordTicketScan("check_in", "ok")
	RecordTicketScan("check_in", "ok")
	RecordTicketScan("check_out", "invalid_state")

	assert.Equal(t, float64(2), testutil.ToFloat64(TicketScansTotal.WithLabelValues("check_in", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(TicketScansTotal.WithLabelValues("check_out", "invalid_state")))
}

func TestRecordTicketIssuedAndPaid(t *testing.T) {
	TicketsIssuedTotal.Reset()
	TicketsPaidTotal.Reset()

	RecordTicketIssued("standard")
	RecordTicketIssued("priority")
	RecordTicketPaid("wallet")
	RecordTicketPaid("gateway")
	RecordTicketPaid("gateway")

	assert.Equal(t, float64(1), testutil.ToFloat64(TicketsIssuedTotal.WithLabelValues("priority")))
	assert.Equal(t, float64(2), testutil.ToFloat64(TicketsPaidTotal.WithLabelValues("gateway")))
}

func TestRecordTicketsExpired(t *testing.T) {
	testCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mts_tickets_expired_total_test",
			Help: "Total number of tickets moved to expired",
		},
	)

	oldCounter := TicketsExpiredTotal
	TicketsExpiredTotal = testCounter
	defer func() { TicketsExpiredTotal = oldCounter }()

	RecordTicketsExpired(3)
	RecordTicketsExpired(0)
	RecordTicketsExpired(2)

	assert.Equal(t, float64(5), testutil.ToFloat64(testCounter))
}

func TestRecordLedgerOperation(t *testing.T) {
	LedgerOperationsTotal.Reset()

	RecordLedgerOperation("purchase", "succeeded")
	RecordLedgerOperation("purchase", "failed")
	RecordLedgerOperation("refund", "succeeded")

	assert.Equal(t, float64(1), testutil.ToFloat64(LedgerOperationsTotal.WithLabelValues("purchase", "failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(LedgerOperationsTotal.WithLabelValues("refund", "succeeded")))
}

func TestRecordRefunds(t *testing.T) {
	testCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mts_refund_requests_total_test",
			Help: "Total number of refund requests created",
		},
	)

	oldCounter := RefundRequestsTotal
	RefundRequestsTotal = testCounter
	defer func() { RefundRequestsTotal = oldCounter }()

	RefundsProcessedTotal.Reset()

	RecordRefundRequest()
	RecordRefundProcessed("gateway", "rejected")
	RecordRefundProcessed("wallet", "approved")

	assert.Equal(t, float64(1), testutil.ToFloat64(testCounter))
	assert.Equal(t, float64(1), testutil.ToFloat64(RefundsProcessedTotal.WithLabelValues("gateway", "rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(RefundsProcessedTotal.WithLabelValues("wallet", "approved")))
}

func TestRecordGatewayRequest(t *testing.T) {
	GatewayRequestDuration.Reset()

	RecordGatewayRequest("refund", "00", 120*time.Millisecond)
	RecordGatewayRequest("refund", "05", 80*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(GatewayRequestDuration))
}

func TestNotificationMetrics(t *testing.T) {
	NotificationsTotal.Reset()

	RecordNotification("sent")
	RecordNotification("failed")
	RecordNotification("sent")

	assert.Equal(t, float64(2), testutil.ToFloat64(NotificationsTotal.WithLabelValues("sent")))

	NotificationQueueLength.Set(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(NotificationQueueLength))
	NotificationQueueLength.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(NotificationQueueLength))
}
