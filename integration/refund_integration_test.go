package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/refund"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/ticket"
)

func TestRefundToWallet_Integration(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	s.fund(t, riderID, 50000)
	tk := s.buyWithWallet(t, riderID, tripCost)

	req, err := s.refunds.Request(ctx, riderID, refund.CreateParams{TicketID: tk.ID, Reason: "plans changed"})
	require.NoError(t, err)
	assert.Equal(t, refund.StatusPending, req.Status)

	_, err = s.refunds.Request(ctx, riderID, refund.CreateParams{TicketID: tk.ID, Reason: "again"})
	assert.ErrorIs(t, err, refund.ErrDuplicateRequest)

	// uq_refund_requests_pending holds even without the service pre-check.
	err = refund.NewRepository(s.db).Create(ctx, &refund.Request{
		TicketID:    tk.ID,
		RequesterID: riderID,
		Reason:      "raced",
		Status:      refund.StatusPending,
		RequestedAt: time.Now(),
	})
	assert.ErrorIs(t, err, refund.ErrDuplicateRequest)

	pending, err := s.refunds.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	res, err := s.refunds.Process(ctx, req.ID, adminID, refund.ProcessParams{Decision: refund.DecisionApprove})
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, int64(27000), res.RefundCents)
	assert.Equal(t, int64(47000), s.balance(t, riderID))

	_, err = s.refunds.Process(ctx, req.ID, adminID, refund.ProcessParams{Decision: refund.DecisionApprove})
	assert.ErrorIs(t, err, refund.ErrAlreadyProcessed)
	assert.Equal(t, int64(47000), s.balance(t, riderID))

	got, err := s.tickets.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusRefunded, got.Status)

	rec, err := s.wallets.Reconcile(ctx, riderID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
}

func TestRefundRejectedForOtherRider_Integration(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	s.fund(t, riderID, 50000)
	tk := s.buyWithWallet(t, riderID, tripCost)

	_, err := s.refunds.Request(ctx, riderID+1, refund.CreateParams{TicketID: tk.ID, Reason: "not mine"})
	assert.ErrorIs(t, err, ticket.ErrNotFound)

	mine, err := s.refunds.ListByRider(ctx, riderID+1)
	require.NoError(t, err)
	assert.Empty(t, mine)
}
