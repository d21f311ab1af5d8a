package memstore

import (
	"context"
	"sort"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/refund"
)

type refundRepository struct {
	store *Store
}

func (r *refundRepository) Create(ctx context.Context, req *refund.Request) error {
	return r.store.run(ctx, func(st *state) error {
		if req.Status == refund.StatusPending && hasPending(st, req.TicketID) {
			return refund.ErrDuplicateRequest
		}
		st.nextRefundID++
		req.ID = st.nextRefundID
		st.refunds[req.ID] = *req
		return nil
	})
}

func (r *refundRepository) GetByIDForUpdate(ctx context.Context, id int64) (*refund.Request, error) {
	var out *refund.Request
	err := r.store.run(ctx, func(st *state) error {
		req, ok := st.refunds[id]
		if !ok {
			return refund.ErrRequestNotFound
		}
		out = &req
		return nil
	})
	return out, err
}

func (r *refundRepository) HasPending(ctx context.Context, ticketID int64) (bool, error) {
	var pending bool
	err := r.store.run(ctx, func(st *state) error {
		pending = hasPending(st, ticketID)
		return nil
	})
	return pending, err
}

func hasPending(st *state, ticketID int64) bool {
	for _, req := range st.refunds {
		if req.TicketID == ticketID && req.Status == refund.StatusPending {
			return true
		}
	}
	return false
}

func (r *refundRepository) ListPending(ctx context.Context) ([]refund.PendingRequest, error) {
	var out []refund.PendingRequest
	err := r.store.run(ctx, func(st *state) error {
		for _, req := range st.refunds {
			if req.Status != refund.StatusPending {
				continue
			}
			t, ok := st.tickets[req.TicketID]
			if !ok {
				continue
			}
			rider := st.riders[req.RequesterID]
			out = append(out, refund.PendingRequest{
				Request:           req,
				RiderName:         rider.FullName,
				RiderEmail:        rider.Email,
				TicketAmountCents: t.AmountCents,
				TicketPurchasedAt: t.PurchasedAt,
				FareTypeID:        t.FareTypeID,
			})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *refundRepository) ListByRequester(ctx context.Context, requesterID int64) ([]refund.Request, error) {
	var out []refund.Request
	err := r.store.run(ctx, func(st *state) error {
		for _, req := range st.refunds {
			if req.RequesterID == requesterID {
				out = append(out, req)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.After(out[j].RequestedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r *refundRepository) Update(ctx context.Context, req *refund.Request) error {
	return r.store.run(ctx, func(st *state) error {
		stored, ok := st.refunds[req.ID]
		if !ok {
			return refund.ErrRequestNotFound
		}
		stored.Status = req.Status
		stored.ProcessedAt = req.ProcessedAt
		stored.ApproverID = req.ApproverID
		stored.ApproverNotes = req.ApproverNotes
		st.refunds[req.ID] = stored
		return nil
	})
}
