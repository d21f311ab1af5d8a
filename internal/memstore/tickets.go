package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/ticket"
)

type ticketRepository struct {
	store *Store
}

func (r *ticketRepository) Create(ctx context.Context, t *ticket.Ticket) error {
	return r.store.run(ctx, func(st *state) error {
		st.nextTicketID++
		now := r.store.now()

		t.ID = st.nextTicketID
		t.CreatedAt = now
		t.UpdatedAt = now
		st.tickets[t.ID] = *t
		withRoute(st, t)
		return nil
	})
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*ticket.Ticket, error) {
	var out *ticket.Ticket
	err := r.store.run(ctx, func(st *state) error {
		t, ok := st.tickets[id]
		if !ok || t.Deleted {
			return ticket.ErrNotFound
		}
		withRoute(st, &t)
		out = &t
		return nil
	})
	return out, err
}

// GetByIDForUpdate relies on the store lock held by the transaction.
func (r *ticketRepository) GetByIDForUpdate(ctx context.Context, id int64) (*ticket.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *ticketRepository) ListByOwner(ctx context.Context, ownerID int64) ([]ticket.Ticket, error) {
	var out []ticket.Ticket
	err := r.store.run(ctx, func(st *state) error {
		for _, t := range st.tickets {
			if t.OwnerID != ownerID || t.Deleted {
				continue
			}
			withRoute(st, &t)
			out = append(out, t)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r *ticketRepository) Update(ctx context.Context, t *ticket.Ticket) error {
	return r.store.run(ctx, func(st *state) error {
		stored, ok := st.tickets[t.ID]
		if !ok {
			return ticket.ErrNotFound
		}

		stored.ValidTo = t.ValidTo
		stored.PurchasedAt = t.PurchasedAt
		stored.Paid = t.Paid
		stored.GateToken = t.GateToken
		stored.Status = t.Status
		stored.ExternalRef = t.ExternalRef
		stored.ExternalTxnID = t.ExternalTxnID
		stored.ExternalTxnAt = t.ExternalTxnAt
		stored.Deleted = t.Deleted
		stored.UpdatedAt = r.store.now()

		st.tickets[t.ID] = stored
		t.UpdatedAt = stored.UpdatedAt
		return nil
	})
}

func (r *ticketRepository) ExpireOverdue(ctx context.Context, ownerID *int64, now time.Time) (int, error) {
	n := 0
	err := r.store.run(ctx, func(st *state) error {
		for id, t := range st.tickets {
			if t.Deleted || t.Status.Terminal() || !t.ValidTo.Before(now) {
				continue
			}
			if ownerID != nil && t.OwnerID != *ownerID {
				continue
			}
			t.Status = ticket.StatusExpired
			t.UpdatedAt = r.store.now()
			st.tickets[id] = t
			n++
		}
		return nil
	})
	return n, err
}

func withRoute(st *state, t *ticket.Ticket) {
	t.StartTerminalID, t.EndTerminalID = nil, nil
	if t.RouteID == nil {
		return
	}
	route, ok := st.routes[*t.RouteID]
	if !ok {
		return
	}
	start, end := route.StartTerminalID, route.EndTerminalID
	t.StartTerminalID = &start
	t.EndTerminalID = &end
}
