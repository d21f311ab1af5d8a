package ticket

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, t *Ticket) error
	GetByID(ctx context.Context, id int64) (*Ticket, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*Ticket, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Ticket, error)
	Update(ctx context.Context, t *Ticket) error
	// ExpireOverdue marks every non-terminal ticket whose validity ended before now
	// as expired. A nil ownerID sweeps all owners.
	ExpireOverdue(ctx context.Context, ownerID *int64, now time.Time) (int, error)
}

// TokenCodec signs and verifies the gate token bound to a ticket and its owner.
type TokenCodec interface {
	Issue(ticketID, ownerID int64) (string, error)
	Verify(token string) (ticketID, ownerID int64, err error)
}

// Notifier receives fire-and-forget scan notifications.
type Notifier interface {
	Notify(ctx context.Context, ownerID, ticketID int64) error
}
