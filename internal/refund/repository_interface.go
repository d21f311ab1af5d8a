package refund

import "context"

type Repository interface {
	Create(ctx context.Context, r *Request) error
	// GetByIDForUpdate locks the request row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*Request, error)
	HasPending(ctx context.Context, ticketID int64) (bool, error)
	ListPending(ctx context.Context) ([]PendingRequest, error)
	ListByRequester(ctx context.Context, requesterID int64) ([]Request, error)
	Update(ctx context.Context, r *Request) error
}
