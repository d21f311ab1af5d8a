package refund

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/db"
	"github.com/jmoiron/sqlx"
)

const requestColumns = `id, ticket_id, requester_id, reason, status, requested_at,
	processed_at, approver_id, approver_notes`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, req *Request) error {
	err := db.Conn(ctx, r.db).QueryRowxContext(ctx,
		`INSERT INTO refund_requests (ticket_id, requester_id, reason, status, requested_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		req.TicketID, req.RequesterID, req.Reason, req.Status, req.RequestedAt,
	).Scan(&req.ID)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateRequest
	}
	return err
}

func (r *repository) GetByIDForUpdate(ctx context.Context, id int64) (*Request, error) {
	var req Request
	err := db.Conn(ctx, r.db).GetContext(ctx, &req,
		`SELECT `+requestColumns+`
		 FROM refund_requests
		 WHERE id = $1
		 FOR UPDATE`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) HasPending(ctx context.Context, ticketID int64) (bool, error) {
	return db.Exists(ctx, db.Conn(ctx, r.db),
		`SELECT EXISTS(SELECT 1 FROM refund_requests WHERE ticket_id = $1 AND status = 'pending')`,
		ticketID,
	)
}

func (r *repository) ListPending(ctx context.Context) ([]PendingRequest, error) {
	query := `
		SELECT rr.id, rr.ticket_id, rr.requester_id, rr.reason, rr.status, rr.requested_at,
			rr.processed_at, rr.approver_id, rr.approver_notes,
			COALESCE(rd.full_name, '') AS rider_name,
			COALESCE(rd.email, '') AS rider_email,
			t.amount_cents AS ticket_amount_cents,
			t.purchased_at AS ticket_purchased_at,
			t.fare_type_id
		FROM refund_requests rr
		JOIN tickets t ON t.id = rr.ticket_id
		LEFT JOIN riders rd ON rd.id = rr.requester_id
		WHERE rr.status = 'pending'
		ORDER BY rr.requested_at ASC, rr.id ASC
	`

	var pending []PendingRequest
	if err := db.Conn(ctx, r.db).SelectContext(ctx, &pending, query); err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *repository) ListByRequester(ctx context.Context, requesterID int64) ([]Request, error) {
	var requests []Request
	err := db.Conn(ctx, r.db).SelectContext(ctx, &requests,
		`SELECT `+requestColumns+`
		 FROM refund_requests
		 WHERE requester_id = $1
		 ORDER BY requested_at DESC, id DESC`,
		requesterID,
	)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) Update(ctx context.Context, req *Request) error {
	result, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE refund_requests
		 SET status = $2, processed_at = $3, approver_id = $4, approver_notes = $5
		 WHERE id = $1`,
		req.ID, req.Status, req.ProcessedAt, req.ApproverID, req.ApproverNotes,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}
