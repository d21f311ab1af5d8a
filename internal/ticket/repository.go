package ticket

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/db"
	"github.com/jmoiron/sqlx"
)

const selectTicket = `
	SELECT t.id, t.owner_id, t.fare_type_id, t.route_id, t.amount_cents, t.valid_to,
		t.purchased_at, t.paid, t.gate_token, t.status, t.multiplicity,
		t.external_ref, t.external_txn_id, t.external_txn_at,
		t.deleted, t.created_at, t.updated_at,
		r.start_terminal_id, r.end_terminal_id
	FROM tickets t
	LEFT JOIN routes r ON r.id = t.route_id
`

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, t *Ticket) error {
	query := `
		INSERT INTO tickets (owner_id, fare_type_id, route_id, amount_cents, valid_to,
			purchased_at, paid, gate_token, status, multiplicity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	return db.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		t.OwnerID, t.FareTypeID, t.RouteID, t.AmountCents, t.ValidTo,
		t.PurchasedAt, t.Paid, t.GateToken, t.Status, t.Multiplicity,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Ticket, error) {
	return r.get(ctx, selectTicket+` WHERE t.id = $1 AND t.deleted = false`, id)
}

func (r *repository) GetByIDForUpdate(ctx context.Context, id int64) (*Ticket, error) {
	return r.get(ctx, selectTicket+` WHERE t.id = $1 AND t.deleted = false FOR UPDATE OF t`, id)
}

func (r *repository) get(ctx context.Context, query string, id int64) (*Ticket, error) {
	var t Ticket
	err := db.Conn(ctx, r.db).GetContext(ctx, &t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID int64) ([]Ticket, error) {
	query := selectTicket + ` WHERE t.owner_id = $1 AND t.deleted = false ORDER BY t.created_at DESC, t.id DESC`

	var tickets []Ticket
	if err := db.Conn(ctx, r.db).SelectContext(ctx, &tickets, query, ownerID); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *repository) Update(ctx context.Context, t *Ticket) error {
	query := `
		UPDATE tickets
		SET valid_to = $2, purchased_at = $3, paid = $4, gate_token = $5, status = $6,
			external_ref = $7, external_txn_id = $8, external_txn_at = $9,
			deleted = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := db.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		t.ID, t.ValidTo, t.PurchasedAt, t.Paid, t.GateToken, t.Status,
		t.ExternalRef, t.ExternalTxnID, t.ExternalTxnAt, t.Deleted,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repository) ExpireOverdue(ctx context.Context, ownerID *int64, now time.Time) (int, error) {
	query := `
		UPDATE tickets
		SET status = 'expired', updated_at = NOW()
		WHERE deleted = false
			AND status NOT IN ('expired', 'refunded')
			AND valid_to < $1
			AND ($2::bigint IS NULL OR owner_id = $2)
	`

	result, err := db.Conn(ctx, r.db).ExecContext(ctx, query, now, ownerID)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}
