package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/db"
	"github.com/jmoiron/sqlx"
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateWallet(ctx context.Context, ownerID int64) (*Wallet, error) {
	w := &Wallet{}
	err := db.Conn(ctx, r.db).QueryRowxContext(ctx,
		`INSERT INTO wallets (owner_id)
		 VALUES ($1)
		 RETURNING owner_id, balance_cents, created_at, updated_at`,
		ownerID,
	).StructScan(w)
	if db.IsUniqueViolation(err) {
		return nil, ErrWalletExists
	}
	if err != nil {
		return nil, err
	}

	return w, nil
}

func (r *repository) GetWallet(ctx context.Context, ownerID int64) (*Wallet, error) {
	return r.getWallet(ctx,
		`SELECT owner_id, balance_cents, created_at, updated_at
		 FROM wallets
		 WHERE owner_id = $1`,
		ownerID,
	)
}

func (r *repository) GetWalletForUpdate(ctx context.Context, ownerID int64) (*Wallet, error) {
	return r.getWallet(ctx,
		`SELECT owner_id, balance_cents, created_at, updated_at
		 FROM wallets
		 WHERE owner_id = $1
		 FOR UPDATE`,
		ownerID,
	)
}

func (r *repository) getWallet(ctx context.Context, query string, ownerID int64) (*Wallet, error) {
	var w Wallet
	err := db.Conn(ctx, r.db).GetContext(ctx, &w, query, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repository) UpdateBalance(ctx context.Context, w *Wallet) error {
	err := db.Conn(ctx, r.db).QueryRowxContext(ctx,
		`UPDATE wallets
		 SET balance_cents = $1, updated_at = NOW()
		 WHERE owner_id = $2
		 RETURNING updated_at`,
		w.BalanceCents, w.OwnerID,
	).Scan(&w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrWalletNotFound
	}
	return err
}

func (r *repository) AppendEntry(ctx context.Context, e *Entry) error {
	err := db.Conn(ctx, r.db).QueryRowxContext(ctx,
		`INSERT INTO ledger_entries (owner_id, amount_cents, kind, outcome, memo, external_ref, balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		e.OwnerID, e.AmountCents, e.Kind, e.Outcome, e.Memo, e.ExternalRef, e.BalanceAfter,
	).Scan(&e.ID, &e.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrAlreadySettled
	}
	return err
}

func (r *repository) GetEntryByRef(ctx context.Context, externalRef string) (*Entry, error) {
	var e Entry
	err := db.Conn(ctx, r.db).GetContext(ctx, &e, `
		SELECT id, owner_id, amount_cents, kind, outcome, memo, external_ref, balance_after, created_at
		FROM ledger_entries
		WHERE external_ref = $1
	`, externalRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repository) ListEntries(ctx context.Context, ownerID int64) ([]Entry, error) {
	var entries []Entry
	err := db.Conn(ctx, r.db).SelectContext(ctx, &entries, `
		SELECT id, owner_id, amount_cents, kind, outcome, memo, external_ref, balance_after, created_at
		FROM ledger_entries
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *repository) SumSucceeded(ctx context.Context, ownerID int64) (int64, error) {
	var sum int64
	err := db.Conn(ctx, r.db).GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM ledger_entries
		WHERE owner_id = $1 AND outcome = 'succeeded'
	`, ownerID)
	return sum, err
}
