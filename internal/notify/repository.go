package notify

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type repository struct {
	db *sqlx.DB
}

// NewRepository reads push tokens from the riders table.
func NewRepository(db *sqlx.DB) PushTokens {
	return &repository{db: db}
}

func (r *repository) PushToken(ctx context.Context, ownerID int64) (string, error) {
	var token string
	err := r.db.GetContext(ctx, &token,
		`SELECT COALESCE(push_token, '') FROM riders WHERE id = $1`,
		ownerID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return token, err
}

// StaticTokens serves push tokens from memory.
type StaticTokens map[int64]string

func (t StaticTokens) PushToken(_ context.Context, ownerID int64) (string, error) {
	return t[ownerID], nil
}
