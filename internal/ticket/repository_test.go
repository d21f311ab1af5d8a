package ticket

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/db"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ticketColumns = []string{
	"id", "owner_id", "fare_type_id", "route_id", "amount_cents", "valid_to",
	"purchased_at", "paid", "gate_token", "status", "multiplicity",
	"external_ref", "external_txn_id", "external_txn_at",
	"deleted", "created_at", "updated_at", "start_terminal_id", "end_terminal_id",
}

func setupMock(t *testing.T) (Repository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestRepository_Create(t *testing.T) {
	repo, mock := setupMock(t)
	now := time.Now()
	routeID := int64(4)

	tk := &Ticket{
		OwnerID:      42,
		FareTypeID:   1,
		RouteID:      &routeID,
		AmountCents:  30000,
		ValidTo:      now.Add(24 * time.Hour),
		Status:       StatusUnUsed,
		Multiplicity: 1,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tickets")).
		WithArgs(int64(42), int64(1), &routeID, int64(30000), sqlmock.AnyArg(), nil, false, nil, "unused", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	err := repo.Create(context.Background(), tk)

	require.NoError(t, err)
	assert.Equal(t, int64(7), tk.ID)
	assert.Equal(t, now, tk.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetByID(t *testing.T) {
	repo, mock := setupMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM tickets t LEFT JOIN routes r ON r.id = t.route_id WHERE t.id = $1 AND t.deleted = false")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(ticketColumns).AddRow(
			7, 42, 1, 4, 30000, now, now, true, "token", "in_use", 1,
			"15-1700000000", "14226112", "20240301083000",
			false, now, now, 10, 20,
		))

	tk, err := repo.GetByID(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, StatusInUse, tk.Status)
	assert.Equal(t, int64(10), *tk.StartTerminalID)
	assert.Equal(t, int64(20), *tk.EndTerminalID)
	require.NotNil(t, tk.Settlement())
	assert.Equal(t, "14226112", tk.Settlement().ExternalTxnID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetByIDForUpdate_NotFound(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.id = $1 AND t.deleted = false FOR UPDATE OF t")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(ticketColumns))

	tk, err := repo.GetByIDForUpdate(context.Background(), 99)

	assert.Nil(t, tk)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListByOwner(t *testing.T) {
	repo, mock := setupMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.owner_id = $1 AND t.deleted = false ORDER BY t.created_at DESC")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(ticketColumns).
			AddRow(8, 42, 2, nil, 50000, now, nil, false, nil, "unused", 2, nil, nil, nil, false, now, now, nil, nil).
			AddRow(7, 42, 1, 4, 30000, now, now, true, "token", "unused", 1, nil, nil, nil, false, now, now, 10, 20))

	tickets, err := repo.ListByOwner(context.Background(), 42)

	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Nil(t, tickets[0].RouteID)
	assert.Nil(t, tickets[0].Settlement())
	assert.Equal(t, 2, tickets[0].Multiplicity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Update(t *testing.T) {
	repo, mock := setupMock(t)
	now := time.Now()
	token := "token"

	tk := &Ticket{ID: 7, ValidTo: now, PurchasedAt: &now, Paid: true, GateToken: &token, Status: StatusDisabled}

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE tickets SET valid_to = $2")).
		WithArgs(int64(7), sqlmock.AnyArg(), sqlmock.AnyArg(), true, &token, "disabled", nil, nil, nil, false).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	require.NoError(t, repo.Update(context.Background(), tk))
	assert.Equal(t, now, tk.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Update_Missing(t *testing.T) {
	repo, mock := setupMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE tickets")).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := repo.Update(context.Background(), &Ticket{ID: 99, Status: StatusUnUsed})

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ExpireOverdue(t *testing.T) {
	repo, mock := setupMock(t)
	now := time.Now()
	owner := int64(42)

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'expired'")).
		WithArgs(now, &owner).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ExpireOverdue(context.Background(), &owner, now)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ExpireOverdue_AllOwners(t *testing.T) {
	repo, mock := setupMock(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("AND ($2::bigint IS NULL OR owner_id = $2)")).
		WithArgs(now, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.ExpireOverdue(context.Background(), nil, now)

	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Scan_LocksTicketRow(t *testing.T) {
	lockQuery := regexp.QuoteMeta("WHERE t.id = $1 AND t.deleted = false FOR UPDATE OF t")
	row := func(paid bool) *sqlmock.Rows {
		return sqlmock.NewRows(ticketColumns).AddRow(
			7, 42, 2, nil, 30000, testNow.Add(time.Hour), testNow, paid, "gate-token", "unused", 1,
			nil, nil, nil,
			false, testNow, testNow, nil, nil,
		)
	}
	newSQLService := func(t *testing.T) (Service, sqlmock.Sqlmock) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })

		sqlxDB := sqlx.NewDb(conn, "sqlmock")
		codec := new(MockCodec)
		codec.On("Verify", "gate-token").Return(int64(7), int64(42), nil)
		svc := NewService(NewRepository(sqlxDB), db.NewTransactor(sqlxDB), codec, DefaultPolicy(),
			WithClock(func() time.Time { return testNow }))
		return svc, mock
	}

	t.Run("check-in reads the ticket with FOR UPDATE inside one transaction", func(t *testing.T) {
		svc, mock := newSQLService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs(int64(7)).WillReturnRows(row(true))
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE tickets SET valid_to = $2")).
			WithArgs(int64(7), sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg(), "in_use", nil, nil, nil, false).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(testNow))
		mock.ExpectCommit()

		res, err := svc.Scan(context.Background(), ScanRequest{Token: "gate-token", TerminalID: 10, Direction: CheckIn})

		require.NoError(t, err)
		assert.Equal(t, StatusInUse, res.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejected scan rolls back without writing", func(t *testing.T) {
		svc, mock := newSQLService(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs(int64(7)).WillReturnRows(row(false))
		mock.ExpectRollback()

		_, err := svc.Scan(context.Background(), ScanRequest{Token: "gate-token", TerminalID: 10, Direction: CheckIn})

		assert.ErrorIs(t, err, ErrNotPaid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
