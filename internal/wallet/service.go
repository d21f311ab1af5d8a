package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/apperr"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/db"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/logger"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/metrics"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/ticket"
)

var (
	ErrWalletNotFound    = apperr.New(apperr.NotFound, "wallet not found")
	ErrWalletExists      = apperr.New(apperr.AlreadyExists, "wallet already exists")
	ErrInsufficientFunds = apperr.New(apperr.InsufficientFunds, "insufficient wallet balance")
	ErrInvalidAmount     = apperr.New(apperr.InvalidArgument, "amount must be positive")
	ErrBalanceLimit      = apperr.New(apperr.InvalidArgument, "credit would exceed the wallet balance limit")
	ErrMissingOrderRef   = apperr.New(apperr.InvalidArgument, "gateway order ref is required")
	ErrAlreadySettled    = apperr.New(apperr.AlreadyProcessed, "gateway order already settled")
	ErrEntryNotFound     = apperr.New(apperr.NotFound, "ledger entry not found")
)

// Tickets is the part of the ticket lifecycle a wallet purchase needs.
type Tickets interface {
	Get(ctx context.Context, ticketID int64) (*ticket.Ticket, error)
	MarkPaid(ctx context.Context, ticketID int64, settlement *ticket.Settlement) (*ticket.Ticket, error)
}

type Service interface {
	CreateWallet(ctx context.Context, ownerID int64) (*Wallet, error)
	GetWallet(ctx context.Context, ownerID int64) (*Wallet, error)
	Credit(ctx context.Context, ownerID, amountCents int64, kind EntryKind, memo string) (*Entry, error)
	// Debit records a failed entry and returns ErrInsufficientFunds when the balance
	// does not cover amountCents. The failed entry only survives if Debit owns the
	// transaction.
	Debit(ctx context.Context, ownerID, amountCents int64, kind EntryKind, memo string) (*Entry, error)
	TopUp(ctx context.Context, ownerID, amountCents int64, memo string) (*Entry, error)
	// TopUpFromGateway and RecordFailedTopUp settle a gateway order at most once.
	// A second call with the same orderRef returns ErrAlreadySettled.
	TopUpFromGateway(ctx context.Context, ownerID, amountCents int64, orderRef string) (*Entry, error)
	RecordFailedTopUp(ctx context.Context, ownerID, amountCents int64, orderRef string) (*Entry, error)
	PurchaseTicketWithWallet(ctx context.Context, ownerID, ticketID int64) (*PurchaseResult, error)
	History(ctx context.Context, ownerID int64) ([]Entry, error)
	Reconcile(ctx context.Context, ownerID int64) (*Reconciliation, error)
}

type service struct {
	repo    Repository
	tx      db.Transactor
	tickets Tickets
}

func NewService(repo Repository, tx db.Transactor, tickets Tickets) Service {
	return &service{
		repo:    repo,
		tx:      tx,
		tickets: tickets,
	}
}

func (s *service) CreateWallet(ctx context.Context, ownerID int64) (*Wallet, error) {
	w, err := s.repo.CreateWallet(ctx, ownerID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	logger.Info("wallet created", "owner_id", ownerID)
	return w, nil
}

func (s *service) GetWallet(ctx context.Context, ownerID int64) (*Wallet, error) {
	w, err := s.repo.GetWallet(ctx, ownerID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return w, nil
}

func (s *service) Credit(ctx context.Context, ownerID, amountCents int64, kind EntryKind, memo string) (*Entry, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	var entry *Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.repo.GetWalletForUpdate(ctx, ownerID)
		if err != nil {
			return err
		}
		if err := s.addToBalance(ctx, w, amountCents); err != nil {
			return err
		}

		entry = newEntry(w, amountCents, kind, OutcomeSucceeded, memo)
		return s.repo.AppendEntry(ctx, entry)
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	metrics.RecordLedgerOperation(string(kind), string(OutcomeSucceeded))
	return entry, nil
}

func (s *service) addToBalance(ctx context.Context, w *Wallet, amountCents int64) error {
	if amountCents > math.MaxInt64-w.BalanceCents {
		return ErrBalanceLimit
	}
	w.BalanceCents += amountCents
	return s.repo.UpdateBalance(ctx, w)
}

func (s *service) Debit(ctx context.Context, ownerID, amountCents int64, kind EntryKind, memo string) (*Entry, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	var entry *Entry
	declined := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		entry, err = s.debitLocked(ctx, ownerID, amountCents, kind, memo)
		if errors.Is(err, ErrInsufficientFunds) {
			declined = true
			entry, err = s.recordFailed(ctx, ownerID, -amountCents, kind, memo)
		}
		return err
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	if declined {
		metrics.RecordLedgerOperation(string(kind), string(OutcomeFailed))
		return entry, ErrInsufficientFunds
	}
	metrics.RecordLedgerOperation(string(kind), string(OutcomeSucceeded))
	return entry, nil
}

// debitLocked must run inside a transaction. It writes nothing when the balance is short.
func (s *service) debitLocked(ctx context.Context, ownerID, amountCents int64, kind EntryKind, memo string) (*Entry, error) {
	w, err := s.repo.GetWalletForUpdate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if w.BalanceCents < amountCents {
		return nil, ErrInsufficientFunds
	}

	w.BalanceCents -= amountCents
	if err := s.repo.UpdateBalance(ctx, w); err != nil {
		return nil, err
	}

	entry := newEntry(w, -amountCents, kind, OutcomeSucceeded, memo)
	if err := s.repo.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// recordFailed appends a failed entry for an attempt that left the balance untouched.
func (s *service) recordFailed(ctx context.Context, ownerID, signedAmount int64, kind EntryKind, memo string) (*Entry, error) {
	var entry *Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.repo.GetWalletForUpdate(ctx, ownerID)
		if err != nil {
			return err
		}
		entry = newEntry(w, signedAmount, kind, OutcomeFailed, memo)
		return s.repo.AppendEntry(ctx, entry)
	})
	return entry, err
}

func (s *service) TopUp(ctx context.Context, ownerID, amountCents int64, memo string) (*Entry, error) {
	entry, err := s.Credit(ctx, ownerID, amountCents, KindTopUp, memo)
	if err != nil {
		return nil, err
	}
	logger.Info("wallet topped up", "owner_id", ownerID, "amount_cents", amountCents)
	return entry, nil
}

func (s *service) TopUpFromGateway(ctx context.Context, ownerID, amountCents int64, orderRef string) (*Entry, error) {
	entry, err := s.settleTopUp(ctx, ownerID, amountCents, orderRef, OutcomeSucceeded)
	if err != nil {
		return nil, err
	}
	metrics.RecordLedgerOperation(string(KindTopUp), string(OutcomeSucceeded))
	logger.Info("wallet topped up", "owner_id", ownerID, "amount_cents", amountCents, "order_ref", orderRef)
	return entry, nil
}

func (s *service) RecordFailedTopUp(ctx context.Context, ownerID, amountCents int64, orderRef string) (*Entry, error) {
	entry, err := s.settleTopUp(ctx, ownerID, amountCents, orderRef, OutcomeFailed)
	if err != nil {
		return nil, err
	}
	metrics.RecordLedgerOperation(string(KindTopUp), string(OutcomeFailed))
	return entry, nil
}

// settleTopUp holds the wallet lock while it looks the order ref up, so replays
// of the same callback serialise behind the first one.
func (s *service) settleTopUp(ctx context.Context, ownerID, amountCents int64, orderRef string, outcome Outcome) (*Entry, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if orderRef == "" {
		return nil, ErrMissingOrderRef
	}

	var entry *Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.repo.GetWalletForUpdate(ctx, ownerID)
		if err != nil {
			return err
		}

		prior, err := s.repo.GetEntryByRef(ctx, orderRef)
		if err == nil {
			logger.Warn("gateway top-up replayed", "owner_id", ownerID, "order_ref", orderRef, "entry_id", prior.ID)
			return ErrAlreadySettled
		}
		if !errors.Is(err, ErrEntryNotFound) {
			return err
		}

		if outcome == OutcomeSucceeded {
			if err := s.addToBalance(ctx, w, amountCents); err != nil {
				return err
			}
		}

		entry = newEntry(w, amountCents, KindTopUp, outcome, "gateway top-up "+orderRef)
		entry.ExternalRef = &orderRef
		return s.repo.AppendEntry(ctx, entry)
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return entry, nil
}

func (s *service) PurchaseTicketWithWallet(ctx context.Context, ownerID, ticketID int64) (*PurchaseResult, error) {
	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, ticket.ErrNotFound
	}
	if t.Paid {
		return nil, ticket.ErrAlreadyPaid
	}

	memo := fmt.Sprintf("ticket #%d", ticketID)
	result := &PurchaseResult{}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		paid, err := s.tickets.MarkPaid(ctx, ticketID, nil)
		if err != nil {
			return err
		}
		result.Ticket = paid

		if paid.AmountCents == 0 {
			w, err := s.repo.GetWallet(ctx, ownerID)
			if err != nil {
				return err
			}
			result.BalanceCents = w.BalanceCents
			return nil
		}

		entry, err := s.debitLocked(ctx, ownerID, paid.AmountCents, KindPurchase, memo)
		if err != nil {
			return err
		}
		result.Entry = entry
		result.BalanceCents = entry.BalanceAfter
		return nil
	})

	if errors.Is(err, ErrInsufficientFunds) {
		if _, ferr := s.recordFailed(ctx, ownerID, -t.AmountCents, KindPurchase, memo); ferr != nil {
			logger.Error("could not record declined purchase", "owner_id", ownerID, "ticket_id", ticketID, "error", ferr)
		}
		metrics.RecordLedgerOperation(string(KindPurchase), string(OutcomeFailed))
		return nil, ErrInsufficientFunds
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	if result.Entry != nil {
		metrics.RecordLedgerOperation(string(KindPurchase), string(OutcomeSucceeded))
	}
	logger.Info("ticket purchased with wallet", "owner_id", ownerID, "ticket_id", ticketID, "balance_cents", result.BalanceCents)
	return result, nil
}

func (s *service) History(ctx context.Context, ownerID int64) ([]Entry, error) {
	if _, err := s.repo.GetWallet(ctx, ownerID); err != nil {
		return nil, apperr.Persistence(err)
	}

	entries, err := s.repo.ListEntries(ctx, ownerID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (s *service) Reconcile(ctx context.Context, ownerID int64) (*Reconciliation, error) {
	rec := &Reconciliation{OwnerID: ownerID}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.repo.GetWalletForUpdate(ctx, ownerID)
		if err != nil {
			return err
		}
		sum, err := s.repo.SumSucceeded(ctx, ownerID)
		if err != nil {
			return err
		}
		rec.BalanceCents = w.BalanceCents
		rec.LedgerCents = sum
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	rec.Consistent = rec.BalanceCents == rec.LedgerCents
	if !rec.Consistent {
		logger.Error("wallet out of balance", "owner_id", ownerID, "balance_cents", rec.BalanceCents, "ledger_cents", rec.LedgerCents)
	}
	return rec, nil
}

func newEntry(w *Wallet, signedAmount int64, kind EntryKind, outcome Outcome, memo string) *Entry {
	return &Entry{
		OwnerID:      w.OwnerID,
		AmountCents:  signedAmount,
		Kind:         kind,
		Outcome:      outcome,
		Memo:         memo,
		BalanceAfter: w.BalanceCents,
	}
}
