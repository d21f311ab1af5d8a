package ticket

import (
	"context"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/apperr"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/db"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/logger"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/metrics"
)

var (
	ErrNotFound        = apperr.New(apperr.NotFound, "ticket not found")
	ErrAlreadyPaid     = apperr.New(apperr.AlreadyProcessed, "ticket is already paid")
	ErrNotPaid         = apperr.New(apperr.InvalidState, "ticket has not been paid")
	ErrExpired         = apperr.New(apperr.InvalidState, "ticket has expired")
	ErrRefunded        = apperr.New(apperr.InvalidState, "ticket has been refunded")
	ErrDisabled        = apperr.New(apperr.InvalidState, "ticket is disabled")
	ErrAlreadyInUse    = apperr.New(apperr.InvalidState, "ticket is already checked in")
	ErrNotCheckedIn    = apperr.New(apperr.InvalidState, "ticket has not been checked in")
	ErrWrongTerminal   = apperr.New(apperr.InvalidState, "ticket is not valid at this terminal")
	ErrNotDisabled     = apperr.New(apperr.InvalidState, "only disabled tickets can be activated")
	ErrPaidNotDeleted  = apperr.New(apperr.InvalidState, "paid tickets cannot be deleted")
	ErrNotRefundable   = apperr.New(apperr.InvalidState, "ticket cannot be refunded in its current state")
	ErrInvalidToken    = apperr.New(apperr.InvalidToken, "invalid or expired gate token")
	ErrInvalidAmount   = apperr.New(apperr.InvalidArgument, "amount must not be negative")
	ErrInvalidUses     = apperr.New(apperr.InvalidArgument, "multiplicity must be at least 1")
	ErrInvalidScanArgs = apperr.New(apperr.InvalidArgument, "terminal and direction are required")
)

type Service interface {
	Issue(ctx context.Context, params IssueParams) (*Ticket, error)
	MarkPaid(ctx context.Context, ticketID int64, settlement *Settlement) (*Ticket, error)
	Scan(ctx context.Context, req ScanRequest) (*ScanResult, error)
	CheckExpire(ctx context.Context, ticketID int64) (*Ticket, error)
	CheckExpireForOwner(ctx context.Context, ownerID int64) (int, error)
	SweepExpired(ctx context.Context) (int, error)

	Get(ctx context.Context, ticketID int64) (*Ticket, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Ticket, error)
	Disable(ctx context.Context, ticketID int64) (*Ticket, error)
	Activate(ctx context.Context, ticketID int64) (*Ticket, error)
	Delete(ctx context.Context, ticketID int64) error

	// Lock and MarkRefunded are meant to run inside a caller's transaction.
	Lock(ctx context.Context, ticketID int64) (*Ticket, error)
	MarkRefunded(ctx context.Context, ticketID int64) (*Ticket, error)
}

type Option func(*service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	repo   Repository
	tx     db.Transactor
	codec  TokenCodec
	policy Policy
	now    func() time.Time
}

func NewService(repo Repository, tx db.Transactor, codec TokenCodec, policy Policy, opts ...Option) Service {
	s := &service{
		repo:   repo,
		tx:     tx,
		codec:  codec,
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Issue(ctx context.Context, params IssueParams) (*Ticket, error) {
	if params.AmountCents < 0 {
		return nil, ErrInvalidAmount
	}
	if params.Multiplicity < 1 {
		return nil, ErrInvalidUses
	}

	now := s.now()
	t := &Ticket{
		OwnerID:      params.OwnerID,
		FareTypeID:   params.FareTypeID,
		RouteID:      params.RouteID,
		AmountCents:  params.AmountCents,
		ValidTo:      now.Add(s.policy.PurchaseWindow),
		Status:       StatusUnUsed,
		Multiplicity: params.Multiplicity,
	}

	priority := s.policy.IsPriority(params.FareTypeID)
	if priority {
		t.AmountCents = 0
		t.Paid = true
		t.PurchasedAt = &now
		t.ValidTo = now.Add(s.policy.PriorityValidity)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, t); err != nil {
			return err
		}
		if !priority {
			return nil
		}
		if err := s.mintToken(t); err != nil {
			return err
		}
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	if priority {
		metrics.RecordTicketIssued("priority")
	} else {
		metrics.RecordTicketIssued("standard")
	}
	return t, nil
}

func (s *service) MarkPaid(ctx context.Context, ticketID int64, settlement *Settlement) (*Ticket, error) {
	var t *Ticket
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.Paid {
			return ErrAlreadyPaid
		}
		// An unpaid ticket the sweep already expired stays expired.
		if t.Status.Terminal() {
			return ErrExpired
		}

		now := s.now()
		t.Paid = true
		t.PurchasedAt = &now
		t.Status = StatusUnUsed
		if !s.policy.IsPriority(t.FareTypeID) {
			t.ValidTo = now.Add(s.policy.PaidValidity)
		}
		t.attachSettlement(settlement)

		if err := s.mintToken(t); err != nil {
			return err
		}
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	channel := "wallet"
	if settlement != nil {
		channel = "gateway"
	}
	metrics.RecordTicketPaid(channel)
	return t, nil
}

func (s *service) mintToken(t *Ticket) error {
	token, err := s.codec.Issue(t.ID, t.OwnerID)
	if err != nil {
		return apperr.Wrap(apperr.ExternalFailure, "could not issue gate token", err)
	}
	t.GateToken = &token
	return nil
}

func (s *service) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	result, err := s.scan(ctx, req)
	if err != nil {
		metrics.RecordTicketScan(string(req.Direction), string(apperr.KindOf(err)))
		return nil, err
	}
	metrics.RecordTicketScan(string(req.Direction), "ok")
	return result, nil
}

func (s *service) scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if req.TerminalID <= 0 || !req.Direction.Valid() {
		return nil, ErrInvalidScanArgs
	}

	ticketID, ownerID, err := s.codec.Verify(req.Token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var result *ScanResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.OwnerID != ownerID {
			return ErrNotFound
		}
		if !t.Paid {
			return ErrNotPaid
		}

		now := s.now()
		if t.Status == StatusUnUsed && now.After(t.ValidTo) {
			return ErrExpired
		}

		singleUse := s.policy.IsSingleUse(t.FareTypeID)

		switch req.Direction {
		case CheckIn:
			if err := requireStatus(t.Status, StatusUnUsed); err != nil {
				return err
			}
			if singleUse && !atTerminal(t.StartTerminalID, req.TerminalID) {
				return ErrWrongTerminal
			}
			t.Status = StatusInUse
		case CheckOut:
			if err := requireStatus(t.Status, StatusInUse); err != nil {
				return err
			}
			if singleUse {
				if !atTerminal(t.EndTerminalID, req.TerminalID) {
					return ErrWrongTerminal
				}
				t.Status = StatusDisabled
				t.ValidTo = now
			} else {
				t.Status = StatusUnUsed
			}
		}

		if err := s.repo.Update(ctx, t); err != nil {
			return err
		}

		result = &ScanResult{
			OwnerID:      t.OwnerID,
			TicketID:     t.ID,
			Multiplicity: t.Multiplicity,
			Status:       t.Status,
			Message:      scanMessage(req.Direction),
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	logger.Debug("ticket scanned", "ticket_id", result.TicketID, "terminal_id", req.TerminalID, "direction", req.Direction, "status", result.Status)
	return result, nil
}

// requireStatus maps an unexpected status to the reason shown at the gate.
func requireStatus(actual, want Status) error {
	if actual == want {
		return nil
	}
	switch actual {
	case StatusExpired:
		return ErrExpired
	case StatusRefunded:
		return ErrRefunded
	case StatusDisabled:
		return ErrDisabled
	case StatusInUse:
		return ErrAlreadyInUse
	default:
		return ErrNotCheckedIn
	}
}

func atTerminal(expected *int64, terminalID int64) bool {
	return expected != nil && *expected == terminalID
}

func scanMessage(d Direction) string {
	if d == CheckIn {
		return "check-in successful"
	}
	return "check-out successful"
}

func (s *service) CheckExpire(ctx context.Context, ticketID int64) (*Ticket, error) {
	var t *Ticket
	expired := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() || !s.now().After(t.ValidTo) {
			return nil
		}
		t.Status = StatusExpired
		expired = true
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	if expired {
		metrics.RecordTicketsExpired(1)
	}
	return t, nil
}

func (s *service) CheckExpireForOwner(ctx context.Context, ownerID int64) (int, error) {
	return s.expire(ctx, &ownerID)
}

func (s *service) SweepExpired(ctx context.Context) (int, error) {
	return s.expire(ctx, nil)
}

func (s *service) expire(ctx context.Context, ownerID *int64) (int, error) {
	var n int
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.repo.ExpireOverdue(ctx, ownerID, s.now())
		return err
	})
	if err != nil {
		return 0, apperr.Persistence(err)
	}

	metrics.RecordTicketsExpired(n)
	if n > 0 {
		logger.Info("tickets expired", "count", n)
	}
	return n, nil
}

func (s *service) Get(ctx context.Context, ticketID int64) (*Ticket, error) {
	t, err := s.repo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return t, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID int64) ([]Ticket, error) {
	tickets, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return tickets, nil
}

func (s *service) Disable(ctx context.Context, ticketID int64) (*Ticket, error) {
	return s.transition(ctx, ticketID, func(t *Ticket) error {
		if t.Status != StatusUnUsed && t.Status != StatusInUse {
			return requireStatus(t.Status, StatusUnUsed)
		}
		t.Status = StatusDisabled
		return nil
	})
}

func (s *service) Activate(ctx context.Context, ticketID int64) (*Ticket, error) {
	return s.transition(ctx, ticketID, func(t *Ticket) error {
		if t.Status != StatusDisabled {
			return ErrNotDisabled
		}
		t.Status = StatusUnUsed
		if s.policy.IsSingleUse(t.FareTypeID) {
			t.ValidTo = s.now().Add(s.policy.PaidValidity)
		}
		return nil
	})
}

func (s *service) Delete(ctx context.Context, ticketID int64) error {
	_, err := s.transition(ctx, ticketID, func(t *Ticket) error {
		if t.Paid {
			return ErrPaidNotDeleted
		}
		t.Deleted = true
		return nil
	})
	return err
}

func (s *service) Lock(ctx context.Context, ticketID int64) (*Ticket, error) {
	t, err := s.repo.GetByIDForUpdate(ctx, ticketID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return t, nil
}

func (s *service) MarkRefunded(ctx context.Context, ticketID int64) (*Ticket, error) {
	return s.transition(ctx, ticketID, func(t *Ticket) error {
		switch t.Status {
		case StatusUnUsed, StatusInUse, StatusDisabled:
			t.Status = StatusRefunded
			return nil
		default:
			return ErrNotRefundable
		}
	})
}

// transition locks the ticket, applies fn and persists the result in one transaction.
func (s *service) transition(ctx context.Context, ticketID int64, fn func(t *Ticket) error) (*Ticket, error) {
	var t *Ticket
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return t, nil
}
