package refund

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/apperr"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/db"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/logger"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/metrics"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/money"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/payment"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/ticket"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/wallet"
)

var (
	ErrRequestNotFound  = apperr.New(apperr.NotFound, "refund request not found")
	ErrAlreadyProcessed = apperr.New(apperr.AlreadyProcessed, "refund request has already been processed")
	ErrDuplicateRequest = apperr.New(apperr.AlreadyExists, "a refund request for this ticket is already pending")
	ErrTicketUsed       = apperr.New(apperr.InvalidState, "ticket has already been used and cannot be refunded")
	ErrNotPurchased     = apperr.New(apperr.InvalidState, "ticket has not been paid")
	ErrWindowExpired    = apperr.New(apperr.InvalidState, "the refund window has passed")
	ErrNothingToRefund  = apperr.New(apperr.InvalidState, "ticket has no refundable amount")
	ErrInvalidDecision  = apperr.New(apperr.InvalidArgument, "decision must be approve or reject")
)

const (
	noteTicketUsed     = "ticket has been used and can no longer be refunded"
	noteOutsideWindow  = "refund request was made outside the refund window"
	noteWalletFailed   = "wallet refund failed (unknown error)"
	messageProcessed   = "refund processed"
	messageRejected    = "refund rejected"
	gatewayFailureNote = "gateway refund failed (%s) %s"
)

// Tickets is the part of the ticket lifecycle refunds depend on. Both methods
// lock the ticket row and are called inside the refund transaction.
type Tickets interface {
	Lock(ctx context.Context, ticketID int64) (*ticket.Ticket, error)
	MarkRefunded(ctx context.Context, ticketID int64) (*ticket.Ticket, error)
}

type Ledger interface {
	Credit(ctx context.Context, ownerID, amountCents int64, kind wallet.EntryKind, memo string) (*wallet.Entry, error)
}

type Gateway interface {
	Refund(ctx context.Context, cmd payment.RefundCommand) (*payment.RefundResult, error)
}

type Service interface {
	Request(ctx context.Context, riderID int64, params CreateParams) (*Request, error)
	ListPending(ctx context.Context) ([]PendingRequest, error)
	ListByRider(ctx context.Context, riderID int64) ([]Request, error)
	// Process settles a pending request. Gateway and wallet failures come back
	// as a rejected Result, not as an error.
	Process(ctx context.Context, requestID, approverID int64, params ProcessParams) (*Result, error)
}

type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	repo    Repository
	tx      db.Transactor
	tickets Tickets
	ledger  Ledger
	gateway Gateway
	policy  Policy
	now     func() time.Time
}

func NewService(repo Repository, tx db.Transactor, tickets Tickets, ledger Ledger, gateway Gateway, policy Policy, opts ...Option) Service {
	s := &service{
		repo:    repo,
		tx:      tx,
		tickets: tickets,
		ledger:  ledger,
		gateway: gateway,
		policy:  policy,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Request(ctx context.Context, riderID int64, params CreateParams) (*Request, error) {
	var req *Request
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.tickets.Lock(ctx, params.TicketID)
		if err != nil {
			return err
		}
		if t.OwnerID != riderID {
			return ticket.ErrNotFound
		}

		now := s.now()
		if err := s.eligible(t, now); err != nil {
			return err
		}

		pending, err := s.repo.HasPending(ctx, t.ID)
		if err != nil {
			return err
		}
		if pending {
			return ErrDuplicateRequest
		}

		req = &Request{
			TicketID:    t.ID,
			RequesterID: riderID,
			Reason:      params.Reason,
			Status:      StatusPending,
			RequestedAt: now,
		}
		return s.repo.Create(ctx, req)
	})
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	metrics.RecordRefundRequest()
	logger.Info("refund requested", "request_id", req.ID, "ticket_id", req.TicketID, "rider_id", riderID)
	return req, nil
}

func (s *service) eligible(t *ticket.Ticket, at time.Time) error {
	if t.Status != ticket.StatusUnUsed {
		return ErrTicketUsed
	}
	if !t.Paid || t.PurchasedAt == nil {
		return ErrNotPurchased
	}
	if at.After(t.PurchasedAt.Add(s.policy.Window)) {
		return ErrWindowExpired
	}
	if money.Percent(t.AmountCents, s.policy.Percent) <= 0 {
		return ErrNothingToRefund
	}
	return nil
}

func (s *service) ListPending(ctx context.Context) ([]PendingRequest, error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if pending == nil {
		pending = []PendingRequest{}
	}
	return pending, nil
}

func (s *service) ListByRider(ctx context.Context, riderID int64) ([]Request, error) {
	requests, err := s.repo.ListByRequester(ctx, riderID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if requests == nil {
		requests = []Request{}
	}
	return requests, nil
}

// creditError marks a ledger failure so Process can roll back and then record
// the rejection on its own.
type creditError struct {
	err error
}

func (e *creditError) Error() string { return "wallet credit: " + e.err.Error() }
func (e *creditError) Unwrap() error { return e.err }

func (s *service) Process(ctx context.Context, requestID, approverID int64, params ProcessParams) (*Result, error) {
	if !params.Decision.Valid() {
		return nil, ErrInvalidDecision
	}

	var result *Result
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.lockPending(ctx, requestID)
		if err != nil {
			return err
		}
		t, err := s.tickets.Lock(ctx, req.TicketID)
		if err != nil {
			return err
		}

		s.stamp(req, approverID, params.Notes)
		result = &Result{Request: req, Channel: ChannelNone}

		switch {
		case t.Status != ticket.StatusUnUsed:
			req.Status = StatusRejected
			req.appendNote(noteTicketUsed)
		case t.PurchasedAt == nil || req.RequestedAt.After(t.PurchasedAt.Add(s.policy.Window)):
			req.Status = StatusRejected
			req.appendNote(noteOutsideWindow)
		case params.Decision == DecisionReject:
			req.Status = StatusRejected
		default:
			if err := s.approve(ctx, req, t, result); err != nil {
				return err
			}
		}

		return s.repo.Update(ctx, req)
	})

	var cerr *creditError
	if errors.As(err, &cerr) {
		logger.Error("wallet refund failed", "request_id", requestID, "error", cerr.err)
		result, err = s.rejectAfterFailure(ctx, requestID, approverID, params.Notes, noteWalletFailed)
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	result.Approved = result.Request.Status == StatusApproved
	if result.Approved {
		result.Message = messageProcessed
	} else {
		result.Message = messageRejected
		if notes := result.Request.notes(); notes != "" {
			result.Message += ": " + notes
		}
	}

	metrics.RecordRefundProcessed(string(result.Channel), string(result.Request.Status))
	logger.Info("refund processed",
		"request_id", requestID,
		"approver_id", approverID,
		"status", result.Request.Status,
		"channel", result.Channel,
		"refund_cents", result.RefundCents,
	)
	return result, nil
}

// approve moves the money and marks the ticket refunded. A gateway refusal
// leaves the request rejected with the gateway's code in the notes.
func (s *service) approve(ctx context.Context, req *Request, t *ticket.Ticket, result *Result) error {
	refund := money.Percent(t.AmountCents, s.policy.Percent)
	result.RefundCents = refund

	if settlement := t.Settlement(); settlement != nil {
		result.Channel = ChannelGateway

		txType := payment.RefundPartial
		if refund == t.AmountCents {
			txType = payment.RefundFull
		}

		res, err := s.gateway.Refund(ctx, payment.RefundCommand{
			AmountCents:     refund,
			TransactionType: txType,
			ExternalRef:     settlement.ExternalRef,
			ExternalTxnID:   settlement.ExternalTxnID,
			ExternalTxnAt:   settlement.ExternalTxnAt,
			Operator:        strconv.FormatInt(*req.ApproverID, 10),
		})
		if err != nil {
			req.Status = StatusRejected
			req.appendNote(fmt.Sprintf(gatewayFailureNote, payment.CodeUnavailable, apperr.ReasonOf(err)))
			return nil
		}
		if !res.Succeeded() {
			req.Status = StatusRejected
			req.appendNote(fmt.Sprintf(gatewayFailureNote, res.Code, res.Message))
			return nil
		}
	} else {
		result.Channel = ChannelWallet
		memo := fmt.Sprintf("refund for ticket #%d", t.ID)
		if _, err := s.ledger.Credit(ctx, req.RequesterID, refund, wallet.KindRefund, memo); err != nil {
			return &creditError{err: err}
		}
	}

	if _, err := s.tickets.MarkRefunded(ctx, t.ID); err != nil {
		if result.Channel == ChannelGateway {
			logger.Error("gateway refunded but ticket could not be marked", "request_id", req.ID, "ticket_id", t.ID, "error", err)
		}
		return err
	}
	req.Status = StatusApproved
	return nil
}

func (s *service) rejectAfterFailure(ctx context.Context, requestID, approverID int64, notes, failure string) (*Result, error) {
	var result *Result
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.lockPending(ctx, requestID)
		if err != nil {
			return err
		}
		s.stamp(req, approverID, notes)
		req.Status = StatusRejected
		req.appendNote(failure)
		result = &Result{Request: req, Channel: ChannelWallet}
		return s.repo.Update(ctx, req)
	})
	return result, err
}

func (s *service) lockPending(ctx context.Context, requestID int64) (*Request, error) {
	req, err := s.repo.GetByIDForUpdate(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, ErrAlreadyProcessed
	}
	return req, nil
}

func (s *service) stamp(req *Request, approverID int64, notes string) {
	now := s.now()
	req.ProcessedAt = &now
	req.ApproverID = &approverID
	req.ApproverNotes = nil
	if notes != "" {
		req.ApproverNotes = &notes
	}
}
