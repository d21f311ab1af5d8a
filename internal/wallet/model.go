package wallet

import (
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/ticket"
)

// Wallet holds a rider's balance in minor units. One wallet per rider.
type Wallet struct {
	OwnerID      int64     `db:"owner_id" json:"owner_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type EntryKind string

const (
	KindTopUp    EntryKind = "top_up"
	KindPurchase EntryKind = "purchase"
	KindRefund   EntryKind = "refund"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one line of the append-only ledger. Credits are positive, debits negative.
// Failed attempts are recorded with the amount that was tried. ExternalRef is the
// gateway order ref of a top-up and is unique across the ledger.
type Entry struct {
	ID           int64     `db:"id" json:"id"`
	OwnerID      int64     `db:"owner_id" json:"owner_id"`
	AmountCents  int64     `db:"amount_cents" json:"amount_cents"`
	Kind         EntryKind `db:"kind" json:"kind"`
	Outcome      Outcome   `db:"outcome" json:"outcome"`
	Memo         string    `db:"memo" json:"memo"`
	ExternalRef  *string   `db:"external_ref" json:"external_ref,omitempty"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type PurchaseResult struct {
	Ticket       *ticket.Ticket `json:"ticket"`
	Entry        *Entry         `json:"entry,omitempty"`
	BalanceCents int64          `json:"balance_cents"`
}

type Reconciliation struct {
	OwnerID      int64 `json:"owner_id"`
	BalanceCents int64 `json:"balance_cents"`
	LedgerCents  int64 `json:"ledger_cents"`
	Consistent   bool  `json:"consistent"`
}

type TopUpRequest struct {
	Amount string `json:"amount" binding:"required" example:"500.00"`
}
