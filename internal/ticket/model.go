package ticket

import "time"

type Status string

const (
	StatusUnUsed   Status = "unused"
	StatusInUse    Status = "in_use"
	StatusDisabled Status = "disabled"
	StatusExpired  Status = "expired"
	StatusRefunded Status = "refunded"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusRefunded
}

type Direction string

const (
	CheckIn  Direction = "check_in"
	CheckOut Direction = "check_out"
)

func (d Direction) Valid() bool {
	return d == CheckIn || d == CheckOut
}

type Ticket struct {
	ID           int64      `db:"id" json:"id"`
	OwnerID      int64      `db:"owner_id" json:"owner_id"`
	FareTypeID   int64      `db:"fare_type_id" json:"fare_type_id"`
	RouteID      *int64     `db:"route_id" json:"route_id,omitempty"`
	AmountCents  int64      `db:"amount_cents" json:"amount_cents"`
	ValidTo      time.Time  `db:"valid_to" json:"valid_to"`
	PurchasedAt  *time.Time `db:"purchased_at" json:"purchased_at,omitempty"`
	Paid         bool       `db:"paid" json:"paid"`
	GateToken    *string    `db:"gate_token" json:"gate_token,omitempty"`
	Status       Status     `db:"status" json:"status"`
	Multiplicity int        `db:"multiplicity" json:"multiplicity"`

	ExternalRef   *string `db:"external_ref" json:"external_ref,omitempty"`
	ExternalTxnID *string `db:"external_txn_id" json:"external_txn_id,omitempty"`
	ExternalTxnAt *string `db:"external_txn_at" json:"external_txn_at,omitempty"`

	Deleted   bool      `db:"deleted" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Read from routes, never written.
	StartTerminalID *int64 `db:"start_terminal_id" json:"start_terminal_id,omitempty"`
	EndTerminalID   *int64 `db:"end_terminal_id" json:"end_terminal_id,omitempty"`
}

// Settlement is the gateway metadata recorded when a ticket is paid outside the wallet.
type Settlement struct {
	ExternalRef   string
	ExternalTxnID string
	ExternalTxnAt string
}

func (t *Ticket) Settlement() *Settlement {
	if t.ExternalRef == nil || t.ExternalTxnID == nil || t.ExternalTxnAt == nil {
		return nil
	}
	return &Settlement{
		ExternalRef:   *t.ExternalRef,
		ExternalTxnID: *t.ExternalTxnID,
		ExternalTxnAt: *t.ExternalTxnAt,
	}
}

func (t *Ticket) attachSettlement(s *Settlement) {
	if s == nil {
		t.ExternalRef, t.ExternalTxnID, t.ExternalTxnAt = nil, nil, nil
		return
	}
	ref, txnID, txnAt := s.ExternalRef, s.ExternalTxnID, s.ExternalTxnAt
	t.ExternalRef, t.ExternalTxnID, t.ExternalTxnAt = &ref, &txnID, &txnAt
}

type IssueParams struct {
	OwnerID      int64  `json:"-"`
	FareTypeID   int64  `json:"fare_type_id" binding:"required,gt=0"`
	RouteID      *int64 `json:"route_id"`
	AmountCents  int64  `json:"amount_cents" binding:"gte=0"`
	Multiplicity int    `json:"multiplicity"`
}

type ScanRequest struct {
	Token      string    `json:"token" binding:"required"`
	TerminalID int64     `json:"terminal_id" binding:"required,gt=0"`
	Direction  Direction `json:"direction" binding:"required,oneof=check_in check_out"`
}

type ScanResult struct {
	OwnerID      int64  `json:"owner_id"`
	TicketID     int64  `json:"ticket_id"`
	Multiplicity int    `json:"multiplicity"`
	Status       Status `json:"status"`
	Message      string `json:"message"`
}

// Policy holds the fare rules the state machine depends on.
type Policy struct {
	OneWayFareTypeID    int64
	PriorityFareTypeIDs []int64
	PurchaseWindow      time.Duration
	PaidValidity        time.Duration
	PriorityValidity    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		OneWayFareTypeID:    1,
		PriorityFareTypeIDs: []int64{3},
		PurchaseWindow:      24 * time.Hour,
		PaidValidity:        24 * time.Hour,
		PriorityValidity:    365 * 24 * time.Hour,
	}
}

func (p Policy) IsSingleUse(fareTypeID int64) bool {
	return fareTypeID == p.OneWayFareTypeID
}

func (p Policy) IsPriority(fareTypeID int64) bool {
	for _, id := range p.PriorityFareTypeIDs {
		if id == fareTypeID {
			return true
		}
	}
	return false
}
