package refund

import (
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

type Channel string

const (
	ChannelNone    Channel = "none"
	ChannelGateway Channel = "gateway"
	ChannelWallet  Channel = "wallet"
)

const noteSeparator = " | "

type Request struct {
	ID            int64      `db:"id" json:"id"`
	TicketID      int64      `db:"ticket_id" json:"ticket_id"`
	RequesterID   int64      `db:"requester_id" json:"requester_id"`
	Reason        string     `db:"reason" json:"reason"`
	Status        Status     `db:"status" json:"status"`
	RequestedAt   time.Time  `db:"requested_at" json:"requested_at"`
	ProcessedAt   *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	ApproverID    *int64     `db:"approver_id" json:"approver_id,omitempty"`
	ApproverNotes *string    `db:"approver_notes" json:"approver_notes,omitempty"`
}

// appendNote adds note after any existing notes. Notes are never rewritten.
func (r *Request) appendNote(note string) {
	if r.ApproverNotes == nil || *r.ApproverNotes == "" {
		r.ApproverNotes = &note
		return
	}
	joined := *r.ApproverNotes + noteSeparator + note
	r.ApproverNotes = &joined
}

func (r *Request) notes() string {
	if r.ApproverNotes == nil {
		return ""
	}
	return *r.ApproverNotes
}

// PendingRequest carries the rider and ticket details an approver needs.
type PendingRequest struct {
	Request
	RiderName         string     `db:"rider_name" json:"rider_name"`
	RiderEmail        string     `db:"rider_email" json:"rider_email"`
	TicketAmountCents int64      `db:"ticket_amount_cents" json:"ticket_amount_cents"`
	TicketPurchasedAt *time.Time `db:"ticket_purchased_at" json:"ticket_purchased_at,omitempty"`
	FareTypeID        int64      `db:"fare_type_id" json:"fare_type_id"`
}

type CreateParams struct {
	TicketID int64  `json:"ticket_id" binding:"required,gt=0"`
	Reason   string `json:"reason" binding:"required,max=500"`
}

type ProcessParams struct {
	Decision Decision `json:"decision" binding:"required,oneof=approve reject"`
	Notes    string   `json:"notes" binding:"max=1000"`
}

// Result tells an approver whether money actually moved. A rejected result is
// not an error.
type Result struct {
	Request     *Request `json:"request"`
	Approved    bool     `json:"approved"`
	RefundCents int64    `json:"refund_cents,omitempty"`
	Channel     Channel  `json:"channel"`
	Message     string   `json:"message"`
}

type Policy struct {
	Percent int64
	Window  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Percent: 90,
		Window:  24 * time.Hour,
	}
}
