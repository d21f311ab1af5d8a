package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	CodeSuccess = "00"
	// CodeUnavailable is reported when the gateway could not be reached.
	CodeUnavailable = "99"

	RefundFull    = "02"
	RefundPartial = "03"

	timestampLayout = "20060102150405"
	walletRefPrefix = "WALLET_"
)

// RefundCommand asks the gateway to return money for a settled payment.
type RefundCommand struct {
	AmountCents     int64
	TransactionType string
	ExternalRef     string
	ExternalTxnID   string
	ExternalTxnAt   string
	Operator        string
}

type RefundResult struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (r *RefundResult) Succeeded() bool {
	return r != nil && r.Code == CodeSuccess
}

// CheckoutRequest describes a payment the rider is about to make at the gateway.
type CheckoutRequest struct {
	OrderRef    string
	AmountCents int64
	OrderInfo   string
	ClientIP    string
}

// CheckoutResponse is returned by the endpoints that start a gateway payment.
type CheckoutResponse struct {
	PaymentURL string `json:"payment_url"`
	OrderRef   string `json:"order_ref"`
	Amount     string `json:"amount"`
}

// Callback is a verified payment return from the gateway.
type Callback struct {
	OrderRef          string
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	PayDate           string
	AmountCents       int64
}

func (c *Callback) Succeeded() bool {
	return c.ResponseCode == CodeSuccess
}

type OrderKind string

const (
	OrderTicket OrderKind = "ticket"
	OrderWallet OrderKind = "wallet"
)

// OrderRef identifies what a gateway payment was for.
type OrderRef struct {
	Kind OrderKind
	ID   int64
}

// TicketOrderRef builds "<ticketID>-<yyyyMMddHHmmss>".
func TicketOrderRef(ticketID int64, at time.Time) string {
	return fmt.Sprintf("%d-%s", ticketID, at.Format(timestampLayout))
}

// WalletOrderRef builds "WALLET_<ownerID>_<yyyyMMddHHmmss>".
func WalletOrderRef(ownerID int64, at time.Time) string {
	return fmt.Sprintf("%s%d_%s", walletRefPrefix, ownerID, at.Format(timestampLayout))
}

func ParseOrderRef(ref string) (OrderRef, error) {
	if rest, ok := strings.CutPrefix(ref, walletRefPrefix); ok {
		owner, _, found := strings.Cut(rest, "_")
		if !found {
			return OrderRef{}, fmt.Errorf("malformed wallet order ref %q", ref)
		}
		id, err := strconv.ParseInt(owner, 10, 64)
		if err != nil || id <= 0 {
			return OrderRef{}, fmt.Errorf("malformed wallet order ref %q", ref)
		}
		return OrderRef{Kind: OrderWallet, ID: id}, nil
	}

	ticketPart, _, _ := strings.Cut(ref, "-")
	id, err := strconv.ParseInt(ticketPart, 10, 64)
	if err != nil || id <= 0 {
		return OrderRef{}, fmt.Errorf("malformed ticket order ref %q", ref)
	}
	return OrderRef{Kind: OrderTicket, ID: id}, nil
}
