package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/api"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/auth"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/logger"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/money"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/ticket"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/wallet"
	"github.com/gin-gonic/gin"
)

// Merchant is the gateway side of a payment: building checkout URLs and
// verifying the signed return.
type Merchant interface {
	PaymentURL(req CheckoutRequest) (string, error)
	VerifyCallback(query url.Values) (*Callback, error)
}

type Tickets interface {
	Get(ctx context.Context, ticketID int64) (*ticket.Ticket, error)
	MarkPaid(ctx context.Context, ticketID int64, settlement *ticket.Settlement) (*ticket.Ticket, error)
	Delete(ctx context.Context, ticketID int64) error
}

type Wallets interface {
	GetWallet(ctx context.Context, ownerID int64) (*wallet.Wallet, error)
	TopUpFromGateway(ctx context.Context, ownerID, amountCents int64, orderRef string) (*wallet.Entry, error)
	RecordFailedTopUp(ctx context.Context, ownerID, amountCents int64, orderRef string) (*wallet.Entry, error)
}

type TopUpCheckoutRequest struct {
	Amount string `json:"amount" binding:"required" example:"500.00"`
}

type CallbackResponse struct {
	OrderRef          string `json:"order_ref"`
	Kind              string `json:"kind"`
	Succeeded         bool   `json:"succeeded"`
	TransactionStatus string `json:"transaction_status,omitempty"`
	TransactionNo     string `json:"transaction_no,omitempty"`
	Message           string `json:"message"`
}

type Handler struct {
	merchant Merchant
	tickets  Tickets
	wallets  Wallets
	now      func() time.Time
}

func NewHandler(merchant Merchant, tickets Tickets, wallets Wallets) *Handler {
	return &Handler{
		merchant: merchant,
		tickets:  tickets,
		wallets:  wallets,
		now:      time.Now,
	}
}

// @Summary      Start a gateway payment for a ticket
// @Tags         payments,tickets
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Ticket ID"
// @Success      200 {object} payment.CheckoutResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /tickets/{id}/checkout [post]
func (h *Handler) TicketCheckout(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}
	ticketID, ok := api.ParamID(c, "id")
	if !ok {
		return
	}

	t, err := h.tickets.Get(c.Request.Context(), ticketID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	if t.OwnerID != userID {
		api.RespondError(c, ticket.ErrNotFound)
		return
	}
	if t.Paid {
		api.RespondError(c, ticket.ErrAlreadyPaid)
		return
	}
	if t.Status.Terminal() {
		api.RespondError(c, ticket.ErrExpired)
		return
	}

	h.checkout(c, CheckoutRequest{
		OrderRef:    TicketOrderRef(t.ID, h.now()),
		AmountCents: t.AmountCents,
		OrderInfo:   fmt.Sprintf("Ticket #%d", t.ID),
		ClientIP:    c.ClientIP(),
	})
}

// @Summary      Start a gateway wallet top-up
// @Tags         payments,wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body payment.TopUpCheckoutRequest true "Amount in major units"
// @Success      200 {object} payment.CheckoutResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /wallet/topup-url [post]
func (h *Handler) TopUpCheckout(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req TopUpCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BindError(c, err)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil || amount <= 0 {
		api.BadRequest(c, "amount must be a positive value with at most two decimals")
		return
	}

	if _, err := h.wallets.GetWallet(c.Request.Context(), userID); err != nil {
		api.RespondError(c, err)
		return
	}

	h.checkout(c, CheckoutRequest{
		OrderRef:    WalletOrderRef(userID, h.now()),
		AmountCents: amount,
		OrderInfo:   "Wallet top-up " + money.Format(amount),
		ClientIP:    c.ClientIP(),
	})
}

func (h *Handler) checkout(c *gin.Context, req CheckoutRequest) {
	paymentURL, err := h.merchant.PaymentURL(req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	logger.Info("gateway checkout started", "order_ref", req.OrderRef, "amount_cents", req.AmountCents)
	c.JSON(http.StatusOK, CheckoutResponse{
		PaymentURL: paymentURL,
		OrderRef:   req.OrderRef,
		Amount:     money.Format(req.AmountCents),
	})
}

// @Summary      Gateway payment return
// @Description  Signed return URL for ticket payments and wallet top-ups.
// @Tags         payments
// @Produce      json
// @Success      200 {object} payment.CallbackResponse
// @Failure      400 {object} api.ErrorResponse
// @Router       /payments/callback [get]
func (h *Handler) Callback(c *gin.Context) {
	cb, err := h.merchant.VerifyCallback(c.Request.URL.Query())
	if err != nil {
		logger.Warn("rejected gateway callback", "error", err)
		api.RespondError(c, err)
		return
	}

	ref, err := ParseOrderRef(cb.OrderRef)
	if err != nil {
		api.BadRequest(c, err.Error())
		return
	}

	resp := CallbackResponse{
		OrderRef:          cb.OrderRef,
		Kind:              string(ref.Kind),
		Succeeded:         cb.Succeeded(),
		TransactionStatus: cb.TransactionStatus,
		TransactionNo:     cb.TransactionNo,
	}

	ctx := c.Request.Context()
	switch ref.Kind {
	case OrderWallet:
		err = h.walletTopUp(ctx, ref.ID, cb, &resp)
	default:
		err = h.ticketPayment(ctx, ref.ID, cb, &resp)
	}
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ticketPayment(ctx context.Context, ticketID int64, cb *Callback, resp *CallbackResponse) error {
	if !cb.Succeeded() {
		if err := h.tickets.Delete(ctx, ticketID); err != nil {
			logger.Warn("could not discard unpaid ticket", "ticket_id", ticketID, "error", err)
		}
		resp.Message = "ticket payment failed"
		return nil
	}

	_, err := h.tickets.MarkPaid(ctx, ticketID, &ticket.Settlement{
		ExternalRef:   cb.OrderRef,
		ExternalTxnID: cb.TransactionNo,
		ExternalTxnAt: cb.PayDate,
	})
	if errors.Is(err, ticket.ErrExpired) {
		logger.Error("gateway payment arrived for an expired ticket, refund it at the gateway",
			"ticket_id", ticketID, "order_ref", cb.OrderRef, "transaction_no", cb.TransactionNo)
	}
	if err != nil {
		return err
	}
	resp.Message = "ticket paid"
	return nil
}

// walletTopUp settles each order ref once; a replayed return URL answers 409.
func (h *Handler) walletTopUp(ctx context.Context, ownerID int64, cb *Callback, resp *CallbackResponse) error {
	if !cb.Succeeded() {
		if _, err := h.wallets.RecordFailedTopUp(ctx, ownerID, cb.AmountCents, cb.OrderRef); err != nil {
			return err
		}
		resp.Message = "wallet top-up failed"
		return nil
	}

	if _, err := h.wallets.TopUpFromGateway(ctx, ownerID, cb.AmountCents, cb.OrderRef); err != nil {
		return err
	}
	resp.Message = "wallet top-up successful"
	return nil
}
