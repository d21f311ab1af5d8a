package wallet

import (
	"net/http"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/api"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/auth"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/money"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// @Summary      Get my wallet
// @Tags         wallet
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]interface{}
// @Failure      404 {object} api.ErrorResponse
// @Router       /wallet [get]
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	w, err := h.service.GetWallet(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet":  w,
		"balance": money.Format(w.BalanceCents),
	})
}

// @Summary      Credit a rider's wallet at the cash desk
// @Description  Riders top up through /wallet/topup-url and the gateway callback.
// @Tags         admin,wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        ownerID path int true "Rider ID"
// @Param        request body wallet.TopUpRequest true "Amount in major units"
// @Success      200 {object} map[string]interface{}
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /admin/wallets/{ownerID}/topup [post]
func (h *Handler) TopUp(c *gin.Context) {
	ownerID, ok := api.ParamID(c, "ownerID")
	if !ok {
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BindError(c, err)
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil || amount <= 0 {
		api.BadRequest(c, "amount must be a positive value with at most two decimals")
		return
	}

	entry, err := h.service.TopUp(c.Request.Context(), ownerID, amount, "cash desk top-up")
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "wallet recharged",
		"entry":   entry,
		"balance": money.Format(entry.BalanceAfter),
	})
}

// @Summary      My ledger
// @Tags         wallet
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} wallet.Entry
// @Router       /wallet/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	entries, err := h.service.History(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// @Summary      Pay for a ticket from my wallet
// @Tags         wallet,tickets
// @Produce      json
// @Security     BearerAuth
// @Param        ticketID path int true "Ticket ID"
// @Success      200 {object} wallet.PurchaseResult
// @Failure      402 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /wallet/purchase/{ticketID} [post]
func (h *Handler) PurchaseTicket(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}
	ticketID, ok := api.ParamID(c, "ticketID")
	if !ok {
		return
	}

	result, err := h.service.PurchaseTicketWithWallet(c.Request.Context(), userID, ticketID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// @Summary      Open a wallet for a rider
// @Tags         admin,wallet
// @Produce      json
// @Security     BearerAuth
// @Param        ownerID path int true "Rider ID"
// @Success      201 {object} wallet.Wallet
// @Failure      409 {object} api.ErrorResponse
// @Router       /admin/wallets/{ownerID} [post]
func (h *Handler) CreateWallet(c *gin.Context) {
	ownerID, ok := api.ParamID(c, "ownerID")
	if !ok {
		return
	}

	w, err := h.service.CreateWallet(c.Request.Context(), ownerID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, w)
}

// @Summary      Reconcile a rider's wallet against the ledger
// @Tags         admin,wallet
// @Produce      json
// @Security     BearerAuth
// @Param        ownerID path int true "Rider ID"
// @Success      200 {object} wallet.Reconciliation
// @Router       /admin/wallets/{ownerID}/reconcile [get]
func (h *Handler) Reconcile(c *gin.Context) {
	ownerID, ok := api.ParamID(c, "ownerID")
	if !ok {
		return
	}

	rec, err := h.service.Reconcile(c.Request.Context(), ownerID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}
