package ticket

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/api"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/auth"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/yeqown/go-qrcode"
)

type Handler struct {
	service  Service
	notifier Notifier
	qrDir    string
}

func NewHandler(service Service, notifier Notifier) *Handler {
	return &Handler{
		service:  service,
		notifier: notifier,
		qrDir:    os.TempDir(),
	}
}

// @Summary      Issue a ticket
// @Description  Creates an unpaid ticket for the caller. Priority fares are issued paid.
// @Tags         tickets
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ticket.IssueParams true "Ticket payload"
// @Success      201 {object} ticket.Ticket
// @Failure      400 {object} api.ErrorResponse
// @Failure      401 {object} api.ErrorResponse
// @Router       /tickets [post]
func (h *Handler) Issue(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req IssueParams
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BindError(c, err)
		return
	}
	req.OwnerID = userID
	if req.Multiplicity == 0 {
		req.Multiplicity = 1
	}

	t, err := h.service.Issue(c.Request.Context(), req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, t)
}

// @Summary      List my tickets
// @Tags         tickets
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} ticket.Ticket
// @Router       /tickets [get]
func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	tickets, err := h.service.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	if tickets == nil {
		tickets = []Ticket{}
	}

	c.JSON(http.StatusOK, tickets)
}

// @Summary      Get a ticket
// @Tags         tickets
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Ticket ID"
// @Success      200 {object} ticket.Ticket
// @Failure      404 {object} api.ErrorResponse
// @Router       /tickets/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	t, ok := h.ownTicket(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary      Download the gate QR code
// @Tags         tickets
// @Produce      image/jpeg
// @Security     BearerAuth
// @Param        id path int true "Ticket ID"
// @Success      200 {file} file
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /tickets/{id}/qr [get]
func (h *Handler) QRCode(c *gin.Context) {
	t, ok := h.ownTicket(c)
	if !ok {
		return
	}
	if !t.Paid || t.GateToken == nil {
		api.RespondError(c, ErrNotPaid)
		return
	}

	qrc, err := qrcode.New(*t.GateToken)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	path := filepath.Join(h.qrDir, "ticket-"+strconv.FormatInt(t.ID, 10)+"-"+strconv.FormatInt(t.UpdatedAt.UnixNano(), 10)+".jpeg")
	if err := qrc.Save(path); err != nil {
		logger.Error("could not save qr code", "ticket_id", t.ID, "error", err)
		api.RespondError(c, err)
		return
	}
	defer os.Remove(path)

	c.FileAttachment(path, "ticket.jpeg")
}

// @Summary      Check a ticket for expiry
// @Tags         tickets
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Ticket ID"
// @Success      200 {object} ticket.Ticket
// @Router       /tickets/{id}/check-expire [post]
func (h *Handler) CheckExpire(c *gin.Context) {
	if _, ok := h.ownTicket(c); !ok {
		return
	}
	id, _ := api.ParamID(c, "id")

	t, err := h.service.CheckExpire(c.Request.Context(), id)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary      Expire all of my overdue tickets
// @Tags         tickets
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]int
// @Router       /tickets/check-expire [post]
func (h *Handler) CheckExpireForOwner(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	n, err := h.service.CheckExpireForOwner(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

// @Summary      Gate scan
// @Description  Staff-only: check a rider in or out at a terminal.
// @Tags         gates
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ticket.ScanRequest true "Scan payload"
// @Success      200 {object} ticket.ScanResult
// @Failure      401 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /gates/scan [post]
func (h *Handler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BindError(c, err)
		return
	}

	result, err := h.service.Scan(c.Request.Context(), req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	if req.Direction == CheckOut && h.notifier != nil {
		if err := h.notifier.Notify(c.Request.Context(), result.OwnerID, result.TicketID); err != nil {
			logger.Warn("scan notification not queued", "ticket_id", result.TicketID, "error", err)
		}
	}

	c.JSON(http.StatusOK, result)
}

// @Summary      Disable a ticket
// @Tags         admin,tickets
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Ticket ID"
// @Success      200 {object} ticket.Ticket
// @Router       /admin/tickets/{id}/disable [post]
func (h *Handler) Disable(c *gin.Context) {
	h.adminTransition(c, h.service.Disable)
}

// @Summary      Re-activate a disabled ticket
// @Tags         admin,tickets
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Ticket ID"
// @Success      200 {object} ticket.Ticket
// @Router       /admin/tickets/{id}/activate [post]
func (h *Handler) Activate(c *gin.Context) {
	h.adminTransition(c, h.service.Activate)
}

func (h *Handler) adminTransition(c *gin.Context, fn func(ctx context.Context, id int64) (*Ticket, error)) {
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}

	t, err := fn(c.Request.Context(), id)
	if err != nil {
		api.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ownTicket loads the ticket named by the id parameter and hides tickets of other riders.
func (h *Handler) ownTicket(c *gin.Context) (*Ticket, bool) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return nil, false
	}
	id, ok := api.ParamID(c, "id")
	if !ok {
		return nil, false
	}

	t, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		api.RespondError(c, err)
		return nil, false
	}
	if t.OwnerID != userID {
		api.RespondError(c, ErrNotFound)
		return nil, false
	}
	return t, true
}
