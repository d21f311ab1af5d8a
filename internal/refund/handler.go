package refund

import (
	"net/http"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/api"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/auth"
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

// @Summary      Request a refund
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body refund.CreateParams true "Refund request"
// @Success      201 {object} refund.Request
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /refunds [post]
func (h *Handler) Create(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req CreateParams
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BindError(c, err)
		return
	}

	created, err := h.service.Request(c.Request.Context(), userID, req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// @Summary      List my refund requests
// @Tags         refunds
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} refund.Request
// @Router       /refunds [get]
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	requests, err := h.service.ListByRider(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, requests)
}

// @Summary      List pending refund requests
// @Tags         admin,refunds
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} refund.PendingRequest
// @Router       /admin/refunds/pending [get]
func (h *Handler) ListPending(c *gin.Context) {
	pending, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, pending)
}

// @Summary      Approve or reject a refund request
// @Description  Responds 200 for both outcomes; check "approved" in the body.
// @Tags         admin,refunds
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Refund request ID"
// @Param        request body refund.ProcessParams true "Decision"
// @Success      200 {object} refund.Result
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /admin/refunds/{id}/process [post]
func (h *Handler) Process(c *gin.Context) {
	approverID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}
	id, ok := api.ParamID(c, "id")
	if !ok {
		return
	}

	var req ProcessParams
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BindError(c, err)
		return
	}

	result, err := h.service.Process(c.Request.Context(), id, approverID, req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
