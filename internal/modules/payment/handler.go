package payment

import (
	"errors"
	"io"
	"net/http"

	"autorent/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "Stripe-Signature"

type Handler struct {
	service    *Service
	reconciler *Reconciler
}

func NewHandler(service *Service, reconciler *Reconciler) *Handler {
	return &Handler{service: service, reconciler: reconciler}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/sessions", h.OpenSession)
	rg.POST("/payments/confirm", h.Confirm)
	rg.POST("/payments/:id/refund", h.Refund)
	rg.GET("/payments", h.ListMine)
	rg.GET("/payments/:id", h.Get)
}

// RegisterWebhook mounts the gateway callback on an unauthenticated group;
// the HMAC signature is the only credential a delivery carries.
func (h *Handler) RegisterWebhook(rg *gin.RouterGroup) {
	rg.POST("/webhooks/gateway", h.Webhook)
}

func (h *Handler) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	handle, err := h.service.OpenSession(c.Request.Context(), req.ReservationID, c.GetInt64("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"session": handle})
}

func (h *Handler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	res, err := h.service.Confirm(c.Request.Context(), req.SessionID, c.GetInt64("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": res})
}

func (h *Handler) Refund(c *gin.Context) {
	res, err := h.service.Refund(c.Request.Context(), c.Param("id"), c.GetInt64("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": res})
}

func (h *Handler) Get(c *gin.Context) {
	sess, err := h.service.Get(c.Request.Context(), c.Param("id"), c.GetInt64("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payment": sess})
}

func (h *Handler) ListMine(c *gin.Context) {
	out, err := h.service.ListForRequester(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payments": out})
}

func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_PAYLOAD", "Could not read request body")
		return
	}
	err = h.reconciler.Handle(c.Request.Context(), payload, c.GetHeader(signatureHeader))
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, gin.H{"received": true})
	case errors.Is(err, ErrInvalidSignature):
		response.Error(c, http.StatusBadRequest, "INVALID_SIGNATURE", "Webhook signature verification failed")
	case errors.Is(err, ErrMalformedPayload):
		response.Error(c, http.StatusBadRequest, "INVALID_PAYLOAD", "Webhook payload is malformed")
	default:
		// A 5xx makes the gateway redeliver, which is what we want for a
		// transient store failure.
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not apply event")
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Payment session or reservation not found")
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "You do not have access to this payment")
	case errors.Is(err, ErrAlreadyPaid):
		response.Error(c, http.StatusConflict, "ALREADY_PAID", "Reservation already has a completed payment")
	case errors.Is(err, ErrIllegalState):
		response.Error(c, http.StatusConflict, "ILLEGAL_TRANSITION", "Status does not permit this operation")
	case errors.Is(err, ErrPaymentRejected):
		response.Error(c, http.StatusPaymentRequired, "PAYMENT_REJECTED", "Gateway reports the payment did not succeed")
	case errors.Is(err, ErrGateway):
		response.Error(c, http.StatusBadGateway, "GATEWAY_UNAVAILABLE", "Payment gateway is unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error")
	}
}
