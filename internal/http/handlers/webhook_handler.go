// README: Payment gateway webhook; confirms payments and advances the order.
package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/modules/payment"
)

type WebhookHandler struct {
	reconciler *payment.Reconciler
	token      string
	logger     *zap.Logger
}

func NewWebhookHandler(reconciler *payment.Reconciler, token string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{reconciler: reconciler, token: token, logger: logger}
}

// paymentNotification is the gateway's body: {"type":"payment","data":{"id":"..."}}.
type paymentNotification struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Payments acknowledges every authenticated notification it could process so
// the gateway stops retrying; lookup failures get a 502 and are retried.
func (h *WebhookHandler) Payments(c *gin.Context) {
	if h.token == "" || subtle.ConstantTimeCompare([]byte(c.Query("token")), []byte(h.token)) != 1 {
		writeError(c, http.StatusUnauthorized, "invalid webhook token")
		return
	}
	var n paymentNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	paymentID := n.Data.ID
	if paymentID == "" {
		paymentID = c.Query("data.id")
	}
	if n.Type != "" && n.Type != "payment" {
		c.Status(http.StatusNoContent)
		return
	}
	if paymentID == "" {
		writeError(c, http.StatusBadRequest, "missing payment id")
		return
	}

	applied, err := h.reconciler.Reconcile(c.Request.Context(), paymentID)
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, gin.H{"applied": applied})
	case errors.Is(err, payment.ErrUnknownPayment):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, order.ErrNotFound):
		// nothing the gateway can fix by retrying
		_ = c.Error(err)
		writeJSON(c, http.StatusOK, gin.H{"applied": false})
	default:
		h.logger.Error("payment webhook failed", zap.String("payment_id", paymentID), zap.Error(err))
		writeError(c, http.StatusBadGateway, "payment lookup failed")
	}
}
