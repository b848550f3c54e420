// README: Client handlers for checkout, revision requests and completion.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/modules/order"
)

type ClientHandler struct {
	order *order.Service
}

func NewClientHandler(orderSvc *order.Service) *ClientHandler {
	return &ClientHandler{order: orderSvc}
}

func (h *ClientHandler) Checkout(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	res, err := h.order.Checkout(c.Request.Context(), id, caller(c))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

type revisionReq struct {
	Message string `json:"message"`
}

func (h *ClientHandler) RequestRevision(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req revisionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	summary, err := h.order.RequestRevision(c.Request.Context(), id, caller(c), req.Message)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, summary)
}

func (h *ClientHandler) Complete(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.order.CompleteOrder(c.Request.Context(), id, caller(c))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
