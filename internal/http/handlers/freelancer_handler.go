// README: Freelancer handlers for accepting, delivering and finishing revisions.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

type FreelancerHandler struct {
	order *order.Service
}

func NewFreelancerHandler(orderSvc *order.Service) *FreelancerHandler {
	return &FreelancerHandler{order: orderSvc}
}

func (h *FreelancerHandler) Accept(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.order.AcceptOrder(c.Request.Context(), id, caller(c))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type deliveryReq struct {
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

func (h *FreelancerHandler) Deliver(c *gin.Context) {
	h.deliver(c, h.order.DeliverOrder)
}

func (h *FreelancerHandler) CompleteRevision(c *gin.Context) {
	h.deliver(c, h.order.CompleteRevision)
}

func (h *FreelancerHandler) deliver(c *gin.Context, op func(ctx context.Context, id, actorID types.ID, d order.Delivery) (*order.Order, error)) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req deliveryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := op(c.Request.Context(), id, caller(c), order.Delivery{Message: req.Message, Files: req.Files})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
