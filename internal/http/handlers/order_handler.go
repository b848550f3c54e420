// README: Order handlers for create, reads, generic status changes and cancel.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createOrderReq struct {
	ClientID     string `json:"clientId"`
	FreelancerID string `json:"freelancerId"`
	GigID        string `json:"gigId"`
	PackageType  string `json:"packageType"`
	Requirements string `json:"requirements"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	uid := caller(c)
	if req.ClientID != "" && types.ID(req.ClientID) != uid {
		writeError(c, http.StatusForbidden, "orders can only be placed for yourself")
		return
	}
	o, err := h.order.CreateOrder(c.Request.Context(), order.CreateCommand{
		ClientID:     uid,
		FreelancerID: types.ID(req.FreelancerID),
		GigID:        types.ID(req.GigID),
		PackageType:  req.PackageType,
		Requirements: req.Requirements,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

// List returns the caller's orders; ?details=true adds gig and party summaries.
func (h *OrderHandler) List(c *gin.Context) {
	role, ok := roleParam(c)
	if !ok {
		return
	}
	if c.Query("details") == "true" {
		details, err := h.order.GetOrdersWithDetails(c.Request.Context(), caller(c), role)
		if err != nil {
			writeOrderError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"orders": details})
		return
	}
	orders, err := h.order.ListUserOrders(c.Request.Context(), caller(c), role)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), id, caller(c))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) History(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	events, err := h.order.History(c.Request.Context(), id, caller(c))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}

type statusReq struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
	Reason  string   `json:"reason"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	change, err := h.order.UpdateOrderStatus(c.Request.Context(), order.StatusCommand{
		OrderID: id,
		Status:  order.Status(req.Status),
		ActorID: caller(c),
		Extra:   order.Extra{Message: req.Message, Files: req.Files, Reason: req.Reason},
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, change)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	o, err := h.order.CancelOrder(c.Request.Context(), id, caller(c), req.Reason)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
