// README: Base handler utilities (JSON helpers, caller lookup, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/http/middleware"
	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Current *int   `json:"current,omitempty"`
	Max     *int   `json:"max,omitempty"`
}

// isValidID accepts generated ids (uuid) and Firestore document ids.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// orderID reads and checks the :id path parameter.
func orderID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return "", false
	}
	return types.ID(id), true
}

func caller(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

// roleParam resolves ?role=, falling back to the caller's role claim.
func roleParam(c *gin.Context) (order.Role, bool) {
	raw := c.Query("role")
	if raw == "" {
		raw = middleware.CallerRole(c)
	}
	role, ok := order.ParseRole(raw)
	if !ok {
		writeError(c, http.StatusBadRequest, "role must be client, freelancer or any")
		return "", false
	}
	return role, true
}

func writeOrderError(c *gin.Context, err error) {
	_ = c.Error(err)

	var validation *order.ValidationError
	var quota *order.RevisionQuotaError
	switch {
	case errors.As(err, &validation):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: validation.Field})
	case errors.As(err, &quota):
		writeJSON(c, http.StatusConflict, errorResponse{Error: err.Error(), Current: &quota.Current, Max: &quota.Max})
	case errors.Is(err, order.ErrPermission):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, order.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
