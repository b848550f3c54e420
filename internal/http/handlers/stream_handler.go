// README: Server-sent event stream of the caller's orders, one live listener per user and role.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/modules/ordercache"
)

const streamKeepAlive = 25 * time.Second

type StreamHandler struct {
	order    *order.Service
	registry *ordercache.Registry
	fallback time.Duration
	logger   *zap.Logger
}

func NewStreamHandler(svc *order.Service, registry *ordercache.Registry, fallback time.Duration, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{order: svc, registry: registry, fallback: fallback, logger: logger}
}

// Orders emits an "orders" event with the full list on every change. Opening
// a second stream for the same user and role ends the first one.
func (h *StreamHandler) Orders(c *gin.Context) {
	role, ok := roleParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	updates := make(chan []*order.Order, 1)
	cache := ordercache.New(h.order, h.order, ordercache.Options{
		UserID:        caller(c),
		Role:          role,
		Registry:      h.registry,
		Machine:       h.order.Machine(),
		FallbackAfter: h.fallback,
		Logger:        h.logger,
		OnChange: func(orders []*order.Order) {
			// keep only the latest list
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- orders:
			default:
			}
		},
	})
	if err := cache.Start(ctx); err != nil {
		if errors.Is(err, ordercache.ErrClosed) {
			writeError(c, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		writeOrderError(c, err)
		return
	}
	defer cache.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-cache.Done():
			c.SSEvent("closed", gin.H{"reason": "replaced"})
			return false
		case orders := <-updates:
			c.SSEvent("orders", gin.H{"orders": orders})
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		}
	})
	if err := cache.Err(); err != nil {
		h.logger.Warn("order stream ended with fallback error", zap.String("uid", string(caller(c))), zap.Error(err))
	}
}
