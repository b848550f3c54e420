// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/http/handlers"
	"gigmarket/internal/http/middleware"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(deps.Logger), middleware.Recovery(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	if deps.Reconciler != nil {
		webhookHandler := handlers.NewWebhookHandler(deps.Reconciler, deps.WebhookToken, deps.Logger)
		r.POST("/webhooks/payments", webhookHandler.Payments)
	}

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	orderHandler := handlers.NewOrderHandler(deps.Order)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.GET("/orders/:id/history", orderHandler.History)
	api.POST("/orders/:id/status", orderHandler.UpdateStatus)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)

	streamHandler := handlers.NewStreamHandler(deps.Order, deps.Registry, deps.StreamFallback, deps.Logger)
	api.GET("/orders/stream", streamHandler.Orders)

	clientHandler := handlers.NewClientHandler(deps.Order)
	api.POST("/orders/:id/checkout", clientHandler.Checkout)
	api.POST("/orders/:id/revisions", clientHandler.RequestRevision)
	api.POST("/orders/:id/complete", clientHandler.Complete)

	freelancerHandler := handlers.NewFreelancerHandler(deps.Order)
	api.POST("/orders/:id/accept", freelancerHandler.Accept)
	api.POST("/orders/:id/deliver", freelancerHandler.Deliver)
	api.POST("/orders/:id/revisions/complete", freelancerHandler.CompleteRevision)

	return r
}
