// Package web is the HTTP transport in front of the payment engine.
package web

import (
	"time"

	"go-paywatch/web/controllers"
	"go-paywatch/web/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the routes. The webhook is exempt from the per-IP limiter since
// deliveries come from the monitoring service's few addresses.
func NewRouter(h *controllers.Handler, auth *middleware.Auth, limiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:   []string{middleware.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}))

	r.POST("/webhook", h.Webhook)

	customer := r.Group("/", limiter.Middleware())
	customer.POST("/orders/:id/payment", h.CreatePayment)
	customer.GET("/payments/:id", h.ViewPayment)
	customer.GET("/payments/:id/status", h.PaymentStatus)
	customer.POST("/payments/:id/confirm", h.Confirm)

	r.POST("/admin/login", limiter.Middleware(), h.Login)
	admin := r.Group("/admin", auth.RequireAuth())
	admin.POST("/payments/:id/cancel", h.CancelPayment)

	return r
}
