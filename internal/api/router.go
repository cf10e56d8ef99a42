// Package api exposes the shop over HTTP.
package api

import (
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// API builds the gin engine. Shop routes live under prefix; /healthz and
// /metrics are mounted at the root. metrics may be nil.
func API(prefix string, origins []string, metrics http.Handler, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(h.logger), gin.Recovery(), cors.New(corsConfig(origins)))

	r.GET("/healthz", healthCheck)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := r.Group(prefix)
	{
		v1.POST("/auth/register", h.register)
		v1.POST("/auth/login", h.login)
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
	}

	authed := r.Group(prefix, h.identify)
	{
		authed.GET("/auth/me", h.me)

		authed.GET("/cart", h.getCart)
		authed.POST("/cart", h.addToCart)
		authed.DELETE("/cart", h.clearCart)
		authed.PATCH("/cart/:id", h.updateCartItem)
		authed.DELETE("/cart/:id", h.removeCartItem)

		authed.POST("/checkout", h.checkout)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
