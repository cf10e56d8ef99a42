package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"vibeshop-backend/internal/domain"
)

const userKey = "user"

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// identify resolves the caller from the Authorization header and stores the
// user on the context. Requests without an identity stop here.
func (h *Handler) identify(c *gin.Context) {
	user, err := h.identity.Resolve(c.Request.Context(), c.GetHeader("Authorization"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func currentUser(c *gin.Context) domain.User {
	user, _ := c.MustGet(userKey).(domain.User)
	return user
}
