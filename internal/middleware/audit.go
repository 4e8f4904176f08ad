package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Juls-123/chapel-admin-sub000/internal/service"
)

// AuditMeta stashes the caller's address and agent on the request
// context so service-level audit writes can attribute them without
// every operation threading request details through.
func AuditMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithRequestMeta(c.Request.Context(), service.RequestMeta{
			IP:        c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
