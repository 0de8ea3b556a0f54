package server

import (
	"net/http"
	"strings"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.FullPath(),
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if user := helpers.CurrentUser(c); user != "" {
		fields["user_id"] = user
	}
	utils.Info("HTTP Request", fields)
}

// RequireUser rejects requests without an acting user and stores the id for handlers
func RequireUser(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(helpers.UserIDHeader))
	if userID == "" {
		utils.JSONErrorWithDetails(c, http.StatusUnauthorized, biddingerrors.ErrUnauthenticated,
			biddingerrors.Code(biddingerrors.ErrUnauthenticated), "missing user identity", nil)
		c.Abort()
		utils.Warn("RequireUser: request without "+helpers.UserIDHeader, map[string]any{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
		return
	}

	c.Set(helpers.UserIDKey, userID)
	c.Next()
}
