package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"
)

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, exists := c.Get("user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Telegram Init Data required"})
			return
		}

		c.Next()
	}
}

// UserID returns the authenticated Telegram user id, or false when the
// request never passed the init data middleware.
func UserID(c *gin.Context) (int64, bool) {
	if id, exists := c.Get("user_id"); exists {
		if v, ok := id.(int64); ok {
			return v, true
		}
	}
	if user, exists := c.Get("user"); exists {
		if u, ok := user.(initdata.User); ok {
			return u.ID, true
		}
	}
	return 0, false
}
