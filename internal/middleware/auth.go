package middleware

import (
	"net/http"

	"yoforex/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const CheckUserKey = "user"
const UnreadCountKey = "unread_count"

// SessionUserKey is the session field holding the logged-in user's id.
const SessionUserKey = "user_id"

// AuthRequired ensures a user is logged in
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(CheckUserKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "login required"})
			return
		}
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := c.Get(CheckUserKey)
		user, ok := u.(*models.User)
		if !ok || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "admin only"})
			return
		}
		c.Next()
	}
}

// LoadUser retrieves user from session and sets to context
func LoadUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(SessionUserKey)

		if userID != nil {
			var user models.User
			result := db.WithContext(c.Request.Context()).First(&user, userID)
			if result.Error == nil {
				c.Set(CheckUserKey, &user)

				var count int64
				db.WithContext(c.Request.Context()).Model(&models.Notification{}).
					Where("user_id = ? AND is_read = ?", user.ID, false).
					Count(&count)
				c.Set(UnreadCountKey, count)
			}
		}
		c.Next()
	}
}
