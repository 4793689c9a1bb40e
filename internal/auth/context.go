package auth

import "github.com/gin-gonic/gin"

const (
	userIDKey   = "userID"
	userRoleKey = "userRole"
)

// GetUserID returns the authenticated user's ID or empty string.
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// GetRole returns the authenticated user's role or empty string.
func GetRole(c *gin.Context) string {
	return c.GetString(userRoleKey)
}

// IsAdmin reports whether the authenticated user is staff.
func IsAdmin(c *gin.Context) bool {
	return GetRole(c) == RoleAdmin
}
