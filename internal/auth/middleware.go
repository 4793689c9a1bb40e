package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/cowork-booking-backend/internal/pkg/response"
)

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorResponse{Error: message})
}

// AuthRequired is a Gin middleware that validates JWT from Authorization: Bearer <token>.
// Tokens without a role are treated as members; unknown roles are rejected.
func AuthRequired(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing Authorization header")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			unauthorized(c, "invalid Authorization header format")
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		role := claims.Role
		switch role {
		case "":
			role = RoleMember
		case RoleMember, RoleAdmin:
		default:
			unauthorized(c, "unknown role")
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userRoleKey, role)

		c.Next()
	}
}
