package delivery

import (
	"log"
	"net/http"
	"strings"

	"raid-mail-agent/internal/auth/usecase"

	"github.com/gin-gonic/gin"
)

// OperatorKey is the gin context key holding the authenticated operator name
const OperatorKey = "operator"

// AuthMiddleware admits requests carrying a valid operator bearer token
func AuthMiddleware(authUsecase usecase.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}

		operator, err := authUsecase.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			log.Printf("[Auth] Rejected token for %s %s: %v", c.Request.Method, c.FullPath(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(OperatorKey, operator.Name)
		c.Next()
	}
}

// CurrentOperator returns the operator set by AuthMiddleware
func CurrentOperator(c *gin.Context) string {
	return c.GetString(OperatorKey)
}
