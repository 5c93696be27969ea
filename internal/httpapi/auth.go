package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// RequireBearer accepts requests carrying an HS256 token signed with secret.
// An empty secret disables the check.
func RequireBearer(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	key := []byte(secret)

	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": statusError, "message": "missing bearer token"})
			return
		}

		_, err := parser.Parse(strings.TrimPrefix(raw, bearerPrefix), func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": statusError, "message": "invalid token"})
			return
		}

		c.Next()
	}
}
