package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"pill-reminder/internal/database"
)

const identityKey = "identity"

// AuthMiddleware validates an HS256 bearer token and stores its subject as the caller identity.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		if len(secret) == 0 {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server misconfigured: JWT_SECRET not set"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "subject claim missing"})
			return
		}

		c.Set(identityKey, subject)
		c.Next()
	}
}

func identity(c *gin.Context) string {
	return c.GetString(identityKey)
}

// requireRole lets through callers holding one of roles.
func (s *Server) requireRole(roles ...database.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := s.services.Roles.Resolve(c.Request.Context(), identity(c))
		if err != nil {
			writeError(c, err)
			return
		}
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		names := make([]string, 0, len(roles))
		for _, r := range roles {
			names = append(names, string(r))
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role " + strings.Join(names, " or ") + " required"})
	}
}
