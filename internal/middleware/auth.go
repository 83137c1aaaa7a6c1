package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mealbridge/dispatch-api/config"
	"github.com/mealbridge/dispatch-api/pkg/errors"
	"github.com/mealbridge/dispatch-api/pkg/httputil"
)

const ContextUserID = "user_id"

type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(cfg config.JWTConfig) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(cfg.Secret)}
}

// Authenticate verifies the bearer token and stashes the caller's party
// ID in the gin context for the handlers downstream.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, errors.Unauthenticated("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.RespondWithError(c, errors.Unauthenticated("invalid authorization format"))
			c.Abort()
			return
		}

		userID, err := m.parseSubject(parts[1])
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthenticated("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

func (m *AuthMiddleware) parseSubject(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("parsing token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, fmt.Errorf("reading subject claim: %w", err)
	}
	return uuid.Parse(sub)
}

// CallerID extracts the authenticated party ID set by Authenticate.
// It returns uuid.Nil when the request was not authenticated.
func CallerID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
