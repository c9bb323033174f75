package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/collabhub/collab-chat/pkg/response"
)

const (
	UserIDKey     = "user_id"
	NicknameKey   = "nickname"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	TokenQueryKey = "token"
)

// VerifyFunc validates a bearer credential and returns the caller identity.
type VerifyFunc func(credential string) (userID, nickname string, err error)

// AuthMiddleware validates bearer tokens in-process.
type AuthMiddleware struct {
	verify VerifyFunc
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(verify VerifyFunc) *AuthMiddleware {
	return &AuthMiddleware{verify: verify}
}

// RequireAuth returns a Gin middleware that rejects requests without a valid
// bearer token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization format")
			return
		}

		userID, nickname, err := m.verify(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
			return
		}

		c.Set(UserIDKey, userID)
		c.Set(NicknameKey, nickname)

		c.Next()
	}
}

// BearerToken extracts the credential from the Authorization header, falling
// back to the token query parameter. Browsers cannot set headers on a
// WebSocket upgrade, so the query form is accepted there.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get(AuthHeaderKey); strings.HasPrefix(h, BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, BearerPrefix))
	}
	return strings.TrimSpace(r.URL.Query().Get(TokenQueryKey))
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetNickname extracts the display name from Gin context.
func GetNickname(c *gin.Context) string {
	return c.GetString(NicknameKey)
}
