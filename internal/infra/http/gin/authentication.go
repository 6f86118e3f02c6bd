package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"campusxchange/internal/domain/identity"
)

const (
	principalContextKey  = "campusxchange.principal"
	credentialContextKey = "campusxchange.credential"
)

type principal struct {
	ID   string
	Name string
}

// AuthMiddleware resolves the bearer credential into a principal. It never
// rejects by itself: endpoints decide via requireAuth, which is what keeps
// the missing-credential (401) and bad-credential (403) cases distinct.
type AuthMiddleware struct {
	Verifier identity.Verifier
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Verifier == nil {
		c.Next()
		return
	}
	c.Set(credentialContextKey, true)
	resolved, err := m.Verifier.Verify(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredential) && m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, principal{ID: resolved.ID, Name: resolved.Name})
	c.Next()
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

// requireAuth answers 401 when no credential was offered at all and 403
// when one was offered but did not verify.
func requireAuth(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if ok {
		return p, true
	}
	if c.GetBool(credentialContextKey) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid credential"})
		return principal{}, false
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
	return principal{}, false
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
