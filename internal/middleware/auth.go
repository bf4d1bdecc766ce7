package middleware

import (
	"net/http"
	"strings"

	"github.com/examguard/examguard-backend/internal/model"
	"github.com/examguard/examguard-backend/internal/response"
	"github.com/examguard/examguard-backend/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyPrincipal is the Gin context key for the authenticated caller.
	ContextKeyPrincipal = "principal"
)

// RequireAuth validates a JWT from the Authorization header and stores
// the resolved Principal in the context.
func RequireAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := resolvePrincipal(c, auth)
		if !ok {
			return
		}
		c.Set(ContextKeyPrincipal, p)
		c.Next()
	}
}

// RequireStudent additionally restricts the route to student callers.
func RequireStudent(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := resolvePrincipal(c, auth)
		if !ok {
			return
		}
		if p.Role != model.RoleStudent {
			response.AbortFail(c, http.StatusForbidden, response.ErrStudentOnly)
			return
		}
		c.Set(ContextKeyPrincipal, p)
		c.Next()
	}
}

// RequireStaff restricts the route to teacher or admin callers.
func RequireStaff(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := resolvePrincipal(c, auth)
		if !ok {
			return
		}
		if !p.Staff() {
			response.AbortFail(c, http.StatusForbidden, response.ErrAdminOnly)
			return
		}
		c.Set(ContextKeyPrincipal, p)
		c.Next()
	}
}

// RequireWSAuth validates a JWT from the query param ?token=...
// Used for WebSocket upgrade requests, which cannot send headers.
func RequireWSAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		p, err := auth.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		c.Set(ContextKeyPrincipal, p)
		c.Next()
	}
}

// GetPrincipal retrieves the authenticated caller from the Gin context.
func GetPrincipal(c *gin.Context) (model.Principal, bool) {
	val, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return model.Principal{}, false
	}
	p, ok := val.(model.Principal)
	return p, ok
}

func resolvePrincipal(c *gin.Context, auth *service.AuthService) (model.Principal, bool) {
	tokenStr := ""

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = parts[1]
		}
	}

	if tokenStr == "" {
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return model.Principal{}, false
	}

	p, err := auth.ValidateToken(tokenStr)
	if err != nil {
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return model.Principal{}, false
	}
	return p, true
}
