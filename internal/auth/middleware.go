package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKey is used for context keys to avoid collisions
type ContextKey string

const (
	// ResultKey is the context key for auth result
	ResultKey ContextKey = "auth_result"
)

// Middleware guards gin routes with the AuthService.
type Middleware struct {
	authService *AuthService
}

func NewMiddleware(s *AuthService) *Middleware { return &Middleware{authService: s} }

// GinAuth rejects requests without valid Bearer or Basic credentials.
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authResult, err := m.authenticate(c.Request)
		if err != nil || !authResult.Success {
			c.Header("WWW-Authenticate", `Bearer realm="everlast"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			return
		}
		c.Set(string(ResultKey), authResult)
		c.Next()
	}
}

// GinRequirePermission must run after GinAuth. Safe methods need read,
// everything else write.
func (m *Middleware) GinRequirePermission(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(string(ResultKey))
		result, ok := v.(*AuthResult)
		if !exists || !ok || !result.Success {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_required",
				"message": "Authentication required",
			})
			return
		}
		action := "write"
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			action = "read"
		}
		if !m.authService.HasPermission(result.Roles, resource, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "permission_denied",
				"message": "Insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

// GinLogin exchanges credentials in the JSON body for a token.
func (m *Middleware) GinLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
			return
		}
		if req.Method == "" {
			req.Method = AuthMethodBasic
			if req.ClientID != "" {
				req.Method = AuthMethodClientSecret
			}
		}
		if req.Method == AuthMethodJWT {
			c.JSON(http.StatusBadRequest, gin.H{"error": "login requires a password or client secret"})
			return
		}
		res, err := m.authService.Authenticate(c.Request.Context(), req)
		if err != nil || !res.Success {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_failed", "message": "Invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// authenticate extracts and validates authentication from HTTP request
func (m *Middleware) authenticate(r *http.Request) (*AuthResult, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return m.authService.Authenticate(r.Context(), LoginRequest{Method: AuthMethodJWT, Token: parts[1]})
		}
	}
	if username, password, ok := r.BasicAuth(); ok {
		return m.authService.Authenticate(r.Context(), LoginRequest{
			Method:   AuthMethodBasic,
			Username: username,
			Password: password,
		})
	}
	return &AuthResult{Success: false}, ErrInvalidCredentials
}
