package auth

import (
	"errors"
	"time"
)

// AuthMethod represents the type of authentication
type AuthMethod string

const (
	AuthMethodBasic        AuthMethod = "basic"         // username/password
	AuthMethodClientSecret AuthMethod = "client_secret" // client_id/client_secret
	AuthMethodJWT          AuthMethod = "jwt"           // JWT token
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// User is an operator allowed to drive the control API. PasswordHash is a
// bcrypt hash; see HashPassword.
type User struct {
	Username     string   `mapstructure:"username" json:"username"`
	PasswordHash string   `mapstructure:"password_hash" json:"-"`
	Roles        []string `mapstructure:"roles" json:"roles"`
}

// Client is a machine credential; its scopes act as roles.
type Client struct {
	ClientID     string   `mapstructure:"client_id" json:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" json:"-"`
	Scopes       []string `mapstructure:"scopes" json:"scopes"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Success  bool     `json:"success"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Token    *Token   `json:"token,omitempty"`
}

// Token represents a JWT token
type Token struct {
	Type      string    `json:"type"`  // "Bearer"
	Value     string    `json:"value"` // JWT token string
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Method       AuthMethod `json:"method"`
	Username     string     `json:"username,omitempty"`
	Password     string     `json:"password,omitempty"`
	ClientID     string     `json:"client_id,omitempty"`
	ClientSecret string     `json:"client_secret,omitempty"`
	Token        string     `json:"token,omitempty"`
}

// Permission represents a permission in the system
type Permission struct {
	Resource string `json:"resource"` // "children" or "strategy"
	Action   string `json:"action"`   // "read" or "write"
}
