package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "everlast"

// Config is the [http.auth] section.
type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Users     []User        `mapstructure:"users"`
	Clients   []Client      `mapstructure:"clients"`
}

// AuthService authenticates against the users and clients from Config and
// issues HS256 tokens.
type AuthService struct {
	users     map[string]User
	clients   map[string]Client
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// Claims represents JWT claims
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewAuthService creates a new authentication service
func NewAuthService(cfg Config) (*AuthService, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		// Tokens then do not survive a supervisor restart.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	s := &AuthService{
		users:     make(map[string]User, len(cfg.Users)),
		clients:   make(map[string]Client, len(cfg.Clients)),
		jwtSecret: secret,
		tokenTTL:  ttl,
		now:       time.Now,
	}
	for _, u := range cfg.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return nil, fmt.Errorf("auth user needs username and password_hash")
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("auth user %q: password_hash is not a bcrypt hash", u.Username)
		}
		s.users[u.Username] = u
	}
	for _, c := range cfg.Clients {
		if c.ClientID == "" || c.ClientSecret == "" {
			return nil, fmt.Errorf("auth client needs client_id and client_secret")
		}
		s.clients[c.ClientID] = c
	}
	return s, nil
}

// HashPassword returns a bcrypt hash suitable for User.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Authenticate performs authentication based on the login request
func (s *AuthService) Authenticate(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	switch req.Method {
	case AuthMethodBasic:
		return s.authenticateBasic(req.Username, req.Password)
	case AuthMethodClientSecret:
		return s.authenticateClientSecret(req.ClientID, req.ClientSecret)
	case AuthMethodJWT:
		return s.authenticateJWT(ctx, req.Token)
	default:
		return &AuthResult{Success: false}, fmt.Errorf("unsupported auth method: %s", req.Method)
	}
}

func (s *AuthService) authenticateBasic(username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	user, ok := s.users[username]
	if !ok {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	return s.issue(user.Username, user.Roles)
}

func (s *AuthService) authenticateClientSecret(clientID, clientSecret string) (*AuthResult, error) {
	if clientID == "" || clientSecret == "" {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	client, ok := s.clients[clientID]
	if !ok {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(client.ClientSecret), []byte(clientSecret)) != 1 {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	return s.issue(client.ClientID, client.Scopes)
}

func (s *AuthService) authenticateJWT(_ context.Context, tokenString string) (*AuthResult, error) {
	if tokenString == "" {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	return &AuthResult{Success: true, Username: claims.Username, Roles: claims.Roles}, nil
}

func (s *AuthService) issue(name string, roles []string) (*AuthResult, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := &Claims{
		Username: name,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   name,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return &AuthResult{Success: false}, fmt.Errorf("failed to sign token: %w", err)
	}
	return &AuthResult{
		Success:  true,
		Username: name,
		Roles:    roles,
		Token:    &Token{Type: "Bearer", Value: signed, ExpiresAt: expiresAt},
	}, nil
}

var rolePermissions = map[string][]Permission{
	"admin": {
		{Resource: "*", Action: "*"},
	},
	"operator": {
		{Resource: "children", Action: "read"},
		{Resource: "children", Action: "write"},
		{Resource: "strategy", Action: "read"},
	},
	"viewer": {
		{Resource: "children", Action: "read"},
		{Resource: "strategy", Action: "read"},
	},
}

// HasPermission checks if any of roles grants action on resource.
func (s *AuthService) HasPermission(roles []string, resource, action string) bool {
	for _, role := range roles {
		for _, perm := range rolePermissions[role] {
			if (perm.Resource == "*" || perm.Resource == resource) &&
				(perm.Action == "*" || perm.Action == action) {
				return true
			}
		}
	}
	return false
}
