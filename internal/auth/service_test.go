package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *AuthService {
	t.Helper()
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	s, err := NewAuthService(Config{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
		Users: []User{
			{Username: "admin", PasswordHash: hash, Roles: []string{"admin"}},
			{Username: "watcher", PasswordHash: hash, Roles: []string{"viewer"}},
		},
		Clients: []Client{
			{ClientID: "deployer", ClientSecret: "abc", Scopes: []string{"operator"}},
		},
	})
	require.NoError(t, err)
	return s
}

func TestNewAuthServiceRejectsBadEntries(t *testing.T) {
	_, err := NewAuthService(Config{Users: []User{{Username: "a", PasswordHash: "plain"}}})
	assert.Error(t, err)
	_, err = NewAuthService(Config{Users: []User{{Username: "a"}}})
	assert.Error(t, err)
	_, err = NewAuthService(Config{Clients: []Client{{ClientID: "c"}}})
	assert.Error(t, err)

	s, err := NewAuthService(Config{})
	require.NoError(t, err)
	assert.Len(t, s.jwtSecret, 32)
	assert.Equal(t, 24*time.Hour, s.tokenTTL)
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
	h1, err := HashPassword("pw")
	require.NoError(t, err)
	h2, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestAuthenticateBasic(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	res, err := s.Authenticate(ctx, LoginRequest{Method: AuthMethodBasic, Username: "admin", Password: "s3cret"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"admin"}, res.Roles)
	require.NotNil(t, res.Token)
	assert.Equal(t, "Bearer", res.Token.Type)

	for _, req := range []LoginRequest{
		{Method: AuthMethodBasic, Username: "admin", Password: "wrong"},
		{Method: AuthMethodBasic, Username: "nobody", Password: "s3cret"},
		{Method: AuthMethodBasic},
	} {
		res, err := s.Authenticate(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.False(t, res.Success)
	}
}

func TestAuthenticateClientSecret(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	res, err := s.Authenticate(ctx, LoginRequest{Method: AuthMethodClientSecret, ClientID: "deployer", ClientSecret: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "deployer", res.Username)
	assert.Equal(t, []string{"operator"}, res.Roles)

	_, err = s.Authenticate(ctx, LoginRequest{Method: AuthMethodClientSecret, ClientID: "deployer", ClientSecret: "abd"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateJWT(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	login, err := s.Authenticate(ctx, LoginRequest{Method: AuthMethodBasic, Username: "watcher", Password: "s3cret"})
	require.NoError(t, err)

	res, err := s.Authenticate(ctx, LoginRequest{Method: AuthMethodJWT, Token: login.Token.Value})
	require.NoError(t, err)
	assert.Equal(t, "watcher", res.Username)
	assert.Equal(t, []string{"viewer"}, res.Roles)
	assert.Nil(t, res.Token)

	_, err = s.Authenticate(ctx, LoginRequest{Method: AuthMethodJWT, Token: login.Token.Value + "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Another secret must not accept the token.
	other, err := NewAuthService(Config{JWTSecret: "other"})
	require.NoError(t, err)
	_, err = other.Authenticate(ctx, LoginRequest{Method: AuthMethodJWT, Token: login.Token.Value})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateJWTExpired(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	login, err := s.Authenticate(ctx, LoginRequest{Method: AuthMethodBasic, Username: "admin", Password: "s3cret"})
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Authenticate(ctx, LoginRequest{Method: AuthMethodJWT, Token: login.Token.Value})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateUnknownMethod(t *testing.T) {
	s := newTestService(t)
	_, err := s.Authenticate(context.Background(), LoginRequest{Method: "ldap"})
	assert.Error(t, err)
}

func TestHasPermission(t *testing.T) {
	s := newTestService(t)
	cases := []struct {
		roles    []string
		resource string
		action   string
		want     bool
	}{
		{[]string{"admin"}, "strategy", "write", true},
		{[]string{"operator"}, "children", "write", true},
		{[]string{"operator"}, "strategy", "write", false},
		{[]string{"operator"}, "strategy", "read", true},
		{[]string{"viewer"}, "children", "read", true},
		{[]string{"viewer"}, "children", "write", false},
		{[]string{"viewer", "operator"}, "children", "write", true},
		{nil, "children", "read", false},
		{[]string{"unknown"}, "children", "read", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.HasPermission(tc.roles, tc.resource, tc.action), "%v %s %s", tc.roles, tc.resource, tc.action)
	}
}
