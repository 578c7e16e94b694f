package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/everlast/internal/auth"
	"github.com/loykin/everlast/internal/env"
	"github.com/loykin/everlast/internal/server"
	"github.com/loykin/everlast/internal/spawn"
	"github.com/loykin/everlast/internal/supervisor"
)

func newTestClient(t *testing.T) (*Client, *spawn.Fake) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fake := spawn.NewFake()
	sup, err := supervisor.New(supervisor.Options{Spawner: fake, Env: env.New()})
	require.NoError(t, err)
	ts := httptest.NewServer(server.NewRouter(sup, "/api").Handler())
	t.Cleanup(func() {
		ts.Close()
		sup.Close()
	})
	return New(Config{BaseURL: ts.URL + "/api", Timeout: 2 * time.Second}), fake
}

func TestClientRoundTrip(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	require.True(t, c.IsReachable(ctx))

	idxs, err := c.StartChildren(ctx,
		ChildSpec{ID: "a", Path: "/bin/a"},
		ChildSpec{ID: "b", Path: "/bin/b", Env: map[string]string{"K": "V"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, idxs)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := c.Children(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "running", list[0].State)
	assert.Equal(t, fake.Last("b-1").Pid(), list[1].PID)

	st, err := c.Strategy(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one_for_one", st)
	require.NoError(t, c.SetStrategy(ctx, "never"))

	require.NoError(t, c.StopChild(ctx, 1))
	require.Eventually(t, func() bool {
		ci, err := c.Child(ctx, 1)
		return err == nil && ci.State == "stopped"
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.DeleteChild(ctx, 1))

	_, err = c.Child(ctx, 1)
	assert.True(t, IsNotFound(err))

	ok, err := c.Check(ctx, []map[string]any{{"id": "x"}})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.StopAll(ctx))
	st, err = c.Strategy(ctx)
	require.NoError(t, err)
	assert.Empty(t, st)
}

func TestClientErrors(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	err := c.StopChild(ctx, 7)
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusNotFound, ae.Status)
	assert.Contains(t, ae.Message, "not found")

	_, err = c.StartChildren(ctx, ChildSpec{ID: "a"})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadRequest, ae.Status)

	fake.Fail(assert.AnError)
	idxs, err := c.StartChildren(ctx, ChildSpec{ID: "a", Path: "/bin/a"})
	require.Error(t, err)
	assert.Equal(t, []int{0}, idxs)

	assert.Error(t, c.SetStrategy(ctx, "bogus"))
}

func TestClientUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 200 * time.Millisecond})
	assert.False(t, c.IsReachable(context.Background()))
}

func TestAPIErrorMessage(t *testing.T) {
	assert.Equal(t, "HTTP 502", (&APIError{Status: 502}).Error())
	assert.Equal(t, "API error (409): busy", (&APIError{Status: 409, Message: "busy"}).Error())
}

func TestSetupClientTLS(t *testing.T) {
	cfg, err := setupClientTLS(Config{Insecure: true})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = setupClientTLS(Config{TLS: &TLSClientConfig{Enabled: true, CACert: "/nonexistent/ca.pem"}})
	assert.Error(t, err)
}

func TestClientAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	svc, err := auth.NewAuthService(auth.Config{
		JWTSecret: "k",
		Users:     []auth.User{{Username: "ops", PasswordHash: hash, Roles: []string{"operator"}}},
	})
	require.NoError(t, err)
	sup, err := supervisor.New(supervisor.Options{Spawner: spawn.NewFake(), Env: env.New()})
	require.NoError(t, err)
	ts := httptest.NewServer(server.NewRouter(sup, "/api").WithAuth(svc).Handler())
	t.Cleanup(func() {
		ts.Close()
		sup.Close()
	})
	ctx := context.Background()

	anon := New(Config{BaseURL: ts.URL + "/api"})
	_, err = anon.Count(ctx)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "Authentication required")
	assert.False(t, anon.IsReachable(ctx))

	basic := New(Config{BaseURL: ts.URL + "/api", Username: "ops", Password: "pw"})
	_, err = basic.StartChildren(ctx, ChildSpec{ID: "a", Path: "/bin/a"})
	require.NoError(t, err)
	err = basic.SetStrategy(ctx, "never")
	assert.True(t, IsUnauthorized(err))

	_, err = anon.Login(ctx, "ops", "nope")
	assert.True(t, IsUnauthorized(err))
	res, err := anon.Login(ctx, "ops", "pw")
	require.NoError(t, err)
	require.NotNil(t, res.Token)
	assert.Equal(t, []string{"operator"}, res.Roles)
	n, err := anon.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tok := New(Config{BaseURL: ts.URL + "/api", Token: res.Token.Value})
	assert.True(t, tok.IsReachable(ctx))
}
