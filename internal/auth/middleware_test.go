package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*gin.Engine, *AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := newTestService(t)
	m := NewMiddleware(s)
	g := gin.New()
	g.POST("/login", m.GinLogin())
	api := g.Group("", m.GinAuth(), m.GinRequirePermission("children"))
	api.GET("/children", func(c *gin.Context) { c.String(http.StatusOK, "list") })
	api.POST("/children", func(c *gin.Context) { c.String(http.StatusCreated, "start") })
	return g, s
}

func serve(g *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	return rec
}

func TestGinAuthRequiresCredentials(t *testing.T) {
	g, _ := newTestEngine(t)
	rec := serve(g, httptest.NewRequest(http.MethodGet, "/children", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	req := httptest.NewRequest(http.MethodGet, "/children", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, serve(g, req).Code)
}

func TestGinAuthBasic(t *testing.T) {
	g, _ := newTestEngine(t)
	req := httptest.NewRequest(http.MethodGet, "/children", nil)
	req.SetBasicAuth("watcher", "s3cret")
	rec := serve(g, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "list", rec.Body.String())

	// viewer cannot write
	req = httptest.NewRequest(http.MethodPost, "/children", nil)
	req.SetBasicAuth("watcher", "s3cret")
	assert.Equal(t, http.StatusForbidden, serve(g, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/children", nil)
	req.SetBasicAuth("admin", "s3cret")
	assert.Equal(t, http.StatusCreated, serve(g, req).Code)
}

func TestGinLoginThenBearer(t *testing.T) {
	g, _ := newTestEngine(t)
	body, _ := json.Marshal(LoginRequest{ClientID: "deployer", ClientSecret: "abc"})
	rec := serve(g, httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res AuthResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Token)

	req := httptest.NewRequest(http.MethodPost, "/children", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token.Value)
	assert.Equal(t, http.StatusCreated, serve(g, req).Code)
}

func TestGinLoginRejects(t *testing.T) {
	g, _ := newTestEngine(t)
	cases := []struct {
		body string
		code int
	}{
		{`{`, http.StatusBadRequest},
		{`{"method":"jwt","token":"x"}`, http.StatusBadRequest},
		{`{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		rec := serve(g, httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(tc.body)))
		assert.Equal(t, tc.code, rec.Code, tc.body)
	}
}

func TestGinRequirePermissionWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(newTestService(t))
	g := gin.New()
	g.GET("/x", m.GinRequirePermission("children"), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(g, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}
