package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeBase(t *testing.T) {
	for in, want := range map[string]string{
		"":             "",
		"/":            "",
		"  ":           "",
		"everlast":     "/everlast",
		"/everlast/":   "/everlast",
		" /ops/sup// ": "/ops/sup",
	} {
		assert.Equal(t, want, sanitizeBase(in), "base %q", in)
	}
}

func TestIsSafeName(t *testing.T) {
	for _, id := range []string{"w", "worker-1", "db_primary", "v1.2.3", "A-Z_09"} {
		assert.True(t, isSafeName(id), id)
	}
	for _, id := range []string{"", "..", "a..b", "../etc", "a/b", `a\b`, "with space", "star*", "ünï"} {
		assert.False(t, isSafeName(id), id)
	}
}

func bindVia(t *testing.T, body string) (*httptest.ResponseRecorder, []map[string]any, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/children", strings.NewReader(body))
	raws, ok := bindSpecs(c)
	return rec, raws, ok
}

func TestBindSpecs(t *testing.T) {
	_, raws, ok := bindVia(t, ` {"id":"a","command":"sleep 1"} `)
	require.True(t, ok)
	require.Len(t, raws, 1)
	assert.Equal(t, "a", raws[0]["id"])

	_, raws, ok = bindVia(t, `[{"id":"a"},{"id":"b"}]`)
	require.True(t, ok)
	assert.Len(t, raws, 2)

	for _, bad := range []string{"", "   ", "{", `"text"`, `[1,2]`} {
		rec, _, ok := bindVia(t, bad)
		assert.False(t, ok, bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Contains(t, rec.Body.String(), "invalid JSON", bad)
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	writeJSON(c, http.StatusConflict, errorResp{Error: "child exists"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"child exists"}`, rec.Body.String())
}
