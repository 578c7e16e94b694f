package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// sanitizeBase normalizes a mount prefix to "" or "/x/y" without a trailing slash.
func sanitizeBase(bp string) string {
	bp = strings.Trim(strings.TrimSpace(bp), "/")
	if bp == "" {
		return ""
	}
	return "/" + bp
}

// isSafeName reports whether a child id is usable as a log file stem:
// [A-Za-z0-9._-] only, never containing "..".
func isSafeName(id string) bool {
	if id == "" || strings.Contains(id, "..") {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
			return false
		case r == '.', r == '_', r == '-':
			return false
		}
		return true
	}) < 0
}

const maxBody = 1 << 20

// bindSpecs reads either a single raw spec object or an array of them.
// On failure it writes a 400 and returns false.
func bindSpecs(c *gin.Context) ([]map[string]any, bool) {
	b, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "read body: " + err.Error()})
		return nil, false
	}
	b = bytes.TrimSpace(b)
	var raws []map[string]any
	switch {
	case len(b) == 0:
		err = errEmptyBody
	case b[0] == '{':
		var one map[string]any
		if err = json.Unmarshal(b, &one); err == nil {
			raws = []map[string]any{one}
		}
	default:
		err = json.Unmarshal(b, &raws)
	}
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return nil, false
	}
	return raws, true
}

var errEmptyBody = errors.New("empty body")

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
