package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/everlast/internal/history"
)

// Options selects the cluster and index. Credentials, when set, are sent
// as basic auth.
type Options struct {
	BaseURL  string
	Index    string
	Username string
	Password string
	Timeout  time.Duration
}

// Sink indexes one document per lifecycle event with POST {index}/_doc.
type Sink struct {
	client *http.Client
	url    string
	user   string
	pass   string
}

func New(o Options) *Sink {
	timeout := o.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Sink{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(o.BaseURL, "/") + "/" + strings.Trim(o.Index, "/") + "/_doc",
		user:   o.Username,
		pass:   o.Password,
	}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.user != "" {
		req.SetBasicAuth(s.user, s.pass)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(detail) > 0 {
		return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
}
