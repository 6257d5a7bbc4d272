package sonar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// maxBodyBytes bounds how much of a remote reply is retained for error
// extraction. Error envelopes are small; this guards against a misbehaving
// endpoint streaming an unbounded body.
const maxBodyBytes = 4 << 20

// Client talks to a Sonar instance. Every call carries basic auth credentials
// and the configured per-call timeout.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   *slog.Logger
}

type Config struct {
	URI      string
	Username string
	Password string
	Timeout  time.Duration
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if u, err := url.ParseRequestURI(cfg.URI); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid sonar URI %q", cfg.URI)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("sonar credentials are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.URI, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With("component", "sonar"),
	}, nil
}

// Response is a settled remote reply. Body retains the raw payload so failure
// reasons can be extracted from the error envelope.
type Response struct {
	StatusCode int
	Body       []byte
}

// Data decodes the success envelope {"data": ...} into v.
func (r *Response) Data(v any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("response has no data field")
	}
	return json.Unmarshal(env.Data, v)
}

// Do executes one HTTP call against the API. An error is returned only for
// transport-level failures (no usable response); every received response is
// returned to the caller regardless of status code.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF8")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body for %s %s: %w", method, path, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

type paginator struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

type pagedEnvelope struct {
	Data      json.RawMessage `json:"data"`
	Paginator *paginator      `json:"paginator"`
}

// GetPaged walks every page of a paginated GET endpoint, invoking visit with
// each page's raw data payload. Endpoints without a paginator yield one page.
func (c *Client) GetPaged(ctx context.Context, path string, visit func(data json.RawMessage) error) error {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	for page := 1; ; page++ {
		resp, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("%s%spage=%d", path, sep, page), nil)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &APIError{StatusCode: resp.StatusCode, Message: FlattenMessage(resp.Body)}
		}

		var env pagedEnvelope
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return fmt.Errorf("decode page %d of %s: %w", page, path, err)
		}
		if err := visit(env.Data); err != nil {
			return err
		}

		if env.Paginator == nil || env.Paginator.CurrentPage >= env.Paginator.TotalPages {
			return nil
		}
	}
}

// GetData fetches a single-page endpoint and decodes its data envelope into v.
func (c *Client) GetData(ctx context.Context, path string, v any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: FlattenMessage(resp.Body)}
	}
	return resp.Data(v)
}
