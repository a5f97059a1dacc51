package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xipher-messenger/chatcore/internal/core"
	"github.com/xipher-messenger/chatcore/internal/metrics"
)

const (
	PathSendMessage = "/api/send-message"
	PathMessages    = "/api/messages"
	PathUploadFile  = "/api/upload-file"

	maxResponseBytes = 8 << 20
)

// Session supplies the token and identity for each request.
type Session interface {
	Token() (string, error)
	UserID() string
}

// Options configures the REST client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	MaxUploadBytes int64
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Unwrap maps the status onto the core error taxonomy.
func (e *StatusError) Unwrap() error {
	if e.Code >= 500 || e.Code == stdhttp.StatusTooManyRequests {
		return core.ErrTransientNetwork
	}
	if e.Code == stdhttp.StatusUnauthorized || e.Code == stdhttp.StatusForbidden {
		return core.ErrUnauthenticated
	}
	return core.ErrRejected
}

// Client talks to the chat REST API. Every call carries the session token
// in the JSON body, which is what the server expects.
type Client struct {
	baseURL    string
	hc         *stdhttp.Client
	session    Session
	maxRetries int
	retryBase  time.Duration
	maxUpload  int64
	log        *zerolog.Logger
	metrics    *metrics.Metrics
}

// NewClient builds a REST client.
func NewClient(opts Options, session Session, logger *zerolog.Logger, m *metrics.Metrics) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		hc:         &stdhttp.Client{Timeout: opts.Timeout},
		session:    session,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBaseDelay,
		maxUpload:  opts.MaxUploadBytes,
		log:        logger,
		metrics:    m,
	}
}

// post sends body as JSON and decodes the reply into out, retrying
// transient failures with exponential backoff.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBase * time.Duration(1<<uint(attempt-1))
			c.metrics.HTTPRetry(path)
			c.log.Debug().Err(lastErr).Str("path", path).Int("attempt", attempt).Dur("delay", delay).Msg("retrying request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.do(ctx, path, payload, out)
		if lastErr == nil || !core.IsTransient(lastErr) || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, path string, payload []byte, out any) error {
	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		c.metrics.HTTPRequest(path, 0)
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: post %s: %v", core.ErrTransientNetwork, path, err)
	}
	defer resp.Body.Close()
	c.metrics.HTTPRequest(path, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", core.ErrTransientNetwork, path, err)
	}
	if resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", core.ErrProtocolDecode, path, err)
	}
	return nil
}

func (c *Client) token() (string, error) {
	if c.session == nil {
		return "", core.ErrUnauthenticated
	}
	return c.session.Token()
}

func (c *Client) selfID() string {
	if c.session == nil {
		return ""
	}
	return c.session.UserID()
}
