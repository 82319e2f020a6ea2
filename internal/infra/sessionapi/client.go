package sessionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"quiz-status-gateway/internal/app"
	"quiz-status-gateway/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// Client talks to the REST backend that owns quiz sessions.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     hclog.Logger

	initialInterval time.Duration
	maxInterval     time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithBackoff sets the first and the largest wait between attempts.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.initialInterval = initial
		c.maxInterval = max
	}
}

func WithLogger(logger hclog.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// NewClient creates a client targeting baseURL (e.g. "https://api.example.com/students").
func NewClient(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:         baseURL,
		token:           token,
		client:          &http.Client{Timeout: timeout},
		log:             hclog.NewNullLogger(),
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx answer from the session API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("session api: status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("session api: status %d", e.Code)
}

func (e *StatusError) Unwrap() error {
	return domain.ErrRemoteRejected
}

type statusRequest struct {
	Status domain.SessionStatus `json:"status"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// UpdateStatusWithRetry sends PATCH /quiz-sessions/{id}/status, retrying
// transport errors and 5xx answers up to retryCount more times with
// exponential backoff. 4xx answers are not retried. A rejection by the API is
// reported through the outcome; transport and context failures as an error.
func (c *Client) UpdateStatusWithRetry(ctx context.Context, sessionID int, status domain.SessionStatus, retryCount int) (domain.UpdateOutcome, error) {
	if !app.IsValidStatus(string(status)) {
		return domain.UpdateOutcome{}, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	if retryCount < 0 {
		retryCount = 0
	}
	body, err := json.Marshal(statusRequest{Status: status})
	if err != nil {
		return domain.UpdateOutcome{}, fmt.Errorf("encode status: %w", err)
	}

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(retryCount)), ctx)
	err = backoff.RetryNotify(func() error {
		attempt++
		err := c.patchStatus(ctx, sessionID, body)
		var se *StatusError
		if errors.As(err, &se) && se.Code < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.log.Debug("retrying status update",
			"session_id", sessionID,
			"status", status,
			"attempt", attempt,
			"wait", wait,
			"error", err)
	})
	if err == nil {
		return domain.UpdateOutcome{Success: true}, nil
	}

	var se *StatusError
	if errors.As(err, &se) {
		return domain.UpdateOutcome{Success: false, Error: se.Error()}, nil
	}
	return domain.UpdateOutcome{}, fmt.Errorf("update session %d status after %d attempts: %w", sessionID, attempt, err)
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval
	b.MaxElapsedTime = 0
	return b
}

func (c *Client) patchStatus(ctx context.Context, sessionID int, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, app.StatusURL(c.baseURL, sessionID), bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Code: resp.StatusCode, Message: errorMessage(raw)}
}

func errorMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		if eb.Message != "" {
			return eb.Message
		}
		return eb.Error
	}
	return string(bytes.TrimSpace(raw))
}
