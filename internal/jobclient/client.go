// Package jobclient is the HTTP transport for the job and chat endpoints.
package jobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/docintel/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10

	// ChatQueryPath is the chat endpoint shared by all chat surfaces
	ChatQueryPath = "/chat/query"
)

// Config holds client configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tokens     TokenSource
	Logger     *slog.Logger
}

// Client submits jobs, polls their status and sends chat queries.
// It keeps no per-job state.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	logger  *slog.Logger
}

// NewClient creates a new Client
func NewClient(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme: %q", base.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = StaticToken("")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		tokens:  tokens,
		logger:  logger,
	}, nil
}

// Submit posts a job body to path and returns the initial snapshot, whose
// JobID is the identifier assigned by the backend.
func (c *Client) Submit(ctx context.Context, path string, body any) (domain.Snapshot, error) {
	env, err := c.do(ctx, "submit", http.MethodPost, path, body)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap, err := env.snapshot()
	if err != nil {
		return domain.Snapshot{}, domain.NewTransportError("submit", fmt.Errorf("failed to decode submit data: %w", err))
	}

	if snap.LowBalance {
		return domain.Snapshot{}, domain.ErrInsufficientBalance
	}
	if env.Status != statusSuccess || snap.Phase == domain.PhaseError {
		return domain.Snapshot{}, &domain.JobFailedError{Message: snap.Message}
	}
	if snap.JobID == "" {
		return domain.Snapshot{}, domain.NewTransportError("submit", errors.New("response carries no job id"))
	}

	return snap, nil
}

// Status fetches the current snapshot of a job. A business-level error is
// reported through the snapshot phase, not as an error value. The phase is
// returned as sent; adapters normalize it against their vocabulary.
func (c *Client) Status(ctx context.Context, path string) (domain.Snapshot, error) {
	env, err := c.do(ctx, "poll", http.MethodGet, path, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap, err := env.snapshot()
	if err != nil {
		return domain.Snapshot{}, domain.NewTransportError("poll", fmt.Errorf("failed to decode status data: %w", err))
	}

	return snap, nil
}

// Query sends one chat question for a session.
func (c *Client) Query(ctx context.Context, sessionID, query string) (domain.ChatReply, error) {
	env, err := c.do(ctx, "chat", http.MethodPost, ChatQueryPath, chatRequest{Query: query, SessionID: sessionID})
	if err != nil {
		return domain.ChatReply{}, err
	}

	var data chatData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return domain.ChatReply{}, domain.NewTransportError("chat", fmt.Errorf("failed to decode chat data: %w", err))
		}
	}

	reply := domain.ChatReply{
		Status:     domain.ChatStatus(env.Status),
		Answer:     data.Data,
		ChatID:     data.ChatID,
		Message:    data.Message,
		LowBalance: data.LowBalance || env.Status == statusLowBalance,
	}
	if reply.Message == "" {
		reply.Message = env.reason()
	}

	return reply, nil
}

// do performs one request and decodes the response envelope
func (c *Client) do(ctx context.Context, op, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bearer token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("Request failed",
			slog.String("op", op),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, domain.NewTransportError(op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Request completed",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrSessionExpired
	case resp.StatusCode == http.StatusNotFound:
		env := decodeErrorBody(resp.Body)
		if env != nil && env.Status == statusNotFound {
			return env, nil
		}
		return nil, domain.ErrJobNotFound
	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, domain.ErrInsufficientBalance
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return nil, domain.NewTransportError(op, fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		env := decodeErrorBody(resp.Body)
		if env != nil && env.reason() != "" {
			return nil, &domain.JobFailedError{Message: env.reason()}
		}
		return nil, &domain.JobFailedError{Message: fmt.Sprintf("request rejected with http %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, domain.NewTransportError(op, fmt.Errorf("failed to decode response: %w", err))
	}

	return &env, nil
}

func (c *Client) resolve(path string) string {
	return c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
}

// decodeErrorBody best-effort decodes an envelope from an error response
func decodeErrorBody(r io.Reader) *envelope {
	var env envelope
	if err := json.NewDecoder(io.LimitReader(r, maxErrorBody)).Decode(&env); err != nil {
		return nil
	}
	return &env
}
