// Package transport streams text deltas from the coaching backend over
// server-sent events.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/auth"
	"github.com/spigell/aspiro/internal/logger"
)

const (
	contentType = "application/json"
	eventStream = "text/event-stream"
	userAgent   = "spigell/aspiro"
)

// Client performs streaming POST requests against the backend.
type Client struct {
	baseURL    string
	userAgent  string
	tokens     auth.TokenProvider
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the URL relative endpoints are resolved against.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(strings.TrimSpace(u), "/") }
}

// WithHTTPClient sets a custom HTTP client. Streams are long-lived, so the
// client should not carry a total request timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logger.OrNop(l) }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// New creates a Client that authenticates with tokens.
func New(tokens auth.TokenProvider, opts ...Option) *Client {
	c := &Client{
		tokens:     tokens,
		userAgent:  userAgent,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream POSTs body as JSON to endpoint and reads the SSE response, calling
// onChunk for every content delta in arrival order. It returns the full
// accumulated text.
//
// Cancelling ctx aborts the request; an aborted stream returns an empty
// string and a nil error.
func (c *Client) Stream(ctx context.Context, endpoint string, body any, onChunk ChunkFunc) (string, error) {
	token, err := c.token(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil
		}
		return "", err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request body: %w", err)
	}

	target := c.resolve(endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", &NetworkError{Op: "build request", Err: err}
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", eventStream)
	req.Header.Set("User-Agent", c.userAgent)

	log := c.logger.With(zap.String(logger.FieldEndpoint, target))
	log.Debug("make stream request", zap.Int("body_bytes", len(payload)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("stream aborted before response")
			return "", nil
		}
		return "", &NetworkError{Op: "send request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", newHTTPError(resp)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return "", &NetworkError{Op: "read response", Err: errors.New("response has no body")}
	}

	reader := newFrameReader(log, onChunk)
	if err := reader.consume(ctx, resp.Body); err != nil {
		if ctx.Err() != nil {
			log.Debug("stream aborted", zap.Int("deltas", reader.tokens))
			return "", nil
		}
		return "", &NetworkError{Op: "read response", Err: err}
	}

	if ctx.Err() != nil {
		log.Debug("stream aborted after completion")
		return "", nil
	}

	text := reader.text()
	if reader.tokens == 0 || text == "" {
		return "", ErrEmptyContent
	}

	log.Debug("stream completed",
		zap.Int("deltas", reader.tokens),
		zap.Int("length", utf8.RuneCountInString(text)),
	)

	return text, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", ErrAuth
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}

	if strings.TrimSpace(token) == "" {
		return "", ErrAuth
	}

	return token, nil
}

func (c *Client) resolve(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if u, err := url.Parse(endpoint); err == nil && u.IsAbs() {
		return endpoint
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}
