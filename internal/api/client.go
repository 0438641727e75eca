package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// TokenSource supplies the bearer token attached to authenticated requests.
type TokenSource interface {
	AccessToken() (string, bool)
}

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	Debug     bool
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8000",
		Timeout:   30 * time.Second,
	}
}

// Client talks to the CRM REST API. All authenticated requests carry the
// bearer token from the token source; a 401 on any of them fires the
// unauthorized hook before the error is returned.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized func()
}

// New creates an API client with the given configuration.
func New(config Config, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(config.ServerURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		tokens: tokens,
	}
}

// SetOnUnauthorized registers the hook fired on every 401 response. The
// session manager uses it to route all unauthorized responses through the
// same fail-closed path as a bootstrap failure.
func (c *Client) SetOnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// get issues an authenticated GET, retrying once on a transport failure.
// Only NetworkError is retryable; everything else is permanent.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, http.MethodGet, path, query, nil, out, true)
		if err == nil {
			return struct{}{}, nil
		}
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(2),
	)
	return err
}

// do performs a single request and maps the response onto the error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, authed bool) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if token, ok := c.tokens.AccessToken(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("method", method).
			Str("path", path).
			Dur("duration", time.Since(started)).
			Msg("api call failed")
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("api call")

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	case resp.StatusCode >= 500:
		return &NetworkError{Err: fmt.Errorf("server error: %s", resp.Status)}
	case resp.StatusCode == http.StatusBadRequest:
		return parseValidationError(resp.Body)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return nil
}

// parseValidationError decodes a DRF-style 400 body: either a map of field
// names to message lists or a single error string.
func parseValidationError(body io.Reader) error {
	var raw map[string]any
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return &ValidationError{}
	}

	fields := make(map[string][]string, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			fields[name] = []string{v}
		case []any:
			msgs := make([]string, 0, len(v))
			for _, m := range v {
				if s, ok := m.(string); ok {
					msgs = append(msgs, s)
				}
			}
			fields[name] = msgs
		}
	}

	return &ValidationError{Fields: fields}
}
