package transport

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/domain"
)

const (
	streamingPath = "/api/chat/streaming"
	opOpenStream  = "open stream"
)

// Client opens streamed replies from the chat backend
type Client struct {
	baseURL string
	client  *http.Client
	opts    []Option
}

// NewClient creates a stream client. httpClient must not carry an overall
// Timeout, since replies are unbounded; idle time is bounded per fragment.
func NewClient(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		opts:    opts,
	}
}

// Open posts message as plain text and returns a Reader over the reply.
// The caller owns the Reader and must Close it if it stops reading early.
func (c *Client) Open(ctx context.Context, message string) (*Reader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamingPath, strings.NewReader(message))
	if err != nil {
		return nil, &domain.TransportError{Op: opOpenStream, Kind: domain.TransportConnect, Err: err}
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Accept", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: opOpenStream, Kind: domain.TransportConnect, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		discardBody(resp.Body)
		return nil, &domain.TransportError{Op: opOpenStream, Kind: domain.TransportStatus, Status: resp.StatusCode}
	}

	log.Debug().
		Str("component", "transport").
		Int("status", resp.StatusCode).
		Msg("stream opened")

	return NewReader(resp.Body, c.opts...), nil
}

// discardBody drains a little of an unwanted body so the connection can be
// reused, then closes it
func discardBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, io.LimitReader(body, 4096)); err != nil {
		log.Debug().Err(err).Str("component", "transport").Msg("failed to drain response body")
	}
	if err := body.Close(); err != nil {
		log.Debug().Err(err).Str("component", "transport").Msg("failed to close response body")
	}
}
