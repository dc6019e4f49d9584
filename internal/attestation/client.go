// Package attestation fetches burn attestations from the attestation service.
package attestation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sony/gobreaker"
)

// HTTP client defaults.
const (
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBytes   = 1 << 20
)

var (
	// ErrNotReady means the service has no completed attestation yet.
	ErrNotReady = errors.New("attestation not ready")
	// ErrRejected means the service refused the request; retrying will not help.
	ErrRejected = errors.New("attestation request rejected")
)

// Attestation is a signed proof that a burn occurred.
type Attestation struct {
	Message     []byte `json:"message"`
	Attestation []byte `json:"attestation"`
	EventNonce  string `json:"eventNonce,omitempty"`
}

// Fetcher performs a single attestation lookup.
type Fetcher interface {
	Fetch(ctx context.Context, sourceDomain uint32, txHash string) (Attestation, error)
}

type messagesResponse struct {
	Messages []struct {
		Message     string `json:"message"`
		Attestation string `json:"attestation"`
		Status      string `json:"status"`
		EventNonce  string `json:"eventNonce"`
	} `json:"messages"`
}

// Client talks to the attestation service over HTTP behind a circuit breaker.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

var _ Fetcher = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithBreakerSettings replaces the default circuit breaker.
func WithBreakerSettings(s gobreaker.Settings) ClientOption {
	return func(cl *Client) {
		if s.IsSuccessful == nil {
			s.IsSuccessful = healthy
		}
		cl.breaker = gobreaker.NewCircuitBreaker(s)
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "attestation",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: healthy,
		}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch looks up the attestation for txHash burned on sourceDomain. It
// returns ErrNotReady when the service has nothing complete yet.
func (c *Client) Fetch(ctx context.Context, sourceDomain uint32, txHash string) (Attestation, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, sourceDomain, txHash)
	})
	if err != nil {
		return Attestation{}, err
	}
	return out.(Attestation), nil
}

// healthy keeps answers that prove the service is up out of the breaker's
// failure count.
func healthy(err error) bool {
	return err == nil || errors.Is(err, ErrNotReady) || errors.Is(err, ErrRejected)
}

func (c *Client) fetch(ctx context.Context, sourceDomain uint32, txHash string) (Attestation, error) {
	u := fmt.Sprintf("%s/v2/messages/%d?transactionHash=%s", c.baseURL, sourceDomain, url.QueryEscape(txHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Attestation{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Attestation{}, fmt.Errorf("attestation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Attestation{}, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Attestation{}, ErrNotReady
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Attestation{}, fmt.Errorf("attestation service returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return Attestation{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return Attestation{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var mr messagesResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return Attestation{}, fmt.Errorf("decoding response: %w", err)
	}
	for _, m := range mr.Messages {
		if m.Status != "complete" || !strings.HasPrefix(m.Attestation, "0x") {
			continue
		}
		msg, err := hexutil.Decode(m.Message)
		if err != nil {
			return Attestation{}, fmt.Errorf("decoding message: %w", err)
		}
		att, err := hexutil.Decode(m.Attestation)
		if err != nil {
			return Attestation{}, fmt.Errorf("decoding attestation: %w", err)
		}
		if len(att) == 0 {
			continue
		}
		return Attestation{Message: msg, Attestation: att, EventNonce: m.EventNonce}, nil
	}
	return Attestation{}, ErrNotReady
}
