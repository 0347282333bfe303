// Package search queries the participant lookup endpoint and tracks which
// query is allowed to update the screen.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/bridgestowork/bridges-forms/internal/logger"
)

// Contact is one participant returned by the lookup endpoint.
type Contact struct {
	ID        string `json:"contactId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Birthdate string `json:"birthdate,omitempty"` // YYYY-MM-DD, display only
}

// Query is a single lookup request.
type Query struct {
	Term        string
	Site        string
	ProgramType string
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search failed: status %d", e.Code)
}

// Client performs participant lookups.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource sends every request with the signed-in user's bearer token.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c.httpClient = &http.Client{
			Timeout:   c.httpClient.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: base},
		}
	}
}

// NewClient creates a client for the endpoint. Options apply in order.
func NewClient(endpoint string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL builds the request URL, omitting empty filters.
func (c *Client) URL(q Query) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing search endpoint: %w", err)
	}

	params := u.Query()
	params.Set("searchTerm", q.Term)
	if q.Site != "" {
		params.Set("site", q.Site)
	}
	if q.ProgramType != "" {
		params.Set("programType", q.ProgramType)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// Search issues one idempotent GET and returns the contacts in endpoint order.
func (c *Client) Search(ctx context.Context, q Query) ([]Contact, error) {
	target, err := c.URL(q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	logger.Debug("Participant search: term=%q site=%q programType=%q", q.Term, q.Site, q.ProgramType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var contacts []Contact
	if err := json.NewDecoder(resp.Body).Decode(&contacts); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}

	return contacts, nil
}
