// Package indexer is the boundary to the event indexing service: a GraphQL
// query client, raw row decoding into typed events, and a websocket
// subscription for live events.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"circlepot/internal/address"
	"circlepot/internal/domain"
	"circlepot/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout  = 15 * time.Second
	DefaultPageSize = 1000
)

// ErrCircleNotFound is returned when the indexer has no summary for a circle.
var ErrCircleNotFound = errors.New("circle not found")

// Client queries the indexer's GraphQL endpoint. Failed queries are not
// retried; callers work with whatever arrived.
type Client struct {
	endpoint string
	client   *http.Client
	pageSize int
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithPageSize sets the number of rows requested per page.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewClient creates a new indexer client.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// GraphQLError is an error reported in a GraphQL response body.
type GraphQLError struct {
	Message string `json:"message"`
}

func (e GraphQLError) Error() string {
	return "graphql: " + e.Message
}

// query posts one GraphQL operation and decodes its data into result.
func (c *Client) query(ctx context.Context, name, query string, vars map[string]any, result any) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordIndexerCall(name, time.Since(start).Seconds(), err)
	}()

	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var gql gqlResponse
	if err := json.Unmarshal(respBody, &gql); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if len(gql.Errors) > 0 {
		return gql.Errors[0]
	}
	if result != nil && gql.Data != nil {
		if err := json.Unmarshal(gql.Data, result); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}

// paginate pages through a circleEvents query. Rows fetched before a failing
// page are returned together with the error.
func (c *Client) paginate(ctx context.Context, name, query string, vars map[string]any) ([]RawEvent, error) {
	var all []RawEvent
	for skip := 0; ; skip += c.pageSize {
		pageVars := map[string]any{"first": c.pageSize, "skip": skip}
		for k, v := range vars {
			pageVars[k] = v
		}

		var page struct {
			CircleEvents []RawEvent `json:"circleEvents"`
		}
		if err := c.query(ctx, name, query, pageVars, &page); err != nil {
			return all, fmt.Errorf("%s (skip %d): %w", name, skip, err)
		}
		all = append(all, page.CircleEvents...)
		if len(page.CircleEvents) < c.pageSize {
			return all, nil
		}
	}
}

// CircleEvents returns every event row of one circle.
func (c *Client) CircleEvents(ctx context.Context, circleID string) ([]RawEvent, error) {
	return c.paginate(ctx, "circleEvents", circleEventsQuery, map[string]any{"circleId": circleID})
}

// UserEvents returns every event row whose subject is user, across circles.
func (c *Client) UserEvents(ctx context.Context, user string) ([]RawEvent, error) {
	addr, err := address.Normalize(user)
	if err != nil {
		return nil, fmt.Errorf("user events: %w", err)
	}
	return c.paginate(ctx, "userEvents", userEventsQuery, map[string]any{"user": addr})
}

// Circle returns the summary of one circle.
func (c *Client) Circle(ctx context.Context, circleID string) (*domain.Circle, error) {
	var data struct {
		Circle *RawCircle `json:"circle"`
	}
	if err := c.query(ctx, "circle", circleQuery, map[string]any{"id": circleID}, &data); err != nil {
		return nil, fmt.Errorf("circle %s: %w", circleID, err)
	}
	if data.Circle == nil || strings.TrimSpace(data.Circle.ID) == "" {
		return nil, fmt.Errorf("circle %s: %w", circleID, ErrCircleNotFound)
	}

	circle, err := DecodeCircle(*data.Circle)
	if err != nil {
		return nil, err
	}
	return &circle, nil
}
