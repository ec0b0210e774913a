// Package api is the REST/SSE client for the tether server. It executes
// named mutation operations, pages the transcript backward, and streams
// the session event feed.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/logging"
	"github.com/joss/tether/internal/mutation"
)

// HTTPClient interface for HTTP requests (enables testing)
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Verify http.Client implements HTTPClient
var _ HTTPClient = (*http.Client)(nil)

// Verify Client satisfies the coordinator's operation executor
var _ mutation.Operations = (*Client)(nil)

// Client talks to one tether server. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	client  HTTPClient
	log     *logging.Logger
}

func NewClient(baseURL, token string) *Client {
	return NewClientWithHTTP(baseURL, token, &http.Client{Timeout: 30 * time.Second})
}

func NewClientWithHTTP(baseURL, token string, hc HTTPClient) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  hc,
		log:     logging.New("api"),
	}
}

type operationRequest struct {
	OperationName string `json:"operationName"`
	Params        any    `json:"params"`
}

type operationResponse struct {
	Result    json.RawMessage `json:"result"`
	ErrorKind string          `json:"errorKind"`
	Message   string          `json:"message"`
}

// Do executes a named server operation and returns its raw result.
// Failures are classified into the domain error taxonomy so callers can
// branch with errors.Is.
func (c *Client) Do(ctx context.Context, op string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(operationRequest{OperationName: op, Params: params})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %s params: %v", domain.ErrValidation, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/operations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.prepare(req)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", domain.ErrNetwork, op, err)
	}

	var opResp operationResponse
	if err := json.Unmarshal(raw, &opResp); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", domain.ErrNetwork, op, err)
	}

	if resp.StatusCode != http.StatusOK || opResp.ErrorKind != "" {
		return nil, classify(resp.StatusCode, opResp.ErrorKind, opResp.Message, op)
	}

	c.log.TimedEvent("operation", started, map[string]any{"op": op})
	return opResp.Result, nil
}

type pageResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
	Cursor   string           `json:"cursor"`
}

// Messages fetches one transcript page for a session. Results arrive in
// chronological order regardless of the requested sort.
func (c *Client) Messages(ctx context.Context, sessionID string, pr domain.PageRequest) (domain.Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(pr.Limit))
	if pr.Before != "" {
		q.Set("beforeCursor", pr.Before)
	}
	order := "desc"
	if pr.Ascending {
		order = "asc"
	}
	q.Set("sortOrder", order)

	endpoint := fmt.Sprintf("%s/api/sessions/%s/messages?%s", c.baseURL, url.PathEscape(sessionID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return domain.Page{}, fmt.Errorf("create request: %w", err)
	}
	c.prepare(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Page{}, transportError(ctx, "messages", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return domain.Page{}, classify(resp.StatusCode, "", string(raw), "messages")
	}

	var pr2 pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr2); err != nil {
		return domain.Page{}, fmt.Errorf("%w: decode page: %v", domain.ErrNetwork, err)
	}
	return domain.Page{Messages: pr2.Messages, HasMore: pr2.HasMore, Cursor: pr2.Cursor}, nil
}

type diffResponse struct {
	Diff string `json:"diff"`
}

// Diff fetches the rendered working-tree diff for a session.
func (c *Client) Diff(ctx context.Context, sessionID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/sessions/%s/diff", c.baseURL, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.prepare(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportError(ctx, "diff", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", classify(resp.StatusCode, "", string(raw), "diff")
	}

	var dr diffResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return "", fmt.Errorf("%w: decode diff: %v", domain.ErrNetwork, err)
	}
	return dr.Diff, nil
}

// Sessions lists the sessions the server knows about.
func (c *Client) Sessions(ctx context.Context) ([]domain.Session, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.prepare(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, "sessions", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, classify(resp.StatusCode, "", string(raw), "sessions")
	}

	var sessions []domain.Session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("%w: decode sessions: %v", domain.ErrNetwork, err)
	}
	return sessions, nil
}

// Events opens the SSE feed for a session. The channel closes when the
// stream ends or ctx is cancelled; the caller owns reconnection.
func (c *Client) Events(ctx context.Context, sessionID string) (<-chan domain.Event, error) {
	endpoint := fmt.Sprintf("%s/api/sessions/%s/events", c.baseURL, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.prepare(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, "events", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, classify(resp.StatusCode, "", string(raw), "events")
	}

	events := make(chan domain.Event, 100)
	go c.streamEvents(ctx, resp.Body, events)
	return events, nil
}

func (c *Client) streamEvents(ctx context.Context, body io.ReadCloser, events chan<- domain.Event) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line == "event: ping" {
			continue
		}
		if len(line) <= 6 || line[:6] != "data: " {
			continue
		}

		var ev domain.Event
		if err := json.Unmarshal([]byte(line[6:]), &ev); err != nil {
			c.log.Debug("dropped malformed event", map[string]any{"line": line[6:]})
			continue
		}
		if ev.ID == "" {
			ev.ID = ulid.Make().String()
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.log.Warn("event stream closed", nil, err)
	}
}

func (c *Client) prepare(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// transportError maps a failed round trip onto the error taxonomy. A
// deadline on the request context means the operation may still have
// happened server-side.
func transportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrNetwork, op, err)
}

// classify maps a server response onto the error taxonomy. The server's
// errorKind wins over the HTTP status when both are present.
func classify(status int, kind, message, op string) error {
	var sentinel error
	switch kind {
	case "conflict":
		sentinel = domain.ErrConflict
	case "validation":
		sentinel = domain.ErrValidation
	case "timeout":
		sentinel = domain.ErrTimeout
	case "network":
		sentinel = domain.ErrNetwork
	default:
		switch {
		case status == http.StatusConflict:
			sentinel = domain.ErrConflict
		case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
			sentinel = domain.ErrValidation
		case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
			sentinel = domain.ErrTimeout
		default:
			sentinel = domain.ErrNetwork
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("%w: %s: %s", sentinel, op, message)
}
