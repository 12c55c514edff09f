package govpulsesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"govpulse/internal/insights"
	"govpulse/internal/signal"
)

// Client is a minimal govpulse HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Query carries per-request threshold and scope overrides. Nil fields
// defer to the server's configuration.
type Query struct {
	Scope       string
	RiskDays    *int
	BreachDays  *int
	WindowDays  *int
	IncludeIdle *bool
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Scope != "" {
		v.Set("scope", q.Scope)
	}
	if q.RiskDays != nil {
		v.Set("risk_days", strconv.Itoa(*q.RiskDays))
	}
	if q.BreachDays != nil {
		v.Set("breach_days", strconv.Itoa(*q.BreachDays))
	}
	if q.WindowDays != nil {
		v.Set("window_days", strconv.Itoa(*q.WindowDays))
	}
	if q.IncludeIdle != nil {
		v.Set("include_idle", strconv.FormatBool(*q.IncludeIdle))
	}
	return v
}

// ProjectSignals is the project tile.
type ProjectSignals struct {
	GeneratedAt string              `json:"generated_at"`
	Items       []signal.ProjectRow `json:"items"`
	Errors      map[string]string   `json:"errors,omitempty"`
}

// BottleneckSignals is the bottleneck tile.
type BottleneckSignals struct {
	GeneratedAt string                 `json:"generated_at"`
	Items       []signal.BottleneckRow `json:"items"`
	Errors      map[string]string      `json:"errors,omitempty"`
}

// PortfolioSignals is the portfolio tile.
type PortfolioSignals struct {
	GeneratedAt   string                 `json:"generated_at"`
	Portfolio     signal.PortfolioRollup `json:"portfolio"`
	Narrative     []string               `json:"narrative"`
	Disagreements []signal.Disagreement  `json:"disagreements,omitempty"`
	Errors        map[string]string      `json:"errors,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Starved reports whether the server could read no signal source at all.
func (e *APIError) Starved() bool {
	return e.Code == "signal_starvation"
}

// Report returns the full governance report.
func (c *Client) Report(ctx context.Context, q Query) (insights.Report, error) {
	var resp insights.Report
	err := c.do(ctx, http.MethodGet, withQuery("v0/signals", q.values()), nil, &resp)
	return resp, err
}

// Projects returns project health rows, worst first.
func (c *Client) Projects(ctx context.Context, q Query) (ProjectSignals, error) {
	var resp ProjectSignals
	err := c.do(ctx, http.MethodGet, withQuery("v0/signals/projects", q.values()), nil, &resp)
	return resp, err
}

// Bottlenecks returns actors holding pending items, busiest first.
func (c *Client) Bottlenecks(ctx context.Context, q Query) (BottleneckSignals, error) {
	var resp BottleneckSignals
	err := c.do(ctx, http.MethodGet, withQuery("v0/signals/bottlenecks", q.values()), nil, &resp)
	return resp, err
}

// Portfolio returns the portfolio rollup and narrative.
func (c *Client) Portfolio(ctx context.Context, q Query) (PortfolioSignals, error) {
	var resp PortfolioSignals
	err := c.do(ctx, http.MethodGet, withQuery("v0/signals/portfolio", q.values()), nil, &resp)
	return resp, err
}

// ComparePortfolio returns the rollup with deltas against prior.
func (c *Client) ComparePortfolio(ctx context.Context, q Query, prior signal.PortfolioRollup) (PortfolioSignals, error) {
	var resp PortfolioSignals
	body := map[string]any{"prior": prior}
	err := c.do(ctx, http.MethodPost, withQuery("v0/signals/portfolio/compare", q.values()), body, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	v := url.Values{}
	if projectID != "" {
		v.Set("project_id", projectID)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("v0/events", v), nil, &resp)
	return resp, err
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
