package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxBodyBytes caps how much of a remote response is read.
const MaxBodyBytes = 4 << 20

// HTTPSource reads a JSON feed with GET.
type HTTPSource struct {
	SourceName string
	URL        string
	Client     *http.Client
	Header     http.Header
	// Timeout bounds this source alone; zero leaves it to ctx.
	Timeout time.Duration
}

func (s *HTTPSource) Name() string { return s.SourceName }

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vals := range s.Header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", MaxBodyBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if LooksLikeHTML(body) {
			return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrHTMLPayload)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// QueryFunc produces JSON-marshalable rows, usually from the record store.
type QueryFunc func(ctx context.Context) (any, error)

// QuerySource adapts an in-process query to a Source.
type QuerySource struct {
	SourceName string
	Query      QueryFunc
}

func (s QuerySource) Name() string { return s.SourceName }

func (s QuerySource) Fetch(ctx context.Context) ([]byte, error) {
	rows, err := s.Query(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rows)
}

// StaticSource returns a fixed body or error.
type StaticSource struct {
	SourceName string
	Body       []byte
	Err        error
}

func (s StaticSource) Name() string { return s.SourceName }

func (s StaticSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Body, nil
}
