package gemelnet

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
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/jetpo/fundsync/internal/domain"
)

// Paths are JSONPath expressions locating the envelope fields of a datastore_search response.
// An empty Success or Total path disables that check.
type Paths struct {
	Success string
	Records string
	Total   string
}

// DefaultPaths match the CKAN datastore_search envelope used by data.gov.il.
var DefaultPaths = Paths{
	Success: "$.success",
	Records: "$.result.records",
	Total:   "$.result.total",
}

// Options configures a Client.
type Options struct {
	BaseURL              string
	RecentResourceID     string
	HistoricalResourceID string
	PageSize             int
	MaxRetries           int
	BaseDelay            time.Duration
	Timeout              time.Duration
	Paths                Paths
}

// Client is an HTTP client for the CKAN datastore_search endpoint with retry on 429 and 5xx.
type Client struct {
	baseURL    string
	resources  map[domain.Mode]string
	httpClient *http.Client
	pageSize   int
	maxRetries int
	baseDelay  time.Duration
	paths      Paths
}

// NewClient creates a new feed client.
func NewClient(opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Paths.Records == "" {
		opts.Paths = DefaultPaths
	}
	return &Client{
		baseURL: opts.BaseURL,
		resources: map[domain.Mode]string{
			domain.ModeRecent:     opts.RecentResourceID,
			domain.ModeHistorical: opts.HistoricalResourceID,
		},
		httpClient: &http.Client{Timeout: opts.Timeout},
		pageSize:   opts.PageSize,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		paths:      opts.Paths,
	}
}

// fetchPage requests one page of records and decodes the envelope.
func (c *Client) fetchPage(ctx context.Context, mode domain.Mode, resourceID string, offset, limit int) (Page, error) {
	q := url.Values{}
	q.Set("resource_id", resourceID)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	body, err := c.get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return Page{}, &FetchError{Mode: mode, Offset: offset, Err: err}
	}

	page, err := c.decodePage(body)
	if err != nil {
		return Page{}, &FetchError{Mode: mode, Offset: offset, Err: err}
	}
	page.Mode = mode
	page.Offset = offset
	return page, nil
}

// decodePage extracts success flag, records and total from a response body.
func (c *Client) decodePage(body []byte) (Page, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Page{}, fmt.Errorf("parsing JSON: %w", err)
	}

	if c.paths.Success != "" {
		if v, err := jsonpath.Get(c.paths.Success, doc); err == nil {
			if ok, isBool := first(v).(bool); isBool && !ok {
				return Page{}, errors.New("feed reported success=false")
			}
		}
	}

	v, err := jsonpath.Get(c.paths.Records, doc)
	if err != nil {
		return Page{}, fmt.Errorf("locating records at %s: %w", c.paths.Records, err)
	}
	list, ok := v.([]any)
	if !ok {
		return Page{}, fmt.Errorf("records at %s: expected array, got %T", c.paths.Records, v)
	}

	records := make([]domain.RawRecord, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return Page{}, fmt.Errorf("record %d: expected object, got %T", i, item)
		}
		records = append(records, domain.RawRecord(obj))
	}

	page := Page{Records: records, Total: -1}
	if c.paths.Total != "" {
		if v, err := jsonpath.Get(c.paths.Total, doc); err == nil {
			if n, ok := toInt(first(v)); ok {
				page.Total = n
			}
		}
	}
	return page, nil
}

// get performs a GET request with exponential backoff on 429, 5xx and transport errors.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
			slog.Debug("feed: retrying request", "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("executing request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d (attempt %d/%d)", resp.StatusCode, attempt+1, c.maxRetries+1)
			continue
		}

		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 200))
	}

	return nil, lastErr
}

// first unwraps single-element answers; jsonpath may return either a value or a list of one.
func first(v any) any {
	if list, ok := v.([]any); ok && len(list) == 1 {
		return list[0]
	}
	return v
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
