// Package jira reads story point estimates from JIRA Cloud.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/theirongolddev/tburn/internal/ratelimit"
	"github.com/theirongolddev/tburn/internal/ticket"
)

const (
	requestTimeout = 30 * time.Second
	maxBodySize    = 8 << 20 // 8 MB
	batchSize      = 50
)

var (
	// ErrUnauthorized indicates the email/token pair was rejected.
	ErrUnauthorized = errors.New("jira: unauthorized (check email and API token)")
	// ErrRateLimited indicates the API rate limit was hit.
	ErrRateLimited = errors.New("jira: rate limited")
)

// Client looks up story points by issue key.
type Client struct {
	baseURL string
	email   string
	token   string
	field   string
	http    *http.Client
	gate    *ratelimit.Gate
}

// Option configures a Client.
type Option func(*Client)

// WithGate spaces out requests.
func WithGate(g *ratelimit.Gate) Option {
	return func(c *Client) { c.gate = g }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a client for a JIRA Cloud site. field is the custom
// field that holds story points (e.g. customfield_10016).
// Returns nil if baseURL or field is empty.
func NewClient(baseURL, email, token, field string, opts ...Option) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || field == "" {
		return nil
	}
	c := &Client{
		baseURL: baseURL,
		email:   strings.TrimSpace(email),
		token:   strings.TrimSpace(token),
		field:   field,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	JQL           string   `json:"jql"`
	Fields        []string `json:"fields"`
	MaxResults    int      `json:"maxResults"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

type searchResponse struct {
	Issues []struct {
		Key    string                     `json:"key"`
		Fields map[string]json.RawMessage `json:"fields"`
	} `json:"issues"`
	NextPageToken string `json:"nextPageToken"`
	IsLast        bool   `json:"isLast"`
}

// StoryPoints returns the estimate of every issue in ids that has one.
// Issues without an estimate are absent from the map.
func (c *Client) StoryPoints(ctx context.Context, ids []ticket.ID) (map[ticket.ID]float64, error) {
	out := make(map[ticket.ID]float64, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		if err := c.fetchBatch(ctx, ids[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Client) fetchBatch(ctx context.Context, ids []ticket.ID, out map[ticket.ID]float64) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	req := searchRequest{
		JQL:        "key in (" + strings.Join(keys, ",") + ")",
		Fields:     []string{c.field},
		MaxResults: batchSize,
	}

	for {
		var resp searchResponse
		if err := c.post(ctx, "/rest/api/3/search/jql", req, &resp); err != nil {
			return err
		}
		for _, issue := range resp.Issues {
			id, ok := ticket.Parse(issue.Key)
			if !ok {
				continue
			}
			if sp, ok := parsePoints(issue.Fields[c.field]); ok {
				out[id] = sp
			}
		}
		if resp.IsLast || resp.NextPageToken == "" {
			return nil
		}
		req.NextPageToken = resp.NextPageToken
	}
}

// parsePoints accepts a JSON number or numeric string; null means no estimate.
func parsePoints(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, f >= 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && v >= 0 {
			return v, true
		}
	}
	return 0, false
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if err := c.gate.Wait(ctx); err != nil {
		return fmt.Errorf("jira: waiting for rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("jira: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("jira: creating request: %w", err)
	}
	if c.email != "" || c.token != "" {
		req.SetBasicAuth(c.email, c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "github.com/theirongolddev/tburn/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jira: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("jira: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("jira: reading response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("jira: parsing response: %w", err)
	}
	return nil
}
