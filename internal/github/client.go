// Package github fetches merged pull requests from the GitHub GraphQL API.
package github

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

	"github.com/theirongolddev/tburn/internal/ratelimit"
)

const (
	defaultBaseURL = "https://api.github.com"
	requestTimeout = 30 * time.Second
	maxBodySize    = 16 << 20 // 16 MB
	pageSize       = 100
)

var (
	// ErrUnauthorized indicates the token is missing, expired or lacks scope.
	ErrUnauthorized = errors.New("github: unauthorized (token missing, expired or lacking repo scope)")
	// ErrRateLimited indicates the API rate limit was hit.
	ErrRateLimited = errors.New("github: rate limited")
	// ErrInvalidRepo indicates the repository is not in owner/name form.
	ErrInvalidRepo = errors.New("github: repo must be owner/name")
)

const searchQuery = `query($q: String!, $first: Int!, $after: String) {
  search(query: $q, type: ISSUE, first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on PullRequest {
        number title body state createdAt mergedAt headRefName additions deletions
        author { login }
      }
    }
  }
}`

// Client lists merged pull requests for one repository.
type Client struct {
	token   string
	repo    string
	baseURL string
	http    *http.Client
	gate    *ratelimit.Gate
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithGate spaces out requests.
func WithGate(g *ratelimit.Gate) Option {
	return func(c *Client) { c.gate = g }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a client for repo ("owner/name").
func NewClient(token, repo string, opts ...Option) (*Client, error) {
	repo = strings.TrimSpace(repo)
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepo, repo)
	}
	c := &Client{
		token:   strings.TrimSpace(token),
		repo:    repo,
		baseURL: defaultBaseURL,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Repo returns the owner/name this client reads from.
func (c *Client) Repo() string { return c.repo }

// MergedPullRequests returns the pull requests merged between since and
// until (inclusive dates), following pagination.
func (c *Client) MergedPullRequests(ctx context.Context, since, until time.Time) ([]PullRequest, error) {
	q := fmt.Sprintf("repo:%s is:pr is:merged merged:%s..%s",
		c.repo, since.Format(time.DateOnly), until.Format(time.DateOnly))

	var (
		out   []PullRequest
		after *string
	)
	for {
		vars := map[string]any{"q": q, "first": pageSize, "after": after}
		var resp searchResponse
		if err := c.post(ctx, graphQLRequest{Query: searchQuery, Variables: vars}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Errors) > 0 {
			if resp.Errors[0].Type == "RATE_LIMITED" {
				return nil, ErrRateLimited
			}
			return nil, fmt.Errorf("github: graphql: %s", resp.Errors[0].Message)
		}

		for _, n := range resp.Data.Search.Nodes {
			if n.Number == 0 {
				continue
			}
			if pr := n.toPullRequest(); pr.Merged() {
				out = append(out, pr)
			}
		}

		page := resp.Data.Search.PageInfo
		if !page.HasNextPage || page.EndCursor == "" {
			return out, nil
		}
		cursor := page.EndCursor
		after = &cursor
	}
}

// post sends one GraphQL request and decodes the response into out.
func (c *Client) post(ctx context.Context, body graphQLRequest, out any) error {
	if err := c.gate.Wait(ctx); err != nil {
		return fmt.Errorf("github: waiting for rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("github: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("github: creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "github.com/theirongolddev/tburn/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("github: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return ErrRateLimited
	case resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("github: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("github: reading response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("github: parsing response: %w", err)
	}
	return nil
}
