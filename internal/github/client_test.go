package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(number int, merged string) map[string]any {
	n := map[string]any{
		"number":      number,
		"title":       "VIBE-1 add thing",
		"state":       "MERGED",
		"createdAt":   "2025-02-03T09:00:00Z",
		"headRefName": "feature/VIBE-1",
		"additions":   10,
		"deletions":   4,
		"author":      map[string]any{"login": "dev"},
	}
	if merged != "" {
		n["mergedAt"] = merged
	}
	return n
}

func page(hasNext bool, cursor string, nodes ...map[string]any) map[string]any {
	list := make([]any, 0, len(nodes))
	for _, n := range nodes {
		list = append(list, n)
	}
	return map[string]any{"data": map[string]any{"search": map[string]any{
		"pageInfo": map[string]any{"hasNextPage": hasNext, "endCursor": cursor},
		"nodes":    list,
	}}}
}

func TestMergedPullRequests_Paginates(t *testing.T) {
	var queries []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graphql", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		queries = append(queries, req.Variables["q"].(string))

		if req.Variables["after"] == nil {
			_ = json.NewEncoder(w).Encode(page(true, "c1", node(1, "2025-02-04T10:00:00Z"), map[string]any{}))
			return
		}
		assert.Equal(t, "c1", req.Variables["after"])
		_ = json.NewEncoder(w).Encode(page(false, "", node(2, "2025-02-05T10:00:00Z"), node(3, "")))
	}))
	defer ts.Close()

	c, err := NewClient("tok", "acme/app", WithBaseURL(ts.URL))
	require.NoError(t, err)

	since := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	prs, err := c.MergedPullRequests(context.Background(), since, since.AddDate(0, 0, 6))
	require.NoError(t, err)

	require.Len(t, prs, 2)
	assert.Equal(t, 1, prs[0].Number)
	assert.Equal(t, "feature/VIBE-1", prs[0].HeadBranch)
	assert.Equal(t, "dev", prs[0].Author)
	assert.Equal(t, int64(14), prs[0].Additions+prs[0].Deletions)
	assert.Equal(t, 2, prs[1].Number)
	require.Len(t, queries, 2)
	assert.Equal(t, "repo:acme/app is:pr is:merged merged:2025-02-03..2025-02-09", queries[0])
}

func TestMergedPullRequests_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, nil, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, nil, ErrUnauthorized},
		{"secondary limit", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, ErrRateLimited},
		{"too many", http.StatusTooManyRequests, nil, ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			c, err := NewClient("", "acme/app", WithBaseURL(ts.URL))
			require.NoError(t, err)
			_, err = c.MergedPullRequests(context.Background(), time.Now(), time.Now())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMergedPullRequests_GraphQLError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"type":"NOT_FOUND","message":"no such repo"}]}`))
	}))
	defer ts.Close()

	c, err := NewClient("tok", "acme/app", WithBaseURL(ts.URL))
	require.NoError(t, err)
	_, err = c.MergedPullRequests(context.Background(), time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such repo")
}

func TestNewClient_InvalidRepo(t *testing.T) {
	for _, repo := range []string{"", "acme", "/app", "acme/", "a/b/c"} {
		_, err := NewClient("tok", repo)
		assert.ErrorIs(t, err, ErrInvalidRepo, repo)
	}
}
