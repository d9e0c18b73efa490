package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/source"
	"github.com/theirongolddev/tburn/internal/ticket"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache", "tburn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleResult(path string) source.ParseResult {
	totals := model.Totals{}
	tu := totals.Add("VIBE-1", model.Usage{InputTokens: 10, OutputTokens: 5, ReasoningTokens: 2}, "s1")
	tu.EstimatedCost = decimal.RequireFromString("0.000123")
	totals.Add(ticket.Unattributed, model.Usage{CacheReadTokens: 7}, "s1")
	return source.ParseResult{
		Path:         path,
		Totals:       totals,
		UserMessages: 3,
		APICalls:     2,
		Compactions:  1,
		ParseErrors:  4,
		StartTime:    time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestCache_SaveAndLoadResults(t *testing.T) {
	c := openTemp(t)
	df := source.DiscoveredFile{Path: "/t/a.jsonl", SessionID: "s1", Project: "app"}

	require.NoError(t, c.SaveResult(df, sampleResult(df.Path), 111, 222))

	tracked, err := c.GetTrackedFiles()
	require.NoError(t, err)
	assert.Equal(t, FileInfo{MtimeNs: 111, SizeBytes: 222}, tracked[df.Path])

	results, err := c.LoadResults()
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 3, r.UserMessages)
	assert.Equal(t, 1, r.Compactions)
	assert.Equal(t, 4, r.ParseErrors)
	assert.True(t, r.StartTime.Equal(time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)))

	vibe := r.Totals["VIBE-1"]
	require.NotNil(t, vibe)
	assert.Equal(t, int64(17), vibe.Tokens.Total)
	assert.Equal(t, 1, vibe.APICalls)
	assert.True(t, vibe.EstimatedCost.Equal(decimal.RequireFromString("0.000123")))
	assert.Contains(t, vibe.Sessions, "s1")
	assert.Equal(t, int64(7), r.Totals[ticket.Unattributed].Tokens.CacheRead)
}

func TestCache_SaveReplacesTickets(t *testing.T) {
	c := openTemp(t)
	df := source.DiscoveredFile{Path: "/t/a.jsonl", SessionID: "s1", Project: "app"}
	require.NoError(t, c.SaveResult(df, sampleResult(df.Path), 1, 1))

	updated := source.ParseResult{Path: df.Path, Totals: model.Totals{}}
	updated.Totals.Add("VIBE-2", model.Usage{InputTokens: 1}, "s1")
	require.NoError(t, c.SaveResult(df, updated, 2, 2))

	results, err := c.LoadResults()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Totals, 1)
	assert.Contains(t, results[0].Totals, ticket.ID("VIBE-2"))
}

func TestCache_DeleteFile(t *testing.T) {
	c := openTemp(t)
	df := source.DiscoveredFile{Path: "/t/a.jsonl", SessionID: "s1", Project: "app"}
	require.NoError(t, c.SaveResult(df, sampleResult(df.Path), 1, 1))
	require.NoError(t, c.DeleteFile(df.Path))

	n, err := c.FileCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCache_EnsureFingerprint(t *testing.T) {
	c := openTemp(t)

	reset, err := c.EnsureFingerprint("v1")
	require.NoError(t, err)
	assert.False(t, reset)

	df := source.DiscoveredFile{Path: "/t/a.jsonl", SessionID: "s1", Project: "app"}
	require.NoError(t, c.SaveResult(df, sampleResult(df.Path), 1, 1))

	reset, err = c.EnsureFingerprint("v1")
	require.NoError(t, err)
	assert.False(t, reset)
	n, _ := c.FileCount()
	assert.Equal(t, 1, n)

	reset, err = c.EnsureFingerprint("v2")
	require.NoError(t, err)
	assert.True(t, reset)
	n, _ = c.FileCount()
	assert.Zero(t, n)
}

func TestCache_KV(t *testing.T) {
	c := openTemp(t)

	_, _, ok, err := c.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.Put("k", []byte(`[1,2]`), at))

	v, got, ok, err := c.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`[1,2]`), v)
	assert.True(t, got.Equal(at))
}
