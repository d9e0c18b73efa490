package pipeline

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/tburn/internal/attribution"
	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/source"
	"github.com/theirongolddev/tburn/internal/store"
	"github.com/theirongolddev/tburn/internal/ticket"
)

func writeTranscript(t *testing.T, dir, rel string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func assistant(id string, input int) string {
	return `{"type":"assistant","message":{"id":"` + id + `","usage":{"input_tokens":` + strconv.Itoa(input) + `}}}`
}

func sampleTree(t *testing.T) string {
	dir := t.TempDir()
	writeTranscript(t, dir, "-home-me-projects-app/s1.jsonl",
		`{"type":"user","gitBranch":"feature/VIBE-1","message":{"content":"go"}}`,
		assistant("a", 10),
		`{"type":"user","message":{"content":"/work VIBE-2"}}`,
		assistant("b", 20),
	)
	writeTranscript(t, dir, "-home-me-projects-app/s2.jsonl",
		`{"type":"user","gitBranch":"VIBE-1-more"}`,
		assistant("a", 5),
		`garbage`,
	)
	writeTranscript(t, dir, "-home-me-projects-app/s1/subagents/agent-1.jsonl",
		assistant("c", 100),
	)
	writeTranscript(t, dir, "-home-me-projects-other/s3.jsonl",
		assistant("d", 1),
	)
	return dir
}

func TestLoad_MergesAcrossFiles(t *testing.T) {
	dir := sampleTree(t)

	res, err := Load(dir, LoadOptions{IncludeSubagents: true})
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalFiles)
	assert.Equal(t, 4, res.ParsedFiles)
	assert.Equal(t, 2, res.ProjectCount)
	assert.Equal(t, 1, res.ParseErrors)
	assert.Equal(t, int64(15), res.Totals.Tokens("VIBE-1").Total)
	assert.Equal(t, int64(20), res.Totals.Tokens("VIBE-2").Total)
	assert.Equal(t, int64(101), res.Totals.Tokens(ticket.Unattributed).Total)
	assert.Len(t, res.Totals["VIBE-1"].Sessions, 2)
}

func TestLoad_FiltersSubagentsAndProject(t *testing.T) {
	dir := sampleTree(t)

	res, err := Load(dir, LoadOptions{Project: "APP"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalFiles)
	assert.Zero(t, res.Totals.Tokens(ticket.Unattributed).Total)
}

func TestLoad_AttributionOptions(t *testing.T) {
	dir := sampleTree(t)

	res, err := Load(dir, LoadOptions{
		Attribution: []attribution.Option{attribution.WithCommands("ship")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(35), res.Totals.Tokens("VIBE-1").Total)
	assert.NotContains(t, res.Totals, ticket.ID("VIBE-2"))
}

func TestLoad_MissingDir(t *testing.T) {
	res, err := Load(filepath.Join(t.TempDir(), "none"), LoadOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.TotalFiles)
	assert.Empty(t, res.Totals)
}

func TestLoadWithCache_ReusesUnchangedFiles(t *testing.T) {
	dir := sampleTree(t)
	cache, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	opts := LoadOptions{IncludeSubagents: true}
	first, err := LoadWithCache(dir, opts, cache, "fp1")
	require.NoError(t, err)
	assert.Equal(t, 4, first.Reparsed)
	assert.Zero(t, first.CacheHits)

	second, err := LoadWithCache(dir, opts, cache, "fp1")
	require.NoError(t, err)
	assert.Equal(t, 4, second.CacheHits)
	assert.Zero(t, second.Reparsed)
	assert.Equal(t, first.Totals.Tokens("VIBE-1"), second.Totals.Tokens("VIBE-1"))
	assert.Equal(t, first.Totals.Tokens(ticket.Unattributed), second.Totals.Tokens(ticket.Unattributed))
	assert.Equal(t, first.ParseErrors, second.ParseErrors)

	// Touch one file: only it is reparsed.
	path := filepath.Join(dir, "-home-me-projects-other/s3.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(assistant("d", 2)+"\n"+assistant("e", 2)+"\n"), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	third, err := LoadWithCache(dir, opts, cache, "fp1")
	require.NoError(t, err)
	assert.Equal(t, 1, third.Reparsed)
	assert.Equal(t, int64(104), third.Totals.Tokens(ticket.Unattributed).Total)

	fourth, err := LoadWithCache(dir, opts, cache, "fp2")
	require.NoError(t, err)
	assert.True(t, fourth.CacheReset)
	assert.Equal(t, 4, fourth.Reparsed)
}

func TestLoadWithCache_PrunesDeletedFiles(t *testing.T) {
	dir := sampleTree(t)
	cache, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	_, err = LoadWithCache(dir, LoadOptions{IncludeSubagents: true}, cache, "fp")
	require.NoError(t, err)

	// Files filtered out of a run stay cached.
	filtered, err := LoadWithCache(dir, LoadOptions{Project: "other"}, cache, "fp")
	require.NoError(t, err)
	assert.Zero(t, filtered.Pruned)
	n, err := cache.FileCount()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, os.Remove(filepath.Join(dir, "-home-me-projects-other/s3.jsonl")))
	res, err := LoadWithCache(dir, LoadOptions{IncludeSubagents: true}, cache, "fp")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)
	assert.Equal(t, 3, res.CacheHits)
	n, err = cache.FileCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMergeAll_MatchesAnyGrouping(t *testing.T) {
	mk := func(id ticket.ID, n int64) source.ParseResult {
		tot := model.Totals{}
		tot.Add(id, model.Usage{InputTokens: n, OutputTokens: n}, string(id))
		return source.ParseResult{Totals: tot}
	}
	results := []source.ParseResult{mk("VIBE-1", 1), mk("VIBE-2", 2), mk("VIBE-1", 3), mk(ticket.Unattributed, 4)}

	all := MergeAll(results)
	split := MergeAll(results[:2])
	split.Merge(MergeAll(results[2:]))

	for _, id := range []ticket.ID{"VIBE-1", "VIBE-2", ticket.Unattributed} {
		assert.Equal(t, all.Tokens(id), split.Tokens(id))
	}
	assert.Equal(t, int64(8), all.Tokens("VIBE-1").Total)
	assert.Equal(t, int64(2), results[0].Totals.Tokens("VIBE-1").Total, "inputs untouched")
}

func TestSummarizeTickets(t *testing.T) {
	rows := SummarizeTickets(totalsOf(map[ticket.ID]int64{"VIBE-2": 5, "VIBE-1": 5, "VIBE-3": 50}))
	require.Len(t, rows, 3)
	assert.Equal(t, []ticket.ID{"VIBE-3", "VIBE-1", "VIBE-2"}, []ticket.ID{rows[0].Ticket, rows[1].Ticket, rows[2].Ticket})
	assert.Equal(t, 1, rows[0].Sessions)

	overall := Overall(totalsOf(map[ticket.ID]int64{"VIBE-2": 5, ticket.Unattributed: 6}))
	assert.Equal(t, int64(11), overall.Tokens.Total)
}

func TestFilterByTicketProject(t *testing.T) {
	in := totalsOf(map[ticket.ID]int64{"VIBE-1": 1, "OPS-2": 1, ticket.Unattributed: 1})
	out := FilterByTicketProject(in, "vibe")
	assert.Len(t, out, 2)
	assert.Contains(t, out, ticket.ID("VIBE-1"))
}
