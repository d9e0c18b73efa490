package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/tburn/internal/attribution"
	"github.com/theirongolddev/tburn/internal/config"
	"github.com/theirongolddev/tburn/internal/ticket"
)

// writeSession creates a temp JSONL file and returns a DiscoveredFile for it.
func writeSession(t *testing.T, lines ...string) DiscoveredFile {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return DiscoveredFile{
		Path:      path,
		SessionID: "test-session",
		Project:   "test-project",
	}
}

func TestParseFile_WorkflowOverridesBranch(t *testing.T) {
	df := writeSession(t,
		`{"type":"user","timestamp":"2025-06-01T10:00:00Z","gitBranch":"feature/VIBE-100","message":{"role":"user","content":"hi"}}`,
		`{"type":"user","timestamp":"2025-06-01T10:01:00Z","gitBranch":"feature/VIBE-100","message":{"role":"user","content":"<command-name>/work</command-name>\n<command-args>VIBE-200</command-args>"}}`,
		`{"type":"assistant","timestamp":"2025-06-01T10:02:00Z","gitBranch":"feature/VIBE-100","message":{"id":"msg1","model":"claude-sonnet-4-5","usage":{"input_tokens":10,"output_tokens":5}}}`,
	)

	result := ParseFile(df)
	require.NoError(t, result.Err)

	require.Contains(t, result.Totals, ticket.ID("VIBE-200"))
	assert.Equal(t, int64(15), result.Totals["VIBE-200"].Tokens.Total)
	assert.NotContains(t, result.Totals, ticket.ID("VIBE-100"))
	assert.Equal(t, 2, result.UserMessages)
	assert.Equal(t, 1, result.APICalls)
}

func TestParseFile_BranchAttribution(t *testing.T) {
	df := writeSession(t,
		`{"type":"assistant","timestamp":"2025-06-01T10:00:00Z","message":{"id":"m0","usage":{"input_tokens":1}}}`,
		`{"type":"assistant","timestamp":"2025-06-01T10:01:00Z","gitBranch":"vibe-516-typo","message":{"id":"m1","usage":{"input_tokens":100,"cache_read_input_tokens":50}}}`,
		`{"type":"assistant","timestamp":"2025-06-01T10:02:00Z","gitBranch":"feature/VIBE-7","message":{"id":"m2","usage":{"output_tokens":20}}}`,
	)

	result := ParseFile(df)
	require.NoError(t, result.Err)

	assert.Equal(t, int64(1), result.Totals[ticket.Unattributed].Tokens.Total)
	assert.Equal(t, int64(150), result.Totals["VIBE-216"].Tokens.Total)
	assert.Equal(t, int64(50), result.Totals["VIBE-216"].Tokens.CacheRead)
	assert.Equal(t, int64(20), result.Totals["VIBE-7"].Tokens.Output)
}

func TestParseFile_AssistantDedup(t *testing.T) {
	// Two entries with same message ID: second should win.
	df := writeSession(t,
		`{"type":"assistant","timestamp":"2025-06-01T10:00:00Z","gitBranch":"VIBE-1","message":{"id":"msg1","model":"claude-sonnet-4-6-20250514","usage":{"input_tokens":100,"output_tokens":50}}}`,
		`{"type":"assistant","timestamp":"2025-06-01T10:00:01Z","gitBranch":"VIBE-1","message":{"id":"msg1","model":"claude-sonnet-4-6-20250514","usage":{"input_tokens":200,"output_tokens":80}}}`,
	)

	result := ParseFile(df)
	require.NoError(t, result.Err)

	assert.Equal(t, 1, result.APICalls)
	assert.Equal(t, int64(200), result.Totals["VIBE-1"].Tokens.Input)
	assert.Equal(t, int64(80), result.Totals["VIBE-1"].Tokens.Output)
	assert.True(t, result.Totals["VIBE-1"].EstimatedCost.IsPositive())
}

func TestParseFile_TimeRange(t *testing.T) {
	df := writeSession(t,
		`{"type":"user","timestamp":"2025-06-01T08:00:00Z"}`,
		`{"type":"user","timestamp":"2025-06-01T12:00:00Z"}`,
		`{"type":"user","timestamp":"2025-06-01T10:00:00Z"}`,
	)

	result := ParseFile(df)
	require.NoError(t, result.Err)

	assert.True(t, result.StartTime.Equal(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)))
	assert.True(t, result.EndTime.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
}

func TestParseFile_EmptyFile(t *testing.T) {
	result := ParseFile(writeSession(t))
	require.NoError(t, result.Err)
	assert.Zero(t, result.UserMessages)
	assert.Zero(t, result.APICalls)
	assert.Empty(t, result.Totals)
}

func TestParseFile_MalformedLinesDoNotChangeState(t *testing.T) {
	df := writeSession(t,
		`not json at all`,
		`{"type":"user","timestamp":"2025-06-01T10:00:00Z","gitBranch":"VIBE-1"}`,
		`{"type":"user","gitBranch":"VIBE-2","broken json`,
		`{"type":"assistant","message":{"id":"m1","usage":{"input_tokens":3}}}`,
	)

	result := ParseFile(df)
	require.NoError(t, result.Err)

	assert.Equal(t, 2, result.ParseErrors)
	assert.Equal(t, 1, result.UserMessages)
	assert.Equal(t, int64(3), result.Totals["VIBE-1"].Tokens.Input)
}

func TestParseFile_CacheTokens(t *testing.T) {
	df := writeSession(t,
		`{"type":"assistant","timestamp":"2025-06-01T10:00:00Z","message":{"id":"msg1","model":"claude-sonnet-4-6","usage":{"input_tokens":100,"output_tokens":50,"cache_read_input_tokens":500,"cache_creation":{"ephemeral_5m_input_tokens":200,"ephemeral_1h_input_tokens":300}}}}`,
	)

	result := ParseFile(df)
	require.NoError(t, result.Err)

	tok := result.Totals[ticket.Unattributed].Tokens
	assert.Equal(t, int64(500), tok.CacheRead)
	assert.Equal(t, int64(500), tok.CacheCreation)
	assert.Equal(t, int64(1150), tok.Total)
}

func TestParseFile_CoercesBadUsage(t *testing.T) {
	df := writeSession(t,
		`{"type":"assistant","message":{"id":"m1","usage":{"input_tokens":-10,"output_tokens":"7","reasoning_tokens":"lots"}}}`,
		`{"type":"assistant","message":{"id":"m2","usage":{"output_tokens":1,"output_tokens_details":{"reasoning_tokens":4}}}}`,
	)

	result := ParseFile(df)
	require.NoError(t, result.Err)

	tok := result.Totals[ticket.Unattributed].Tokens
	assert.Equal(t, int64(0), tok.Input)
	assert.Equal(t, int64(8), tok.Output)
	assert.Equal(t, int64(4), tok.Reasoning)
	assert.Zero(t, result.ParseErrors)
}

func TestParseFile_Compaction(t *testing.T) {
	df := writeSession(t,
		`{"type":"summary","summary":"Earlier work","leafUuid":"x"}`,
		`{"type":"system","subtype":"compact_boundary","timestamp":"2025-06-01T10:00:00Z"}`,
		`{"type":"system","subtype":"turn_duration","timestamp":"2025-06-01T10:00:00Z"}`,
	)

	result := ParseFile(df)
	require.NoError(t, result.Err)
	assert.Equal(t, 2, result.Compactions)
}

func TestParseFile_StateIsFileScoped(t *testing.T) {
	first := writeSession(t,
		`{"type":"user","message":{"content":"/work VIBE-9"}}`,
		`{"type":"assistant","message":{"id":"a","usage":{"input_tokens":1}}}`,
	)
	second := writeSession(t,
		`{"type":"assistant","message":{"id":"b","usage":{"input_tokens":2}}}`,
	)

	r1 := ParseFile(first)
	r2 := ParseFile(second)

	assert.Equal(t, int64(1), r1.Totals["VIBE-9"].Tokens.Input)
	assert.NotContains(t, r2.Totals, ticket.ID("VIBE-9"))
	assert.Equal(t, int64(2), r2.Totals[ticket.Unattributed].Tokens.Input)
}

func TestParseFile_StructuredContent(t *testing.T) {
	df := writeSession(t,
		`{"type":"user","message":{"content":[{"type":"tool_result","content":"x"},{"type":"text","text":"/ship VIBE-33 now"}]}}`,
		`{"type":"assistant","message":{"id":"a","usage":{"output_tokens":4}}}`,
	)

	result := ParseFile(df, WithAttribution(attribution.WithCommands("ship")))
	require.NoError(t, result.Err)
	assert.Equal(t, int64(4), result.Totals["VIBE-33"].Tokens.Output)
}

func TestParseFile_OversizeLineKeepsState(t *testing.T) {
	orig := maxLineSize
	maxLineSize = 1024
	t.Cleanup(func() { maxLineSize = orig })

	huge := `{"type":"user","message":{"content":"` + strings.Repeat("x", 4*maxLineSize) + `"}}`
	df := writeSession(t,
		`{"type":"assistant","gitBranch":"VIBE-1","message":{"id":"a","usage":{"input_tokens":10,"output_tokens":5}}}`,
		huge,
		`{"type":"assistant","gitBranch":"VIBE-1","message":{"id":"b","usage":{"input_tokens":10,"output_tokens":5}}}`,
	)

	result := ParseFile(df)
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.ParseErrors)
	assert.Equal(t, 2, result.APICalls)
	assert.Equal(t, int64(30), result.Totals["VIBE-1"].Tokens.Total)
}

func TestParseFile_PricingOverride(t *testing.T) {
	df := writeSession(t,
		`{"type":"assistant","gitBranch":"VIBE-2","message":{"id":"a","model":"in-house","usage":{"input_tokens":100000}}}`,
	)

	assert.True(t, ParseFile(df).Totals["VIBE-2"].EstimatedCost.IsZero())

	in := 10.0
	prices := config.NewPricing(config.PricingOverrides{Overrides: map[string]config.ModelPricingOverride{
		"in-house": {InputPerMTok: &in},
	}})
	cost := ParseFile(df, WithPricing(prices)).Totals["VIBE-2"].EstimatedCost
	assert.True(t, cost.Equal(decimal.NewFromInt(1)), "got %s", cost)
}

func TestParseFile_MissingFile(t *testing.T) {
	result := ParseFile(DiscoveredFile{Path: filepath.Join(t.TempDir(), "nope.jsonl")})
	assert.Error(t, result.Err)
}

func TestExtractTopLevelType(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"user", `{"type":"user","foo":"bar"}`, "user"},
		{"assistant", `{"type":"assistant","message":{}}`, "assistant"},
		{"system", `{"type": "system","subtype":"turn_duration"}`, "system"},
		{"summary", `{"type":"summary","summary":"x"}`, "summary"},
		{"nested type ignored", `{"data":{"type":"progress"},"type":"user"}`, "user"},
		{"unknown type", `{"type":"progress","data":{}}`, ""},
		{"no type field", `{"message":"hello"}`, ""},
		{"empty", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractTopLevelType([]byte(tt.input)))
		})
	}
}

// FuzzExtractTopLevelType checks that the byte-level router never panics on
// arbitrary input, since it processes untrusted files.
func FuzzExtractTopLevelType(f *testing.F) {
	f.Add([]byte(`{"type":"user","timestamp":"2025-06-01T10:00:00Z"}`))
	f.Add([]byte(`{"type":"assistant","message":{"id":"x","usage":{}}}`))
	f.Add([]byte(`{"type":"system","subtype":"compact_boundary"}`))
	f.Add([]byte(`{"data":{"type":"nested"},"type":"user"}`))
	f.Add([]byte(`not json`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"type":null}`))
	f.Add([]byte(`{"type":123}`))
	f.Add([]byte(``))
	f.Add([]byte(`{"type":"user`))

	f.Fuzz(func(t *testing.T, data []byte) {
		switch result := extractTopLevelType(data); result {
		case "", "user", "assistant", "system", "summary":
		default:
			t.Errorf("unexpected type %q from input %q", result, data)
		}
	})
}
