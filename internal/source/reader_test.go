package source

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEvents_DrainsOversizeLines(t *testing.T) {
	orig := maxLineSize
	maxLineSize = 64
	t.Cleanup(func() { maxLineSize = orig })

	input := strings.Join([]string{
		`{"type":"user","sessionId":"s1"}`,
		strings.Repeat("y", 1000),
		`{"type":"user","sessionId":"s2"}`,
		`{"type":"user","sessionId":"` + strings.Repeat("z", 300) + `"}`,
	}, "\n")

	var sessions []string
	parseErrors, err := ReadEvents(strings.NewReader(input), func(ev Event) {
		sessions = append(sessions, ev.SessionID)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, parseErrors)
	assert.Equal(t, []string{"s1", "s2"}, sessions)
}

func TestReadEvents_LastLineWithoutNewline(t *testing.T) {
	var n int
	parseErrors, err := ReadEvents(strings.NewReader("\n{\"type\":\"user\"}\nnot json\n{\"type\":\"summary\"}"), func(Event) { n++ })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, parseErrors)
}
