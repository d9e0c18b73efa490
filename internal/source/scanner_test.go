package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanDir(t *testing.T) {
	root := t.TempDir()
	mk := func(rel string) {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte("{}\n"), 0o600))
	}
	mk("-Users-me-projects-webapp/abc.jsonl")
	mk("-Users-me-projects-webapp/abc/subagents/agent-1.jsonl")
	mk("-Users-me-projects-webapp/notes.json")
	mk("stray.jsonl")

	files, err := ScanDir(root)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byID := map[string]DiscoveredFile{}
	for _, f := range files {
		byID[f.SessionID] = f
	}
	assert.Equal(t, "webapp", byID["abc"].Project)
	assert.False(t, byID["abc"].IsSubagent)
	assert.True(t, byID["abc/agent-1"].IsSubagent)
	assert.Equal(t, "abc", byID["abc/agent-1"].ParentSession)

	assert.Len(t, FilterSubagents(files, false), 1)
	assert.Len(t, FilterSubagents(files, true), 2)
	assert.Equal(t, 1, CountProjects(files))
}

func TestScanDir_Missing(t *testing.T) {
	files, err := ScanDir(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestProjectName(t *testing.T) {
	for dir, want := range map[string]string{
		"-home-me-projects-billing-api": "billing-api",
		"-Users-me-Code-web":            "web",
		"-srv-checkouts-tool":           "tool",
		"plain":                         "plain",
		"-home-me-projects-":            "projects",
	} {
		assert.Equal(t, want, projectName(dir), dir)
	}
}
