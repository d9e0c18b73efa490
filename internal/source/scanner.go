package source

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const transcriptExt = ".jsonl"

// workspaceRoots are directory names that usually sit just above a
// checkout, so the project name is whatever follows the last of them.
var workspaceRoots = map[string]struct{}{
	"projects": {}, "repos": {}, "src": {},
	"code": {}, "workspace": {}, "dev": {},
}

// ScanDir lists every transcript under the transcripts directory. Each
// top-level sub-directory is one project, named after the working copy it
// was recorded in. A missing directory yields no files.
//
// Recognised layouts:
//
//	<project>/<session>.jsonl
//	<project>/<session>/subagents/<agent>.jsonl
func ScanDir(root string) ([]DiscoveredFile, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	var files []DiscoveredFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(d.Name()) != transcriptExt {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if df, ok := classify(root, path); ok {
			files = append(files, df)
		}
		return nil
	})
	return files, err
}

// classify maps a transcript path to its project and session. Files
// directly under root belong to no project and are ignored.
func classify(root, path string) (DiscoveredFile, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return DiscoveredFile{}, false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		return DiscoveredFile{}, false
	}

	df := DiscoveredFile{
		Path:       path,
		Project:    projectName(parts[0]),
		ProjectDir: parts[0],
	}
	base := strings.TrimSuffix(parts[len(parts)-1], transcriptExt)
	if len(parts) >= 4 && parts[2] == "subagents" {
		// Agent ids repeat across sessions.
		df.IsSubagent = true
		df.ParentSession = parts[1]
		df.SessionID = parts[1] + "/" + base
	} else {
		df.SessionID = base
	}
	return df, true
}

// projectName turns a directory name that encodes the working copy's
// absolute path ("/" replaced by "-") into the checkout name:
//
//	"-home-me-projects-billing-api" -> "billing-api"
//
// Without a known workspace root the last non-empty segment is used.
func projectName(dir string) string {
	parts := strings.Split(dir, "-")
	for i := len(parts) - 2; i >= 0; i-- {
		if _, ok := workspaceRoots[strings.ToLower(parts[i])]; !ok {
			continue
		}
		if name := strings.Join(parts[i+1:], "-"); name != "" {
			return name
		}
	}
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return dir
}

// FilterSubagents drops subagent transcripts unless include is set.
func FilterSubagents(files []DiscoveredFile, include bool) []DiscoveredFile {
	if include {
		return files
	}
	out := make([]DiscoveredFile, 0, len(files))
	for _, f := range files {
		if !f.IsSubagent {
			out = append(out, f)
		}
	}
	return out
}

// CountProjects returns the number of distinct projects in files.
func CountProjects(files []DiscoveredFile) int {
	seen := make(map[string]struct{})
	for _, f := range files {
		seen[f.Project] = struct{}{}
	}
	return len(seen)
}
