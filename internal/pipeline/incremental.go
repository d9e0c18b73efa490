package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/source"
	"github.com/theirongolddev/tburn/internal/store"
)

// CachedLoadResult extends LoadResult with cache metadata.
type CachedLoadResult struct {
	LoadResult
	CacheHits int
	Reparsed  int
	// CacheReset is set when cached results were dropped because the
	// attribution settings changed.
	CacheReset bool
	// Pruned counts cached files dropped because they no longer exist.
	Pruned int
}

// LoadWithCache discovers transcripts, diffs them against the cache by
// mtime and size, parses only changed files, and merges cached and fresh
// per-file totals. fingerprint identifies the attribution settings the
// cached results were computed under.
func LoadWithCache(dir string, opts LoadOptions, cache *store.Cache, fingerprint string) (*CachedLoadResult, error) {
	reset, err := cache.EnsureFingerprint(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("checking cache fingerprint: %w", err)
	}

	files, err := discover(dir, opts)
	if err != nil {
		return nil, err
	}

	result := &CachedLoadResult{
		LoadResult: LoadResult{
			TotalFiles:   len(files),
			ProjectCount: source.CountProjects(files),
		},
		CacheReset: reset,
	}
	tracked, err := cache.GetTrackedFiles()
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	if result.Pruned, err = prune(cache, tracked, files); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		result.Totals = model.Totals{}
		return result, nil
	}

	// Diff: partition into changed and unchanged
	var toReparse []source.DiscoveredFile
	var infos []os.FileInfo
	unchanged := make(map[string]struct{})

	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			continue
		}
		cached, ok := tracked[f.Path]
		if ok && cached.MtimeNs == info.ModTime().UnixNano() && cached.SizeBytes == info.Size() {
			unchanged[f.Path] = struct{}{}
		} else {
			toReparse = append(toReparse, f)
			infos = append(infos, info)
		}
	}

	result.CacheHits = len(unchanged)
	result.Reparsed = len(toReparse)

	var merged []source.ParseResult
	if len(unchanged) > 0 {
		cached, err := cache.LoadResults()
		if err != nil {
			return nil, fmt.Errorf("loading cached results: %w", err)
		}
		for _, r := range cached {
			if _, ok := unchanged[r.Path]; ok {
				merged = append(merged, r)
			}
		}
	}

	fresh := parseAll(toReparse, opts, result.CacheHits, result.TotalFiles)
	for i, pr := range fresh {
		if pr.Err == nil {
			_ = cache.SaveResult(toReparse[i], pr, infos[i].ModTime().UnixNano(), infos[i].Size())
		}
	}
	merged = append(merged, fresh...)

	result.collect(merged)
	return result, nil
}

// prune drops cached files that are gone from disk. Tracked files merely
// filtered out of this run are kept.
func prune(cache *store.Cache, tracked map[string]store.FileInfo, files []source.DiscoveredFile) (int, error) {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f.Path] = struct{}{}
	}

	n := 0
	for path := range tracked {
		if _, ok := seen[path]; ok {
			continue
		}
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := cache.DeleteFile(path); err != nil {
			return n, fmt.Errorf("pruning cache: %w", err)
		}
		delete(tracked, path)
		n++
	}
	return n, nil
}

// Fingerprint hashes the settings that change attribution results.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "tburn")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "tburn")
}

// CachePath returns the full path to the cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "attribution.db")
}
