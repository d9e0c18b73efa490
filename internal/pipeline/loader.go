package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/theirongolddev/tburn/internal/attribution"
	"github.com/theirongolddev/tburn/internal/config"
	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/source"
)

// LoadOptions controls transcript discovery and attribution.
type LoadOptions struct {
	IncludeSubagents bool
	// Project limits loading to transcripts whose project name contains
	// this substring.
	Project     string
	Attribution []attribution.Option
	// Pricing prices each call; the zero value uses the built-in table.
	Pricing  config.Pricing
	Progress ProgressFunc
}

// LoadResult holds the output of the full data loading pipeline.
type LoadResult struct {
	Totals       model.Totals
	Files        []source.ParseResult
	TotalFiles   int
	ParsedFiles  int
	ParseErrors  int
	FileErrors   int
	ProjectCount int
	UserMessages int
	APICalls     int
	Compactions  int
}

// ProgressFunc is called during loading to report progress.
// current is the number of files processed so far, total is the total count.
type ProgressFunc func(current, total int)

// Load discovers and parses all transcripts under dir and merges their
// per-ticket totals. It uses a bounded worker pool for parallel parsing.
func Load(dir string, opts LoadOptions) (*LoadResult, error) {
	files, err := discover(dir, opts)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{
		Totals:       model.Totals{},
		TotalFiles:   len(files),
		ProjectCount: source.CountProjects(files),
	}
	if len(files) == 0 {
		return result, nil
	}

	parsed := parseAll(files, opts, 0, len(files))
	result.collect(parsed)
	return result, nil
}

func discover(dir string, opts LoadOptions) ([]source.DiscoveredFile, error) {
	files, err := source.ScanDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	files = source.FilterSubagents(files, opts.IncludeSubagents)
	return FilterByProject(files, opts.Project), nil
}

// parseAll parses files with a bounded worker pool. Results keep the order
// of files. offset is added to progress counts.
func parseAll(files []source.DiscoveredFile, opts LoadOptions, offset, total int) []source.ParseResult {
	results := make([]source.ParseResult, len(files))
	if len(files) == 0 {
		return results
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	for i := range files {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	var processed atomic.Int64

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				results[idx] = source.ParseFile(files[idx],
					source.WithAttribution(opts.Attribution...),
					source.WithPricing(opts.Pricing),
				)
				n := processed.Add(1)
				if opts.Progress != nil {
					opts.Progress(int(n)+offset, total)
				}
			}
		}()
	}

	wg.Wait()
	return results
}

// collect merges parse results sequentially into r.
func (r *LoadResult) collect(results []source.ParseResult) {
	if r.Totals == nil {
		r.Totals = model.Totals{}
	}
	for _, pr := range results {
		if pr.Err != nil {
			r.FileErrors++
			continue
		}
		r.ParsedFiles++
		r.ParseErrors += pr.ParseErrors
		r.UserMessages += pr.UserMessages
		r.APICalls += pr.APICalls
		r.Compactions += pr.Compactions
		r.Totals.Merge(pr.Totals)
		r.Files = append(r.Files, pr)
	}
}
