package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tburn/internal/attribution"
	"github.com/theirongolddev/tburn/internal/cli"
	"github.com/theirongolddev/tburn/internal/config"
	"github.com/theirongolddev/tburn/internal/pipeline"
	"github.com/theirongolddev/tburn/internal/store"
	"github.com/theirongolddev/tburn/internal/ticket"
)

var (
	flagConfig             string
	flagTranscripts        string
	flagProject            string
	flagNoCache            bool
	flagQuiet              bool
	flagVerbose            bool
	flagNoSubagents        bool
	flagRequireTranscripts bool
)

// appCfg is loaded once before any command runs.
var appCfg config.Config

// logger receives warnings from library packages; progress output goes
// straight to stderr.
var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// errNoTranscripts is returned when --require-transcripts is set and the
// transcripts directory is missing.
var errNoTranscripts = errors.New("transcripts directory not found")

var rootCmd = &cobra.Command{
	Use:   "tburn",
	Short: "Ticket-attributed AI token usage",
	Long: "Attribute AI coding assistant token usage to tickets and join it with " +
		"merged pull requests and story points, week by week.",
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
	RunE:              runWeekly,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default $XDG_CONFIG_HOME/tburn/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&flagTranscripts, "transcripts", "t", "", "Transcripts directory (default ~/.claude/projects)")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "Filter to transcript project (substring match)")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Skip SQLite cache, reparse everything")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output and warnings")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug details")
	rootCmd.PersistentFlags().BoolVar(&flagNoSubagents, "no-subagents", false, "Exclude subagent transcripts")
	rootCmd.PersistentFlags().BoolVar(&flagRequireTranscripts, "require-transcripts", false, "Fail when the transcripts directory is missing")
	registerReportFlags(rootCmd)
}

// initApp loads the config and configures logging for every command.
func initApp(_ *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	switch {
	case flagVerbose:
		level = slog.LevelDebug
	case flagQuiet:
		level = slog.LevelError
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flagConfig != "" {
		config.SetPath(flagConfig)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	appCfg = cfg
	return nil
}

func transcriptsDir() string {
	if flagTranscripts != "" {
		return flagTranscripts
	}
	return config.TranscriptsDir(appCfg)
}

func extractor() *ticket.Extractor {
	return ticket.NewExtractor(appCfg.Tickets.ProjectKeys, ticket.DefaultCorrections().With(appCfg.Tickets.Corrections))
}

func loadOptions() pipeline.LoadOptions {
	opts := pipeline.LoadOptions{
		IncludeSubagents: appCfg.General.IncludeSubagents && !flagNoSubagents,
		Project:          flagProject,
		Attribution: []attribution.Option{
			attribution.WithExtractor(extractor()),
			attribution.WithCommands(appCfg.Tickets.WorkflowCommands...),
		},
		Pricing: config.NewPricing(appCfg.Pricing),
	}
	if !flagQuiet {
		opts.Progress = func(current, total int) {
			if current%100 == 0 || current == total {
				fmt.Fprintf(os.Stderr, "\r  Parsing %s", cli.RenderProgressBar(current, total, 20))
			}
		}
	}
	return opts
}

// fingerprint identifies the settings baked into cached per-file results.
func fingerprint() string {
	keys := append([]string(nil), appCfg.Tickets.ProjectKeys...)
	sort.Strings(keys)
	commands := append([]string(nil), appCfg.Tickets.WorkflowCommands...)
	sort.Strings(commands)
	corrections, _ := json.Marshal(appCfg.Tickets.Corrections)
	pricing, _ := json.Marshal(appCfg.Pricing)
	return pipeline.Fingerprint(
		strings.ToUpper(strings.Join(keys, ",")),
		strings.ToLower(strings.Join(commands, ",")),
		string(corrections),
		string(pricing),
	)
}

// loadData is the shared transcript loading path used by all commands.
// Uses the SQLite cache when available for fast subsequent runs.
func loadData() (*pipeline.LoadResult, error) {
	dir := transcriptsDir()
	if _, err := os.Stat(dir); err != nil && flagRequireTranscripts {
		return nil, fmt.Errorf("%w: %s", errNoTranscripts, dir)
	}

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Scanning %s\n", dir)
	}
	opts := loadOptions()

	if !flagNoCache {
		cache, err := store.Open(pipeline.CachePath())
		if err != nil {
			logger.Warn("cache unavailable, doing full parse", "err", err)
		} else {
			defer func() { _ = cache.Close() }()

			cr, err := pipeline.LoadWithCache(dir, opts, cache, fingerprint())
			if err == nil {
				if !flagQuiet && cr.TotalFiles > 0 {
					fmt.Fprintf(os.Stderr, "\r  %s cached + %s reparsed (%d projects)    \n",
						cli.FormatNumber(int64(cr.CacheHits)),
						cli.FormatNumber(int64(cr.Reparsed)),
						cr.ProjectCount,
					)
				}
				if cr.CacheReset {
					logger.Info("attribution settings changed, cache rebuilt")
				}
				reportLoad(&cr.LoadResult)
				return &cr.LoadResult, nil
			}
			logger.Warn("cache error, falling back to full parse", "err", err)
		}
	}

	result, err := pipeline.Load(dir, opts)
	if err != nil {
		return nil, err
	}
	if !flagQuiet && result.TotalFiles > 0 {
		fmt.Fprintf(os.Stderr, "\r  Parsed %s transcripts across %d projects    \n",
			cli.FormatNumber(int64(result.ParsedFiles)),
			result.ProjectCount,
		)
	}
	reportLoad(result)
	return result, nil
}

func reportLoad(r *pipeline.LoadResult) {
	if r.FileErrors > 0 {
		logger.Warn("transcripts could not be read", "files", r.FileErrors)
	}
	if r.ParseErrors > 0 {
		logger.Debug("malformed transcript lines skipped", "lines", r.ParseErrors)
	}
}
