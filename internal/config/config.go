// Package config loads and saves tburn's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/theirongolddev/tburn/internal/model"
)

// Config holds all tburn configuration.
type Config struct {
	General GeneralConfig    `toml:"general"`
	Tickets TicketsConfig    `toml:"tickets"`
	GitHub  GitHubConfig     `toml:"github"`
	JIRA    JIRAConfig       `toml:"jira"`
	Exports ExportsConfig    `toml:"exports"`
	Weeks   []WeekConfig     `toml:"weeks"`
	Pricing PricingOverrides `toml:"pricing"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	TranscriptsDir   string `toml:"transcripts_dir,omitempty"`
	Timezone         string `toml:"timezone,omitempty"`
	IncludeSubagents bool   `toml:"include_subagents"`
}

// TicketsConfig controls ticket extraction and attribution.
type TicketsConfig struct {
	// ProjectKeys limits extraction to these prefixes (e.g. "VIBE"). Empty
	// accepts any key.
	ProjectKeys []string `toml:"project_keys,omitempty"`
	// Corrections maps mistyped ticket ids to the intended ones, on top of
	// the built-in table.
	Corrections map[string]string `toml:"corrections,omitempty"`
	// WorkflowCommands restricts which slash commands set the workflow
	// ticket. Empty accepts any command.
	WorkflowCommands []string `toml:"workflow_commands,omitempty"`
}

// GitHubConfig holds pull request source settings.
type GitHubConfig struct {
	Repo            string   `toml:"repo,omitempty"` // owner/name
	Token           string   `toml:"token,omitempty"`
	BaseURL         string   `toml:"base_url,omitempty"`
	CacheTTL        Duration `toml:"cache_ttl"`
	RequestInterval Duration `toml:"request_interval"`
}

// JIRAConfig holds story point source settings.
type JIRAConfig struct {
	BaseURL         string   `toml:"base_url,omitempty"`
	Email           string   `toml:"email,omitempty"`
	Token           string   `toml:"token,omitempty"`
	StoryPointField string   `toml:"story_point_field"`
	RequestInterval Duration `toml:"request_interval"`
}

// ExportsConfig lists session and billing CSV exports read by the weekly
// report. Paths may be glob patterns.
type ExportsConfig struct {
	Sessions []string `toml:"sessions,omitempty"`
	Billing  string   `toml:"billing,omitempty"`
}

// WeekConfig is one [[weeks]] table. Dates are YYYY-MM-DD.
type WeekConfig struct {
	Name  string `toml:"name"`
	Start string `toml:"start"`
	End   string `toml:"end"`
	Label string `toml:"label,omitempty"`
}

// PricingOverrides allows user-defined pricing for specific models.
type PricingOverrides struct {
	Overrides map[string]ModelPricingOverride `toml:"overrides,omitempty"`
}

// ModelPricingOverride holds per-model pricing overrides.
type ModelPricingOverride struct {
	InputPerMTok        *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok       *float64 `toml:"output_per_mtok,omitempty"`
	CacheWrite5mPerMTok *float64 `toml:"cache_write_5m_per_mtok,omitempty"`
	CacheWrite1hPerMTok *float64 `toml:"cache_write_1h_per_mtok,omitempty"`
	CacheReadPerMTok    *float64 `toml:"cache_read_per_mtok,omitempty"`
}

// Duration is a time.Duration written as a string ("24h", "250ms") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultStoryPointField is the JIRA Cloud custom field for story points.
const DefaultStoryPointField = "customfield_10016"

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			IncludeSubagents: true,
		},
		GitHub: GitHubConfig{
			CacheTTL:        Duration{time.Hour},
			RequestInterval: Duration{250 * time.Millisecond},
		},
		JIRA: JIRAConfig{
			StoryPointField: DefaultStoryPointField,
			RequestInterval: Duration{250 * time.Millisecond},
		},
	}
}

var pathOverride string

// SetPath makes Load, Save and Exists use path instead of the XDG location.
func SetPath(path string) { pathOverride = path }

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if pathOverride != "" {
		return filepath.Dir(pathOverride)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tburn")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tburn")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	if pathOverride != "" {
		return pathOverride
	}
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := filepath.Dir(ConfigPath())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	return f.Close()
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// TranscriptsDir returns the configured transcripts directory, defaulting
// to ~/.claude/projects.
func TranscriptsDir(cfg Config) string {
	if cfg.General.TranscriptsDir != "" {
		return cfg.General.TranscriptsDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "projects")
}

// Location returns the configured timezone, or the local zone if unset.
func Location(cfg Config) (*time.Location, error) {
	if cfg.General.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(cfg.General.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.General.Timezone, err)
	}
	return loc, nil
}

// ErrInvalidWeek is returned for a [[weeks]] entry that cannot be parsed.
var ErrInvalidWeek = errors.New("invalid week")

// ParseWeeks converts the [[weeks]] tables into calendar weeks in loc.
// Ordering and overlap are checked later by the joiner.
func ParseWeeks(weeks []WeekConfig, loc *time.Location) ([]model.Week, error) {
	out := make([]model.Week, 0, len(weeks))
	for i, wc := range weeks {
		start, err := time.ParseInLocation(time.DateOnly, wc.Start, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: weeks[%d] start %q", ErrInvalidWeek, i, wc.Start)
		}
		end, err := time.ParseInLocation(time.DateOnly, wc.End, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: weeks[%d] end %q", ErrInvalidWeek, i, wc.End)
		}
		name := wc.Name
		if name == "" {
			name = fmt.Sprintf("week-%d", i+1)
		}
		label := wc.Label
		if label == "" {
			label = start.Format("Jan 2") + " - " + end.Format("Jan 2")
		}
		out = append(out, model.Week{Name: name, Label: label, Start: start, End: end})
	}
	return out, nil
}

// GetGitHubToken returns the token from env var or config, in that order.
func GetGitHubToken(cfg Config) string {
	if key := os.Getenv("GITHUB_TOKEN"); key != "" {
		return key
	}
	return cfg.GitHub.Token
}

// GetJIRAToken returns the API token from env var or config, in that order.
func GetJIRAToken(cfg Config) string {
	if key := os.Getenv("JIRA_API_TOKEN"); key != "" {
		return key
	}
	return cfg.JIRA.Token
}

// GetJIRAEmail returns the account email from env var or config, in that order.
func GetJIRAEmail(cfg Config) string {
	if v := os.Getenv("JIRA_EMAIL"); v != "" {
		return v
	}
	return cfg.JIRA.Email
}
