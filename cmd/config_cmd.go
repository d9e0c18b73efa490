// Package cmd implements the tburn CLI commands.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tburn/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg := appCfg

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Transcripts:       %s\n", transcriptsDir())
	fmt.Printf("    Include subagents: %v\n", cfg.General.IncludeSubagents)
	if cfg.General.Timezone != "" {
		fmt.Printf("    Timezone:          %s\n", cfg.General.Timezone)
	}
	fmt.Println()

	fmt.Println("  [Tickets]")
	fmt.Printf("    Project keys:      %s\n", listOr(cfg.Tickets.ProjectKeys, "any"))
	fmt.Printf("    Workflow commands: %s\n", listOr(cfg.Tickets.WorkflowCommands, "any"))
	fmt.Printf("    Corrections:       %d custom\n", len(cfg.Tickets.Corrections))
	fmt.Println()

	fmt.Println("  [GitHub]")
	fmt.Printf("    Repo:      %s\n", orNone(cfg.GitHub.Repo))
	fmt.Printf("    Token:     %s\n", secretStatus(config.GetGitHubToken(cfg)))
	fmt.Printf("    Cache TTL: %s\n", cfg.GitHub.CacheTTL)
	fmt.Println()

	fmt.Println("  [JIRA]")
	fmt.Printf("    Site:  %s\n", orNone(cfg.JIRA.BaseURL))
	fmt.Printf("    Email: %s\n", orNone(config.GetJIRAEmail(cfg)))
	fmt.Printf("    Token: %s\n", secretStatus(config.GetJIRAToken(cfg)))
	fmt.Printf("    Field: %s\n", cfg.JIRA.StoryPointField)
	fmt.Println()

	fmt.Println("  [Exports]")
	fmt.Printf("    Sessions: %s\n", listOr(cfg.Exports.Sessions, "none"))
	fmt.Printf("    Billing:  %s\n", orNone(cfg.Exports.Billing))
	fmt.Println()

	fmt.Printf("  [Weeks] %d configured\n", len(cfg.Weeks))
	for _, w := range cfg.Weeks {
		fmt.Printf("    %-10s %s .. %s\n", w.Name, w.Start, w.End)
	}
	fmt.Println()

	if n := len(cfg.Pricing.Overrides); n > 0 {
		fmt.Printf("  [Pricing] %d model overrides\n\n", n)
	}

	fmt.Println("  Run `tburn setup` to reconfigure.")
	return nil
}

func secretStatus(s string) string {
	if s == "" {
		return "not configured"
	}
	return maskSecret(s)
}

func listOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
