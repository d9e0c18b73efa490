package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/tburn/internal/cli"
	"github.com/theirongolddev/tburn/internal/config"
	"github.com/theirongolddev/tburn/internal/source"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupAnswers holds the wizard fields as strings until validated.
type setupAnswers struct {
	transcripts string
	projectKeys string
	commands    string

	repo        string
	githubToken string

	jiraURL     string
	jiraEmail   string
	jiraToken   string
	jiraField   string
	weekStart   string
	weekCount   string
	replaceWeek bool
	save        bool
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg := appCfg

	dir := transcriptsDir()
	files, _ := source.ScanDir(dir)

	fmt.Println()
	fmt.Println("  Welcome to tburn!")
	fmt.Println()
	if len(files) > 0 {
		fmt.Printf("  Found %s transcripts in %s (%d projects)\n\n",
			cli.FormatNumber(int64(len(files))), dir, source.CountProjects(files))
	}

	a := setupAnswers{
		transcripts: dir,
		projectKeys: strings.Join(cfg.Tickets.ProjectKeys, ","),
		commands:    strings.Join(cfg.Tickets.WorkflowCommands, ","),
		repo:        cfg.GitHub.Repo,
		jiraURL:     cfg.JIRA.BaseURL,
		jiraEmail:   cfg.JIRA.Email,
		jiraField:   cfg.JIRA.StoryPointField,
		weekStart:   mondayOf(time.Now()).AddDate(0, 0, -7*3).Format(time.DateOnly),
		weekCount:   "4",
		replaceWeek: len(cfg.Weeks) == 0,
		save:        true,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Transcripts directory").Value(&a.transcripts),
			huh.NewInput().Title("Ticket project keys").
				Description("Comma separated, e.g. VIBE,OPS. Empty accepts any key.").
				Value(&a.projectKeys),
			huh.NewInput().Title("Workflow commands").
				Description("Slash commands whose first argument names the ticket. Empty accepts any.").
				Value(&a.commands),
		),
		huh.NewGroup(
			huh.NewInput().Title("GitHub repository").Placeholder("owner/name").
				Value(&a.repo).Validate(validateRepo),
			huh.NewInput().Title("GitHub token").
				Description(secretHint(config.GetGitHubToken(cfg), "GITHUB_TOKEN")).
				EchoMode(huh.EchoModePassword).Value(&a.githubToken),
		),
		huh.NewGroup(
			huh.NewInput().Title("JIRA site").Placeholder("https://example.atlassian.net").Value(&a.jiraURL),
			huh.NewInput().Title("JIRA email").Value(&a.jiraEmail),
			huh.NewInput().Title("JIRA API token").
				Description(secretHint(config.GetJIRAToken(cfg), "JIRA_API_TOKEN")).
				EchoMode(huh.EchoModePassword).Value(&a.jiraToken),
			huh.NewInput().Title("Story point field").Value(&a.jiraField),
		),
		huh.NewGroup(
			huh.NewConfirm().Title(fmt.Sprintf("Generate weeks? (%d configured)", len(cfg.Weeks))).
				Value(&a.replaceWeek),
			huh.NewInput().Title("First week starts").Placeholder("YYYY-MM-DD").
				Value(&a.weekStart).Validate(validateDate),
			huh.NewSelect[string]().Title("Number of weeks").
				Options(huh.NewOptions("4", "8", "12", "26")...).
				Value(&a.weekCount),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Save configuration?").Value(&a.save),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup cancelled.")
			return nil
		}
		return fmt.Errorf("setup form: %w", err)
	}
	if !a.save {
		fmt.Println("  Nothing saved.")
		return nil
	}

	if err := a.apply(&cfg); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.ConfigPath())
	fmt.Println("  Run `tburn setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}

// apply copies the answers into cfg. Empty secrets keep the stored value.
func (a setupAnswers) apply(cfg *config.Config) error {
	cfg.General.TranscriptsDir = strings.TrimSpace(a.transcripts)
	cfg.Tickets.ProjectKeys = splitList(strings.ToUpper(a.projectKeys))
	cfg.Tickets.WorkflowCommands = splitList(a.commands)

	cfg.GitHub.Repo = strings.TrimSpace(a.repo)
	if t := strings.TrimSpace(a.githubToken); t != "" {
		cfg.GitHub.Token = t
	}

	cfg.JIRA.BaseURL = strings.TrimSpace(a.jiraURL)
	cfg.JIRA.Email = strings.TrimSpace(a.jiraEmail)
	if t := strings.TrimSpace(a.jiraToken); t != "" {
		cfg.JIRA.Token = t
	}
	if f := strings.TrimSpace(a.jiraField); f != "" {
		cfg.JIRA.StoryPointField = f
	}

	if a.replaceWeek {
		start, err := time.Parse(time.DateOnly, strings.TrimSpace(a.weekStart))
		if err != nil {
			return fmt.Errorf("first week: %w", err)
		}
		n, err := strconv.Atoi(a.weekCount)
		if err != nil {
			return fmt.Errorf("week count: %w", err)
		}
		cfg.Weeks = generateWeeks(start, n)
	}
	return nil
}

// generateWeeks returns n consecutive seven-day weeks starting at start.
func generateWeeks(start time.Time, n int) []config.WeekConfig {
	weeks := make([]config.WeekConfig, 0, n)
	for i := 0; i < n; i++ {
		s := start.AddDate(0, 0, 7*i)
		weeks = append(weeks, config.WeekConfig{
			Name:  fmt.Sprintf("week-%d", i+1),
			Start: s.Format(time.DateOnly),
			End:   s.AddDate(0, 0, 6).Format(time.DateOnly),
		})
	}
	return weeks
}

func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateRepo(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return errors.New("use owner/name")
	}
	return nil
}

func validateDate(s string) error {
	if _, err := time.Parse(time.DateOnly, strings.TrimSpace(s)); err != nil {
		return errors.New("use YYYY-MM-DD")
	}
	return nil
}

func secretHint(current, env string) string {
	switch {
	case os.Getenv(env) != "":
		return fmt.Sprintf("Using $%s. Leave empty to keep it.", env)
	case current != "":
		return fmt.Sprintf("Current: %s. Leave empty to keep it.", maskSecret(current))
	default:
		return fmt.Sprintf("Optional; $%s also works.", env)
	}
}

func maskSecret(key string) string {
	if len(key) > 16 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return "****"
}
