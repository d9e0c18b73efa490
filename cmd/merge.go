package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tburn/internal/cli"
	"github.com/theirongolddev/tburn/internal/csvmerge"
)

var flagMergeOut string

var mergeCmd = &cobra.Command{
	Use:   "merge {sessions|costs} FILE...",
	Short: "Merge and deduplicate session or cost CSV exports",
	Long: "Merge CSV exports written under the legacy or current schema into one " +
		"canonical current-schema CSV. Rows repeated across files are kept once.",
	Args:      cobra.MinimumNArgs(2),
	ValidArgs: []string{"sessions", "costs"},
	RunE:      runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&flagMergeOut, "out", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(mergeCmd)
}

type mergeStats struct {
	records, duplicates, parseErrors, headers int
	schemaErrs                                []*csvmerge.SchemaError
	readErrs                                  []error
}

func runMerge(_ *cobra.Command, args []string) error {
	kind, paths := args[0], expandPaths(args[1:])
	if kind != "sessions" && kind != "costs" {
		return fmt.Errorf("unknown table %q (want sessions or costs)", kind)
	}

	sources, closeAll := openSources(paths)
	defer closeAll()
	if len(sources) == 0 {
		return fmt.Errorf("no readable %s exports", kind)
	}

	var out io.Writer = os.Stdout
	if flagMergeOut != "" {
		f, err := os.Create(flagMergeOut)
		if err != nil {
			return fmt.Errorf("creating %s: %w", flagMergeOut, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	var (
		st  mergeStats
		err error
	)
	switch kind {
	case "sessions":
		res := csvmerge.MergeSessions(sources)
		st = mergeStats{len(res.Records), res.Duplicates, res.ParseErrors, res.HeaderRowsSkipped, res.SchemaErrors, res.ReadErrors}
		err = csvmerge.WriteSessions(out, res.Records)
	case "costs":
		res := csvmerge.MergeCosts(sources)
		st = mergeStats{len(res.Records), res.Duplicates, res.ParseErrors, res.HeaderRowsSkipped, res.SchemaErrors, res.ReadErrors}
		err = csvmerge.WriteCosts(out, res.Records)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", kind, err)
	}

	logMerge(kind, st.duplicates, st.parseErrors, st.schemaErrs, st.readErrs)
	if !flagQuiet {
		fmt.Fprint(os.Stderr, cli.RenderKeyValues([][2]string{
			{"Sources", fmt.Sprintf("%d read, %d skipped", len(sources)-len(st.schemaErrs), len(st.schemaErrs))},
			{"Records", cli.FormatNumber(int64(st.records))},
			{"Duplicates", cli.FormatNumber(int64(st.duplicates))},
			{"Malformed", cli.FormatNumber(int64(st.parseErrors))},
			{"Extra headers", cli.FormatNumber(int64(st.headers))},
		}))
	}
	return nil
}
