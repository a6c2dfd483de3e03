package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospector-cli/internal/model"
)

var (
	searchQueries     []string
	searchQueriesFile string
	searchMaxDomains  int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search engines for prospects and store their contacts",
	Long:  "Runs every query against the configured search engines, keeps one URL per domain, skips competitors, extracts footer contacts and stores leads that have an email address.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queries, err := resolveQueries(searchQueries, searchQueriesFile, cfg.Search.DefaultQueries)
		if err != nil {
			return err
		}

		env, err := initIngest(ctx, nil, searchMaxDomains)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, queries)
		if result != nil {
			printRunResult(cmd.OutOrStdout(), result)
		}
		return err
	},
}

// resolveQueries picks queries from flags, then a file, then defaults.
func resolveQueries(flagQueries []string, file string, defaults []string) ([]string, error) {
	var queries []string
	for _, q := range flagQueries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, eris.Wrap(err, "open queries file")
		}
		defer f.Close() //nolint:errcheck
		fromFile, err := readQueries(f)
		if err != nil {
			return nil, err
		}
		queries = append(queries, fromFile...)
	}

	if len(queries) == 0 {
		queries = defaults
	}
	return queries, nil
}

// readQueries reads one query per line, skipping blanks and # comments.
func readQueries(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read queries")
	}
	return out, nil
}

func printRunResult(w io.Writer, r *model.RunResult) {
	fmt.Fprintf(w, "Status:              %s\n", r.Status())
	fmt.Fprintf(w, "URLs found:          %d\n", r.URLs)
	fmt.Fprintf(w, "Unique domains:      %d\n", r.Domains)
	fmt.Fprintf(w, "Competitors skipped: %d\n", r.Competitors)
	fmt.Fprintf(w, "Extracted:           %d\n", r.Extracted)
	fmt.Fprintf(w, "Fetch failures:      %d\n", r.FetchFailed)
	fmt.Fprintf(w, "Without email:       %d\n", r.NoEmail)
	fmt.Fprintf(w, "New leads:           %d\n", r.Inserted)
	fmt.Fprintf(w, "Already stored:      %d\n", r.Duplicates)
	if r.Error != "" {
		fmt.Fprintf(w, "Error:               %s\n", r.Error)
	}
}

func init() {
	searchCmd.Flags().StringArrayVarP(&searchQueries, "query", "q", nil, "search query (repeatable; default: built-in queries)")
	searchCmd.Flags().StringVar(&searchQueriesFile, "queries-file", "", "file with one query per line")
	searchCmd.Flags().IntVar(&searchMaxDomains, "max-domains", 0, "max distinct domains to visit (default from config)")
	rootCmd.AddCommand(searchCmd)
}
