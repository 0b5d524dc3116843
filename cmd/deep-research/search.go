// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/app"
	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search every configured engine and print ranked results",
	Long: `Search queries the configured engines concurrently, routing by query
domain (academic, knowledge, code, news, general) unless --engines or
--no-route is given. Results are deduplicated across engines and ranked.

Use --save to keep the search in a YAML file and --load to print a saved
search without querying again. --csl writes the results as a CSL-YAML
bibliography.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	maxResults, _ := cmd.Flags().GetInt("max-results")
	engines, _ := cmd.Flags().GetStringSlice("engines")
	noRoute, _ := cmd.Flags().GetBool("no-route")
	fetch, _ := cmd.Flags().GetBool("fetch")
	asJSON, _ := cmd.Flags().GetBool("json")
	savePath, _ := cmd.Flags().GetString("save")
	loadPath, _ := cmd.Flags().GetString("load")
	cslPath, _ := cmd.Flags().GetString("csl")

	var out search.Output
	switch {
	case loadPath != "":
		qf, err := search.ReadQueryFile(loadPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Loaded %q from %s\n", qf.Query, loadPath)
		out = qf.Output()

	case len(args) > 0:
		query := strings.Join(args, " ")
		opts := search.Options{
			MaxResults:   maxResults,
			Engines:      engines,
			AutoRoute:    !noRoute,
			FetchContent: fetch,
		}
		a, done, err := setup(cmd, app.Options{})
		if err != nil {
			return err
		}
		defer done()

		out, err = a.Search.Search(cmd.Context(), query, opts)
		if err != nil {
			return err
		}
		if savePath != "" {
			if err := search.WriteQueryFile(savePath, query, opts, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved search to %s\n", savePath)
		}

	default:
		return fmt.Errorf("query required: provide a search query or --load")
	}

	if cslPath != "" {
		if err := writeCSL(cslPath, out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote CSL bibliography to %s\n", cslPath)
	}

	if asJSON {
		return search.FormatJSON(out, cmd.OutOrStdout())
	}
	search.FormatTable(out, cmd.OutOrStdout())
	return nil
}

func writeCSL(path string, out search.Output) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating CSL file: %w", err)
	}
	if err := citation.FromSources(out.Results).WriteCSL(f); err != nil {
		f.Close()
		return fmt.Errorf("writing CSL file: %w", err)
	}
	return f.Close()
}

func init() {
	searchCmd.Flags().IntP("max-results", "n", 10, "maximum number of results to return")
	searchCmd.Flags().StringSlice("engines", nil, "engines to query (comma-separated); overrides routing")
	searchCmd.Flags().Bool("no-route", false, "query every engine instead of routing by domain")
	searchCmd.Flags().Bool("fetch", false, "fetch page text for the top results")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().String("save", "", "save the search and its results to this YAML file")
	searchCmd.Flags().String("load", "", "print a saved search instead of querying")
	searchCmd.Flags().String("csl", "", "write results as a CSL-YAML bibliography")

	rootCmd.AddCommand(searchCmd)
}
