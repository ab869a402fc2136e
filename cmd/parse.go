package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revloop/revloop/internal/orchestrator"
)

// newParseCmd creates the 'parse' subcommand. With URL arguments it parses
// just those stored pages; without arguments it re-parses the stored page
// of every known target.
func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [url...]",
		Short: "Extract facts from stored pages",
		Long: `Classifies each page URL, loads the stored page body, and runs the
matching extractor. All extraction is upsert based, so re-parsing the
same page version is harmless.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			dispatcher := buildDispatcher(appInstance)

			urls := args
			if len(urls) == 0 {
				targets, err := appInstance.Catalog.ListAllTargets(cmd.Context())
				if err != nil {
					return fmt.Errorf("list targets: %w", err)
				}
				urls = fetchedURLs(targets)
			}

			if err := dispatcher.ProcessBatch(cmd.Context(), urls); err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// fetchedURLs keeps only targets that have a stored page to parse.
func fetchedURLs(targets []orchestrator.CrawlTarget) []string {
	urls := make([]string, 0, len(targets))
	for _, t := range targets {
		if t.LastFetched.IsZero() || t.LastError != "" {
			continue
		}
		urls = append(urls, t.URL)
	}
	return urls
}
