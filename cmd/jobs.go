package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

func newJobsCmd(root *rootOptions) *cobra.Command {
	var (
		platforms  []string
		keywords   []string
		location   string
		maxResults int
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Aggregates job postings matching keywords",
		Long: `Scrapes the selected job boards for the given keywords (expanded with
their English and French synonyms), skips postings already stored in the
last window, fetches missing descriptions and prints the new postings.`,
		Example: `  prospector jobs --platform linkedin,jobat --keyword "web developer" --location Bruxelles`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(runner Runner) error {
				cfg := prospect.JobSearchConfig{
					Keywords:   keywords,
					Location:   location,
					MaxResults: maxResults,
				}
				for _, raw := range platforms {
					cfg.Platforms = append(cfg.Platforms, prospect.Platform(raw))
				}
				result, err := runner.DiscoverJobs(cmd.Context(), cfg, progressEmitter(cmd.ErrOrStderr(), root.progress))
				if err != nil {
					return fmt.Errorf("discover jobs: %w", err)
				}
				return printResult(cmd.OutOrStdout(), result)
			})
		},
	}

	all := make([]string, 0, len(prospect.Platforms()))
	for _, p := range prospect.Platforms() {
		all = append(all, string(p))
	}
	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", all, "job boards to scrape")
	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "search keywords (repeatable)")
	cmd.Flags().StringVarP(&location, "location", "l", "", "free-text location filter")
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 0, "maximum postings to return (0 uses the configured default)")
	_ = cmd.MarkFlagRequired("keyword")
	return cmd
}
