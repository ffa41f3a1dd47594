package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OliWebDevO/clients-scraper/internal/prospect"
)

func newBusinessesCmd(root *rootOptions) *cobra.Command {
	var (
		location    string
		categories  []string
		radius      float64
		minRating   float64
		maxResults  int
		excludeFile string
	)
	cmd := &cobra.Command{
		Use:   "businesses",
		Short: "Finds local businesses without a good website",
		Long: `Crawls map search results for each category around a location, scores
each business website and prints the businesses that have none or whose
site scores poorly, best prospects first.`,
		Example: `  prospector businesses --location "Namur, Belgique" --category restaurant,boulangerie --min-rating 4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(runner Runner) error {
				cfg := prospect.BusinessSearchConfig{
					LocationQuery: location,
					RadiusKm:      radius,
					Categories:    categories,
					MaxResults:    maxResults,
				}
				if cmd.Flags().Changed("min-rating") {
					cfg.MinRating = &minRating
				}
				if excludeFile != "" {
					refs, err := readExclusions(excludeFile)
					if err != nil {
						return err
					}
					cfg.ExcludeExisting = refs
				}
				result, err := runner.DiscoverBusinesses(cmd.Context(), cfg, progressEmitter(cmd.ErrOrStderr(), root.progress))
				if err != nil {
					return fmt.Errorf("discover businesses: %w", err)
				}
				return printResult(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVarP(&location, "location", "l", "", "location to search around")
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "business categories (repeatable)")
	cmd.Flags().Float64Var(&radius, "radius", 0, "search radius in km")
	cmd.Flags().Float64Var(&minRating, "min-rating", 0, "drop businesses rated below this")
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 0, "maximum businesses to return (0 uses the configured default)")
	cmd.Flags().StringVar(&excludeFile, "exclude", "", `file of "name|address" lines to skip`)
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func readExclusions(path string) ([]prospect.BusinessRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exclusions: %w", err)
	}
	defer f.Close()
	return parseExclusions(f)
}

func parseExclusions(r io.Reader) ([]prospect.BusinessRef, error) {
	var refs []prospect.BusinessRef
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		name, address, ok := strings.Cut(text, "|")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("exclusions line %d: want name|address", line)
		}
		refs = append(refs, prospect.BusinessRef{
			Name:    strings.TrimSpace(name),
			Address: strings.TrimSpace(address),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read exclusions: %w", err)
	}
	return refs, nil
}
