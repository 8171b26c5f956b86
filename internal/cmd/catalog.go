package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/output"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Browse predefined integrations",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog integrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig(cmd.Context())
		if err != nil {
			return err
		}
		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}

		categories, _ := cmd.Flags().GetStringSlice("category")
		search, _ := cmd.Flags().GetString("search")
		entries := filterCatalog(cat, categories, search)

		return writeRendered(cmd, "catalog", func(f output.Formatter) (string, error) {
			return f.FormatCatalog(entries)
		})
	},
}

var catalogCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List catalog categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig(cmd.Context())
		if err != nil {
			return err
		}
		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		for _, category := range cat.Categories() {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), category); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	catalogListCmd.Flags().StringSlice("category", nil, "only show these categories")
	catalogListCmd.Flags().String("search", "", "filter by name, description or tag")
	addOutputFlags(catalogListCmd)

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogCategoriesCmd)
	rootCmd.AddCommand(catalogCmd)
}

// filterCatalog applies the search first, then the category filter. With
// neither set every entry is returned.
func filterCatalog(cat *catalog.Catalog, categories []string, search string) []catalog.Entry {
	if strings.TrimSpace(search) == "" {
		if len(categories) > 0 {
			return cat.ByCategory(categories...)
		}
		return cat.All()
	}

	entries := cat.Search(search)
	if len(categories) == 0 {
		return entries
	}
	allowed := make(map[string]bool, len(categories))
	for _, category := range categories {
		allowed[strings.ToLower(strings.TrimSpace(category))] = true
	}
	filtered := make([]catalog.Entry, 0, len(entries))
	for _, entry := range entries {
		if allowed[strings.ToLower(entry.Category)] {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}
