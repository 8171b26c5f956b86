package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/output"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <query>",
	Short: "Suggest catalog integrations for a name or keyword",
	Long: `Suggest up to ten catalog integrations. Direct name, description and tag
matches come first; keywords such as "email" or "payment" select a category;
otherwise the most popular integrations are listed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig(cmd.Context())
		if err != nil {
			return err
		}
		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}

		suggestions := catalog.NewRanker(cat).Suggest(strings.Join(args, " "))
		return writeRendered(cmd, "suggest", func(f output.Formatter) (string, error) {
			return f.FormatCatalog(suggestions)
		})
	},
}

func init() {
	addOutputFlags(suggestCmd)
	rootCmd.AddCommand(suggestCmd)
}
