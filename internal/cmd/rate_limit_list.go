package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/apilens/apilens/internal/core/store"
	"github.com/apilens/apilens/internal/output"
)

var (
	rateLimitListAll        bool
	rateLimitListConnection string
	rateLimitListPrefix     string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate limit state",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.RateLimitQuery{
			All:          rateLimitListAll,
			ConnectionID: strings.TrimSpace(rateLimitListConnection),
			Prefix:       strings.TrimSpace(rateLimitListPrefix),
		}
		if !query.All && query.ConnectionID == "" && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeRendered(cmd, "rate-limit.list", func(f output.Formatter) (string, error) {
			return f.FormatRateLimits(entries)
		})
	},
}

func init() {
	addOutputFlags(rateLimitListCmd)
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List all connections")
	rateLimitListCmd.Flags().StringVar(&rateLimitListConnection, "connection", "", "List a single connection id (exact match)")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List connection ids with matching prefix")
}
