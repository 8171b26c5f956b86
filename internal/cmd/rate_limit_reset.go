package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apilens/apilens/internal/core/store"
	"github.com/apilens/apilens/internal/output"
)

var (
	rateLimitResetAll        bool
	rateLimitResetConnection string
	rateLimitResetPrefix     string
	rateLimitResetYes        bool
	rateLimitResetDryRun     bool
)

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored rate limit state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format == output.FormatMarkdown {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.RateLimitQuery{
			All:          rateLimitResetAll,
			ConnectionID: strings.TrimSpace(rateLimitResetConnection),
			Prefix:       strings.TrimSpace(rateLimitResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		var deleted int64
		if !rateLimitResetDryRun {
			deleted, err = db.ResetRateLimits(cmd.Context(), query)
			if err != nil {
				return err
			}
		}

		return writeRendered(cmd, "rate-limit.reset", func(f output.Formatter) (string, error) {
			var b strings.Builder
			if err := writeRateLimitResetResult(format, &b, matched, deleted, rateLimitResetDryRun); err != nil {
				return "", err
			}
			return b.String(), nil
		})
	},
}

func writeRateLimitResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	result := map[string]any{
		"matched": matched,
		"deleted": deleted,
		"dry_run": dryRun,
	}

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would reset %d connection rate limit(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Reset %d/%d connection rate limit(s)\n", deleted, matched)
	return err
}

func init() {
	addOutputFlags(rateLimitResetCmd)
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetAll, "all", false, "Reset all connections")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetConnection, "connection", "", "Reset a single connection id (exact match)")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetPrefix, "prefix", "", "Reset connection ids with matching prefix")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be reset")
}
