package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/core/discovery"
	"github.com/apilens/apilens/internal/core/store"
	apperrors "github.com/apilens/apilens/internal/errors"
	"github.com/apilens/apilens/internal/observability"
	"github.com/apilens/apilens/internal/output"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <base-url>",
	Short: "Probe an unknown API and describe its endpoints",
	Long: `Probe a base URL for an OpenAPI or Swagger document, a GraphQL endpoint, or
common REST paths. Results are cached; use --no-cache to probe again. When
nothing is found, similar catalog integrations are suggested.`,
	Example: `  apilens discover https://petstore3.swagger.io/api/v3
  apilens discover https://api.example.com --save --name example`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().Bool("save", false, "save the discovered API as a connection")
	discoverCmd.Flags().String("name", "", "connection name when saving (defaults to the inferred name)")
	discoverCmd.Flags().Bool("no-cache", false, "ignore cached discovery results")
	addCredentialFlags(discoverCmd)
	addOutputFlags(discoverCmd)
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	baseURL := strings.TrimSpace(args[0])

	save, _ := cmd.Flags().GetBool("save")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close() // nolint:errcheck // best-effort cleanup

	var cache discovery.Cache
	if !noCache {
		cache = sess.store
	}
	eng := buildDiscoveryEngine(sess.cfg, cache)

	cat, err := loadCatalog(sess.cfg)
	if err != nil {
		observability.CLILogger.Warn("Failed to load catalog", zap.Error(err))
	}
	if entry, ok := cat.MatchHost(baseURL); ok {
		observability.CLILogger.Info("Base URL matches a catalog integration",
			zap.String("catalog_id", entry.ID),
			zap.String("hint", "apilens connection add --catalog "+entry.ID),
		)
	}

	api, err := eng.Discover(ctx, baseURL)
	if err != nil {
		return err
	}

	if api == nil {
		observability.CLILogger.Info("No API description found", zap.String("base_url", baseURL))
		suggestions := catalog.NewRanker(cat).Suggest(suggestionQuery(baseURL))
		return writeRendered(cmd, "discover.suggestions", func(f output.Formatter) (string, error) {
			return f.FormatCatalog(suggestions)
		})
	}

	if err := writeRendered(cmd, "discover."+api.Name, func(f output.Formatter) (string, error) {
		return f.FormatDiscovery(api)
	}); err != nil {
		return err
	}

	if !save {
		return nil
	}
	return saveDiscovered(cmd, sess, api)
}

func saveDiscovered(cmd *cobra.Command, sess *session, api *core.AutoDiscoveredAPI) error {
	ctx := cmd.Context()

	def := api.CustomIntegration().Definition()
	if name, _ := cmd.Flags().GetString("name"); strings.TrimSpace(name) != "" {
		def.Name = strings.TrimSpace(name)
	}

	opts, err := credentialOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	creds, err := buildCredentials(def.AuthMethod, opts)
	if err != nil {
		return &core.ValidationError{Field: "credentials", Message: err.Error()}
	}

	conn, err := sess.connector.Create(def, creds)
	if err != nil {
		return err
	}
	if err := sess.store.SaveConnection(ctx, conn); err != nil {
		return apperrors.WrapDatabaseError(ctx, err, "failed to save connection")
	}

	observability.CLILogger.Info("Discovered API saved",
		zap.String("connection_id", conn.ID),
		zap.String("name", conn.Name),
		zap.String("auth_method", string(conn.AuthMethod)),
	)
	_, err = fmt.Fprintf(cmd.ErrOrStderr(), "Saved connection %s\n", describeConnection(conn))
	return err
}

// suggestionQuery reduces a URL to the label most likely to name the
// service, e.g. https://api.stripe.com/v1 -> stripe.
func suggestionQuery(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return strings.TrimSpace(rawURL)
	}

	labels := strings.Split(strings.ToLower(parsed.Hostname()), ".")
	for len(labels) > 2 && (labels[0] == "www" || labels[0] == "api") {
		labels = labels[1:]
	}
	if len(labels) >= 2 {
		return labels[len(labels)-2]
	}
	return labels[0]
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the discovery cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all cached discovery results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		return purgeDiscoveryCache(cmd, db)
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

func purgeDiscoveryCache(cmd *cobra.Command, db *store.Store) error {
	removed, err := db.PurgeDiscovery(cmd.Context())
	if err != nil {
		return apperrors.WrapDatabaseError(cmd.Context(), err, "failed to purge discovery cache")
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached discovery result(s)\n", removed)
	return err
}
