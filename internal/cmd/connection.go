package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/core/store"
	apperrors "github.com/apilens/apilens/internal/errors"
	"github.com/apilens/apilens/internal/observability"
	"github.com/apilens/apilens/internal/output"
)

var connectionCmd = &cobra.Command{
	Use:     "connection",
	Aliases: []string{"conn"},
	Short:   "Manage saved API connections",
	Long: `Connections are saved without credentials. Supply credentials on each
call with --token, --api-key, --username/--password or --auth-header, or
through APILENS_TOKEN, APILENS_API_KEY, APILENS_USERNAME and APILENS_PASSWORD.`,
}

var connectionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a connection from the catalog or a custom definition",
	Example: `  apilens connection add --catalog github
  apilens connection add --name internal --base-url https://api.internal.example --auth bearer --rate-limit 100/1m`,
	Args: cobra.NoArgs,
	RunE: runConnectionAdd,
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved connections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		records, err := db.ListConnections(cmd.Context())
		if err != nil {
			return apperrors.WrapDatabaseError(cmd.Context(), err, "failed to list connections")
		}

		return writeRendered(cmd, "connections", func(f output.Formatter) (string, error) {
			return f.FormatConnections(records)
		})
	},
}

var connectionShowCmd = &cobra.Command{
	Use:   "show <id-or-name>",
	Short: "Show one saved connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		record, err := db.GetConnection(cmd.Context(), args[0])
		if err != nil {
			return apperrors.WrapDatabaseError(cmd.Context(), err, "failed to load connection")
		}
		if record == nil {
			return apperrors.NewNotFoundError(fmt.Sprintf("connection %q not found", args[0]))
		}

		state, err := db.GetRateLimitState(cmd.Context(), record.Connection.ID)
		if err != nil {
			return apperrors.WrapDatabaseError(cmd.Context(), err, "failed to load rate limit state")
		}

		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(connectionLines(record, state), "\n"), 0))
		return err
	},
}

var connectionRemoveCmd = &cobra.Command{
	Use:     "remove <id-or-name>",
	Aliases: []string{"rm"},
	Short:   "Remove a saved connection and its rate limit state",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		record, err := db.GetConnection(cmd.Context(), args[0])
		if err != nil {
			return apperrors.WrapDatabaseError(cmd.Context(), err, "failed to load connection")
		}
		if record == nil {
			return apperrors.NewNotFoundError(fmt.Sprintf("connection %q not found", args[0]))
		}

		if _, err := db.DeleteConnection(cmd.Context(), record.Connection.ID); err != nil {
			return apperrors.WrapDatabaseError(cmd.Context(), err, "failed to remove connection")
		}

		observability.CLILogger.Info("Connection removed", zap.String("connection_id", record.Connection.ID))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", describeConnection(&record.Connection))
		return err
	},
}

func init() {
	addDefinitionFlags(connectionAddCmd)
	addCredentialFlags(connectionAddCmd)
	addOutputFlags(connectionAddCmd)

	addOutputFlags(connectionListCmd)

	connectionCmd.AddCommand(connectionAddCmd)
	connectionCmd.AddCommand(connectionListCmd)
	connectionCmd.AddCommand(connectionShowCmd)
	connectionCmd.AddCommand(connectionRemoveCmd)
	rootCmd.AddCommand(connectionCmd)
}

func addDefinitionFlags(cmd *cobra.Command) {
	cmd.Flags().String("catalog", "", "predefined integration id (see 'apilens catalog list')")
	cmd.Flags().String("name", "", "connection name (defaults to the catalog name or host)")
	cmd.Flags().String("base-url", "", "API base URL")
	cmd.Flags().String("auth", "", "auth method: none, api_key, bearer, basic, oauth, custom")
	cmd.Flags().StringArray("header", nil, "default header as Name=Value (repeatable)")
	cmd.Flags().Duration("timeout", 0, "per-attempt timeout (default from config)")
	cmd.Flags().Int("retries", 0, "retries after the first attempt (default from config)")
	cmd.Flags().String("rate-limit", "", "local budget as REQUESTS/PERIOD, e.g. 60/1m or 5000/3600")
}

func runConnectionAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close() // nolint:errcheck // best-effort cleanup

	def, err := connectionDefinitionFromFlags(cmd, sess)
	if err != nil {
		return err
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

	observability.CLILogger.Info("Connection created",
		zap.String("connection_id", conn.ID),
		zap.String("name", conn.Name),
		zap.String("origin", string(conn.Origin)),
	)

	records := []store.ConnectionRecord{{Connection: *conn}}
	return writeRendered(cmd, "connection."+conn.Name, func(f output.Formatter) (string, error) {
		return f.FormatConnections(records)
	})
}

// connectionDefinitionFromFlags starts from the catalog entry when --catalog
// is set and applies explicit flags on top.
func connectionDefinitionFromFlags(cmd *cobra.Command, sess *session) (core.Definition, error) {
	flags := cmd.Flags()
	var def core.Definition

	catalogID, _ := flags.GetString("catalog")
	if id := strings.TrimSpace(catalogID); id != "" {
		cat, err := loadCatalog(sess.cfg)
		if err != nil {
			return def, err
		}
		entry, ok := cat.Get(id)
		if !ok {
			return def, apperrors.NewNotFoundError(fmt.Sprintf("catalog entry %q not found", id))
		}
		def = entry.Definition()
	} else {
		def.Origin = core.OriginCustom
	}

	if name, _ := flags.GetString("name"); strings.TrimSpace(name) != "" {
		def.Name = strings.TrimSpace(name)
	}
	if baseURL, _ := flags.GetString("base-url"); strings.TrimSpace(baseURL) != "" {
		def.BaseURL = strings.TrimSpace(baseURL)
	}
	if def.BaseURL == "" {
		return def, &core.ValidationError{Field: "base_url", Message: "is required (use --catalog or --base-url)"}
	}

	if flags.Changed("auth") {
		raw, _ := flags.GetString("auth")
		method, ok := core.ParseAuthMethod(raw)
		if !ok {
			return def, &core.ValidationError{Field: "auth_method", Message: "unsupported: " + raw}
		}
		def.AuthMethod = method
	}

	headerValues, _ := flags.GetStringArray("header")
	headers, err := parseKeyValues(headerValues)
	if err != nil {
		return def, &core.ValidationError{Field: "headers", Message: err.Error()}
	}
	if len(headers) > 0 {
		if def.Headers == nil {
			def.Headers = make(map[string]string, len(headers))
		}
		for key, value := range headers {
			def.Headers[key] = value
		}
	}

	if timeout, _ := flags.GetDuration("timeout"); timeout > 0 {
		def.Timeout = timeout
	}
	if flags.Changed("retries") {
		retries, _ := flags.GetInt("retries")
		def.RetryCount = &retries
	}
	if raw, _ := flags.GetString("rate-limit"); strings.TrimSpace(raw) != "" {
		spec, err := parseRateLimit(raw)
		if err != nil {
			return def, &core.ValidationError{Field: "rate_limit", Message: err.Error()}
		}
		def.RateLimit = spec
	}

	return def, nil
}

// parseRateLimit parses REQUESTS/PERIOD where PERIOD is a Go duration or a
// number of seconds.
func parseRateLimit(value string) (*core.RateLimitSpec, error) {
	rawRequests, rawPeriod, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return nil, fmt.Errorf("expected REQUESTS/PERIOD, got %q", value)
	}

	requests, err := strconv.Atoi(strings.TrimSpace(rawRequests))
	if err != nil || requests <= 0 {
		return nil, fmt.Errorf("requests must be a positive integer, got %q", rawRequests)
	}

	rawPeriod = strings.TrimSpace(rawPeriod)
	var seconds int
	if n, err := strconv.Atoi(rawPeriod); err == nil {
		seconds = n
	} else {
		period, err := time.ParseDuration(rawPeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid period %q", rawPeriod)
		}
		seconds = int(period / time.Second)
	}
	if seconds <= 0 {
		return nil, fmt.Errorf("period must be at least one second, got %q", rawPeriod)
	}

	return &core.RateLimitSpec{Requests: requests, PeriodSeconds: seconds}, nil
}

func connectionLines(record *store.ConnectionRecord, state *core.RateLimitState) []string {
	conn := record.Connection
	lines := []string{
		"Connection " + conn.Name,
		"",
		"ID:          " + conn.ID,
		"Origin:      " + string(conn.Origin),
		"Base URL:    " + conn.BaseURL,
		"Auth:        " + string(conn.AuthMethod),
		"Timeout:     " + conn.Timeout.String(),
		"Retries:     " + strconv.Itoa(conn.RetryCount),
	}

	if conn.RateLimit != nil {
		lines = append(lines, fmt.Sprintf("Rate limit:  %d per %s", conn.RateLimit.Requests, conn.RateLimit.Period()))
	} else {
		lines = append(lines, "Rate limit:  -")
	}

	if len(conn.Headers) > 0 {
		keys := make([]string, 0, len(conn.Headers))
		for key := range conn.Headers {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		lines = append(lines, "Headers:     "+strings.Join(keys, ", "))
	}

	lines = append(lines, "Created:     "+conn.CreatedAt.UTC().Format(time.RFC3339))
	if record.LastUsedAt != nil {
		lines = append(lines, "Last used:   "+record.LastUsedAt.UTC().Format(time.RFC3339))
	}

	if state != nil {
		lines = append(lines, "", fmt.Sprintf("Remaining %d/%d, resets %s",
			state.Remaining, state.Limit, state.ResetAt.UTC().Format(time.RFC3339)))
	}

	return lines
}
