package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/observability"
	"github.com/apilens/apilens/internal/output"
)

var callCmd = &cobra.Command{
	Use:   "call <connection> <method> <endpoint>",
	Short: "Send one request through a saved connection",
	Long: `Send one request through a saved connection. The endpoint is relative to
the connection's base URL. Retries, timeouts and rate limits follow the
connection settings.`,
	Example: `  apilens call github GET /user --token $GITHUB_TOKEN
  apilens call internal POST /items --data '{"name":"widget"}'
  apilens call internal PUT /items/1 --data @item.json --output-format json`,
	Args: cobra.ExactArgs(3),
	RunE: runCall,
}

func init() {
	callCmd.Flags().String("data", "", "request body as JSON or text; prefix with @ to read a file")
	callCmd.Flags().StringArray("query", nil, "query parameter as name=value (repeatable)")
	callCmd.Flags().StringArray("header", nil, "request header as Name=Value (repeatable)")
	addCredentialFlags(callCmd)
	addOutputFlags(callCmd)
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := requestFromFlags(cmd, args[1], args[2])
	if err != nil {
		return err
	}

	opts, err := credentialOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close() // nolint:errcheck // best-effort cleanup

	conn, err := sess.activate(ctx, args[0], opts)
	if err != nil {
		return err
	}

	resp, execErr := sess.connector.Execute(ctx, conn.ID, req)
	sess.persistUsage(ctx, conn.ID)

	if resp != nil {
		observability.CLILogger.Debug("Request finished",
			zap.String("connection_id", conn.ID),
			zap.String("method", req.Method),
			zap.String("endpoint", req.Endpoint),
			zap.Int("status", resp.StatusCode),
			zap.Int("attempts", resp.Attempts),
			zap.Duration("duration", resp.Duration),
		)
		if err := writeRendered(cmd, "response", func(f output.Formatter) (string, error) {
			return f.FormatResponse(resp)
		}); err != nil {
			return err
		}
	}

	return execErr
}

func requestFromFlags(cmd *cobra.Command, method, endpoint string) (core.APIRequest, error) {
	req := core.APIRequest{
		Method:   strings.ToUpper(strings.TrimSpace(method)),
		Endpoint: strings.TrimSpace(endpoint),
	}
	if req.Method == "" {
		return req, &core.ValidationError{Field: "method", Message: "is required"}
	}

	data, err := cmd.Flags().GetString("data")
	if err != nil {
		return req, err
	}
	if req.Body, err = parseRequestBody(data); err != nil {
		return req, &core.ValidationError{Field: "body", Message: err.Error()}
	}

	queryValues, err := cmd.Flags().GetStringArray("query")
	if err != nil {
		return req, err
	}
	if req.Query, err = parseKeyValues(queryValues); err != nil {
		return req, &core.ValidationError{Field: "query", Message: err.Error()}
	}

	headerValues, err := cmd.Flags().GetStringArray("header")
	if err != nil {
		return req, err
	}
	if req.Headers, err = parseKeyValues(headerValues); err != nil {
		return req, &core.ValidationError{Field: "headers", Message: err.Error()}
	}

	return req, nil
}

// parseRequestBody accepts inline data or @path. Valid JSON is sent as-is;
// anything else is sent as text.
func parseRequestBody(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "@") {
		path := strings.TrimSpace(strings.TrimPrefix(raw, "@"))
		if path == "" {
			return nil, fmt.Errorf("missing file name after @")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read body file: %w", err)
		}
		raw = string(data)
	}

	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	return raw, nil
}
