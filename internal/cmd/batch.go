package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/metrics"
	"github.com/apilens/apilens/internal/observability"
	"github.com/apilens/apilens/internal/output"
)

var batchCmd = &cobra.Command{
	Use:   "batch <connection> <file>",
	Short: "Send many requests through a saved connection",
	Long: `Read requests from a file (or - for stdin), one per line, and send them in
windows of --concurrency requests. Each line is either a JSON object such as
{"method":"POST","endpoint":"/items","body":{"name":"a"}} or "METHOD /path".
Blank lines and lines starting with # are skipped. A failed request never
stops the batch.`,
	Args: cobra.ExactArgs(2),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Int("concurrency", 0, "requests in flight per window (default from config)")
	batchCmd.Flags().Bool("strict", false, "exit non-zero when any request fails")
	addCredentialFlags(batchCmd)
	addOutputFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("concurrency") && concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}
	strict, err := cmd.Flags().GetBool("strict")
	if err != nil {
		return err
	}

	requests, err := readBatchRequests(cmd.InOrStdin(), args[1])
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		return errors.New("no requests found in batch file")
	}

	opts, err := credentialOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	startedAt := time.Now()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close() // nolint:errcheck // best-effort cleanup

	conn, err := sess.activate(ctx, args[0], opts)
	if err != nil {
		return err
	}
	if concurrency > 0 {
		sess.connector.Batch.Concurrency = concurrency
	}

	responses, err := sess.connector.ExecuteBatch(ctx, conn.ID, requests)
	if err != nil {
		return err
	}
	sess.persistUsage(ctx, conn.ID)

	summary := core.SummarizeBatch(conn.ID, responses, time.Since(startedAt))
	metrics.RecordBatch(summary.Total, summary.Failed, summary.Elapsed)

	if err := writeRendered(cmd, "batch."+conn.Name, func(f output.Formatter) (string, error) {
		return f.FormatBatch(summary)
	}); err != nil {
		return err
	}

	logThroughput(summary.Total, startedAt)

	if strict && summary.Failed > 0 {
		return fmt.Errorf("%d of %d requests failed", summary.Failed, summary.Total)
	}
	return nil
}

// logThroughput reports how many requests per second the batch achieved.
func logThroughput(count int, startedAt time.Time) {
	if count <= 0 {
		return
	}
	elapsed := time.Since(startedAt)
	if elapsed <= 0 {
		return
	}
	rate := float64(count) / elapsed.Seconds()
	observability.CLILogger.Info(
		"Batch throughput",
		zap.Int("requests", count),
		zap.Duration("elapsed", elapsed),
		zap.Float64("rate_per_sec", rate),
	)
}

func readBatchRequests(stdin io.Reader, path string) ([]core.APIRequest, error) {
	var source io.Reader
	if strings.TrimSpace(path) == "-" {
		source = stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck // best-effort cleanup on read-only file
		source = file
	}

	requests := make([]core.APIRequest, 0)
	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		req, err := parseBatchLine(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid request on line %d: %w", line, err)
		}
		requests = append(requests, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return requests, nil
}

func parseBatchLine(raw string) (core.APIRequest, error) {
	var req core.APIRequest
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return req, err
		}
	} else {
		fields := strings.Fields(raw)
		if len(fields) != 2 {
			return req, fmt.Errorf("expected \"METHOD /path\", got %q", raw)
		}
		req.Method = fields[0]
		req.Endpoint = fields[1]
	}

	req.Method = strings.ToUpper(strings.TrimSpace(req.Method))
	if req.Method == "" {
		req.Method = "GET"
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		return req, errors.New("endpoint is required")
	}
	return req, nil
}
