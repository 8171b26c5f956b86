package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apilens/apilens/internal/observability"
	"github.com/apilens/apilens/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	clean = nonFilename.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}

// addOutputFlags registers --output-format, --out and --out-dir.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", "table", "output format: table, json, markdown")
	cmd.Flags().String("out", "", "write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "write output into this directory using a generated file name")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

func resolveOutputTargets(cmd *cobra.Command) (outPath string, outDir string, err error) {
	outPath, err = cmd.Flags().GetString("out")
	if err != nil {
		return "", "", err
	}
	outDir, err = cmd.Flags().GetString("out-dir")
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(outPath) != "" && strings.TrimSpace(outDir) != "" {
		return "", "", fmt.Errorf("--out and --out-dir are mutually exclusive")
	}
	return strings.TrimSpace(outPath), strings.TrimSpace(outDir), nil
}

// resolveOutputPath picks the file to write; "-" or empty means stdout.
// With --out-dir the file is named after baseName and the format extension.
func resolveOutputPath(cmd *cobra.Command, format output.Format, baseName string) (string, error) {
	outPath, outDir, err := resolveOutputTargets(cmd)
	if err != nil {
		return "", err
	}
	if outPath != "" {
		return outPath, nil
	}
	if outDir == "" {
		return "", nil
	}
	dir, err := ensureOutDir(outDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sanitizeFilename(baseName)+"."+format.Extension()), nil
}

// writeRendered renders with the command's output format and writes the
// result to the resolved sink.
func writeRendered(cmd *cobra.Command, baseName string, render func(output.Formatter) (string, error)) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	path, err := resolveOutputPath(cmd, format, baseName)
	if err != nil {
		return err
	}

	rendered, err := render(output.NewFormatter(format))
	if err != nil {
		return err
	}

	sink, err := openSink(path)
	if err != nil {
		return err
	}
	if sink.path == "-" {
		sink.writer = cmd.OutOrStdout()
	}
	defer func() {
		if cerr := sink.close(); cerr != nil && observability.CLILogger != nil {
			observability.CLILogger.Warn("Failed to close output file", zap.String("path", sink.path), zap.Error(cerr))
		}
	}()

	if !strings.HasSuffix(rendered, "\n") {
		rendered += "\n"
	}
	if _, err := io.WriteString(sink.writer, rendered); err != nil {
		return err
	}
	if sink.path != "-" && observability.CLILogger != nil {
		observability.CLILogger.Info("Wrote output", zap.String("path", sink.path))
	}
	return nil
}

func openSink(path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: os.Stdout, close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

func ensureOutDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return "", nil
	}
	if err := os.MkdirAll(clean, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return clean, nil
	}
	return abs, nil
}
