package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for build details and the Gofulmen and Crucible versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		writeVersion(cmd.OutOrStdout(), extended)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}

func writeVersion(w io.Writer, extended bool) {
	version := versionInfo.Version
	if version == "" {
		version = "dev"
	}
	fmt.Fprintf(w, "%s %s\n", binaryName, version)
	if !extended {
		return
	}

	fmt.Fprintf(w, "Commit: %s\n", versionInfo.Commit)
	fmt.Fprintf(w, "Built: %s\n", versionInfo.BuildDate)
	fmt.Fprintf(w, "Go: %s\n", runtime.Version())
	fmt.Fprintln(w)

	libs := crucible.GetVersion()
	fmt.Fprintf(w, "Gofulmen: %s\n", libs.Gofulmen)
	fmt.Fprintf(w, "Crucible: %s\n", libs.Crucible)
}
