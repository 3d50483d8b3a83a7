package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tsxbridge/internal/version"
)

var (
	versionFormat   string
	versionShort    bool
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the tsxbridge version, commit, build time, Go version and platform.

Examples:
  tsxbridge version              # Show version
  tsxbridge version --short      # Version string only
  tsxbridge version --detailed   # Every build detail
  tsxbridge version -f json      # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	addFormatFlag(versionCmd, &versionFormat, "text", "json")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if strings.EqualFold(versionFormat, "json") {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(version.GetBuildInfo())
	}

	switch {
	case versionShort:
		fmt.Fprintln(out, version.GetShortVersion())
	case versionDetailed:
		fmt.Fprintln(out, version.GetDetailedVersion())
		if version.IsRelease() {
			fmt.Fprintln(out, "build:    release")
		} else {
			fmt.Fprintln(out, "build:    development")
		}
	default:
		fmt.Fprintf(out, "tsxbridge %s\n", version.GetShortVersion())
	}
	return nil
}
