package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tsxbridge/internal/build"
	"github.com/conneroisu/tsxbridge/internal/version"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose bundler discovery and component sources",
	Long: `Check that esbuild can be located and that every configured component source
exists. The bundler is searched in this order:

  1. bundler.command from the configuration
  2. node_modules/.bin/esbuild under bundler.project_dir
  3. esbuild on PATH
  4. well-known global install locations
  5. npx --yes esbuild (checked with --version)

Examples:
  tsxbridge doctor                 # Human readable report
  tsxbridge doctor -f json         # Output as JSON for tooling`,
	RunE: runDoctor,
}

var doctorFormat string

// SourceReport describes one configured component source.
type SourceReport struct {
	Path       string `json:"path" yaml:"path"`
	Prefix     string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Exists     bool   `json:"exists" yaml:"exists"`
	Components int    `json:"components" yaml:"components"`
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp  time.Time         `json:"timestamp" yaml:"timestamp"`
	Version    string            `json:"version" yaml:"version"`
	Platform   string            `json:"platform" yaml:"platform"`
	ConfigFile string            `json:"config_file,omitempty" yaml:"config_file,omitempty"`
	Bundler    build.BundlerInfo `json:"bundler" yaml:"bundler"`
	Sources    []SourceReport    `json:"sources" yaml:"sources"`
	Healthy    bool              `json:"healthy" yaml:"healthy"`
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	addFormatFlag(doctorCmd, &doctorFormat, "text", "json", "yaml")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	report := &DoctorReport{
		Timestamp:  time.Now(),
		Version:    version.GetShortVersion(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		ConfigFile: viper.ConfigFileUsed(),
		Bundler:    a.resolver.Info(commandContext(cmd)),
	}

	components := a.registry.GetAll()
	for _, source := range a.cfg.Components.Sources {
		sr := SourceReport{Path: source.Path, Prefix: source.Prefix}
		if info, err := os.Stat(source.Path); err == nil && info.IsDir() {
			sr.Exists = true
			abs, _ := filepath.Abs(source.Path)
			for _, c := range components {
				if strings.HasPrefix(c.PackageDir, abs+string(filepath.Separator)) {
					sr.Components++
				}
			}
		}
		report.Sources = append(report.Sources, sr)
	}
	report.Healthy = report.Bundler.Error == ""

	if err := writeOutput(cmd.OutOrStdout(), doctorFormat, report, func(w io.Writer) error {
		return displayReport(w, report)
	}); err != nil {
		return fmt.Errorf("failed to output report: %w", err)
	}

	if !report.Healthy {
		return fmt.Errorf("bundler not available")
	}
	return nil
}

func displayReport(w io.Writer, report *DoctorReport) error {
	fmt.Fprintf(w, "tsxbridge %s (%s)\n", report.Version, report.Platform)
	if report.ConfigFile != "" {
		fmt.Fprintf(w, "config: %s\n", report.ConfigFile)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Bundler")
	if report.Bundler.Error == "" {
		fmt.Fprintf(w, "  ✅ %s (from %s)\n", strings.Join(report.Bundler.Command, " "), report.Bundler.Source)
	} else {
		fmt.Fprintln(w, "  ❌ esbuild not found")
		for _, line := range strings.Split(report.Bundler.Error, "\n") {
			fmt.Fprintf(w, "     %s\n", line)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Sources")
	for _, source := range report.Sources {
		label := source.Path
		if source.Prefix != "" {
			label += " (prefix " + source.Prefix + ")"
		}
		if source.Exists {
			fmt.Fprintf(w, "  ✅ %s: %d components\n", label, source.Components)
		} else {
			fmt.Fprintf(w, "  ⚠️  %s: directory not found\n", label)
		}
	}
	return nil
}
