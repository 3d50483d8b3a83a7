// Package cmd provides the tsxbridge command-line interface.
//
// Configuration System:
//
//	Settings come from several sources, highest priority first:
//	1. Command-line flags (--config, --port, etc.)
//	2. TSXBRIDGE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (TSXBRIDGE_SERVER_PORT, etc.)
//	4. Configuration file (.tsxbridge.yml)
//
// Environment Variables:
//
//	TSXBRIDGE_CONFIG_FILE: Path to custom configuration file
//	TSXBRIDGE_SERVER_PORT: Override server port
//	TSXBRIDGE_BUNDLER_COMMAND: Bundler command line, e.g. "bunx esbuild"
//	And every other key following the TSXBRIDGE_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tsxbridge",
	Short: "Serve TSX/TS components as browser-ready bundles",
	Long: `tsxbridge discovers TSX/TS components in your source directories, compiles
them on demand with esbuild and serves the bundles over HTTP, so server-rendered
pages can mount interactive components without a frontend build pipeline.

Quick Start:
  tsxbridge doctor               Check that esbuild can be found
  tsxbridge list                 List discovered components
  tsxbridge serve                Start the bundle server with hot reload
  tsxbridge bundle NAME          Compile a single component
  tsxbridge embed NAME           Print the HTML snippet that mounts a component`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tsxbridge.yml, can also use TSXBRIDGE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig selects the configuration file and enables TSXBRIDGE_ environment
// overrides. A missing file is not an error; defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TSXBRIDGE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tsxbridge")
	}

	viper.SetEnvPrefix("TSXBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && (cfgFile != "" || os.Getenv("TSXBRIDGE_CONFIG_FILE") != "") {
		fmt.Fprintln(os.Stderr, "Warning: cannot read config file:", err)
	}
}
