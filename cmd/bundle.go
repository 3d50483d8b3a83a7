package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tsxbridge/internal/errors"
)

var bundleCmd = &cobra.Command{
	Use:     "bundle NAME",
	Aliases: []string{"b"},
	Short:   "Compile one component and print or save its bundle",
	Long: `Compile a component exactly as the server would and write the ES module to
stdout or a file. Useful for checking a component builds before serving it.

Examples:
  tsxbridge bundle widgets.counter              # Print the bundle
  tsxbridge bundle store:card -o card.js        # Write to a file
  tsxbridge bundle store:card --hash            # Print only the content hash`,
	Args: cobra.ExactArgs(1),
	RunE: runBundle,
}

var (
	bundleOutput   string
	bundleHashOnly bool
)

func init() {
	rootCmd.AddCommand(bundleCmd)

	bundleCmd.Flags().StringVarP(&bundleOutput, "output", "o", "", "Write the bundle to this file")
	bundleCmd.Flags().BoolVar(&bundleHashOnly, "hash", false, "Print the bundle hash instead of the code")
}

func runBundle(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	name := args[0]
	result, err := a.handlers.GetBundle(commandContext(cmd), name)
	switch {
	case errors.IsBundlerNotFound(err):
		return fmt.Errorf("%w\n(run 'tsxbridge doctor' to inspect bundler discovery)", err)
	case errors.IsTimeout(err):
		return fmt.Errorf("%w\n(raise bundler.timeout in .tsxbridge.yml for large components)", err)
	case err != nil:
		return err
	}
	if result == nil {
		return fmt.Errorf("component %q not found (run 'tsxbridge list' to see available components)", name)
	}

	out := cmd.OutOrStdout()
	switch {
	case bundleHashOnly:
		_, err = fmt.Fprintln(out, result.Hash)
		return err
	case bundleOutput != "":
		if err := os.WriteFile(bundleOutput, []byte(result.Code), 0o644); err != nil {
			return fmt.Errorf("failed to write bundle: %w", err)
		}
		_, err = fmt.Fprintf(out, "Wrote %s (%d bytes, hash %s)\n", bundleOutput, len(result.Code), result.Hash)
		return err
	default:
		_, err = fmt.Fprint(out, result.Code)
		return err
	}
}
