package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tsxbridge/internal/registry"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List all discovered components",
	Long: `List every component found in the configured sources with its entry file.

Examples:
  tsxbridge list                   # Table of names and entry files
  tsxbridge list -f json           # Output as JSON
  tsxbridge list -m -f yaml        # Include schema metadata, as YAML`,
	RunE: runList,
}

var (
	listFormat   string
	listMetadata bool
)

// componentListing is one row of list output.
type componentListing struct {
	Name     string            `json:"name" yaml:"name"`
	Entry    string            `json:"entry" yaml:"entry"`
	Metadata registry.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func init() {
	rootCmd.AddCommand(listCmd)

	addFormatFlag(listCmd, &listFormat, "table", "json", "yaml")
	listCmd.Flags().BoolVarP(&listMetadata, "metadata", "m", false, "Include metadata from schema.json")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	components := a.registry.GetAll()
	listing := make([]componentListing, 0, len(components))
	for _, name := range a.registry.Names() {
		component := components[name]
		item := componentListing{Name: name, Entry: component.EntryPath}
		if listMetadata {
			item.Metadata = component.Metadata()
		}
		listing = append(listing, item)
	}

	return writeOutput(cmd.OutOrStdout(), listFormat, listing, func(w io.Writer) error {
		if len(listing) == 0 {
			_, err := fmt.Fprintln(w, "No components found.")
			return err
		}
		return outputTable(w, listing)
	})
}

func outputTable(out io.Writer, listing []componentListing) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if listMetadata {
		fmt.Fprintln(w, "NAME\tTITLE\tVERSION\tENTRY")
	} else {
		fmt.Fprintln(w, "NAME\tENTRY")
	}
	for _, item := range listing {
		if listMetadata {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Name,
				stringOr(item.Metadata["title"], "-"),
				stringOr(item.Metadata["version"], "-"),
				item.Entry)
		} else {
			fmt.Fprintf(w, "%s\t%s\n", item.Name, item.Entry)
		}
	}
	return w.Flush()
}

// writeOutput encodes v as json or yaml, or calls text for any other format.
func writeOutput(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(v)
	default:
		return text(w)
	}
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
