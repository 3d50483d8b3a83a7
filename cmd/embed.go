package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tsxbridge/internal/widget"
)

var embedCmd = &cobra.Command{
	Use:   "embed NAME",
	Short: "Print the HTML snippet that mounts a component",
	Long: `Print the container and loader script tags for a component, with the current
bundle hash for cache busting. Paste the output into a server-rendered page.

Examples:
  tsxbridge embed store:card --props '{"name":"Widget","price":"9.99"}'
  tsxbridge embed store:card --props @card.json
  tsxbridge embed store:card --live --validate-url /products/1/preview`,
	Args: cobra.ExactArgs(1),
	RunE: runEmbed,
}

var (
	embedProps       string
	embedLive        bool
	embedValidateURL string
	embedReload      bool
)

func init() {
	rootCmd.AddCommand(embedCmd)

	embedCmd.Flags().StringVar(&embedProps, "props", "", "Component props (JSON or @file.json)")
	embedCmd.Flags().BoolVar(&embedLive, "live", false, "Re-render when the surrounding form changes")
	embedCmd.Flags().StringVar(&embedValidateURL, "validate-url", "", "Endpoint returning fresh props in live mode")
	embedCmd.Flags().BoolVar(&embedReload, "reload", false, "Reload the component when the server rebuilds it")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	props, err := ParseProps(embedProps)
	if err != nil {
		return err
	}
	if embedValidateURL != "" && !embedLive {
		return fmt.Errorf("--validate-url requires --live")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	name := args[0]
	component, err := a.registry.Get(name)
	if err != nil {
		return err
	}
	if component == nil {
		return fmt.Errorf("component %q not found", name)
	}

	ctx := commandContext(cmd)
	w := widget.NewWidget(ctx, a.handlers, name, props)
	w.APIBase = a.cfg.Server.APIPrefix
	if w.APIBase == "" {
		w.APIBase = "/"
	}
	w.StaticBase = a.cfg.Server.StaticPrefix
	w.Live = embedLive
	w.ValidateURL = embedValidateURL
	if embedReload {
		w.ReloadURL = "/ws"
	}

	if err := w.Render(ctx, cmd.OutOrStdout()); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout())
	return err
}
