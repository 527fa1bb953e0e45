package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/jonathan/flash-resume/internal/config"
	"github.com/jonathan/flash-resume/internal/templates"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTemplatesCmd(global *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List available templates",
		Long:  "Lists every template directory with its display name, or the reason its configuration cannot be used.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings(cmd, global, nil)
			if err != nil {
				return err
			}
			return runTemplates(cmd, cfg, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the listing as JSON")
	return cmd
}

func runTemplates(cmd *cobra.Command, cfg config.Config, asJSON bool) error {
	store := templates.NewStore(cfg.TemplatesDir, zap.NewNop())
	summaries, err := store.List()
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"templates": summaries})
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tDESCRIPTION")
	for _, summary := range summaries {
		status, description := "ok", ""
		if _, err := store.Config(summary.Name); err != nil {
			status = "invalid"
			description = err.Error()
		} else if display, ok := summary.Config["displayName"].(string); ok {
			description = display
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", summary.Name, status, description)
	}
	return w.Flush()
}
