package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jonathan/flash-resume/internal/config"
	"github.com/jonathan/flash-resume/internal/rendering"
	"github.com/jonathan/flash-resume/internal/templates"
	"github.com/jonathan/flash-resume/internal/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type renderOptions struct {
	template      string
	inputFile     string
	outputFile    string
	escapeStrings bool
}

func newRenderCmd(global *globalOptions) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render resume JSON to Typst markup",
		Long:  "Generates the Typst markup that compile-json would compile, from a ResumeData JSON file, using a template's configuration.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings(cmd, global, func(c *config.Config) {
				if cmd.Flags().Changed("escape-strings") {
					c.EscapeStrings = opts.escapeStrings
				}
			})
			if err != nil {
				return err
			}
			return runRender(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "Template name (defaults to the configured default template)")
	cmd.Flags().StringVarP(&opts.inputFile, "input", "i", "", "Path to ResumeData JSON file, or - for stdin (required)")
	cmd.Flags().StringVarP(&opts.outputFile, "out", "o", "", "Path to output Typst file (defaults to stdout)")
	cmd.Flags().BoolVar(&opts.escapeStrings, "escape-strings", false, "Escape quotes and backslashes in generated string literals")

	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runRender(cmd *cobra.Command, cfg config.Config, opts *renderOptions) error {
	name := opts.template
	if name == "" {
		name = cfg.DefaultTemplate
	}

	store := templates.NewStore(cfg.TemplatesDir, zap.NewNop())
	tplCfg, err := store.Config(name)
	if err != nil {
		return err
	}

	data, err := readResumeData(cmd, opts.inputFile)
	if err != nil {
		return err
	}

	markup := rendering.RenderWithOptions(data, tplCfg, rendering.Options{EscapeStrings: cfg.EscapeStrings})

	if opts.outputFile == "" {
		_, err = io.WriteString(cmd.OutOrStdout(), markup)
		return err
	}
	if err := os.WriteFile(opts.outputFile, []byte(markup), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Rendered %s markup to %s\n", name, opts.outputFile)
	return nil
}

func readResumeData(cmd *cobra.Command, path string) (*types.ResumeData, error) {
	var (
		content []byte
		err     error
	)
	if path == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resume data: %w", err)
	}

	var data types.ResumeData
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("failed to parse resume data JSON: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resume data: %w", err)
	}
	return &data, nil
}
