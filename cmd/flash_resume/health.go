package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/flash-resume/internal/compiler"
	"github.com/jonathan/flash-resume/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newHealthCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the Typst compiler and templates directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings(cmd, global, nil)
			if err != nil {
				return err
			}
			return runHealth(cmd, cfg)
		},
	}
}

func runHealth(cmd *cobra.Command, cfg config.Config) error {
	out := cmd.OutOrStdout()
	comp := compiler.New(compiler.Config{Binary: cfg.CompilerBinary}, zap.NewNop())

	version, versionErr := comp.Version(context.Background())
	if versionErr != nil {
		fmt.Fprintf(out, "typst: unavailable (%v)\n", versionErr)
	} else {
		fmt.Fprintf(out, "typst: %s\n", version)
	}

	info, statErr := os.Stat(cfg.TemplatesDir)
	templatesExist := statErr == nil && info.IsDir()
	fmt.Fprintf(out, "templates: %s (exists: %t)\n", cfg.TemplatesDir, templatesExist)

	if versionErr != nil || !templatesExist {
		return fmt.Errorf("unhealthy")
	}
	return nil
}
