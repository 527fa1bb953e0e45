package main

import (
	"fmt"

	"github.com/jonathan/flash-resume/internal/config"
	"github.com/jonathan/flash-resume/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long:  `Start an HTTP server that exposes the template and legacy compile endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings(cmd, global, serveOverrides(cmd))
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().IntP("port", "p", 8000, "Port to listen on")
	cmd.Flags().String("default-template", "", "Template served by the legacy endpoints")
	cmd.Flags().Duration("timeout", 0, "Maximum duration of one compile")
	cmd.Flags().Int("max-concurrent", 0, "Maximum number of compiler processes at once")
	cmd.Flags().Bool("escape-strings", false, "Escape quotes and backslashes in generated string literals")
	return cmd
}

// serveOverrides applies the serve flags that were set explicitly.
func serveOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("port") {
			cfg.Port, _ = flags.GetInt("port")
		}
		if flags.Changed("default-template") {
			cfg.DefaultTemplate, _ = flags.GetString("default-template")
		}
		if flags.Changed("timeout") {
			timeout, _ := flags.GetDuration("timeout")
			cfg.CompileTimeout = config.Duration(timeout)
		}
		if flags.Changed("max-concurrent") {
			cfg.MaxConcurrent, _ = flags.GetInt("max-concurrent")
		}
		if flags.Changed("escape-strings") {
			cfg.EscapeStrings, _ = flags.GetBool("escape-strings")
		}
	}
}

func runServe(cfg config.Config) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting flash resume",
		zap.Int("port", cfg.Port),
		zap.String("templates_dir", cfg.TemplatesDir),
		zap.String("default_template", cfg.DefaultTemplate),
		zap.String("typst_bin", cfg.CompilerBinary),
		zap.Duration("compile_timeout", cfg.Timeout()),
		zap.Int("max_concurrent_compiles", cfg.MaxConcurrent),
	)

	srv, err := server.New(server.Config{Service: cfg, Logger: log})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
