package main

import (
	"fmt"
	"os"

	"github.com/jonathan/flash-resume/internal/config"
	"github.com/jonathan/flash-resume/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// loadSettings builds the service configuration: defaults, then the --config file,
// then FLASH_RESUME_* environment variables, then flags set on the command line.
// apply, when non-nil, lets a subcommand layer its own flags last.
func loadSettings(cmd *cobra.Command, opts *globalOptions, apply func(*config.Config)) (config.Config, error) {
	cfg := config.Defaults()

	if opts.configPath != "" {
		fileCfg, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg.MergeWithDefaults(cfg)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("templates-dir") {
		cfg.TemplatesDir = opts.templatesDir
	}
	if flags.Changed("typst-bin") {
		cfg.CompilerBinary = opts.compilerBinary
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	if apply != nil {
		apply(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger builds the configured logger.
func newLogger(cfg config.Config) (*zap.Logger, error) {
	log, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}
