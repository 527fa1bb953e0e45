// Package main provides the entry point for the Flash Resume Typst compiler API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath     string
	templatesDir   string
	compilerBinary string
	logLevel       string
	logFormat      string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "flash_resume",
		Short:         "Flash Resume Typst compiler API",
		Long:          "Flash Resume compiles resumes from Typst templates, either from raw markup or from structured JSON, and serves them over a REST API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a JSON service configuration file")
	flags.StringVar(&opts.templatesDir, "templates-dir", "", "Directory containing one directory per template")
	flags.StringVar(&opts.compilerBinary, "typst-bin", "", "Typst executable")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format (json or console)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newRenderCmd(opts),
		newTemplatesCmd(opts),
		newHealthCmd(opts),
	)
	return rootCmd
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
