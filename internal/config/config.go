// Package config provides configuration loading and validation for the flash-resume service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Environment variable names. Each overrides the matching config file field.
const (
	EnvPort            = "FLASH_RESUME_PORT"
	EnvTemplatesDir    = "FLASH_RESUME_TEMPLATES_DIR"
	EnvDefaultTemplate = "FLASH_RESUME_DEFAULT_TEMPLATE"
	EnvCompilerBinary  = "FLASH_RESUME_TYPST_BIN"
	EnvCompileTimeout  = "FLASH_RESUME_COMPILE_TIMEOUT"
	EnvMaxConcurrent   = "FLASH_RESUME_MAX_CONCURRENT_COMPILES"
	EnvCORSOrigins     = "FLASH_RESUME_CORS_ORIGINS"
	EnvLogLevel        = "FLASH_RESUME_LOG_LEVEL"
	EnvLogFormat       = "FLASH_RESUME_LOG_FORMAT"
	EnvEscapeStrings   = "FLASH_RESUME_ESCAPE_STRINGS"
)

// Duration is a time.Duration that reads and writes as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds")
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config represents the service configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults.
type Config struct {
	Port            int      `json:"port,omitempty"`
	TemplatesDir    string   `json:"templates_dir,omitempty"`    // Root directory holding one directory per template
	DefaultTemplate string   `json:"default_template,omitempty"` // Template bound to the legacy endpoints
	CompilerBinary  string   `json:"compiler_binary,omitempty"`  // Typst executable
	CompileTimeout  Duration `json:"compile_timeout,omitempty"`
	MaxConcurrent   int      `json:"max_concurrent_compiles,omitempty"`
	CORSOrigins     []string `json:"cors_origins,omitempty"`
	LogLevel        string   `json:"log_level,omitempty"`
	LogFormat       string   `json:"log_format,omitempty"`     // json or console
	EscapeStrings   bool     `json:"escape_strings,omitempty"` // Escape quotes in generated string literals
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:            8000,
		TemplatesDir:    "templates",
		DefaultTemplate: "minimal-1",
		CompilerBinary:  "typst",
		CompileTimeout:  Duration(30 * time.Second),
		MaxConcurrent:   4,
		CORSOrigins:     []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Timeout returns the compile timeout as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.CompileTimeout)
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.Port = port
	}
	if v, ok := get(EnvTemplatesDir); ok {
		c.TemplatesDir = v
	}
	if v, ok := get(EnvDefaultTemplate); ok {
		c.DefaultTemplate = v
	}
	if v, ok := get(EnvCompilerBinary); ok {
		c.CompilerBinary = v
	}
	if v, ok := get(EnvCompileTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCompileTimeout, err)
		}
		c.CompileTimeout = Duration(d)
	}
	if v, ok := get(EnvMaxConcurrent); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxConcurrent, err)
		}
		c.MaxConcurrent = n
	}
	if v, ok := get(EnvCORSOrigins); ok {
		c.CORSOrigins = splitList(v)
	}
	if v, ok := get(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := get(EnvLogFormat); ok {
		c.LogFormat = v
	}
	if v, ok := get(EnvEscapeStrings); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvEscapeStrings, err)
		}
		c.EscapeStrings = b
	}
	return nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 1 and 65535, got %d", c.Port)
	}
	if c.TemplatesDir == "" {
		return fmt.Errorf("config error: 'templates_dir' must not be empty")
	}
	if c.DefaultTemplate == "" || strings.ContainsAny(c.DefaultTemplate, `/\`) {
		return fmt.Errorf("config error: 'default_template' must be a template directory name")
	}
	if c.CompilerBinary == "" {
		return fmt.Errorf("config error: 'compiler_binary' must not be empty")
	}
	if c.CompileTimeout <= 0 {
		return fmt.Errorf("config error: 'compile_timeout' must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("config error: 'max_concurrent_compiles' must be positive")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values over the built-in defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.TemplatesDir == "" {
		result.TemplatesDir = defaults.TemplatesDir
	}
	if result.DefaultTemplate == "" {
		result.DefaultTemplate = defaults.DefaultTemplate
	}
	if result.CompilerBinary == "" {
		result.CompilerBinary = defaults.CompilerBinary
	}
	if result.CompileTimeout == 0 {
		result.CompileTimeout = defaults.CompileTimeout
	}
	if result.MaxConcurrent == 0 {
		result.MaxConcurrent = defaults.MaxConcurrent
	}
	if len(result.CORSOrigins) == 0 {
		result.CORSOrigins = defaults.CORSOrigins
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (an explicit true in the file or env wins)

	return result
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
