package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidJSON(t *testing.T) {
	content := `{
		"port": 9000,
		"templates_dir": "/srv/templates",
		"default_template": "modern-2",
		"compile_timeout": "45s",
		"max_concurrent_compiles": 2,
		"escape_strings": true
	}`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/srv/templates", cfg.TemplatesDir)
	assert.Equal(t, "modern-2", cfg.DefaultTemplate)
	assert.Equal(t, 45*time.Second, cfg.Timeout())
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.True(t, cfg.EscapeStrings)
}

func TestLoadConfig_NumericTimeout(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{"compile_timeout": 10}`), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Timeout())
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	content := `{ invalid json }`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_BadDuration(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{"compile_timeout": "soon"}`), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestMergeWithDefaults(t *testing.T) {
	partial := Config{Port: 9000, LogLevel: "debug"}
	merged := partial.MergeWithDefaults(Defaults())

	assert.Equal(t, 9000, merged.Port)
	assert.Equal(t, "debug", merged.LogLevel)
	assert.Equal(t, "templates", merged.TemplatesDir)
	assert.Equal(t, "minimal-1", merged.DefaultTemplate)
	assert.Equal(t, "typst", merged.CompilerBinary)
	assert.Equal(t, 30*time.Second, merged.Timeout())
	assert.Equal(t, 4, merged.MaxConcurrent)
	assert.Len(t, merged.CORSOrigins, 2)
	assert.NoError(t, merged.Validate())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvPort:            "8080",
		EnvTemplatesDir:    "/data/templates",
		EnvDefaultTemplate: "classic",
		EnvCompilerBinary:  "/usr/local/bin/typst",
		EnvCompileTimeout:  "1m",
		EnvMaxConcurrent:   "8",
		EnvCORSOrigins:     "https://a.example, https://b.example,",
		EnvLogLevel:        "warn",
		EnvLogFormat:       "console",
		EnvEscapeStrings:   "true",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Defaults()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/data/templates", cfg.TemplatesDir)
	assert.Equal(t, "classic", cfg.DefaultTemplate)
	assert.Equal(t, "/usr/local/bin/typst", cfg.CompilerBinary)
	assert.Equal(t, time.Minute, cfg.Timeout())
	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.True(t, cfg.EscapeStrings)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	for _, key := range []string{EnvPort, EnvCompileTimeout, EnvMaxConcurrent, EnvEscapeStrings} {
		t.Run(key, func(t *testing.T) {
			cfg := Defaults()
			err := cfg.ApplyEnv(func(k string) (string, bool) {
				if k == key {
					return "not-a-value", true
				}
				return "", false
			})
			assert.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestApplyEnv_IgnoresEmpty(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.ApplyEnv(func(string) (string, bool) { return "  ", true }))
	assert.Equal(t, Defaults(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Port = 0 }, "port"},
		{"port too large", func(c *Config) { c.Port = 70000 }, "port"},
		{"empty templates dir", func(c *Config) { c.TemplatesDir = "" }, "templates_dir"},
		{"default template with slash", func(c *Config) { c.DefaultTemplate = "a/b" }, "default_template"},
		{"empty binary", func(c *Config) { c.CompilerBinary = "" }, "compiler_binary"},
		{"zero timeout", func(c *Config) { c.CompileTimeout = 0 }, "compile_timeout"},
		{"zero concurrency", func(c *Config) { c.MaxConcurrent = 0 }, "max_concurrent_compiles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}
