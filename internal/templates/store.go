// Package templates provides the filesystem-backed template store.
//
// A template is a directory under the store root holding a main Typst file and a conf.json.
package templates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/flash-resume/internal/schemas"
	"github.com/jonathan/flash-resume/internal/types"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

// ConfigFileName is the name of the configuration file inside each template directory.
const ConfigFileName = "conf.json"

// Summary is one entry of a template listing. Config holds the raw conf.json document,
// or a placeholder carrying an "error" key when the document cannot be parsed.
type Summary struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// Store resolves template names to directories and reads or updates their configuration.
type Store struct {
	root  string
	log   *zap.Logger
	locks *lockSet
}

// NewStore creates a store rooted at the given templates directory.
func NewStore(root string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		root:  root,
		log:   log,
		locks: newLockSet(),
	}
}

// Root returns the templates directory.
func (s *Store) Root() string {
	return s.root
}

// List returns every non-hidden template directory with its raw configuration.
// A template with an unreadable or malformed conf.json degrades to an error marker.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &StoreError{
			Message: fmt.Sprintf("failed to read templates directory %s", s.root),
			Cause:   err,
		}
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		summaries = append(summaries, Summary{
			Name:   entry.Name(),
			Config: s.rawConfigOrMarker(entry.Name()),
		})
	}
	return summaries, nil
}

func (s *Store) rawConfigOrMarker(name string) map[string]any {
	data, err := os.ReadFile(filepath.Join(s.root, name, ConfigFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{"functions": []string{}}
	}
	if err == nil {
		var doc map[string]any
		if err = json.Unmarshal(data, &doc); err == nil {
			return doc
		}
	}
	s.log.Warn("invalid template configuration",
		zap.String("template", name),
		zap.Error(err),
	)
	return map[string]any{"functions": []string{}, "error": "Invalid configuration"}
}

// Dir returns the directory of the named template.
func (s *Store) Dir(name string) (string, error) {
	if !validName(name) {
		return "", templateNotFound(name)
	}
	dir := filepath.Join(s.root, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", templateNotFound(name)
	}
	return dir, nil
}

// Config loads, validates and decodes the named template's conf.json.
// Fields absent from the document take their defaults.
func (s *Store) Config(name string) (*types.TemplateConfig, error) {
	data, err := s.readConfig(name)
	if err != nil {
		return nil, err
	}
	return decodeConfig(name, data)
}

// Functions returns the content-function names the template supports.
func (s *Store) Functions(name string) ([]string, error) {
	cfg, err := s.Config(name)
	if err != nil {
		return nil, err
	}
	return cfg.Functions, nil
}

// Content returns the text of the template's main file.
func (s *Store) Content(name string) (string, error) {
	cfg, err := s.Config(name)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(s.root, name, cfg.MainFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{
				Template: name,
				Message:  fmt.Sprintf("Main file '%s' not found in template '%s'", cfg.MainFile, name),
			}
		}
		return "", &StoreError{
			Template: name,
			Message:  fmt.Sprintf("failed to read main file of template '%s'", name),
			Cause:    err,
		}
	}
	return string(data), nil
}

// UpdateConfig deep-merges patch onto the stored conf.json and persists the result.
// The merged document must still satisfy the schema; otherwise the file is left untouched.
func (s *Store) UpdateConfig(name string, patch map[string]any) (map[string]any, error) {
	lock := s.locks.get(name)
	lock.Lock()
	defer lock.Unlock()

	data, err := s.readConfig(name)
	if err != nil {
		return nil, err
	}

	current, err := decodeDocument(data)
	if err != nil {
		s.log.Error("invalid template configuration", zap.String("template", name), zap.Error(err))
		return nil, invalidConfig(name, err)
	}

	merged := DeepMerge(current, patch)

	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, &InvalidConfigError{
			Template: name,
			Message:  fmt.Sprintf("Configuration update for template '%s' cannot be encoded", name),
			Cause:    err,
		}
	}
	if _, err := decodeConfig(name, out); err != nil {
		return nil, &InvalidConfigError{
			Template: name,
			Message:  fmt.Sprintf("Configuration update for template '%s' is invalid", name),
			Cause:    errors.Unwrap(err),
		}
	}

	path := filepath.Join(s.root, name, ConfigFileName)
	if err := atomic.WriteFile(path, bytes.NewReader(out)); err != nil {
		return nil, &StoreError{
			Template: name,
			Message:  fmt.Sprintf("failed to write configuration for template '%s'", name),
			Cause:    err,
		}
	}

	s.log.Info("template configuration updated", zap.String("template", name))
	return merged, nil
}

// ReadLock takes the template's shared lock and returns its release function.
// Holders may read conf.json and stage files; UpdateConfig waits for them.
func (s *Store) ReadLock(name string) func() {
	lock := s.locks.get(name)
	lock.RLock()
	return lock.RUnlock
}

func (s *Store) readConfig(name string) ([]byte, error) {
	dir, err := s.Dir(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, configNotFound(name)
		}
		return nil, &StoreError{
			Template: name,
			Message:  fmt.Sprintf("failed to read configuration for template '%s'", name),
			Cause:    err,
		}
	}
	return data, nil
}

func decodeDocument(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("configuration must be a JSON object")
	}
	return doc, nil
}

func decodeConfig(name string, data []byte) (*types.TemplateConfig, error) {
	if !json.Valid(data) {
		return nil, invalidConfig(name, fmt.Errorf("malformed JSON"))
	}
	if err := schemas.ValidateTemplateConfig(data); err != nil {
		return nil, invalidConfig(name, err)
	}

	cfg := types.DefaultTemplateConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, invalidConfig(name, err)
	}
	if cfg.MainFile == "" {
		cfg.MainFile = types.DefaultMainFile
	}
	if !filepath.IsLocal(cfg.MainFile) {
		return nil, invalidConfig(name, fmt.Errorf("mainFile %q escapes the template directory", cfg.MainFile))
	}
	return &cfg, nil
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.IsLocal(name)
}
