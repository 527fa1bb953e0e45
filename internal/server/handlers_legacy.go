package server

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jonathan/flash-resume/internal/rendering"
	"github.com/jonathan/flash-resume/internal/types"
)

const healthCheckTimeout = 5 * time.Second

// handleRoot reports that the API is running
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"message": "Flash Resume Typst Compiler API",
		"status":  "running",
	})
}

// handleLegacyCompile compiles form content with the default template
func (s *Server) handleLegacyCompile(w http.ResponseWriter, r *http.Request) {
	content, err := formContent(w, r)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.compileAndRespond(w, r, s.defaultTemplate, staticContent(content))
}

// handleLegacyTemplateContent returns the default template's main file
func (s *Server) handleLegacyTemplateContent(w http.ResponseWriter, r *http.Request) {
	content, err := s.store.Content(s.defaultTemplate)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"content": content})
}

// handleEditableContent returns the default template's main file from the personal
// information marker onward. Failures are reported in the body with status 200.
func (s *Server) handleEditableContent(w http.ResponseWriter, _ *http.Request) {
	content, err := s.store.Content(s.defaultTemplate)
	if err != nil {
		s.jsonResponse(w, http.StatusOK, map[string]string{
			"content": "// Error loading template content",
			"error":   err.Error(),
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"content": EditableContent(content)})
}

// EditableContent slices content from the personal information marker onward.
// Content without the marker is returned unchanged.
func EditableContent(content string) string {
	if i := strings.Index(content, rendering.PersonalInfoMarker); i >= 0 {
		return content[i:]
	}
	return content
}

// legacyConfig is the TOML projection served by GET /config.
type legacyConfig struct {
	Theme      legacyTheme              `toml:"theme"`
	Style      types.TemplateStyle      `toml:"style"`
	Formatting types.TemplateFormatting `toml:"formatting"`
	Features   types.TemplateFeatures   `toml:"features"`
	Advanced   types.TemplateAdvanced   `toml:"advanced"`
}

type legacyTheme struct {
	Active string `toml:"active"`
}

// LegacyTOML renders the typed configuration as the TOML document older clients expect.
func LegacyTOML(cfg *types.TemplateConfig) (string, error) {
	doc := legacyConfig{
		Theme:      legacyTheme{Active: cfg.Name},
		Style:      cfg.Style,
		Formatting: cfg.Formatting,
		Features:   cfg.Features,
		Advanced:   cfg.Advanced,
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// handleLegacyConfig returns the default template's configuration as TOML.
// Failures are reported in the body with status 200.
func (s *Server) handleLegacyConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.store.Config(s.defaultTemplate)
	if err == nil {
		var content string
		if content, err = LegacyTOML(cfg); err == nil {
			s.jsonResponse(w, http.StatusOK, map[string]string{"content": content})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"content": "# Error loading config",
		"error":   err.Error(),
	})
}

// handleLegacyUpdateConfig accepts and ignores a config update. Use
// PUT /templates/{name}/config to change a template's configuration.
func (s *Server) handleLegacyUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if _, err := formContent(w, r); err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"message": "Config updates are read-only in the new template system",
	})
}

// handleCompileDirect compiles the default template's own main file
func (s *Server) handleCompileDirect(w http.ResponseWriter, r *http.Request) {
	s.compileAndRespond(w, r, s.defaultTemplate, s.defaultContent(s.defaultTemplate))
}

// handleHealth reports compiler availability and whether the templates directory exists
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	available := true
	version, err := s.compiler.Version(ctx)
	if err != nil {
		status = "unhealthy"
		available = false
		version = err.Error()
	}

	info, statErr := os.Stat(s.store.Root())
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":          status,
		"typst_available": available,
		"typst_version":   version,
		"templates_dir":   s.store.Root(),
		"templates_exist": statErr == nil && info.IsDir(),
	})
}
