package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jonathan/flash-resume/internal/compiler"
	"github.com/jonathan/flash-resume/internal/rendering"
	"github.com/jonathan/flash-resume/internal/types"
	"go.uber.org/zap"
)

const (
	maxBodyBytes  = 10 << 20
	maxFormMemory = 10 << 20
)

// handleListTemplates lists every template with its raw configuration
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List()
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"templates": summaries})
}

// handleGetTemplate returns the typed configuration of one template
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.Config(r.PathValue("name"))
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"template": cfg})
}

// handleGetFunctions returns the content functions a template supports
func (s *Server) handleGetFunctions(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	functions, err := s.store.Functions(name)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if functions == nil {
		functions = []string{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"template":  name,
		"functions": functions,
	})
}

// handleGetContent returns a template's default main file with its configuration
func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	cfg, err := s.store.Config(name)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	content, err := s.store.Content(name)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"content":  content,
		"template": name,
		"mainFile": cfg.MainFile,
		"config":   cfg,
	})
}

// handleCompile compiles the form field "content" with the template
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	content, err := formContent(w, r)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.compileAndRespond(w, r, name, staticContent(content))
}

// handleCompileJSON generates markup from structured resume data and compiles it
func (s *Server) handleCompileJSON(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var data types.ResumeData
	if err := decodeJSONBody(w, r, &data); err != nil {
		s.failure(w, r, err)
		return
	}
	if err := data.Validate(); err != nil {
		s.failure(w, r, &RequestError{Message: "invalid resume data", Cause: err})
		return
	}

	s.compileAndRespond(w, r, name, func(cfg *types.TemplateConfig) (string, error) {
		return rendering.RenderWithOptions(&data, cfg, s.renderOptions), nil
	})
}

// handleUpdateConfig deep-merges the request body into the template's conf.json
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.failure(w, r, &RequestError{Message: "failed to read request body", Cause: err})
		return
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var patch map[string]any
	if err := dec.Decode(&patch); err != nil || patch == nil {
		s.failure(w, r, &RequestError{Message: "request body must be a JSON object", Cause: err})
		return
	}

	merged, err := s.store.UpdateConfig(name, patch)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Template '%s' configuration updated successfully", name),
		"config":  merged,
	})
}

// handlePreview compiles the template's own main file
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.compileAndRespond(w, r, name, s.defaultContent(name))
}

// contentFunc produces the markup to compile once the template's configuration is loaded.
type contentFunc func(cfg *types.TemplateConfig) (string, error)

func staticContent(content string) contentFunc {
	return func(*types.TemplateConfig) (string, error) { return content, nil }
}

func (s *Server) defaultContent(name string) contentFunc {
	return func(*types.TemplateConfig) (string, error) { return s.store.Content(name) }
}

func (s *Server) compileAndRespond(w http.ResponseWriter, r *http.Request, name string, content contentFunc) {
	pdf, err := s.compile(r.Context(), name, content)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.pdfResponse(w, name, pdf)
}

// compile holds the template's shared lock for the whole job, so a concurrent
// configuration update waits until the directory has been restored.
func (s *Server) compile(ctx context.Context, name string, content contentFunc) ([]byte, error) {
	dir, err := s.store.Dir(name)
	if err != nil {
		return nil, err
	}

	release := s.store.ReadLock(name)
	defer release()

	cfg, err := s.store.Config(name)
	if err != nil {
		return nil, err
	}
	text, err := content(cfg)
	if err != nil {
		return nil, err
	}

	s.log.Debug("compiling template", zap.String("template", name), zap.Int("content_bytes", len(text)))
	return s.compiler.Compile(ctx, compiler.Job{
		Template: name,
		Dir:      dir,
		MainFile: cfg.MainFile,
		Content:  text,
	})
}

// formContent reads the required "content" field from a urlencoded or multipart form.
func formContent(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return "", &RequestError{Message: "invalid form body", Cause: err}
	}
	values, ok := r.PostForm["content"]
	if !ok || len(values) == 0 {
		return "", &RequestError{Message: "form field 'content' is required"}
	}
	return values[0], nil
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &RequestError{Message: "invalid JSON body", Cause: err}
	}
	return nil
}
