package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonathan/flash-resume/internal/config"
	"github.com/jonathan/flash-resume/internal/server/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const minimalConf = `{
  "name": "minimal-1",
  "displayName": "Minimal",
  "description": "Single column resume",
  "mainFile": "main.typ",
  "functions": ["work", "education"],
  "style": {
    "primary_font": "Inter",
    "font_size": "10pt",
    "accent_color": "#1f4e79"
  }
}`

const minimalMain = `#import "src/resume.typ": *

// PERSONAL INFORMATION
#let author-info = (firstname: "Ada")
`

// copyStub answers --version and otherwise copies the staged input to the output path.
const copyStub = `if [ "$1" = "--version" ]; then echo "typst 0.12.0"; exit 0; fi
cp "$2" "$3"`

func writeStub(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub compiler requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "typst-stub")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func writeTemplate(t *testing.T, root, name, conf, main string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	if conf != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "conf.json"), []byte(conf), 0644))
	}
	if main != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "main.typ"), []byte(main), 0644))
	}
}

type testServer struct {
	*Server
	root string
}

func newTestServer(t *testing.T, stub string, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	root := t.TempDir()
	writeTemplate(t, root, "minimal-1", minimalConf, minimalMain)

	svc := config.Defaults()
	svc.TemplatesDir = root
	svc.CompilerBinary = writeStub(t, stub)
	for _, m := range mutate {
		m(&svc)
	}

	s, err := New(Config{
		Service:   svc,
		Logger:    zap.NewNop(),
		RateLimit: &ratelimit.Config{Enabled: false},
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return &testServer{Server: s, root: root}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	return ts.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func (ts *testServer) mainFile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(ts.root, "minimal-1", "main.typ"))
	require.NoError(t, err)
	return string(data)
}

func TestCompile_ReturnsCompilerOutput(t *testing.T) {
	ts := newTestServer(t, copyStub)

	rec := ts.do(formRequest("/templates/minimal-1/compile", url.Values{"content": {"Hello"}}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "inline; filename=minimal-1-resume.pdf", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Hello", rec.Body.String())
	assert.Equal(t, minimalMain, ts.mainFile(t))
}

func TestCompile_Multipart(t *testing.T) {
	ts := newTestServer(t, copyStub)

	body := "--b\r\nContent-Disposition: form-data; name=\"content\"\r\n\r\nFrom multipart\r\n--b--\r\n"
	req := httptest.NewRequest(http.MethodPost, "/templates/minimal-1/compile", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")

	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "From multipart", rec.Body.String())
}

func TestCompile_MissingContent(t *testing.T) {
	ts := newTestServer(t, copyStub)

	rec := ts.do(formRequest("/templates/minimal-1/compile", url.Values{}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "content")
}

func TestCompile_CompilationErrorPassesDiagnostics(t *testing.T) {
	ts := newTestServer(t, `echo "error: unexpected end of block" >&2; exit 1`)

	rec := ts.do(formRequest("/templates/minimal-1/compile", url.Values{"content": {"#{"}}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "Template compilation failed: error: unexpected end of block")
	assert.Equal(t, minimalMain, ts.mainFile(t))
}

func TestCompile_OutputMissing(t *testing.T) {
	ts := newTestServer(t, `exit 0`)

	rec := ts.do(formRequest("/templates/minimal-1/compile", url.Values{"content": {"x"}}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "PDF output file was not created", decodeBody(t, rec)["detail"])
}

func TestCompile_Timeout(t *testing.T) {
	ts := newTestServer(t, `exec sleep 10`, func(c *config.Config) {
		c.CompileTimeout = config.Duration(200 * time.Millisecond)
	})

	rec := ts.do(formRequest("/templates/minimal-1/compile", url.Values{"content": {"x"}}))

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "timed out")
	assert.Equal(t, minimalMain, ts.mainFile(t))
}

func TestCompile_UnknownTemplate(t *testing.T) {
	ts := newTestServer(t, copyStub)

	rec := ts.do(formRequest("/templates/nope/compile", url.Values{"content": {"x"}}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "nope")
}

func TestCompile_ConcurrentRequests(t *testing.T) {
	ts := newTestServer(t, `sleep 0.05; cp "$2" "$3"`)

	const n = 8
	var wg sync.WaitGroup
	bodies := make([]string, n)
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := ts.do(formRequest("/templates/minimal-1/compile", url.Values{"content": {fmt.Sprintf("doc-%d", i)}}))
			codes[i] = rec.Code
			bodies[i] = rec.Body.String()
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, http.StatusOK, codes[i])
		assert.Equal(t, fmt.Sprintf("doc-%d", i), bodies[i])
	}
	assert.Equal(t, minimalMain, ts.mainFile(t))
}

func TestCompile_ConcurrentRequestsClobberingMainFile(t *testing.T) {
	ts := newTestServer(t, `echo "clobber" > main.typ; sleep 0.05; cp "$2" "$3"`, func(c *config.Config) {
		c.MaxConcurrent = 8
	})

	const n = 8
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := ts.do(formRequest("/templates/minimal-1/compile", url.Values{"content": {fmt.Sprintf("doc-%d", i)}}))
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, http.StatusOK, codes[i])
	}
	assert.Equal(t, minimalMain, ts.mainFile(t))
}

func TestCompile_InterleavedWithConfigUpdates(t *testing.T) {
	ts := newTestServer(t, `echo "clobber" > main.typ; sleep 0.05; cp "$2" "$3"`, func(c *config.Config) {
		c.MaxConcurrent = 8
	})

	const n = 8
	var wg sync.WaitGroup
	codes := make([]int, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			rec := ts.do(formRequest("/templates/minimal-1/compile", url.Values{"content": {fmt.Sprintf("doc-%d", i)}}))
			codes[i] = rec.Code
		}(i)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"style": {"font_size": "%dpt"}}`, 10+i)
			rec := ts.do(httptest.NewRequest(http.MethodPut, "/templates/minimal-1/config", strings.NewReader(body)))
			codes[n+i] = rec.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "request %d", i)
	}
	assert.Equal(t, minimalMain, ts.mainFile(t))
}

func TestCompileJSON_RendersMarkup(t *testing.T) {
	ts := newTestServer(t, copyStub)

	body := `{
		"personalInfo": {"firstname": "Ada", "lastname": "Lovelace", "email": "ada@x.io"},
		"sections": [
			{"title": "Experience", "items": [{"type": "work", "data": {"title": "Analyst", "company": "Engine"}}]}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/templates/minimal-1/compile-json", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := rec.Body.String()
	assert.Contains(t, out, "// Template: Minimal")
	assert.Contains(t, out, `#import "src/resume.typ": *`)
	assert.Contains(t, out, `  firstname: "Ada",`)
	assert.Contains(t, out, "= Experience")
	assert.Less(t, strings.Index(out, `title: "Analyst"`), strings.Index(out, `company: "Engine"`))
}

func TestCompileJSON_Invalid(t *testing.T) {
	ts := newTestServer(t, copyStub)

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"personalInfo":`},
		{"missing email", `{"personalInfo": {"firstname": "A", "lastname": "B"}, "sections": []}`},
		{"section without title", `{"personalInfo": {"firstname": "A", "lastname": "B", "email": "e"}, "sections": [{"items": []}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/templates/minimal-1/compile-json", strings.NewReader(tt.body))
			rec := ts.do(req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["detail"])
		})
	}
}

func TestPreview_CompilesDefaultContent(t *testing.T) {
	ts := newTestServer(t, copyStub)

	rec := ts.get("/templates/minimal-1/preview")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, minimalMain, rec.Body.String())
}

func TestListTemplates(t *testing.T) {
	ts := newTestServer(t, copyStub)
	writeTemplate(t, ts.root, "broken", `{not json`, "")
	writeTemplate(t, ts.root, "bare", "", "")
	writeTemplate(t, ts.root, ".hidden", minimalConf, "")

	for _, path := range []string{"/templates", "/templates/"} {
		t.Run(path, func(t *testing.T) {
			rec := ts.get(path)
			require.Equal(t, http.StatusOK, rec.Code)

			var body struct {
				Templates []struct {
					Name   string         `json:"name"`
					Config map[string]any `json:"config"`
				} `json:"templates"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Len(t, body.Templates, 3)

			assert.Equal(t, "bare", body.Templates[0].Name)
			assert.Equal(t, []any{}, body.Templates[0].Config["functions"])
			assert.Equal(t, "broken", body.Templates[1].Name)
			assert.Equal(t, "Invalid configuration", body.Templates[1].Config["error"])
			assert.Equal(t, "minimal-1", body.Templates[2].Name)
			assert.Equal(t, "Minimal", body.Templates[2].Config["displayName"])
		})
	}
}

func TestGetTemplate(t *testing.T) {
	ts := newTestServer(t, copyStub)

	rec := ts.get("/templates/minimal-1")
	require.Equal(t, http.StatusOK, rec.Code)

	tpl := decodeBody(t, rec)["template"].(map[string]any)
	assert.Equal(t, "minimal-1", tpl["name"])
	style := tpl["style"].(map[string]any)
	assert.Equal(t, "Inter", style["primary_font"])
	assert.Equal(t, "us-letter", style["paper_size"], "absent fields take defaults")
}

func TestGetTemplate_NotFound(t *testing.T) {
	ts := newTestServer(t, copyStub)

	rec := ts.get("/templates/does-not-exist")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "does-not-exist")
}

func TestGetTemplate_InvalidConfig(t *testing.T) {
	ts := newTestServer(t, copyStub)
	writeTemplate(t, ts.root, "broken", `{"name": "broken"}`, "")

	rec := ts.get("/templates/broken")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "Invalid configuration file for template 'broken'")
}

func TestGetTemplate_HiddenDirectoryIsNotFound(t *testing.T) {
	ts := newTestServer(t, copyStub)
	writeTemplate(t, ts.root, ".hidden", minimalConf, minimalMain)

	rec := ts.get("/templates/.hidden")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFunctions(t *testing.T) {
	ts := newTestServer(t, copyStub)

	rec := ts.get("/templates/minimal-1/functions")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "minimal-1", body["template"])
	assert.Equal(t, []any{"work", "education"}, body["functions"])
}

func TestGetContent(t *testing.T) {
	ts := newTestServer(t, copyStub)

	rec := ts.get("/templates/minimal-1/content")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, minimalMain, body["content"])
	assert.Equal(t, "minimal-1", body["template"])
	assert.Equal(t, "main.typ", body["mainFile"])
	assert.NotNil(t, body["config"])
}

func TestUpdateConfig_MergesStyle(t *testing.T) {
	ts := newTestServer(t, copyStub)

	before := decodeBody(t, ts.get("/templates/minimal-1"))["template"].(map[string]any)["style"].(map[string]any)

	req := httptest.NewRequest(http.MethodPut, "/templates/minimal-1/config", strings.NewReader(`{"style": {"font_size": "12pt"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "Template 'minimal-1' configuration updated successfully", body["message"])
	assert.Equal(t, "12pt", body["config"].(map[string]any)["style"].(map[string]any)["font_size"])

	after := decodeBody(t, ts.get("/templates/minimal-1"))["template"].(map[string]any)["style"].(map[string]any)
	assert.Equal(t, "12pt", after["font_size"])
	for key, value := range before {
		if key == "font_size" {
			continue
		}
		assert.Equal(t, value, after[key], "style field %s changed", key)
	}
}

func TestUpdateConfig_Errors(t *testing.T) {
	ts := newTestServer(t, copyStub)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown template", "/templates/nope/config", `{}`, http.StatusNotFound},
		{"not an object", "/templates/minimal-1/config", `[1, 2]`, http.StatusUnprocessableEntity},
		{"malformed", "/templates/minimal-1/config", `{`, http.StatusUnprocessableEntity},
		{"schema violation", "/templates/minimal-1/config", `{"style": {"font_size": 12}}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(httptest.NewRequest(http.MethodPut, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	data, err := os.ReadFile(filepath.Join(ts.root, "minimal-1", "conf.json"))
	require.NoError(t, err)
	assert.JSONEq(t, minimalConf, string(data), "rejected updates leave conf.json unchanged")
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, copyStub)

	req := httptest.NewRequest(http.MethodOptions, "/templates/minimal-1/compile", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := ts.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = ts.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_CompileRoutes(t *testing.T) {
	root := t.TempDir()
	writeTemplate(t, root, "minimal-1", minimalConf, minimalMain)
	svc := config.Defaults()
	svc.TemplatesDir = root
	svc.CompilerBinary = writeStub(t, copyStub)

	s, err := New(Config{
		Service: svc,
		RateLimit: &ratelimit.Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			EndpointConfigs: ratelimit.DefaultEndpointConfigs(ratelimit.Tier{Limit: 1, Window: time.Hour, Burst: 1}),
		},
	})
	require.NoError(t, err)
	defer s.Close()
	ts := &testServer{Server: s, root: root}

	first := ts.do(formRequest("/templates/minimal-1/compile", url.Values{"content": {"a"}}))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := ts.do(formRequest("/compile", url.Values{"content": {"b"}}))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Contains(t, decodeBody(t, second)["detail"], "Rate limit exceeded")

	assert.Equal(t, http.StatusOK, ts.get("/health").Code, "health is never limited")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	svc := config.Defaults()
	svc.MaxConcurrent = 0

	_, err := New(Config{Service: svc, RateLimit: &ratelimit.Config{}})
	assert.Error(t, err)
}

func TestNew_WriteTimeoutCoversQueueAndCompile(t *testing.T) {
	ts := newTestServer(t, copyStub, func(c *config.Config) {
		c.CompileTimeout = config.Duration(20 * time.Second)
	})
	assert.Equal(t, 70*time.Second, ts.httpServer.WriteTimeout)
}
