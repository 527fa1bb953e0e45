// Package compiler runs the external Typst compiler against a template directory.
//
// Each job stages its content under names unique to the job inside the template directory,
// so concurrent jobs on the same template never share a staged or output path. The template's
// main file is recorded once by the first job and written back by the last one.
package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultBinary is the compiler executable looked up on PATH.
	DefaultBinary = "typst"

	// DefaultTimeout is the maximum wall-clock time of one compiler invocation.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxConcurrent bounds the number of compiler processes running at once.
	DefaultMaxConcurrent = 4

	versionTimeout = 5 * time.Second
	waitDelay      = 2 * time.Second
)

// Config holds compiler settings.
type Config struct {
	Binary        string
	Timeout       time.Duration
	MaxConcurrent int

	// QueueTimeout bounds the wait for a free slot. Zero means Timeout.
	QueueTimeout time.Duration
}

// Job describes one compilation: content compiled in place of a template's main file.
type Job struct {
	Template string
	Dir      string
	MainFile string
	Content  string
}

// Compiler stages, invokes and cleans up compile jobs.
type Compiler struct {
	binary       string
	timeout      time.Duration
	queueTimeout time.Duration
	slots        *semaphore.Weighted
	log          *zap.Logger

	mu     sync.Mutex
	guards map[string]*mainGuard
}

// mainGuard tracks the jobs running against one canonical main file.
type mainGuard struct {
	refs     int
	existed  bool
	pristine []byte
	mode     fs.FileMode
}

// New creates a compiler. Zero config fields take their defaults.
func New(cfg Config, log *zap.Logger) *Compiler {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = cfg.Timeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Compiler{
		binary:       cfg.Binary,
		timeout:      cfg.Timeout,
		queueTimeout: cfg.QueueTimeout,
		slots:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		log:          log,
		guards:       make(map[string]*mainGuard),
	}
}

// paths are the files one job touches, all inside the template directory.
type paths struct {
	canonical string
	staged    string
	output    string
	// relative to the template directory, as passed to the compiler
	stagedArg string
	outputArg string
}

func jobPaths(dir, mainFile, id string) paths {
	sub, base := filepath.Split(mainFile)
	stagedArg := filepath.Join(sub, fmt.Sprintf("temp_%s_%s", id, base))
	outputArg := fmt.Sprintf("output_%s.pdf", id)
	canonical := filepath.Join(dir, mainFile)
	return paths{
		canonical: canonical,
		staged:    filepath.Join(dir, stagedArg),
		output:    filepath.Join(dir, outputArg),
		stagedArg: stagedArg,
		outputArg: outputArg,
	}
}

// Compile runs one job and returns the PDF bytes.
// The template's main file is restored and the job's own files removed before Compile returns,
// whatever the outcome.
func (c *Compiler) Compile(ctx context.Context, job Job) ([]byte, error) {
	if err := c.acquireSlot(ctx, job.Template); err != nil {
		return nil, err
	}
	defer c.slots.Release(1)

	id := uuid.NewString()
	p := jobPaths(job.Dir, job.MainFile, id)
	log := c.log.With(zap.String("template", job.Template), zap.String("job_id", id))

	if err := c.acquireMain(p.canonical); err != nil {
		return nil, err
	}
	defer c.releaseMain(log, p.canonical)

	err := os.WriteFile(p.staged, []byte(job.Content), 0644)
	defer c.cleanup(log, p)
	if err != nil {
		return nil, &StagingError{Message: "failed to write staged content", Cause: err}
	}

	start := time.Now()
	pdf, err := c.invoke(ctx, job, p)
	if err != nil {
		log.Error("template compilation failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, err
	}

	log.Info("template compiled",
		zap.Int("bytes", len(pdf)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return pdf, nil
}

// acquireSlot waits at most the queue timeout for a compiler slot.
func (c *Compiler) acquireSlot(ctx context.Context, template string) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.queueTimeout)
	defer cancel()

	if err := c.slots.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return &InvocationError{Message: "gave up waiting for a compiler slot", Cause: ctx.Err()}
		}
		return &BusyError{Template: template, Wait: c.queueTimeout}
	}
	return nil
}

// acquireMain registers a job against the canonical main file.
// The first job in records the file's content before any compiler runs.
func (c *Compiler) acquireMain(canonical string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.guards[canonical]; ok {
		g.refs++
		return nil
	}

	g := &mainGuard{refs: 1}
	info, err := os.Stat(canonical)
	switch {
	case err == nil:
		data, readErr := os.ReadFile(canonical)
		if readErr != nil {
			return &StagingError{Message: "failed to back up main file", Cause: readErr}
		}
		g.existed, g.pristine, g.mode = true, data, info.Mode().Perm()
	case !errors.Is(err, fs.ErrNotExist):
		return &StagingError{Message: "failed to stat main file", Cause: err}
	}
	c.guards[canonical] = g
	return nil
}

// releaseMain drops a job's registration. The last job out writes the recorded content back.
// Failures are logged, never returned: they must not replace the job's own result.
func (c *Compiler) releaseMain(log *zap.Logger, canonical string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.guards[canonical]
	if !ok {
		return
	}
	g.refs--
	if g.refs > 0 {
		return
	}
	delete(c.guards, canonical)

	if !g.existed {
		return
	}
	err := atomic.WriteFile(canonical, bytes.NewReader(g.pristine))
	if err == nil {
		err = os.Chmod(canonical, g.mode)
	}
	if err != nil {
		log.Error("failed to restore main file from backup",
			zap.String("main_file", canonical),
			zap.Bool("inconsistent", true),
			zap.Error(err),
		)
	}
}

func (c *Compiler) invoke(ctx context.Context, job Job, p paths) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.binary, "compile", p.stagedArg, p.outputArg)
	cmd.Dir = job.Dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		if ctx.Err() != nil {
			return nil, &InvocationError{Message: "compilation canceled", Cause: ctx.Err()}
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Template: job.Template, Timeout: c.timeout}
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			diagnostics := stderr.String()
			if strings.TrimSpace(diagnostics) == "" {
				diagnostics = stdout.String()
			}
			return nil, &CompilationError{
				Template:    job.Template,
				Diagnostics: diagnostics,
				ExitCode:    exitErr.ExitCode(),
			}
		}
		return nil, &InvocationError{Message: fmt.Sprintf("failed to run %s", c.binary), Cause: runErr}
	}

	pdf, err := os.ReadFile(p.output)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &OutputMissingError{Template: job.Template}
		}
		return nil, &StagingError{Message: "failed to read compiler output", Cause: err}
	}
	return pdf, nil
}

// cleanup removes the job's staged and output files.
func (c *Compiler) cleanup(log *zap.Logger, p paths) {
	for _, path := range []string{p.staged, p.output} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Error("failed to remove job file",
				zap.String("path", path),
				zap.Bool("inconsistent", true),
				zap.Error(err),
			)
		}
	}
}

// Version runs the compiler's --version and returns its trimmed output.
func (c *Compiler) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, "--version")
	cmd.Stdout = &stdout
	cmd.WaitDelay = waitDelay
	if err := cmd.Run(); err != nil {
		return "", &InvocationError{Message: fmt.Sprintf("failed to run %s --version", c.binary), Cause: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}
