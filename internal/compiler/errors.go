package compiler

import (
	"fmt"
	"time"
)

// CompilationError means the compiler rejected the document. Diagnostics is the
// compiler's own output, passed through verbatim.
type CompilationError struct {
	Template    string
	Diagnostics string
	ExitCode    int
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("Template compilation failed: %s", e.Diagnostics)
}

// OutputMissingError means the compiler exited cleanly without producing its output file.
type OutputMissingError struct {
	Template string
}

func (e *OutputMissingError) Error() string {
	return "PDF output file was not created"
}

// TimeoutError means the compiler did not finish within the allowed time.
type TimeoutError struct {
	Template string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Template compilation timed out after %s", e.Timeout)
}

// BusyError means no compiler slot came free within the queue wait.
type BusyError struct {
	Template string
	Wait     time.Duration
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("No compiler available after waiting %s, try again later", e.Wait)
}

// StagingError represents a filesystem failure while preparing or reading a job's files.
type StagingError struct {
	Message string
	Cause   error
}

func (e *StagingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("staging error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("staging error: %s", e.Message)
}

func (e *StagingError) Unwrap() error {
	return e.Cause
}

// InvocationError means the compiler process could not be started or was interrupted.
type InvocationError struct {
	Message string
	Cause   error
}

func (e *InvocationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("compiler invocation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("compiler invocation error: %s", e.Message)
}

func (e *InvocationError) Unwrap() error {
	return e.Cause
}
