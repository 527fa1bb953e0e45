package templates

import "fmt"

// NotFoundError indicates a template directory or one of its files is absent.
type NotFoundError struct {
	Template string
	Message  string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// InvalidConfigError indicates conf.json is not valid JSON or does not satisfy the schema.
type InvalidConfigError struct {
	Template string
	Message  string
	Cause    error
}

func (e *InvalidConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InvalidConfigError) Unwrap() error {
	return e.Cause
}

// StoreError represents a filesystem failure that is neither a missing file nor a bad config.
type StoreError struct {
	Template string
	Message  string
	Cause    error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

func templateNotFound(name string) *NotFoundError {
	return &NotFoundError{
		Template: name,
		Message:  fmt.Sprintf("Template '%s' not found", name),
	}
}

func configNotFound(name string) *NotFoundError {
	return &NotFoundError{
		Template: name,
		Message:  fmt.Sprintf("Configuration file not found for template '%s'", name),
	}
}

func invalidConfig(name string, cause error) *InvalidConfigError {
	return &InvalidConfigError{
		Template: name,
		Message:  fmt.Sprintf("Invalid configuration file for template '%s'", name),
		Cause:    cause,
	}
}
