package core

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when a session id or message is blank.
var ErrEmptyInput = errors.New("empty input")

// ConfigurationError reports a missing or invalid setting.
// It is raised before any graph run starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// LanguageModelError wraps a failed or malformed model call.
type LanguageModelError struct {
	Op  string
	Err error
}

func (e *LanguageModelError) Error() string {
	return fmt.Sprintf("language model %s: %v", e.Op, e.Err)
}

func (e *LanguageModelError) Unwrap() error { return e.Err }

// ToolInvocationError wraps a failed tool call.
type ToolInvocationError struct {
	Tool string
	Err  error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolInvocationError) Unwrap() error { return e.Err }

// MemoryStoreError wraps a failed memory read or write.
type MemoryStoreError struct {
	Op  string
	Err error
}

func (e *MemoryStoreError) Error() string {
	return fmt.Sprintf("memory store %s: %v", e.Op, e.Err)
}

func (e *MemoryStoreError) Unwrap() error { return e.Err }
