package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for common failure scenarios.
var (
	ErrInvalidState   = errors.New("invalid state")
	ErrFormat         = errors.New("invalid archive format")
	ErrPassive        = errors.New("network queries disabled in passive mode")
	ErrUnavailable    = errors.New("attribute unavailable")
	ErrCanceled       = errors.New("operation canceled")
	ErrDeviceNotFound = errors.New("device not found")
	ErrTimeout        = errors.New("request timeout")
	ErrNotRunning     = errors.New("not running")
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// DecklinkError wraps an error with a user-friendly suggestion.
type DecklinkError struct {
	Err        error
	Suggestion string
}

func (e *DecklinkError) Error() string {
	return e.Err.Error()
}

func (e *DecklinkError) Unwrap() error {
	return e.Err
}

// WithSuggestion wraps an error with a helpful suggestion.
func WithSuggestion(err error, suggestion string) error {
	return &DecklinkError{
		Err:        err,
		Suggestion: suggestion,
	}
}

// GetSuggestion returns a suggestion for the given error.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	var dlErr *DecklinkError
	if errors.As(err, &dlErr) && dlErr.Suggestion != "" {
		return dlErr.Suggestion
	}

	errStr := strings.ToLower(err.Error())

	if errors.Is(err, ErrDeviceNotFound) || strings.Contains(errStr, "device not found") {
		return "Run 'decklink devices' to see which players are on the network"
	}

	if errors.Is(err, ErrPassive) {
		return "Attach an archive for the slot, or set finder.passive = false"
	}

	if errors.Is(err, ErrFormat) {
		return "The file is not a decklink archive; create one with 'decklink archive create'"
	}

	if errors.Is(err, ErrTimeout) || strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no route to host") {
		return "Check that the player is powered on and reachable on the same network"
	}

	if errors.Is(err, ErrInvalidConfig) {
		return "Run 'decklink config show' to review the configuration"
	}

	if errors.Is(err, ErrConfigNotFound) {
		return "Run 'decklink config init' to create a configuration file"
	}

	return ""
}

// Format returns a formatted error message with suggestion if available.
func Format(err error) string {
	if err == nil {
		return ""
	}

	suggestion := GetSuggestion(err)
	if suggestion != "" {
		return fmt.Sprintf("Error: %s\n\nSuggestion: %s", err.Error(), suggestion)
	}

	return fmt.Sprintf("Error: %s", err.Error())
}

// PartialResult represents a result that may have partial failures.
type PartialResult[T any] struct {
	Data   T
	Errors []error
}

// HasErrors returns true if there were any errors.
func (p *PartialResult[T]) HasErrors() bool {
	return len(p.Errors) > 0
}

// AddError adds an error to the partial result.
func (p *PartialResult[T]) AddError(err error) {
	if err != nil {
		p.Errors = append(p.Errors, err)
	}
}

// ErrorSummary returns a summary of all errors.
func (p *PartialResult[T]) ErrorSummary() string {
	if len(p.Errors) == 0 {
		return ""
	}
	if len(p.Errors) == 1 {
		return p.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(p.Errors)))
	for i, err := range p.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}
