// Package errors provides standardized error types and helpers for the scripture engine.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrDownload indicates a source file could not be fetched
	ErrDownload = errors.New("download failed")
	// ErrUnzip indicates an archive was readable but held no usable member
	ErrUnzip = errors.New("unzip failed")
	// ErrImport indicates the store rejected a commit
	ErrImport = errors.New("import failed")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "version", "book")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// Is matches ErrInvalidInput whatever the wrapped reason.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// DownloadError is returned when fetching a remote source fails, either at
// the transport level or with a non-success HTTP status.
type DownloadError struct {
	URL        string
	StatusCode int // zero for transport failures
	Status     string
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to download %s: %s", e.URL, e.Status)
	}
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrDownload
}

// Is lets callers match any DownloadError against ErrDownload even when a
// transport error is wrapped.
func (e *DownloadError) Is(target error) bool {
	return target == ErrDownload
}

// UnzipError represents an archive problem. Only an archive without a
// usable member is fatal; unreadable archives fall back to raw content.
type UnzipError struct {
	Archive string
	Message string
	Err     error
}

func (e *UnzipError) Error() string {
	if e.Archive != "" {
		return fmt.Sprintf("failed to unzip %s: %s", e.Archive, e.Message)
	}
	return fmt.Sprintf("failed to unzip: %s", e.Message)
}

func (e *UnzipError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnzip
}

// Is matches ErrUnzip even when a reader error is wrapped.
func (e *UnzipError) Is(target error) bool {
	return target == ErrUnzip
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "JSON", "XML")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// Is matches ErrInvalidInput even when a decoder error is wrapped.
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ImportError represents a storage failure while committing a version.
// The commit is transactional, so the store is left in its prior state.
type ImportError struct {
	Version string
	Stage   string // e.g. "delete", "books", "verses", "commit"
	Err     error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("failed to import %s (%s): %v", e.Version, e.Stage, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// Is matches ErrImport regardless of the wrapped storage error.
func (e *ImportError) Is(target error) bool {
	return target == ErrImport
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnzip creates an UnzipError
func NewUnzip(archive, message string) *UnzipError {
	return &UnzipError{
		Archive: archive,
		Message: message,
	}
}

// NewImport creates an ImportError
func NewImport(version, stage string, err error) *ImportError {
	return &ImportError{
		Version: version,
		Stage:   stage,
		Err:     err,
	}
}

// Is wraps errors.Is for packages that import this one as errors.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
