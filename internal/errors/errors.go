// Package errors defines AppError, the single error type every layer of
// pocket-capsules returns. Each ErrorCode carries a fixed category, severity
// and HTTP status so that the CLI, the HTTP API and the TUI render the same
// failure consistently; handlers.go holds those renderers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode identifies a failure independently of its message
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField      ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat     ErrorCode = "INVALID_FORMAT"
	ErrCodeInvalidExpression ErrorCode = "INVALID_EXPRESSION"
	ErrCodeConstraint        ErrorCode = "CONSTRAINT_VIOLATION"
	ErrCodeSchemaNotFound    ErrorCode = "SCHEMA_NOT_FOUND"

	// Service errors
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotImplemented     ErrorCode = "NOT_IMPLEMENTED"

	// Resource errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrCodeIncompatible  ErrorCode = "INCOMPATIBLE_TYPES"

	// Storage errors
	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"
	ErrCodeFileNotFound   ErrorCode = "FILE_NOT_FOUND"
	ErrCodeFileCorrupted  ErrorCode = "FILE_CORRUPTED"

	// Catalog export/verification errors
	ErrCodeExportFailure      ErrorCode = "EXPORT_FAILURE"
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"

	// Command errors
	ErrCodeCommandNotFound ErrorCode = "COMMAND_NOT_FOUND"
	ErrCodeCommandFailed   ErrorCode = "COMMAND_FAILED"
	ErrCodeInvalidCommand  ErrorCode = "INVALID_COMMAND"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityInfo     ErrorSeverity = "info"
	SeverityWarning  ErrorSeverity = "warning"
	SeverityError    ErrorSeverity = "error"
	SeverityCritical ErrorSeverity = "critical"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryService    ErrorCategory = "service"
	CategoryStorage    ErrorCategory = "storage"
	CategoryCatalog    ErrorCategory = "catalog"
	CategoryCommand    ErrorCategory = "command"
	CategorySystem     ErrorCategory = "system"
)

// AppError represents a standardized application error
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Category  ErrorCategory          `json:"category"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Retryable bool                   `json:"retryable"`

	// Violations holds the path-qualified messages of a failed field validation
	Violations []string `json:"violations,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// WithContext attaches a key/value pair that handlers may log
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates an error whose category and severity follow from code
func NewAppError(code ErrorCode, message string) *AppError {
	info := lookup(code)
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  info.severity,
		Category:  info.category,
		Timestamp: time.Now(),
		Retryable: info.retryable,
	}
}

// Wrap attaches code and message to err, which stays reachable through Unwrap
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := NewAppError(code, message)
	appErr.Cause = err
	return appErr
}

type codeInfo struct {
	category  ErrorCategory
	severity  ErrorSeverity
	status    int
	retryable bool
}

var codeTable = map[ErrorCode]codeInfo{
	ErrCodeValidation:        {CategoryValidation, SeverityWarning, http.StatusBadRequest, false},
	ErrCodeInvalidInput:      {CategoryValidation, SeverityWarning, http.StatusBadRequest, false},
	ErrCodeMissingField:      {CategoryValidation, SeverityWarning, http.StatusBadRequest, false},
	ErrCodeInvalidFormat:     {CategoryValidation, SeverityWarning, http.StatusBadRequest, false},
	ErrCodeInvalidExpression: {CategoryValidation, SeverityWarning, http.StatusBadRequest, false},
	ErrCodeConstraint:        {CategoryValidation, SeverityWarning, http.StatusBadRequest, false},
	ErrCodeSchemaNotFound:    {CategoryValidation, SeverityError, http.StatusNotFound, false},

	ErrCodeServiceUnavailable: {CategoryService, SeverityError, http.StatusServiceUnavailable, true},
	ErrCodeInternalError:      {CategoryService, SeverityCritical, http.StatusInternalServerError, false},
	ErrCodeNotImplemented:     {CategoryService, SeverityInfo, http.StatusNotImplemented, false},

	ErrCodeNotFound:      {CategoryService, SeverityInfo, http.StatusNotFound, false},
	ErrCodeAlreadyExists: {CategoryService, SeverityWarning, http.StatusConflict, false},
	ErrCodeIncompatible:  {CategoryService, SeverityWarning, http.StatusBadRequest, false},

	ErrCodeStorageFailure: {CategoryStorage, SeverityError, http.StatusInternalServerError, true},
	ErrCodeFileNotFound:   {CategoryStorage, SeverityInfo, http.StatusNotFound, false},
	ErrCodeFileCorrupted:  {CategoryStorage, SeverityError, http.StatusInternalServerError, false},

	ErrCodeExportFailure:      {CategoryCatalog, SeverityError, http.StatusInternalServerError, false},
	ErrCodeVerificationFailed: {CategoryCatalog, SeverityWarning, http.StatusUnprocessableEntity, false},

	ErrCodeCommandNotFound: {CategoryCommand, SeverityInfo, http.StatusNotFound, false},
	ErrCodeCommandFailed:   {CategoryCommand, SeverityError, http.StatusInternalServerError, false},
	ErrCodeInvalidCommand:  {CategoryCommand, SeverityError, http.StatusBadRequest, false},
}

// lookup falls back to a system error for codes outside the table
func lookup(code ErrorCode) codeInfo {
	if info, ok := codeTable[code]; ok {
		return info
	}
	return codeInfo{CategorySystem, SeverityError, http.StatusInternalServerError, false}
}

// IsAppError checks if an error is, or wraps, an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError extracts an AppError from an error, or converts it to one
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, ErrCodeInternalError, "Internal error occurred")
}

// HasCode reports whether err is an AppError carrying code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

func ValidationError(message string) *AppError {
	return NewAppError(ErrCodeValidation, message)
}

// ConstraintError reports field constraint violations. The violations are
// kept verbatim so that API clients receive the same strings as the CLI.
func ConstraintError(schema string, violations []string) *AppError {
	appErr := NewAppError(ErrCodeConstraint, fmt.Sprintf("Validation failed for %s", schema))
	appErr.Violations = violations
	appErr.Details = strings.Join(violations, "; ")
	return appErr
}

func SchemaNotFoundError(schema string) *AppError {
	return NewAppError(ErrCodeSchemaNotFound, fmt.Sprintf("Schema '%s' not found", schema))
}

func NotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func AlreadyExistsError(resource string) *AppError {
	return NewAppError(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", resource))
}

func IncompatibleError(from, to string) *AppError {
	return NewAppError(ErrCodeIncompatible, fmt.Sprintf("Cannot connect %s output to %s input", from, to))
}

func InternalError(message string) *AppError {
	return NewAppError(ErrCodeInternalError, message)
}

func NotImplementedError(feature string) *AppError {
	return NewAppError(ErrCodeNotImplemented, fmt.Sprintf("%s is not implemented", feature))
}

func StorageError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeStorageFailure, fmt.Sprintf("Storage operation failed: %s", operation))
}

func ExportError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeExportFailure, fmt.Sprintf("Export failed: %s", operation))
}

func VerificationError(issues []string) *AppError {
	appErr := NewAppError(ErrCodeVerificationFailed, fmt.Sprintf("Catalog verification found %d issue(s)", len(issues)))
	appErr.Violations = issues
	return appErr
}

func CommandNotFoundError(command string) *AppError {
	return NewAppError(ErrCodeCommandNotFound, fmt.Sprintf("Command '%s' not found", command))
}

func InvalidCommandError(command string, reason string) *AppError {
	return NewAppError(ErrCodeInvalidCommand, fmt.Sprintf("Invalid command '%s': %s", command, reason))
}
