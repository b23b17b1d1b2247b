package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ErrorHandler provides interface-specific error handling
type ErrorHandler interface {
	HandleError(err error) error
	FormatError(err error) string
}

func logFields(appErr *AppError) []zap.Field {
	fields := []zap.Field{
		zap.String("code", string(appErr.Code)),
		zap.String("severity", string(appErr.Severity)),
		zap.String("category", string(appErr.Category)),
	}
	if appErr.Details != "" {
		fields = append(fields, zap.String("details", appErr.Details))
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.NamedError("cause", appErr.Cause))
	}
	if len(appErr.Context) > 0 {
		fields = append(fields, zap.Any("context", appErr.Context))
	}
	return fields
}

// CLIErrorHandler handles errors for CLI interface
type CLIErrorHandler struct {
	Verbose bool
	logger  *zap.Logger
}

// NewCLIErrorHandler creates a new CLI error handler. A nil logger disables logging.
func NewCLIErrorHandler(logger *zap.Logger, verbose bool) *CLIErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CLIErrorHandler{Verbose: verbose, logger: logger}
}

// HandleError logs the error when verbose and returns the display form
func (h *CLIErrorHandler) HandleError(err error) error {
	appErr := GetAppError(err)
	if h.Verbose {
		h.logger.Debug(appErr.Message, logFields(appErr)...)
	}
	return fmt.Errorf("%s", h.FormatError(appErr))
}

// FormatError formats an error for CLI display
func (h *CLIErrorHandler) FormatError(err error) string {
	appErr := GetAppError(err)

	var msg string
	switch appErr.Severity {
	case SeverityCritical:
		msg = fmt.Sprintf("❌ CRITICAL: %s", appErr.Message)
	case SeverityError:
		msg = fmt.Sprintf("❌ ERROR: %s", appErr.Message)
	case SeverityWarning:
		msg = fmt.Sprintf("⚠️  WARNING: %s", appErr.Message)
	case SeverityInfo:
		msg = fmt.Sprintf("ℹ️  INFO: %s", appErr.Message)
	default:
		msg = fmt.Sprintf("❌ %s", appErr.Message)
	}

	for _, v := range appErr.Violations {
		msg += "\n  - " + v
	}
	if h.Verbose && appErr.Cause != nil {
		msg += fmt.Sprintf("\n  caused by: %v", appErr.Cause)
	}
	return msg
}

// HTTPErrorHandler handles errors for HTTP interface
type HTTPErrorHandler struct {
	IncludeDetails bool
	logger         *zap.Logger
}

// NewHTTPErrorHandler creates a new HTTP error handler
func NewHTTPErrorHandler(logger *zap.Logger, includeDetails bool) *HTTPErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPErrorHandler{IncludeDetails: includeDetails, logger: logger}
}

// HandleError logs the error at a level matching its severity
func (h *HTTPErrorHandler) HandleError(err error) error {
	appErr := GetAppError(err)
	fields := logFields(appErr)
	switch appErr.Severity {
	case SeverityInfo:
		h.logger.Info(appErr.Message, fields...)
	case SeverityWarning:
		h.logger.Warn(appErr.Message, fields...)
	default:
		h.logger.Error(appErr.Message, fields...)
	}
	return appErr
}

type httpErrorBody struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Timestamp string                 `json:"timestamp"`
	Errors    []string               `json:"errors,omitempty"`
	Details   string                 `json:"details,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// FormatError formats an error for HTTP response
func (h *HTTPErrorHandler) FormatError(err error) string {
	appErr := GetAppError(err)

	body := httpErrorBody{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Timestamp: appErr.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Errors:    appErr.Violations,
	}
	if h.IncludeDetails {
		body.Details = appErr.Details
		body.Context = appErr.Context
	}

	jsonBytes, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   body,
	})
	return string(jsonBytes)
}

// WriteHTTPError writes an error response to HTTP
func (h *HTTPErrorHandler) WriteHTTPError(w http.ResponseWriter, err error) {
	appErr := GetAppError(err)
	h.HandleError(appErr)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(appErr))
	_, _ = w.Write([]byte(h.FormatError(appErr)))
}

// StatusCode is the HTTP status for appErr's code
func StatusCode(appErr *AppError) int {
	return lookup(appErr.Code).status
}

// TUIErrorHandler handles errors for TUI interface
type TUIErrorHandler struct {
	ShowDetails bool
	logger      *zap.Logger
}

// NewTUIErrorHandler creates a new TUI error handler
func NewTUIErrorHandler(logger *zap.Logger, showDetails bool) *TUIErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TUIErrorHandler{ShowDetails: showDetails, logger: logger}
}

// HandleError handles errors for TUI interface
func (h *TUIErrorHandler) HandleError(err error) error {
	appErr := GetAppError(err)
	h.logger.Warn(appErr.Message, logFields(appErr)...)
	return appErr
}

// FormatError formats an error for TUI display
func (h *TUIErrorHandler) FormatError(err error) string {
	appErr := GetAppError(err)

	message := appErr.Message
	if h.ShowDetails && appErr.Details != "" {
		message = fmt.Sprintf("%s\nDetails: %s", message, appErr.Details)
	}
	return message
}

// GetErrorStyle returns an icon and a colour for the error severity
func (h *TUIErrorHandler) GetErrorStyle(err error) (string, string) {
	appErr := GetAppError(err)

	switch appErr.Severity {
	case SeverityCritical:
		return "🔥", "#ff0000"
	case SeverityError:
		return "❌", "#ff6b6b"
	case SeverityWarning:
		return "⚠️", "#feca57"
	case SeverityInfo:
		return "ℹ️", "#48cae4"
	default:
		return "❌", "#ff6b6b"
	}
}
