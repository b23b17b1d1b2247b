package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dpshade/pocket-capsules/internal/errors"
)

// maxBodyBytes caps form submissions
const maxBodyBytes = 1 << 20

type contextKey struct{}

// RequestValidator provides middleware for HTTP request validation
type RequestValidator struct {
	validator    *Validator
	errorHandler *errors.HTTPErrorHandler
	logger       *zap.Logger

	// pathParams maps a REST prefix such as "/api/v1/capsules/" to the
	// parameter name its trailing segment is stored under.
	pathParams map[string]string
}

// NewRequestValidator creates request validation middleware around v
func NewRequestValidator(v *Validator, logger *zap.Logger) *RequestValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestValidator{
		validator:    v,
		errorHandler: errors.NewHTTPErrorHandler(logger, false),
		logger:       logger,
		pathParams: map[string]string{
			"/api/v1/capsules/": "id",
			"/api/v1/forms/":    "schema",
			"/api/v1/themes/":   "id",
		},
	}
}

// ValidateRequest middleware validates HTTP requests against a named schema.
// Handlers read the normalised data with ValidatedData.
func (rv *RequestValidator) ValidateRequest(schemaName string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			data, err := rv.ExtractRequestData(r)
			if err != nil {
				rv.errorHandler.WriteHTTPError(w, err)
				return
			}

			result := rv.validator.Validate(schemaName, data)
			if !result.Valid {
				rv.logger.Debug("request rejected",
					zap.String("schema", schemaName),
					zap.Strings("errors", result.Messages()))
				rv.errorHandler.WriteHTTPError(w, result.ToAppError())
				return
			}

			next(w, WithValidatedData(r, result.GetValidatedData()))
		}
	}
}

// WithValidatedData returns a shallow copy of r carrying data in its context
func WithValidatedData(r *http.Request, data map[string]interface{}) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), contextKey{}, data))
}

// ValidatedData returns the data stored by the middleware, if any
func ValidatedData(ctx context.Context) (map[string]interface{}, bool) {
	data, ok := ctx.Value(contextKey{}).(map[string]interface{})
	return data, ok
}

// ExtractRequestData merges query parameters, path parameters and the
// request body (JSON or form-encoded) into one map. Body values win.
func (rv *RequestValidator) ExtractRequestData(r *http.Request) (map[string]interface{}, error) {
	data := make(map[string]interface{})

	mergeValues(data, r.URL.Query())

	for key, value := range rv.extractPathParams(r.URL.Path) {
		data[key] = value
	}

	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		contentType := r.Header.Get("Content-Type")

		switch {
		case strings.Contains(contentType, "application/json"), contentType == "":
			bodyData, err := extractJSONBody(r)
			if err != nil {
				return nil, err
			}
			for key, value := range bodyData {
				data[key] = value
			}
		case strings.Contains(contentType, "application/x-www-form-urlencoded"):
			r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
			if err := r.ParseForm(); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to parse form data")
			}
			mergeValues(data, r.PostForm)
		default:
			return nil, errors.NewAppError(errors.ErrCodeInvalidFormat,
				fmt.Sprintf("Unsupported content type '%s'", contentType))
		}
	}

	return data, nil
}

func (rv *RequestValidator) extractPathParams(path string) map[string]string {
	params := make(map[string]string)
	for prefix, name := range rv.pathParams {
		if !strings.HasPrefix(path, prefix) || path == prefix {
			continue
		}
		value := strings.TrimPrefix(path, prefix)
		if idx := strings.Index(value, "/"); idx != -1 {
			value = value[:idx]
		}
		if value != "" {
			params[name] = value
		}
	}
	return params
}

func extractJSONBody(r *http.Request) (map[string]interface{}, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to read request body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return make(map[string]interface{}), nil
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid JSON in request body")
	}
	return data, nil
}

func mergeValues(data map[string]interface{}, values url.Values) {
	for key, vals := range values {
		switch len(vals) {
		case 0:
		case 1:
			data[key] = vals[0]
		default:
			data[key] = vals
		}
	}
}

// QueryParams maps the short query parameters used by the API onto the
// parameter names of the command schemas.
func QueryParams(values url.Values) map[string]interface{} {
	params := make(map[string]interface{})

	aliases := map[string]string{
		"q":        "query",
		"expr":     "expression",
		"tag":      "tag",
		"category": "category",
		"platform": "platform",
		"format":   "format",
		"limit":    "limit",
		"from":     "from",
		"to":       "to",
		"type":     "type",
		"code":     "with_code",
	}
	for short, name := range aliases {
		if v := values.Get(short); v != "" {
			params[name] = v
		}
	}
	return params
}

// ValidateIdentifier validates a capsule id
func ValidateIdentifier(id string) error {
	if id == "" {
		return errors.ValidationError("Identifier cannot be empty")
	}
	if len(id) > 200 {
		return errors.ValidationError("Identifier too long (max 200 characters)")
	}
	if !idPattern.MatchString(id) {
		return errors.ValidationError("Identifier must be lowercase letters, digits and hyphens")
	}
	return nil
}

// ValidateTags validates a list of tags
func ValidateTags(tags []string) error {
	if len(tags) > 20 {
		return errors.ValidationError("Too many tags (max 20)")
	}
	for i, tag := range tags {
		if tag == "" || len(tag) > 50 || !tagPattern.MatchString(tag) {
			return errors.ValidationError(fmt.Sprintf("Tag at position %d is invalid: %q", i, tag))
		}
	}
	return nil
}

// Validator returns the underlying validator instance
func (rv *RequestValidator) Validator() *Validator {
	return rv.validator
}
