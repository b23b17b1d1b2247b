// Package validation provides declarative, schema-based input validation.
//
// A Schema is a set of named FieldValidators. Validating a payload against a
// schema normalises every field (trim, case folding, HTML sanitising, numeric
// and boolean coercion, defaults) and collects every violation as a
// path-qualified message such as "billing.address.zip: Invalid". Validation
// never stops at the first failure.
//
// The same schemas back the form endpoints of the API (waitlist, contact,
// checkout, api_key, ...) and the parameter checks of the command layer
// (list_capsules, search_capsules, ...).
//
// USAGE PATTERNS:
// - Register schemas: RegisterSchema() on a Validator, or use the built-ins
// - Validate named data: Validator.Validate(name, data)
// - Validate ad hoc: ValidateRequest(schema, data) returns an Outcome
// - Validate a single value: ParseValue(field, value)
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dpshade/pocket-capsules/internal/errors"
)

// Field types understood by FieldValidator.Type
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeNumber = "number"
	TypeBool   = "bool"
	TypeArray  = "array"
	TypeObject = "object"
)

// Issue codes, named after the Zod issue vocabulary
const (
	CodeRequired       = "required"
	CodeInvalidType    = "invalid_type"
	CodeTooSmall       = "too_small"
	CodeTooBig         = "too_big"
	CodeInvalidString  = "invalid_string"
	CodeInvalidEnum    = "invalid_enum_value"
	CodeCustom         = "custom"
	CodeSchemaNotFound = "SCHEMA_NOT_FOUND"
)

// FieldValidator provides validation rules for individual fields
type FieldValidator struct {
	Name        string
	Description string
	Required    bool
	Type        string

	// Normalisation applied to strings before any check
	Trim      bool
	Lowercase bool
	Uppercase bool
	Sanitize  bool

	MinLength      int
	MaxLength      int
	Pattern        *regexp.Regexp
	PatternMessage string
	Format         string // email, url or uuid
	Options        []string

	// Numeric bounds for int and number fields
	Min *float64
	Max *float64

	// Default is used when the value is absent. It satisfies Required.
	Default interface{}

	// Array element rules
	Items    *FieldValidator
	MinItems int
	MaxItems int

	// Nested object fields
	Fields map[string]FieldValidator

	// Custom runs last, on the normalised value, and only when every other check passed
	Custom func(interface{}) error
}

// Bound returns a pointer for use as FieldValidator.Min or Max
func Bound(v float64) *float64 {
	return &v
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	Schema   string                 `json:"schema,omitempty"`
	Valid    bool                   `json:"valid"`
	Errors   []ValidationError      `json:"errors,omitempty"`
	Warnings []ValidationWarning    `json:"warnings,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// ValidationError represents a field validation error. Field is the dotted
// path of the offending value; array elements use their index.
type ValidationError struct {
	Field   string      `json:"field"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationWarning represents a field validation warning
type ValidationWarning struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Outcome is the {success, data} | {success: false, errors} result handed to callers
type Outcome struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Errors  []string               `json:"errors,omitempty"`
}

// Rule is a cross-field check run after every field passed. Returning a
// *RuleError attaches the message to a field path.
type Rule func(data map[string]interface{}) error

// RuleError is a rule failure bound to a field path
type RuleError struct {
	Path    string
	Message string
}

func (e *RuleError) Error() string {
	return e.Message
}

// Schema represents a validation schema
type Schema struct {
	Name        string
	Description string
	Fields      map[string]FieldValidator
	Rules       []Rule
}

// Validator holds a registry of named schemas
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewValidator creates a new validator with the built-in schemas registered
func NewValidator() *Validator {
	v := &Validator{
		schemas: make(map[string]*Schema),
	}
	v.registerBuiltinSchemas()
	return v
}

// RegisterSchema registers a validation schema, replacing any schema of the same name
func (v *Validator) RegisterSchema(schema *Schema) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[schema.Name] = schema
}

// Schema returns a registered schema
func (v *Validator) Schema(name string) (*Schema, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.schemas[name]
	return s, ok
}

// SchemaNames returns the registered schema names in sorted order
func (v *Validator) SchemaNames() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate validates data against a registered schema
func (v *Validator) Validate(schemaName string, data map[string]interface{}) *ValidationResult {
	schema, exists := v.Schema(schemaName)
	if !exists {
		return &ValidationResult{
			Schema: schemaName,
			Valid:  false,
			Errors: []ValidationError{{
				Field:   "",
				Code:    CodeSchemaNotFound,
				Message: fmt.Sprintf("Validation schema '%s' not found", schemaName),
			}},
		}
	}
	return Check(schema, data)
}

// ValidateRequest validates input against schema and returns the caller-facing outcome
func ValidateRequest(schema *Schema, input map[string]interface{}) Outcome {
	return Check(schema, input).Outcome()
}

// Check validates data against schema. Unknown keys are dropped from the
// normalised data. Schema rules only run when every field is valid.
func Check(schema *Schema, data map[string]interface{}) *ValidationResult {
	result := &ValidationResult{
		Schema: schema.Name,
		Valid:  true,
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	result.Data = validateObject("", schema.Fields, data, result)

	if result.Valid {
		for _, rule := range schema.Rules {
			if err := rule(result.Data); err != nil {
				path := ""
				if re, ok := err.(*RuleError); ok {
					path = re.Path
				}
				result.addError(path, CodeCustom, err.Error(), nil)
			}
		}
	}

	return result
}

// ParseValue validates a single value against one field definition and
// returns the normalised value or the error messages.
func ParseValue(field FieldValidator, value interface{}) (interface{}, []string) {
	result := &ValidationResult{Valid: true}
	out, _ := validateValue(field.Name, field, value, value != nil, result)
	if !result.Valid {
		return nil, result.Messages()
	}
	return out, nil
}

func (r *ValidationResult) addError(path, code, message string, value interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{
		Field:   path,
		Code:    code,
		Message: message,
		Value:   value,
	})
}

// Messages renders the errors as "path: message" strings in report order
func (r *ValidationResult) Messages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.Field == "" {
			msgs = append(msgs, e.Message)
			continue
		}
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return msgs
}

// Outcome converts the result to the caller-facing shape
func (r *ValidationResult) Outcome() Outcome {
	if r.Valid {
		return Outcome{Success: true, Data: r.Data}
	}
	return Outcome{Success: false, Errors: r.Messages()}
}

func validateObject(prefix string, fields map[string]FieldValidator, data map[string]interface{}, result *ValidationResult) map[string]interface{} {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]interface{}, len(names))
	for _, name := range names {
		raw, exists := data[name]
		if value, ok := validateValue(joinPath(prefix, name), fields[name], raw, exists, result); ok {
			out[name] = value
		}
	}
	return out
}

// validateValue returns the normalised value and whether it should be stored.
func validateValue(path string, fv FieldValidator, raw interface{}, exists bool, result *ValidationResult) (interface{}, bool) {
	if !exists || raw == nil || isBlank(fv, raw) {
		return absent(path, fv, result)
	}

	before := len(result.Errors)

	converted, err := convertType(fv.Type, raw)
	if err != nil {
		result.addError(path, CodeInvalidType, err.Error(), raw)
		return nil, false
	}

	switch fv.Type {
	case TypeInt:
		checkBounds(path, fv, float64(converted.(int)), result)
	case TypeNumber:
		checkBounds(path, fv, converted.(float64), result)
	case TypeArray:
		converted = checkArray(path, fv, converted.([]interface{}), result)
	case TypeObject:
		if fv.Fields != nil {
			converted = validateObject(path, fv.Fields, converted.(map[string]interface{}), result)
		}
	case TypeBool:
	default:
		s := normaliseString(fv, converted.(string))
		if s == "" {
			return absent(path, fv, result)
		}
		checkString(path, fv, s, result)
		converted = s
	}

	if fv.Custom != nil && len(result.Errors) == before {
		if err := fv.Custom(converted); err != nil {
			result.addError(path, CodeCustom, err.Error(), converted)
		}
	}

	return converted, true
}

func absent(path string, fv FieldValidator, result *ValidationResult) (interface{}, bool) {
	if fv.Default != nil {
		return copyDefault(fv.Default), true
	}
	if fv.Required {
		result.addError(path, CodeRequired, "Required", nil)
	}
	return nil, false
}

// isBlank treats empty strings, and whitespace-only strings on trimmed fields, as missing
func isBlank(fv FieldValidator, raw interface{}) bool {
	s, ok := raw.(string)
	if !ok {
		return false
	}
	if fv.Trim {
		s = strings.TrimSpace(s)
	}
	return s == ""
}

func copyDefault(v interface{}) interface{} {
	switch d := v.(type) {
	case []string:
		out := make([]interface{}, len(d))
		for i, s := range d {
			out[i] = s
		}
		return out
	case []interface{}:
		return append([]interface{}(nil), d...)
	default:
		return v
	}
}

func normaliseString(fv FieldValidator, s string) string {
	if fv.Trim {
		s = strings.TrimSpace(s)
	}
	if fv.Lowercase {
		s = strings.ToLower(s)
	}
	if fv.Uppercase {
		s = strings.ToUpper(s)
	}
	if fv.Sanitize {
		s = sanitizeHTML(s)
		if fv.Trim {
			s = strings.TrimSpace(s)
		}
	}
	return s
}

func checkString(path string, fv FieldValidator, s string, result *ValidationResult) {
	n := utf8.RuneCountInString(s)
	if fv.MinLength > 0 && n < fv.MinLength {
		result.addError(path, CodeTooSmall, fmt.Sprintf("String must contain at least %d character(s)", fv.MinLength), s)
	}
	if fv.MaxLength > 0 && n > fv.MaxLength {
		result.addError(path, CodeTooBig, fmt.Sprintf("String must contain at most %d character(s)", fv.MaxLength), s)
	}
	if fv.Format != "" && !checkFormat(fv.Format, s) {
		result.addError(path, CodeInvalidString, "Invalid "+fv.Format, s)
	}
	if fv.Pattern != nil && !fv.Pattern.MatchString(s) {
		msg := fv.PatternMessage
		if msg == "" {
			msg = "Invalid"
		}
		result.addError(path, CodeInvalidString, msg, s)
	}
	if len(fv.Options) > 0 && !containsString(fv.Options, s) {
		result.addError(path, CodeInvalidEnum, enumMessage(fv.Options, s), s)
	}
}

func checkBounds(path string, fv FieldValidator, n float64, result *ValidationResult) {
	if fv.Min != nil && n < *fv.Min {
		result.addError(path, CodeTooSmall, "Number must be greater than or equal to "+formatNumber(*fv.Min), n)
	}
	if fv.Max != nil && n > *fv.Max {
		result.addError(path, CodeTooBig, "Number must be less than or equal to "+formatNumber(*fv.Max), n)
	}
}

func checkArray(path string, fv FieldValidator, items []interface{}, result *ValidationResult) []interface{} {
	if fv.MinItems > 0 && len(items) < fv.MinItems {
		result.addError(path, CodeTooSmall, fmt.Sprintf("Array must contain at least %d element(s)", fv.MinItems), nil)
	}
	if fv.MaxItems > 0 && len(items) > fv.MaxItems {
		result.addError(path, CodeTooBig, fmt.Sprintf("Array must contain at most %d element(s)", fv.MaxItems), nil)
	}
	if fv.Items == nil {
		return items
	}

	item := *fv.Items
	item.Required = true
	out := make([]interface{}, 0, len(items))
	for i, raw := range items {
		if v, ok := validateValue(joinPath(path, strconv.Itoa(i)), item, raw, true, result); ok {
			out = append(out, v)
		}
	}
	return out
}

// convertType validates and converts value to the specified type
func convertType(expectedType string, value interface{}) (interface{}, error) {
	switch expectedType {
	case TypeInt:
		switch val := value.(type) {
		case int:
			return val, nil
		case int64:
			return int(val), nil
		case float64:
			if val == math.Trunc(val) {
				return int(val), nil
			}
			return nil, fmt.Errorf("Expected integer, received float")
		case json.Number:
			if i, err := val.Int64(); err == nil {
				return int(i), nil
			}
			return nil, fmt.Errorf("Expected integer, received float")
		case string:
			s := strings.TrimSpace(val)
			if i, err := strconv.Atoi(s); err == nil {
				return i, nil
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil && f != math.Trunc(f) {
				return nil, fmt.Errorf("Expected integer, received float")
			}
		}
		return nil, typeMismatch("integer", value)

	case TypeNumber:
		switch val := value.(type) {
		case float64:
			return val, nil
		case int:
			return float64(val), nil
		case int64:
			return float64(val), nil
		case json.Number:
			if f, err := val.Float64(); err == nil {
				return f, nil
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil && !math.IsNaN(f) {
				return f, nil
			}
		}
		return nil, typeMismatch("number", value)

	case TypeBool:
		switch val := value.(type) {
		case bool:
			return val, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(val)) {
			case "true", "1", "on", "yes":
				return true, nil
			case "false", "0", "off", "no":
				return false, nil
			}
		}
		return nil, typeMismatch("boolean", value)

	case TypeArray:
		switch val := value.(type) {
		case []interface{}:
			return val, nil
		case []string:
			out := make([]interface{}, len(val))
			for i, s := range val {
				out[i] = s
			}
			return out, nil
		case string:
			// comma-separated values from query strings and form posts
			parts := strings.Split(val, ",")
			out := make([]interface{}, 0, len(parts))
			for _, part := range parts {
				if p := strings.TrimSpace(part); p != "" {
					out = append(out, p)
				}
			}
			return out, nil
		}
		return nil, typeMismatch("array", value)

	case TypeObject:
		if obj, ok := value.(map[string]interface{}); ok {
			return obj, nil
		}
		return nil, typeMismatch("object", value)

	default:
		switch val := value.(type) {
		case string:
			return val, nil
		case float64, int, int64, bool, json.Number:
			return fmt.Sprintf("%v", val), nil
		}
		return nil, typeMismatch("string", value)
	}
}

func typeMismatch(expected string, value interface{}) error {
	return fmt.Errorf("Expected %s, received %s", expected, receivedType(value))
}

func receivedType(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, float64, json.Number:
		return "number"
	case []interface{}, []string:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func enumMessage(options []string, received string) string {
	quoted := make([]string, len(options))
	for i, o := range options {
		quoted[i] = "'" + o + "'"
	}
	return fmt.Sprintf("Invalid enum value. Expected %s, received '%s'", strings.Join(quoted, " | "), received)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func containsString(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

// ToAppError converts a failed validation result to an AppError
func (r *ValidationResult) ToAppError() *errors.AppError {
	if r.Valid {
		return nil
	}
	if len(r.Errors) == 1 && r.Errors[0].Code == CodeSchemaNotFound {
		return errors.SchemaNotFoundError(r.Schema)
	}

	name := r.Schema
	if name == "" {
		name = "input"
	}
	appErr := errors.ConstraintError(name, r.Messages())
	appErr.WithContext("validation_errors", r.Errors)
	if len(r.Warnings) > 0 {
		appErr.WithContext("validation_warnings", r.Warnings)
	}
	return appErr
}

// GetValidatedData returns the validated and converted data
func (r *ValidationResult) GetValidatedData() map[string]interface{} {
	if !r.Valid {
		return nil
	}
	return r.Data
}
