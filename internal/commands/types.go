// Package commands implements the unified command execution system for pocket-capsules.
//
// The CLI, the HTTP API and the TUI all go through CommandExecutor so that a
// command validates its parameters and reports failures the same way
// everywhere. Parameters are checked against the query schemas of the
// validation package before a command runs; the command only ever sees the
// normalised values.
//
// COMMAND FLOW:
// 1. Interface converts its input (flags, query string, key press) to a parameter map
// 2. CommandExecutor validates the map against the command's schema
// 3. A fresh command instance receives the service and the validated parameters
// 4. The command delegates to the service layer
// 5. The outcome is returned as a CommandResult
//
// Capsule commands live in capsule_commands.go; metadata, health and saved
// search commands in utility_commands.go.
package commands

import (
	"context"
	"sort"

	"github.com/dpshade/pocket-capsules/internal/errors"
	"github.com/dpshade/pocket-capsules/internal/service"
	"github.com/dpshade/pocket-capsules/internal/validation"
)

// CommandResult represents the result of executing a command
type CommandResult struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Success bool        `json:"success"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo provides structured error information
type ErrorInfo struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Details    string   `json:"details,omitempty"`
	Category   string   `json:"category,omitempty"`
	Severity   string   `json:"severity,omitempty"`
	Violations []string `json:"errors,omitempty"`
}

// Command represents a unified command interface
type Command interface {
	Execute(ctx context.Context) (*CommandResult, error)
	Validate() error
	GetName() string
	GetDescription() string
}

// ParameterizedCommand interface for commands that accept parameters
type ParameterizedCommand interface {
	SetParameters(params map[string]interface{}) error
}

// ServiceAwareCommand interface for commands that need service access
type ServiceAwareCommand interface {
	SetService(svc *service.Service)
}

// CommandRegistry manages available commands
type CommandRegistry struct {
	commands map[string]func() Command
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]func() Command),
	}
}

// Register adds a command factory to the registry
func (r *CommandRegistry) Register(name string, factory func() Command) {
	r.commands[name] = factory
}

// Get retrieves a command factory by name
func (r *CommandRegistry) Get(name string) (func() Command, bool) {
	factory, exists := r.commands[name]
	return factory, exists
}

// List returns all available command names, sorted
func (r *CommandRegistry) List() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandExecutor provides a unified way to execute commands
type CommandExecutor struct {
	service   *service.Service
	registry  *CommandRegistry
	validator *validation.Validator
}

// NewCommandExecutor creates an executor with every command registered
func NewCommandExecutor(svc *service.Service) *CommandExecutor {
	executor := &CommandExecutor{
		service:   svc,
		registry:  NewCommandRegistry(),
		validator: svc.Validator(),
	}

	executor.registerCommands()
	return executor
}

// Commands returns the registered command names
func (e *CommandExecutor) Commands() []string {
	return e.registry.List()
}

// Describe returns the description of a registered command
func (e *CommandExecutor) Describe(name string) (string, bool) {
	factory, ok := e.registry.Get(name)
	if !ok {
		return "", false
	}
	return factory().GetDescription(), true
}

// Execute runs a command by name. Command failures are reported in the
// result; the returned error is reserved for the context being done.
func (e *CommandExecutor) Execute(ctx context.Context, commandName string, params map[string]interface{}) (*CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	factory, exists := e.registry.Get(commandName)
	if !exists {
		return Failure(errors.CommandNotFoundError(commandName)), nil
	}

	if params == nil {
		params = make(map[string]interface{})
	}

	if schema := validationSchema(commandName); schema != "" {
		result := e.validator.Validate(schema, params)
		if !result.Valid {
			return Failure(result.ToAppError()), nil
		}
		params = result.GetValidatedData()
	}

	cmd := factory()

	if serviceAware, ok := cmd.(ServiceAwareCommand); ok {
		serviceAware.SetService(e.service)
	}
	if parameterized, ok := cmd.(ParameterizedCommand); ok {
		if err := parameterized.SetParameters(params); err != nil {
			return Failure(errors.InvalidCommandError(commandName, err.Error())), nil
		}
	}

	if err := cmd.Validate(); err != nil {
		return Failure(errors.InvalidCommandError(commandName, err.Error())), nil
	}

	result, err := cmd.Execute(ctx)
	if err != nil {
		return Failure(err), nil
	}
	return result, nil
}

// Failure converts err into a failed CommandResult
func Failure(err error) *CommandResult {
	var appErr *errors.AppError
	if errors.IsAppError(err) {
		appErr = errors.GetAppError(err)
	} else {
		appErr = errors.Wrap(err, errors.ErrCodeCommandFailed, err.Error())
	}
	return &CommandResult{
		Success: false,
		Error: &ErrorInfo{
			Code:       string(appErr.Code),
			Message:    appErr.Message,
			Details:    appErr.Details,
			Category:   string(appErr.Category),
			Severity:   string(appErr.Severity),
			Violations: appErr.Violations,
		},
	}
}

// AppError rebuilds the application error carried by a failed result
func (r *CommandResult) AppError() *errors.AppError {
	if r == nil || r.Error == nil {
		return nil
	}
	appErr := errors.NewAppError(errors.ErrorCode(r.Error.Code), r.Error.Message)
	appErr.Details = r.Error.Details
	appErr.Violations = r.Error.Violations
	return appErr
}

// validationSchema returns the query schema for a command
func validationSchema(commandName string) string {
	switch commandName {
	case "list":
		return "list_capsules"
	case "search":
		return "search_capsules"
	case "boolean-search":
		return "boolean_search"
	case "get":
		return "get_capsule"
	case "compat":
		return "compat_check"
	case "suggest":
		return "suggest_capsules"
	case "validate-form":
		return "validate_form"
	default:
		return ""
	}
}

func (e *CommandExecutor) registerCommands() {
	e.registry.Register("list", func() Command { return &ListCapsulesCommand{} })
	e.registry.Register("get", func() Command { return &GetCapsuleCommand{} })
	e.registry.Register("search", func() Command { return &SearchCapsulesCommand{} })
	e.registry.Register("boolean-search", func() Command { return &BooleanSearchCommand{} })
	e.registry.Register("compat", func() Command { return &CompatCommand{} })
	e.registry.Register("connect", func() Command { return &ConnectCommand{} })
	e.registry.Register("suggest", func() Command { return &SuggestCommand{} })
	e.registry.Register("validate-form", func() Command { return &ValidateFormCommand{} })

	e.registry.Register("list-tags", func() Command { return &ListTagsCommand{} })
	e.registry.Register("list-categories", func() Command { return &ListCategoriesCommand{} })
	e.registry.Register("stats", func() Command { return &StatsCommand{} })
	e.registry.Register("verify", func() Command { return &VerifyCommand{} })
	e.registry.Register("health", func() Command { return &HealthCheckCommand{} })
	e.registry.Register("list-saved-searches", func() Command { return &ListSavedSearchesCommand{} })
	e.registry.Register("execute-saved-search", func() Command { return &ExecuteSavedSearchCommand{} })
}

// serviceCommand carries the service for commands that need it
type serviceCommand struct {
	service *service.Service
}

func (c *serviceCommand) SetService(svc *service.Service) {
	c.service = svc
}

func (c *serviceCommand) Validate() error {
	if c.service == nil {
		return errors.InternalError("service not set")
	}
	return nil
}
