package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dpshade/pocket-capsules/internal/errors"
)

// ListTagsCommand lists all available tags
type ListTagsCommand struct {
	serviceCommand
}

func (c *ListTagsCommand) GetName() string {
	return "list-tags"
}

func (c *ListTagsCommand) GetDescription() string {
	return "List all tags used in the catalog"
}

func (c *ListTagsCommand) Execute(ctx context.Context) (*CommandResult, error) {
	tags := c.service.Tags()
	return &CommandResult{
		Success: true,
		Data:    tags,
		Message: fmt.Sprintf("Found %d tags", len(tags)),
	}, nil
}

// ListCategoriesCommand lists categories with their capsule counts
type ListCategoriesCommand struct {
	serviceCommand
}

func (c *ListCategoriesCommand) GetName() string {
	return "list-categories"
}

func (c *ListCategoriesCommand) GetDescription() string {
	return "List categories with the number of capsules in each"
}

func (c *ListCategoriesCommand) Execute(ctx context.Context) (*CommandResult, error) {
	categories := c.service.Categories()
	return &CommandResult{
		Success: true,
		Data:    categories,
		Message: fmt.Sprintf("Found %d categories", len(categories)),
	}, nil
}

// StatsCommand reports catalog statistics
type StatsCommand struct {
	serviceCommand
}

func (c *StatsCommand) GetName() string {
	return "stats"
}

func (c *StatsCommand) GetDescription() string {
	return "Report catalog statistics and AI-friendliness"
}

func (c *StatsCommand) Execute(ctx context.Context) (*CommandResult, error) {
	stats := c.service.Stats()
	return &CommandResult{
		Success: true,
		Data:    stats,
		Message: fmt.Sprintf("%d capsules in %d categories", stats.TotalCapsules, len(stats.Categories)),
	}, nil
}

// VerifyCommand checks the catalog for duplicates, missing fields and bad ports
type VerifyCommand struct {
	serviceCommand
}

func (c *VerifyCommand) GetName() string {
	return "verify"
}

func (c *VerifyCommand) GetDescription() string {
	return "Verify catalog consistency"
}

func (c *VerifyCommand) Execute(ctx context.Context) (*CommandResult, error) {
	issues := c.service.Verify()
	if len(issues) == 0 {
		return &CommandResult{Success: true, Data: issues, Message: "Catalog is consistent"}, nil
	}

	result := Failure(c.service.VerifyError())
	result.Data = issues
	return result, nil
}

// HealthCheckCommand provides system health information
type HealthCheckCommand struct {
	serviceCommand
}

func (c *HealthCheckCommand) GetName() string {
	return "health"
}

func (c *HealthCheckCommand) GetDescription() string {
	return "Check system health and service status"
}

func (c *HealthCheckCommand) Execute(ctx context.Context) (*CommandResult, error) {
	cat := c.service.Catalog()
	if cat == nil {
		return nil, errors.NewAppError(errors.ErrCodeServiceUnavailable, "Catalog is not loaded")
	}

	return &CommandResult{
		Success: true,
		Data: map[string]interface{}{
			"status":    "healthy",
			"service":   "pocket-capsules",
			"capsules":  cat.Len(),
			"library":   c.service.LibraryDir(),
			"schemas":   len(c.service.Validator().SchemaNames()),
			"timestamp": time.Now().UTC(),
		},
		Message: "Service is healthy",
	}, nil
}

// ListSavedSearchesCommand lists all saved boolean searches
type ListSavedSearchesCommand struct {
	serviceCommand
}

func (c *ListSavedSearchesCommand) GetName() string {
	return "list-saved-searches"
}

func (c *ListSavedSearchesCommand) GetDescription() string {
	return "List all saved boolean searches"
}

func (c *ListSavedSearchesCommand) Execute(ctx context.Context) (*CommandResult, error) {
	searches, err := c.service.ListSavedSearches()
	if err != nil {
		return nil, errors.StorageError("load saved searches", err)
	}
	return &CommandResult{
		Success: true,
		Data:    searches,
		Message: fmt.Sprintf("Found %d saved searches", len(searches)),
	}, nil
}

// ExecuteSavedSearchCommand runs a saved boolean search
type ExecuteSavedSearchCommand struct {
	serviceCommand
	Name      string
	TextQuery string
}

func (c *ExecuteSavedSearchCommand) SetParameters(params map[string]interface{}) error {
	c.Name = stringParam(params, "name")
	c.TextQuery = stringParam(params, "query")
	return nil
}

func (c *ExecuteSavedSearchCommand) Validate() error {
	if err := c.serviceCommand.Validate(); err != nil {
		return err
	}
	if c.Name == "" {
		return fmt.Errorf("saved search name is required")
	}
	return nil
}

func (c *ExecuteSavedSearchCommand) GetName() string {
	return "execute-saved-search"
}

func (c *ExecuteSavedSearchCommand) GetDescription() string {
	return "Execute a saved boolean search"
}

func (c *ExecuteSavedSearchCommand) Execute(ctx context.Context) (*CommandResult, error) {
	results, err := c.service.ExecuteSavedSearch(c.Name, c.TextQuery)
	if err != nil {
		return nil, err
	}
	return &CommandResult{
		Success: true,
		Data:    results,
		Message: fmt.Sprintf("Saved search '%s' found %d capsules", c.Name, len(results)),
	}, nil
}
