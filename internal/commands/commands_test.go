package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-capsules/internal/catalog"
	"github.com/dpshade/pocket-capsules/internal/models"
	"github.com/dpshade/pocket-capsules/internal/service"
)

func newExecutor(t *testing.T) *CommandExecutor {
	t.Helper()
	svc, err := service.NewService(service.Options{LibraryDir: t.TempDir(), IncludeBuiltin: true})
	require.NoError(t, err)
	return NewCommandExecutor(svc)
}

func run(t *testing.T, e *CommandExecutor, name string, params map[string]interface{}) *CommandResult {
	t.Helper()
	result, err := e.Execute(context.Background(), name, params)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestRegisteredCommands(t *testing.T) {
	e := newExecutor(t)
	for _, name := range []string{
		"list", "get", "search", "boolean-search", "list-tags", "list-categories",
		"stats", "verify", "compat", "suggest", "validate-form", "health",
	} {
		desc, ok := e.Describe(name)
		assert.True(t, ok, name)
		assert.NotEmpty(t, desc, name)
	}
}

func TestUnknownCommand(t *testing.T) {
	result := run(t, newExecutor(t), "explode", nil)
	assert.False(t, result.Success)
	assert.Equal(t, "COMMAND_NOT_FOUND", result.Error.Code)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newExecutor(t).Execute(ctx, "list", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListWithFilters(t *testing.T) {
	e := newExecutor(t)

	result := run(t, e, "list", map[string]interface{}{"category": "forms", "format": "ids"})
	require.True(t, result.Success)
	ids, ok := result.Data.([]string)
	require.True(t, ok)
	assert.Len(t, ids, 6)
	assert.Contains(t, ids, "toggle-switch")

	result = run(t, e, "list", map[string]interface{}{"platform": "watch"})
	assert.False(t, result.Success)
	assert.Equal(t, "CONSTRAINT_VIOLATION", result.Error.Code)
	assert.Equal(t, []string{"platform: Invalid enum value. Expected 'web' | 'mobile' | 'desktop', received 'watch'"}, result.Error.Violations)
}

func TestGetCapsule(t *testing.T) {
	e := newExecutor(t)

	result := run(t, e, "get", map[string]interface{}{"id": "spinner", "with_code": "false"})
	require.True(t, result.Success, result.Error)
	capsule := result.Data.(*models.Capsule)
	assert.Equal(t, "spinner", capsule.ID)
	assert.Empty(t, capsule.Code)

	result = run(t, e, "get", map[string]interface{}{"id": "spinner"})
	assert.NotEmpty(t, result.Data.(*models.Capsule).Code, "with_code defaults to true")

	result = run(t, e, "get", map[string]interface{}{"id": "missing"})
	assert.False(t, result.Success)
	assert.Equal(t, "NOT_FOUND", result.Error.Code)

	result = run(t, e, "get", map[string]interface{}{})
	assert.Equal(t, []string{"id: Required"}, result.Error.Violations)
}

func TestSearchCommands(t *testing.T) {
	e := newExecutor(t)

	result := run(t, e, "search", map[string]interface{}{"query": "spinner", "limit": "2"})
	require.True(t, result.Success)
	found := result.Data.([]*models.Capsule)
	require.NotEmpty(t, found)
	assert.LessOrEqual(t, len(found), 2)
	assert.Equal(t, "spinner", found[0].ID)

	result = run(t, e, "boolean-search", map[string]interface{}{"expression": "navigation AND keyboard"})
	require.True(t, result.Success)

	result = run(t, e, "boolean-search", map[string]interface{}{"expression": "(forms"})
	assert.False(t, result.Success)
	assert.Equal(t, "CONSTRAINT_VIOLATION", result.Error.Code)
	assert.Equal(t, []string{"expression: unbalanced parentheses in expression"}, result.Error.Violations)
}

func TestCompatAndSuggest(t *testing.T) {
	e := newExecutor(t)

	result := run(t, e, "compat", map[string]interface{}{"from": "Markdown", "to": "html"})
	require.True(t, result.Success)
	assert.True(t, result.Data.(CompatResult).Compatible)

	result = run(t, e, "compat", map[string]interface{}{"from": "audio", "to": "text"})
	assert.False(t, result.Data.(CompatResult).Compatible)
	assert.Equal(t, "audio cannot feed text", result.Message)

	result = run(t, e, "compat", map[string]interface{}{"from": "hologram", "to": "text"})
	assert.False(t, result.Success)

	result = run(t, e, "suggest", map[string]interface{}{"type": "embedding"})
	require.True(t, result.Success)
	suggestions := result.Data.(*service.Suggestions)
	require.Len(t, suggestions.Suggested, 1)
	assert.Equal(t, "vector-search", suggestions.Suggested[0].ID)

	result = run(t, e, "connect", map[string]interface{}{"from": "embedding-generator", "to": "vector-search"})
	require.True(t, result.Success)
	assert.True(t, result.Data.(*service.ConnectionCheck).Compatible)

	result = run(t, e, "connect", map[string]interface{}{"from": "embedding-generator"})
	assert.Equal(t, "INVALID_COMMAND", result.Error.Code)
}

func TestValidateForm(t *testing.T) {
	e := newExecutor(t)

	result := run(t, e, "validate-form", map[string]interface{}{
		"schema": "project",
		"data":   map[string]interface{}{"name": "demo", "template": "x"},
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error.Violations, "template: Invalid enum value. Expected 'next' | 'vite' | 'remix' | 'astro', received 'x'")

	result = run(t, e, "validate-form", map[string]interface{}{
		"schema": "email",
		"data":   map[string]interface{}{"email": " Dev@Example.com"},
	})
	require.True(t, result.Success)
	sub := result.Data.(*service.FormSubmission)
	assert.Equal(t, "dev@example.com", sub.Data["email"])
	assert.NotEmpty(t, sub.ID)

	result = run(t, e, "validate-form", map[string]interface{}{"schema": "validate_form", "data": map[string]interface{}{}})
	assert.Equal(t, []string{"schema: Schema 'validate_form' cannot validate itself"}, result.Error.Violations)
}

func TestMetadataCommands(t *testing.T) {
	e := newExecutor(t)

	result := run(t, e, "list-tags", nil)
	assert.Contains(t, result.Data.([]string), "ai")

	result = run(t, e, "list-categories", nil)
	assert.Len(t, result.Data.([]catalog.CategoryCount), 7)

	result = run(t, e, "stats", nil)
	assert.Equal(t, 49, result.Data.(catalog.Stats).TotalCapsules)

	result = run(t, e, "verify", nil)
	assert.True(t, result.Success)

	result = run(t, e, "health", nil)
	require.True(t, result.Success)
	assert.Equal(t, "healthy", result.Data.(map[string]interface{})["status"])
}

func TestSavedSearchCommands(t *testing.T) {
	e := newExecutor(t)

	expr, err := models.ParseBooleanExpression("feedback AND loading")
	require.NoError(t, err)
	require.NoError(t, e.service.SaveBooleanSearch(models.SavedSearch{Name: "loaders", Expression: expr}))

	result := run(t, e, "list-saved-searches", nil)
	assert.Len(t, result.Data.([]models.SavedSearch), 1)

	result = run(t, e, "execute-saved-search", map[string]interface{}{"name": "loaders"})
	require.True(t, result.Success)
	assert.Len(t, result.Data.([]*models.Capsule), 3)

	result = run(t, e, "execute-saved-search", nil)
	assert.Equal(t, "INVALID_COMMAND", result.Error.Code)
}
