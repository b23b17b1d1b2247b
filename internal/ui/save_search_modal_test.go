package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-capsules/internal/models"
)

func TestSaveSearchModal_EditMode(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	original := &models.SavedSearch{
		Name:        "Test Search",
		Description: "old",
		Expression:  models.NewAndExpression(models.NewTagExpression("tag1"), models.NewTagExpression("tag2")),
		TextQuery:   "test query",
		CreatedAt:   created,
	}

	modal := NewSaveSearchModal()
	newExpression := models.NewOrExpression(models.NewTagExpression("tag3"), models.NewTagExpression("tag4"))
	modal.OpenEdit(original, newExpression)

	assert.True(t, modal.IsEditMode())
	assert.Same(t, original, modal.GetOriginalSearch())
	assert.Equal(t, "Test Search", modal.nameInput.Value())
	assert.Equal(t, "old", modal.descriptionInput.Value())
	assert.Contains(t, modal.View(), "Edit saved search")

	modal.Update(keyMsg("enter"))
	require.True(t, modal.IsSubmitted())
	saved := modal.TakeSavedSearch()
	assert.Same(t, newExpression, saved.Expression)
	assert.Equal(t, "test query", saved.TextQuery)
	assert.Equal(t, created, saved.CreatedAt)
	assert.False(t, modal.IsActive())

	modal.Open(newExpression, "")
	assert.False(t, modal.IsEditMode(), "opening for a new search clears edit mode")
	assert.Empty(t, modal.nameInput.Value())
}

func TestSaveSearchModal_RequiresName(t *testing.T) {
	modal := NewSaveSearchModal()
	modal.Open(models.NewTagExpression("forms"), "")

	modal.Update(keyMsg("enter"))
	assert.False(t, modal.IsSubmitted())
	assert.Contains(t, modal.View(), "name is required")

	modal.Update(keyMsg("   "))
	modal.Update(keyMsg("enter"))
	assert.False(t, modal.IsSubmitted())

	modal.Update(keyMsg("forms"))
	modal.Update(keyMsg("tab"))
	modal.Update(keyMsg("All form controls"))
	modal.Update(keyMsg("enter"))
	require.True(t, modal.IsSubmitted())

	saved := modal.TakeSavedSearch()
	assert.Equal(t, "forms", saved.Name)
	assert.Equal(t, "All form controls", saved.Description)
	assert.Nil(t, modal.TakeSavedSearch())
}

func TestSaveSearchModal_InactiveIgnoresKeys(t *testing.T) {
	modal := NewSaveSearchModal()
	assert.Nil(t, modal.Update(keyMsg("enter")))
	assert.False(t, modal.IsSubmitted())
}

func TestBooleanSearchModal(t *testing.T) {
	var searched []string
	modal := NewBooleanSearchModal([]string{"forms", "feedback", "ai"}, func(e *models.BooleanExpression) []*models.Capsule {
		searched = append(searched, e.Query())
		return []*models.Capsule{{ID: "toggle-switch"}}
	})

	modal.Open(nil)
	modal.Update(keyMsg("forms AND"))
	assert.Error(t, modal.parseErr)
	assert.Nil(t, modal.Expression())

	modal.Update(keyMsg("enter"))
	assert.True(t, modal.IsActive(), "an invalid expression cannot be applied")

	modal.Update(keyMsg(" fe"))
	assert.NoError(t, modal.parseErr)
	assert.Equal(t, []string{"forms AND fe"}, searched)
	assert.Len(t, modal.Results(), 1)

	modal.Update(keyMsg("enter"))
	assert.False(t, modal.IsActive())
	assert.True(t, modal.TakeApply())
	assert.False(t, modal.TakeApply())
}

func TestCurrentWord(t *testing.T) {
	tests := []struct {
		text string
		pos  int
		want string
	}{
		{"", 0, ""},
		{"for", 3, "for"},
		{"forms AND fe", 12, "fe"},
		{"forms AND", 9, ""},
		{"(ai OR vid", 10, "vid"},
		{"NOT (le", 7, "le"},
		{"forms", 9, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, currentWord(tt.text, tt.pos), tt.text)
	}
}
