package renderer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-capsules/internal/models"
)

func sample() *models.Capsule {
	return &models.Capsule{
		ID:          "speech-to-text",
		Name:        "Speech to Text",
		Category:    "ai",
		Description: "Transcribes recorded audio | live input",
		Tags:        []string{"ai", "audio"},
		Platform:    "web",
		Inputs:      []models.Port{{ID: "audio", Name: "Audio", Type: "audio", Required: true}},
		Outputs:     []models.Port{{ID: "transcript", Name: "Transcript", Type: "text"}},
		Code:        "'use client'\nconst s = `a ```` b`\n",
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := NewRenderer(sample()).RenderMarkdown(true)

	assert.True(t, strings.HasPrefix(md, "# Speech to Text\n"))
	assert.Contains(t, md, "| ID | `speech-to-text` |")
	assert.Contains(t, md, "| Tags | ai, audio |")
	assert.Contains(t, md, "| Runtime | client component |")
	assert.Contains(t, md, "- **audio** `audio` (required)")
	assert.Contains(t, md, "- **transcript** `text`")
	assert.Contains(t, md, "`````tsx\n'use client'", "fence is longer than the backtick run in the code")

	withoutCode := NewRenderer(sample()).RenderMarkdown(false)
	assert.NotContains(t, withoutCode, "## Code")
}

func TestRenderJSON(t *testing.T) {
	out, err := NewRenderer(sample()).RenderJSON(false)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "speech-to-text", decoded["id"])
	assert.NotContains(t, decoded, "code")
}

func TestRenderTerminal(t *testing.T) {
	t.Setenv("GLAMOUR_STYLE", "notty")

	out, err := NewRenderer(sample()).RenderTerminal(true, 80)
	require.NoError(t, err)
	assert.Contains(t, out, "Speech to Text")
	assert.Contains(t, out, "use client")
}
