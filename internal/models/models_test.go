package models

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBooleanExpression(t *testing.T) {
	tests := []struct {
		input string
		query string
		tags  []string
		want  bool
	}{
		{"forms", "forms", []string{"Forms"}, true},
		{"forms AND NOT legacy", "forms AND NOT legacy", []string{"forms", "legacy"}, false},
		{"ai AND (audio OR video)", "ai AND (audio OR video)", []string{"ai", "video"}, true},
		{"a OR b AND c", "a OR (b AND c)", []string{"b"}, false},
		{"a xor b", "a XOR b", []string{"a", "b"}, false},
		{"NOT (a OR b)", "NOT (a OR b)", nil, true},
		{"[forms] and [input]", "forms AND input", []string{"forms", "input"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr, err := ParseBooleanExpression(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.query, expr.Query())
			assert.Equal(t, tt.want, expr.Evaluate(tt.tags))

			again, err := ParseBooleanExpression(expr.Query())
			require.NoError(t, err)
			assert.Equal(t, expr.String(), again.String())
		})
	}
}

func TestParseBooleanExpressionErrors(t *testing.T) {
	tests := map[string]string{
		"":           "empty expression",
		"   ":        "empty expression",
		"(forms":     "unbalanced parentheses in expression",
		"forms)":     `unexpected token ")"`,
		"forms AND":  "unexpected end of expression",
		"AND forms":  "operator AND is missing an operand",
		"forms ai":   `unexpected token "ai"`,
		"NOT":        "unexpected end of expression",
		"a OR (b OR": "unexpected end of expression",
	}
	for input, msg := range tests {
		_, err := ParseBooleanExpression(input)
		if assert.Error(t, err, input) {
			assert.Equal(t, msg, err.Error(), input)
		}
	}
}

func TestExpressionJSON(t *testing.T) {
	expr, err := ParseBooleanExpression("ai AND NOT (audio XOR video)")
	require.NoError(t, err)

	data, err := json.Marshal(expr)
	require.NoError(t, err)

	var decoded BooleanExpression
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, expr.Query(), decoded.Query())
}

func TestMatchesUsesCategory(t *testing.T) {
	c := &Capsule{ID: "spinner", Category: "feedback", Tags: []string{"loading"}}
	expr, err := ParseBooleanExpression("feedback AND loading")
	require.NoError(t, err)
	assert.True(t, expr.Matches(c))

	var none *BooleanExpression
	assert.True(t, none.Evaluate(nil))
	assert.Equal(t, "", none.Query())
}

func TestCodeFence(t *testing.T) {
	assert.Equal(t, "```", CodeFence("const x = 1"))
	assert.Equal(t, "```", CodeFence("a `b` ``c``"))
	assert.Equal(t, "````", CodeFence("```tsx\n```"))
	assert.Equal(t, "``````", CodeFence("`````"))
}

func TestHeadlineAndSummary(t *testing.T) {
	c := &Capsule{ID: "toggle-switch"}
	assert.Equal(t, "toggle-switch", c.Headline())
	assert.Empty(t, c.Summary())

	c.Name = "Toggle\nSwitch"
	c.Category = "forms"
	c.Description = "An accessible on/off switch"
	c.Tags = []string{"forms", "input"}
	assert.Equal(t, "Toggle Switch", c.Headline())
	assert.Equal(t, "forms • An accessible on/off switch • Tags: forms, input", c.Summary())

	c.Description = "This description is long enough that it has to be cut short somewhere"
	assert.Contains(t, c.Summary(), "...")

	c.Description = strings.Repeat("é", 80)
	c.Tags = []string{strings.Repeat("ü", 60)}
	summary := c.Summary()
	assert.True(t, utf8.ValidString(summary), summary)
	assert.Equal(t, 100, utf8.RuneCountInString(summary))
	assert.Contains(t, summary, strings.Repeat("é", 57)+"...")
}
