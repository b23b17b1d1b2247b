package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// BooleanExpression represents a boolean search expression over capsule tags
type BooleanExpression struct {
	Type  ExpressionType `json:"type"`
	Value interface{}    `json:"value"` // string for Tag, []*BooleanExpression for operators
}

// ExpressionType defines the type of boolean expression
type ExpressionType string

const (
	ExpressionTag ExpressionType = "tag"
	ExpressionAnd ExpressionType = "and"
	ExpressionOr  ExpressionType = "or"
	ExpressionXor ExpressionType = "xor"
	ExpressionNot ExpressionType = "not"
)

// SavedSearch is a named boolean tag query kept in the library
type SavedSearch struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Expression  *BooleanExpression `json:"expression"`
	TextQuery   string             `json:"text_query,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Evaluate evaluates the expression against a tag set.
// A nil expression matches everything.
func (be *BooleanExpression) Evaluate(tags []string) bool {
	if be == nil {
		return true
	}

	switch be.Type {
	case ExpressionTag:
		tagName, ok := be.Value.(string)
		if !ok {
			return false
		}
		return containsTag(tags, tagName)

	case ExpressionAnd:
		expressions, ok := be.Value.([]*BooleanExpression)
		if !ok || len(expressions) == 0 {
			return true
		}
		for _, expr := range expressions {
			if !expr.Evaluate(tags) {
				return false
			}
		}
		return true

	case ExpressionOr:
		expressions, ok := be.Value.([]*BooleanExpression)
		if !ok || len(expressions) == 0 {
			return false
		}
		for _, expr := range expressions {
			if expr.Evaluate(tags) {
				return true
			}
		}
		return false

	case ExpressionXor:
		expressions, ok := be.Value.([]*BooleanExpression)
		if !ok || len(expressions) != 2 {
			return false
		}
		return expressions[0].Evaluate(tags) != expressions[1].Evaluate(tags)

	case ExpressionNot:
		expressions, ok := be.Value.([]*BooleanExpression)
		if !ok || len(expressions) != 1 {
			return false
		}
		return !expressions[0].Evaluate(tags)

	default:
		return false
	}
}

// Matches evaluates the expression against a capsule. The category is
// matched as if it were one more tag.
func (be *BooleanExpression) Matches(c *Capsule) bool {
	tags := make([]string, 0, len(c.Tags)+1)
	tags = append(tags, c.Tags...)
	if c.Category != "" {
		tags = append(tags, c.Category)
	}
	return be.Evaluate(tags)
}

// String returns a human-readable representation of the expression
func (be *BooleanExpression) String() string {
	if be == nil {
		return ""
	}

	switch be.Type {
	case ExpressionTag:
		if tagName, ok := be.Value.(string); ok {
			return fmt.Sprintf("[%s]", tagName)
		}
		return "[unknown]"

	case ExpressionAnd, ExpressionOr:
		op := " AND "
		if be.Type == ExpressionOr {
			op = " OR "
		}
		if expressions, ok := be.Value.([]*BooleanExpression); ok {
			parts := make([]string, 0, len(expressions))
			for _, expr := range expressions {
				parts = append(parts, expr.String())
			}
			return fmt.Sprintf("(%s)", strings.Join(parts, op))
		}
		return "(?)"

	case ExpressionXor:
		if expressions, ok := be.Value.([]*BooleanExpression); ok && len(expressions) == 2 {
			return fmt.Sprintf("(%s XOR %s)", expressions[0].String(), expressions[1].String())
		}
		return "(XOR ?)"

	case ExpressionNot:
		if expressions, ok := be.Value.([]*BooleanExpression); ok && len(expressions) == 1 {
			return fmt.Sprintf("NOT %s", expressions[0].String())
		}
		return "NOT ?"

	default:
		return "(?)"
	}
}

// Query returns the expression in the syntax ParseBooleanExpression reads,
// so it can be put back into an editor.
func (be *BooleanExpression) Query() string {
	return be.query(true)
}

func (be *BooleanExpression) query(top bool) string {
	if be == nil {
		return ""
	}
	if be.Type == ExpressionTag {
		tag, _ := be.Value.(string)
		return tag
	}

	operands, _ := be.Value.([]*BooleanExpression)
	if be.Type == ExpressionNot {
		if len(operands) != 1 {
			return ""
		}
		return "NOT " + operands[0].query(false)
	}

	op := " AND "
	switch be.Type {
	case ExpressionOr:
		op = " OR "
	case ExpressionXor:
		op = " XOR "
	}
	parts := make([]string, len(operands))
	for i, e := range operands {
		parts[i] = e.query(false)
	}
	joined := strings.Join(parts, op)
	if top {
		return joined
	}
	return "(" + joined + ")"
}

// NewTagExpression creates a new tag expression
func NewTagExpression(tag string) *BooleanExpression {
	return &BooleanExpression{Type: ExpressionTag, Value: tag}
}

// NewAndExpression creates a new AND expression
func NewAndExpression(expressions ...*BooleanExpression) *BooleanExpression {
	return &BooleanExpression{Type: ExpressionAnd, Value: expressions}
}

// NewOrExpression creates a new OR expression
func NewOrExpression(expressions ...*BooleanExpression) *BooleanExpression {
	return &BooleanExpression{Type: ExpressionOr, Value: expressions}
}

// NewXorExpression creates a new XOR expression
func NewXorExpression(left, right *BooleanExpression) *BooleanExpression {
	return &BooleanExpression{Type: ExpressionXor, Value: []*BooleanExpression{left, right}}
}

// NewNotExpression creates a new NOT expression
func NewNotExpression(expr *BooleanExpression) *BooleanExpression {
	return &BooleanExpression{Type: ExpressionNot, Value: []*BooleanExpression{expr}}
}

// MarshalJSON implements custom JSON marshaling for BooleanExpression
func (be *BooleanExpression) MarshalJSON() ([]byte, error) {
	if be.Type == ExpressionTag {
		tag, _ := be.Value.(string)
		return json.Marshal(struct {
			Type  ExpressionType `json:"type"`
			Value string         `json:"value"`
		}{be.Type, tag})
	}
	children, _ := be.Value.([]*BooleanExpression)
	return json.Marshal(struct {
		Type  ExpressionType       `json:"type"`
		Value []*BooleanExpression `json:"value"`
	}{be.Type, children})
}

// UnmarshalJSON implements custom JSON unmarshaling for BooleanExpression
func (be *BooleanExpression) UnmarshalJSON(data []byte) error {
	var temp struct {
		Type  ExpressionType  `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	be.Type = temp.Type
	if temp.Type == ExpressionTag {
		var tag string
		if err := json.Unmarshal(temp.Value, &tag); err != nil {
			return err
		}
		be.Value = tag
		return nil
	}

	var children []*BooleanExpression
	if err := json.Unmarshal(temp.Value, &children); err != nil {
		return err
	}
	be.Value = children
	return nil
}

// ParseBooleanExpression parses queries such as "react AND (form OR input) AND NOT deprecated".
// Precedence from loosest to tightest: OR, XOR, AND, NOT.
func ParseBooleanExpression(input string) (*BooleanExpression, error) {
	p := &exprParser{tokens: tokenize(input)}
	if len(p.tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q", p.tokens[p.pos])
	}
	return expr, nil
}

type exprParser struct {
	tokens []string
	pos    int
}

func (p *exprParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *exprParser) parseOr() (*BooleanExpression, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	operands := []*BooleanExpression{left}
	for strings.EqualFold(p.peek(), "OR") {
		p.pos++
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		operands = append(operands, right)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return NewOrExpression(operands...), nil
}

func (p *exprParser) parseXor() (*BooleanExpression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for strings.EqualFold(p.peek(), "XOR") {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = NewXorExpression(left, right)
	}
	return left, nil
}

func (p *exprParser) parseAnd() (*BooleanExpression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	operands := []*BooleanExpression{left}
	for strings.EqualFold(p.peek(), "AND") {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		operands = append(operands, right)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return NewAndExpression(operands...), nil
}

func (p *exprParser) parseUnary() (*BooleanExpression, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return nil, fmt.Errorf("unexpected end of expression")
	case strings.EqualFold(tok, "NOT"):
		p.pos++
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return NewNotExpression(inner), nil
	case tok == "(":
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("unbalanced parentheses in expression")
		}
		p.pos++
		return inner, nil
	case tok == ")":
		return nil, fmt.Errorf("unbalanced parentheses in expression")
	case isOperator(tok):
		return nil, fmt.Errorf("operator %s is missing an operand", strings.ToUpper(tok))
	default:
		p.pos++
		return NewTagExpression(strings.Trim(tok, "[]")), nil
	}
}

func isOperator(tok string) bool {
	switch strings.ToUpper(tok) {
	case "AND", "OR", "XOR", "NOT":
		return true
	}
	return false
}

func tokenize(input string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range input {
		switch {
		case r == '(' || r == ')':
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}
