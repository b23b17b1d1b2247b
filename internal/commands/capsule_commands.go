package commands

import (
	"context"
	"fmt"

	"github.com/dpshade/pocket-capsules/internal/catalog"
	"github.com/dpshade/pocket-capsules/internal/compat"
	"github.com/dpshade/pocket-capsules/internal/models"
	"github.com/dpshade/pocket-capsules/internal/service"
)

// ListCapsulesCommand lists capsules filtered by category, tag and platform
type ListCapsulesCommand struct {
	serviceCommand
	Filter catalog.Filter
	Format string
}

func (c *ListCapsulesCommand) SetParameters(params map[string]interface{}) error {
	c.Filter = catalog.Filter{
		Category: stringParam(params, "category"),
		Tag:      stringParam(params, "tag"),
		Platform: stringParam(params, "platform"),
	}
	c.Format = stringParam(params, "format")
	return nil
}

func (c *ListCapsulesCommand) GetName() string {
	return "list"
}

func (c *ListCapsulesCommand) GetDescription() string {
	return "List capsules with optional filtering by category, tag or platform"
}

func (c *ListCapsulesCommand) Execute(ctx context.Context) (*CommandResult, error) {
	capsules := c.service.ListCapsules(c.Filter)

	var data interface{} = capsules
	if c.Format == "ids" {
		data = capsuleIDs(capsules)
	}

	return &CommandResult{
		Success: true,
		Data:    data,
		Message: fmt.Sprintf("Found %d capsules", len(capsules)),
	}, nil
}

// GetCapsuleCommand retrieves one capsule
type GetCapsuleCommand struct {
	serviceCommand
	ID       string
	WithCode bool
}

func (c *GetCapsuleCommand) SetParameters(params map[string]interface{}) error {
	c.ID = stringParam(params, "id")
	c.WithCode = boolParam(params, "with_code", true)
	return nil
}

func (c *GetCapsuleCommand) GetName() string {
	return "get"
}

func (c *GetCapsuleCommand) GetDescription() string {
	return "Show a capsule by id"
}

func (c *GetCapsuleCommand) Execute(ctx context.Context) (*CommandResult, error) {
	capsule, err := c.service.GetCapsule(c.ID)
	if err != nil {
		return nil, err
	}
	if !c.WithCode {
		capsule = capsule.WithoutCode()
	}
	return &CommandResult{
		Success: true,
		Data:    capsule,
		Message: fmt.Sprintf("Found capsule '%s'", capsule.ID),
	}, nil
}

// SearchCapsulesCommand runs a fuzzy search
type SearchCapsulesCommand struct {
	serviceCommand
	Query    string
	Category string
	Limit    int
}

func (c *SearchCapsulesCommand) SetParameters(params map[string]interface{}) error {
	c.Query = stringParam(params, "query")
	c.Category = stringParam(params, "category")
	c.Limit = intParam(params, "limit", 50)
	return nil
}

func (c *SearchCapsulesCommand) GetName() string {
	return "search"
}

func (c *SearchCapsulesCommand) GetDescription() string {
	return "Fuzzy search over capsule names, descriptions, ids and tags"
}

func (c *SearchCapsulesCommand) Execute(ctx context.Context) (*CommandResult, error) {
	results := c.service.SearchCapsules(c.Query, catalog.Filter{Category: c.Category}, c.Limit)
	return &CommandResult{
		Success: true,
		Data:    results,
		Message: fmt.Sprintf("Found %d capsules matching '%s'", len(results), c.Query),
	}, nil
}

// BooleanSearchCommand evaluates a tag expression
type BooleanSearchCommand struct {
	serviceCommand
	Expression string
}

func (c *BooleanSearchCommand) SetParameters(params map[string]interface{}) error {
	c.Expression = stringParam(params, "expression")
	return nil
}

func (c *BooleanSearchCommand) GetName() string {
	return "boolean-search"
}

func (c *BooleanSearchCommand) GetDescription() string {
	return "Search by tag expression, e.g. 'forms AND (input OR select)'"
}

func (c *BooleanSearchCommand) Execute(ctx context.Context) (*CommandResult, error) {
	results, err := c.service.BooleanSearch(c.Expression)
	if err != nil {
		return nil, err
	}
	return &CommandResult{
		Success: true,
		Data:    results,
		Message: fmt.Sprintf("Found %d capsules matching %s", len(results), c.Expression),
	}, nil
}

// CompatResult answers whether one data type can feed another
type CompatResult struct {
	From       compat.DataType   `json:"from"`
	To         compat.DataType   `json:"to"`
	Compatible bool              `json:"compatible"`
	Targets    []compat.DataType `json:"targets"`
}

// CompatCommand checks two data types against the compatibility matrix
type CompatCommand struct {
	From compat.DataType
	To   compat.DataType
}

func (c *CompatCommand) SetParameters(params map[string]interface{}) error {
	c.From = compat.DataType(stringParam(params, "from"))
	c.To = compat.DataType(stringParam(params, "to"))
	return nil
}

func (c *CompatCommand) Validate() error {
	if c.From == "" || c.To == "" {
		return fmt.Errorf("both from and to are required")
	}
	return nil
}

func (c *CompatCommand) GetName() string {
	return "compat"
}

func (c *CompatCommand) GetDescription() string {
	return "Check whether an output type can feed an input type"
}

func (c *CompatCommand) Execute(ctx context.Context) (*CommandResult, error) {
	res := CompatResult{
		From:       c.From,
		To:         c.To,
		Compatible: compat.IsCompatible(c.From, []compat.DataType{c.To}),
		Targets:    compat.CompatibleTargets(c.From),
	}

	msg := fmt.Sprintf("%s can feed %s", c.From, c.To)
	if !res.Compatible {
		msg = fmt.Sprintf("%s cannot feed %s", c.From, c.To)
	}
	return &CommandResult{Success: true, Data: res, Message: msg}, nil
}

// ConnectCommand checks a port-to-port connection between two capsules
type ConnectCommand struct {
	serviceCommand
	From service.PortRef
	To   service.PortRef
}

func (c *ConnectCommand) SetParameters(params map[string]interface{}) error {
	c.From = service.ParsePortRef(stringParam(params, "from"))
	c.To = service.ParsePortRef(stringParam(params, "to"))
	// explicit port parameters win over the dotted form
	if port := stringParam(params, "output"); port != "" {
		c.From.Port = port
	}
	if port := stringParam(params, "input"); port != "" {
		c.To.Port = port
	}
	return nil
}

func (c *ConnectCommand) Validate() error {
	if err := c.serviceCommand.Validate(); err != nil {
		return err
	}
	if c.From.Capsule == "" || c.To.Capsule == "" {
		return fmt.Errorf("both from and to capsule ids are required")
	}
	return nil
}

func (c *ConnectCommand) GetName() string {
	return "connect"
}

func (c *ConnectCommand) GetDescription() string {
	return "Check whether a capsule output port can be wired to another capsule's input"
}

func (c *ConnectCommand) Execute(ctx context.Context) (*CommandResult, error) {
	check, err := c.service.CheckConnection(c.From, c.To)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("%s.%s -> %s.%s is compatible", check.From.Capsule, check.From.Port, check.To.Capsule, check.To.Port)
	if !check.Compatible {
		msg = check.Reason
	}
	return &CommandResult{Success: true, Data: check, Message: msg}, nil
}

// SuggestCommand lists capsules that can follow an output type
type SuggestCommand struct {
	serviceCommand
	Type string
}

func (c *SuggestCommand) SetParameters(params map[string]interface{}) error {
	c.Type = stringParam(params, "type")
	return nil
}

func (c *SuggestCommand) GetName() string {
	return "suggest"
}

func (c *SuggestCommand) GetDescription() string {
	return "Suggest capsules that can consume a data type"
}

func (c *SuggestCommand) Execute(ctx context.Context) (*CommandResult, error) {
	suggestions, err := c.service.SuggestConnectable(c.Type)
	if err != nil {
		return nil, err
	}
	return &CommandResult{
		Success: true,
		Data:    suggestions,
		Message: fmt.Sprintf("%d suggested, %d accepting %s", len(suggestions.Suggested), len(suggestions.Accepting), c.Type),
	}, nil
}

// ValidateFormCommand validates a form payload against a form schema
type ValidateFormCommand struct {
	serviceCommand
	Schema string
	Data   map[string]interface{}
}

func (c *ValidateFormCommand) SetParameters(params map[string]interface{}) error {
	c.Schema = stringParam(params, "schema")
	data, ok := params["data"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("data must be an object")
	}
	c.Data = data
	return nil
}

func (c *ValidateFormCommand) GetName() string {
	return "validate-form"
}

func (c *ValidateFormCommand) GetDescription() string {
	return "Validate a form submission against a named schema"
}

func (c *ValidateFormCommand) Execute(ctx context.Context) (*CommandResult, error) {
	submission, err := c.service.ValidateForm(c.Schema, c.Data)
	if err != nil {
		return nil, err
	}
	return &CommandResult{
		Success: true,
		Data:    submission,
		Message: fmt.Sprintf("%s submission is valid", c.Schema),
	}, nil
}

func capsuleIDs(capsules []*models.Capsule) []string {
	ids := make([]string, 0, len(capsules))
	for _, c := range capsules {
		ids = append(ids, c.ID)
	}
	return ids
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func boolParam(params map[string]interface{}, key string, fallback bool) bool {
	if b, ok := params[key].(bool); ok {
		return b
	}
	return fallback
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	switch n := params[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return fallback
}
