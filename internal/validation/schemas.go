package validation

import (
	"fmt"
	"regexp"

	"github.com/dpshade/pocket-capsules/internal/compat"
	"github.com/dpshade/pocket-capsules/internal/models"
)

var (
	idPattern     = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	portIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
	tagPattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)
	couponPattern = regexp.MustCompile(`^[A-Z0-9-]{3,32}$`)
	zipPattern    = regexp.MustCompile(`^[A-Za-z0-9 -]{3,10}$`)
)

// Template options for new projects
var ProjectTemplates = []string{"next", "vite", "remix", "astro"}

// Platforms a capsule may target
var Platforms = []string{"web", "mobile", "desktop"}

func emailField() FieldValidator {
	return FieldValidator{
		Name:        "email",
		Description: "Contact email, normalised to lower case",
		Type:        TypeString,
		Required:    true,
		Trim:        true,
		Lowercase:   true,
		Format:      "email",
		MaxLength:   254,
	}
}

// EmailField is the single-field email schema
func EmailField() FieldValidator {
	return emailField()
}

// registerBuiltinSchemas registers the form schemas and the command parameter schemas
func (v *Validator) registerBuiltinSchemas() {
	v.registerFormSchemas()
	v.registerCommandSchemas()
}

func (v *Validator) registerFormSchemas() {
	v.RegisterSchema(&Schema{
		Name:        "email",
		Description: "A single email address",
		Fields: map[string]FieldValidator{
			"email": emailField(),
		},
	})

	v.RegisterSchema(&Schema{
		Name:        "waitlist",
		Description: "Waitlist sign-up",
		Fields: map[string]FieldValidator{
			"email": emailField(),
			"name": {
				Name: "name", Type: TypeString, Trim: true, Sanitize: true, MaxLength: 100,
			},
			"company": {
				Name: "company", Type: TypeString, Trim: true, Sanitize: true, MaxLength: 100,
			},
			"role": {
				Name:    "role",
				Type:    TypeString,
				Trim:    true,
				Options: []string{"developer", "designer", "founder", "product", "other"},
				Default: "other",
			},
			"referralSource": {
				Name: "referralSource", Type: TypeString, Trim: true, MaxLength: 100,
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name:        "contact",
		Description: "Contact form message",
		Fields: map[string]FieldValidator{
			"name": {
				Name: "name", Type: TypeString, Required: true, Trim: true, Sanitize: true,
				MinLength: 2, MaxLength: 100,
			},
			"email": emailField(),
			"subject": {
				Name: "subject", Type: TypeString, Required: true, Trim: true, Sanitize: true,
				MinLength: 3, MaxLength: 200,
			},
			"message": {
				Name: "message", Type: TypeString, Required: true, Trim: true, Sanitize: true,
				MinLength: 10, MaxLength: 5000,
			},
			"topic": {
				Name:    "topic",
				Type:    TypeString,
				Options: []string{"general", "support", "sales", "partnership"},
				Default: "general",
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name:        "checkout",
		Description: "Plan checkout",
		Fields: map[string]FieldValidator{
			"email": emailField(),
			"plan": {
				Name: "plan", Type: TypeString, Required: true, Lowercase: true, Trim: true,
				Options: []string{"free", "pro", "team", "enterprise"},
			},
			"billingCycle": {
				Name:    "billingCycle",
				Type:    TypeString,
				Options: []string{"monthly", "yearly"},
				Default: "monthly",
			},
			"seats": {
				Name: "seats", Type: TypeInt, Min: Bound(1), Max: Bound(500), Default: 1,
			},
			"couponCode": {
				Name: "couponCode", Type: TypeString, Trim: true, Uppercase: true,
				Pattern: couponPattern, PatternMessage: "Invalid coupon code",
			},
			"billing": {
				Name:     "billing",
				Type:     TypeObject,
				Required: true,
				Fields: map[string]FieldValidator{
					"name": {
						Name: "name", Type: TypeString, Required: true, Trim: true, MinLength: 2, MaxLength: 100,
					},
					"address": {
						Name:     "address",
						Type:     TypeObject,
						Required: true,
						Fields: map[string]FieldValidator{
							"line1":   {Name: "line1", Type: TypeString, Required: true, Trim: true, MaxLength: 200},
							"line2":   {Name: "line2", Type: TypeString, Trim: true, MaxLength: 200},
							"city":    {Name: "city", Type: TypeString, Required: true, Trim: true, MaxLength: 100},
							"country": {Name: "country", Type: TypeString, Required: true, Trim: true, Uppercase: true, MinLength: 2, MaxLength: 2},
							"zip":     {Name: "zip", Type: TypeString, Required: true, Trim: true, Pattern: zipPattern},
						},
					},
				},
			},
		},
		Rules: []Rule{
			func(data map[string]interface{}) error {
				if data["plan"] == "team" {
					if seats, ok := data["seats"].(int); ok && seats < 2 {
						return &RuleError{Path: "seats", Message: "Team plans need at least 2 seats"}
					}
				}
				return nil
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name:        "api_key",
		Description: "API key creation",
		Fields: map[string]FieldValidator{
			"name": {
				Name: "name", Type: TypeString, Required: true, Trim: true, MinLength: 3, MaxLength: 50,
			},
			"scopes": {
				Name:     "scopes",
				Type:     TypeArray,
				Required: true,
				MinItems: 1,
				Items: &FieldValidator{
					Type: TypeString, Trim: true, Lowercase: true,
					Options: []string{"read", "write", "admin"},
				},
			},
			"expiresInDays": {
				Name: "expiresInDays", Type: TypeInt, Min: Bound(1), Max: Bound(365), Default: 90,
			},
			"environment": {
				Name:    "environment",
				Type:    TypeString,
				Options: []string{"development", "staging", "production"},
				Default: "development",
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name:        "newsletter",
		Description: "Newsletter subscription",
		Fields: map[string]FieldValidator{
			"email": emailField(),
			"frequency": {
				Name:    "frequency",
				Type:    TypeString,
				Options: []string{"daily", "weekly", "monthly"},
				Default: "weekly",
			},
			"topics": {
				Name:     "topics",
				Type:     TypeArray,
				MaxItems: 10,
				Items:    &FieldValidator{Type: TypeString, Trim: true, Lowercase: true, MaxLength: 50},
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name:        "project",
		Description: "New project from a starter template",
		Fields: map[string]FieldValidator{
			"name": {
				Name: "name", Type: TypeString, Required: true, Trim: true, MinLength: 1, MaxLength: 100,
			},
			"template": {
				Name: "template", Type: TypeString, Required: true, Trim: true, Lowercase: true,
				Options: ProjectTemplates,
			},
			"description": {
				Name: "description", Type: TypeString, Trim: true, Sanitize: true, MaxLength: 500,
			},
			"private": {
				Name: "private", Type: TypeBool, Default: false,
			},
			"repositoryUrl": {
				Name: "repositoryUrl", Type: TypeString, Trim: true, Format: "url",
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name:        "capsule_submission",
		Description: "A new capsule for the library",
		Fields: map[string]FieldValidator{
			"id": {
				Name: "id", Type: TypeString, Required: true, Trim: true, Lowercase: true,
				MaxLength: 100, Pattern: idPattern,
				PatternMessage: "Must contain only lowercase letters, digits and hyphens",
			},
			"name": {
				Name: "name", Type: TypeString, Required: true, Trim: true, Sanitize: true, MinLength: 2, MaxLength: 100,
			},
			"category": {
				Name: "category", Type: TypeString, Required: true, Trim: true, Lowercase: true,
				MaxLength: 50, Pattern: tagPattern,
			},
			"description": {
				Name: "description", Type: TypeString, Required: true, Trim: true, Sanitize: true,
				MinLength: 10, MaxLength: 500,
			},
			"tags": {
				Name:     "tags",
				Type:     TypeArray,
				MinItems: 1,
				MaxItems: 20,
				Items: &FieldValidator{
					Type: TypeString, Trim: true, Lowercase: true, MaxLength: 50, Pattern: tagPattern,
				},
			},
			"code": {
				Name: "code", Type: TypeString, Required: true, MinLength: 1, MaxLength: 100000,
			},
			"platform": {
				Name: "platform", Type: TypeString, Lowercase: true, Options: Platforms, Default: "web",
			},
			"version": {
				Name: "version", Type: TypeString, Trim: true, Pattern: semverPattern,
				PatternMessage: "Must be a semantic version",
			},
			"author":        {Name: "author", Type: TypeString, Trim: true, Sanitize: true, MaxLength: 100},
			"npmPackage":    {Name: "npmPackage", Type: TypeString, Trim: true, MaxLength: 214},
			"documentation": {Name: "documentation", Type: TypeString, MaxLength: 20000},
			"inputs":        portsField("inputs"),
			"outputs":       portsField("outputs"),
		},
	})
}

// portsField accepts a list of node-graph ports with unique ids
func portsField(name string) FieldValidator {
	return FieldValidator{
		Name:     name,
		Type:     TypeArray,
		MaxItems: 20,
		Items: &FieldValidator{
			Type: TypeObject,
			Fields: map[string]FieldValidator{
				"id": {
					Name: "id", Type: TypeString, Required: true, Trim: true, MaxLength: 50,
					Pattern: portIDPattern, PatternMessage: "Must start with a letter and contain only letters, digits, '_' and '-'",
				},
				"name": {
					Name: "name", Type: TypeString, Required: true, Trim: true, Sanitize: true, MaxLength: 100,
				},
				"type": {
					Name: "type", Type: TypeString, Required: true, Trim: true, Lowercase: true,
					Options: compat.TypeNames(),
				},
				"required": {Name: "required", Type: TypeBool, Default: false},
				"description": {
					Name: "description", Type: TypeString, Trim: true, Sanitize: true, MaxLength: 500,
				},
			},
		},
		Custom: func(v interface{}) error {
			seen := make(map[string]bool)
			for _, item := range v.([]interface{}) {
				id, _ := item.(map[string]interface{})["id"].(string)
				if seen[id] {
					return fmt.Errorf("Duplicate port id '%s'", id)
				}
				seen[id] = true
			}
			return nil
		},
	}
}

func (v *Validator) registerCommandSchemas() {
	v.RegisterSchema(&Schema{
		Name: "list_capsules",
		Fields: map[string]FieldValidator{
			"tag": {
				Name: "tag", Type: TypeString, Trim: true, MaxLength: 50, Pattern: tagPattern,
			},
			"category": {
				Name: "category", Type: TypeString, Trim: true, MaxLength: 50, Pattern: tagPattern,
			},
			"platform": {
				Name: "platform", Type: TypeString, Options: Platforms,
			},
			"format": {
				Name: "format", Type: TypeString, Options: []string{"json", "text", "table", "ids"},
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "search_capsules",
		Fields: map[string]FieldValidator{
			"query": {
				Name: "query", Type: TypeString, Required: true, Trim: true, MinLength: 1, MaxLength: 1000,
			},
			"category": {
				Name: "category", Type: TypeString, Trim: true, MaxLength: 50,
			},
			"limit": {
				Name: "limit", Type: TypeInt, Min: Bound(1), Max: Bound(500), Default: 50,
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "boolean_search",
		Fields: map[string]FieldValidator{
			"expression": {
				Name: "expression", Type: TypeString, Required: true, Trim: true, MinLength: 1, MaxLength: 1000,
				Custom: func(value interface{}) error {
					expr, _ := value.(string)
					_, err := models.ParseBooleanExpression(expr)
					return err
				},
			},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "get_capsule",
		Fields: map[string]FieldValidator{
			"id": {
				Name: "id", Type: TypeString, Required: true, Trim: true, MinLength: 1, MaxLength: 200,
				Pattern: idPattern,
			},
			"with_code": {
				Name: "with_code", Type: TypeBool, Default: true,
			},
		},
	})

	types := compat.TypeNames()
	v.RegisterSchema(&Schema{
		Name: "compat_check",
		Fields: map[string]FieldValidator{
			"from": {Name: "from", Type: TypeString, Required: true, Trim: true, Lowercase: true, Options: types},
			"to":   {Name: "to", Type: TypeString, Required: true, Trim: true, Lowercase: true, Options: types},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "suggest_capsules",
		Fields: map[string]FieldValidator{
			"type": {Name: "type", Type: TypeString, Required: true, Trim: true, Lowercase: true, Options: types},
		},
	})

	v.RegisterSchema(&Schema{
		Name: "validate_form",
		Fields: map[string]FieldValidator{
			"schema": {Name: "schema", Type: TypeString, Required: true, Trim: true, MaxLength: 100},
			"data":   {Name: "data", Type: TypeObject, Required: true},
		},
		Rules: []Rule{
			func(data map[string]interface{}) error {
				if name, _ := data["schema"].(string); name == "validate_form" {
					return &RuleError{Path: "schema", Message: fmt.Sprintf("Schema '%s' cannot validate itself", name)}
				}
				return nil
			},
		},
	})
}

// FormSchemas lists the schemas accepted by the form submission endpoint
var FormSchemas = []string{"api_key", "capsule_submission", "checkout", "contact", "email", "newsletter", "project", "waitlist"}

// IsFormSchema reports whether name is a form schema
func IsFormSchema(name string) bool {
	return containsString(FormSchemas, name)
}
