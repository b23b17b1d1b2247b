package models

import (
	"strings"
	"unicode/utf8"
)

// Capsule is a catalog entry describing one reusable UI component template
type Capsule struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Category    string   `yaml:"category" json:"category"`
	Description string   `yaml:"description" json:"description"`
	Tags        []string `yaml:"tags" json:"tags"`

	// Optional metadata
	Version       string `yaml:"version,omitempty" json:"version,omitempty"`
	Author        string `yaml:"author,omitempty" json:"author,omitempty"`
	Platform      string `yaml:"platform,omitempty" json:"platform,omitempty"`
	NPMPackage    string `yaml:"npm_package,omitempty" json:"npmPackage,omitempty"`
	Documentation string `yaml:"documentation,omitempty" json:"documentation,omitempty"`

	// Ports used by the node-graph editor
	Inputs  []Port `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []Port `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// Code is the example source. It is opaque to the catalog.
	Code string `yaml:"-" json:"code,omitempty"`

	// Source records where the capsule was aggregated from ("builtin:forms", "library")
	Source   string `yaml:"-" json:"-"`
	FilePath string `yaml:"-" json:"-"`
}

// Port is a typed input or output slot on a capsule
type Port struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// UseClientMarker flags capsules that are client components
const UseClientMarker = "'use client'"

// HasTag reports whether the capsule carries tag (case-insensitive)
func (c *Capsule) HasTag(tag string) bool {
	return containsTag(c.Tags, tag)
}

// IsClientComponent reports whether the code carries the 'use client' directive
func (c *Capsule) IsClientComponent() bool {
	return strings.Contains(c.Code, UseClientMarker) || strings.Contains(c.Code, `"use client"`)
}

// HasPorts reports whether the capsule participates in the node-graph editor
func (c *Capsule) HasPorts() bool {
	return len(c.Inputs) > 0 || len(c.Outputs) > 0
}

// MissingFields returns the names of required fields that are empty
func (c *Capsule) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(c.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(c.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(c.Category) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(c.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(c.Code) == "" {
		missing = append(missing, "code")
	}
	return missing
}

// Input returns the input port with the given id
func (c *Capsule) Input(id string) (Port, bool) {
	for _, p := range c.Inputs {
		if p.ID == id {
			return p, true
		}
	}
	return Port{}, false
}

// Output returns the output port with the given id
func (c *Capsule) Output(id string) (Port, bool) {
	for _, p := range c.Outputs {
		if p.ID == id {
			return p, true
		}
	}
	return Port{}, false
}

// WithoutCode returns a shallow copy with the code stripped, for metadata exports
func (c *Capsule) WithoutCode() *Capsule {
	cp := *c
	cp.Code = ""
	return &cp
}

// Headline returns a single-line label: the name, falling back to the id
func (c *Capsule) Headline() string {
	if c.Name != "" {
		return CleanLine(c.Name)
	}
	return CleanLine(c.ID)
}

// Summary returns a single-line synopsis of category, description and tags
func (c *Capsule) Summary() string {
	var parts []string

	if c.Category != "" {
		parts = append(parts, CleanLine(c.Category))
	}

	if c.Description != "" {
		parts = append(parts, truncate(CleanLine(c.Description), 60))
	}

	if len(c.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(c.Tags, ", "))
	}

	return truncate(strings.Join(parts, " • "), 100)
}

// truncate shortens s to at most limit runes, ending in "..." when cut
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}

// CleanLine removes control characters that break single-line rendering
func CleanLine(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r >= 32 && r != 127:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// CodeFence returns a backtick fence longer than any backtick run inside
// code, so the code can be embedded in markdown unchanged.
func CodeFence(code string) string {
	longest, run := 0, 0
	for _, r := range code {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

// containsTag checks if a tag is present in the tags slice (case-insensitive)
func containsTag(tags []string, target string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, target) {
			return true
		}
	}
	return false
}
