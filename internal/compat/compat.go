// Package compat decides whether a capsule output port can feed another
// capsule's input port in the node-graph editor.
package compat

import (
	"strings"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// DataType is the semantic type carried by a port
type DataType string

const (
	Any       DataType = "any"
	String    DataType = "string"
	Text      DataType = "text"
	Number    DataType = "number"
	Boolean   DataType = "boolean"
	Object    DataType = "object"
	Array     DataType = "array"
	JSON      DataType = "json"
	Markdown  DataType = "markdown"
	HTML      DataType = "html"
	Image     DataType = "image"
	Audio     DataType = "audio"
	Video     DataType = "video"
	File      DataType = "file"
	URL       DataType = "url"
	Date      DataType = "date"
	Embedding DataType = "embedding"
	Event     DataType = "event"
	Stream    DataType = "stream"
)

var allTypes = []DataType{
	Any, String, Text, Number, Boolean, Object, Array, JSON, Markdown, HTML,
	Image, Audio, Video, File, URL, Date, Embedding, Event, Stream,
}

// matrix maps a producer type to the consumer types it can feed. Every type
// feeds itself; Any is handled separately.
var matrix = map[DataType][]DataType{
	String:    {String, Text, Markdown, HTML, URL, JSON},
	Text:      {Text, String, Markdown},
	Number:    {Number, String, Text},
	Boolean:   {Boolean, String, Text},
	Object:    {Object, JSON},
	Array:     {Array, JSON},
	JSON:      {JSON, Object, Array, String, Text},
	Markdown:  {Markdown, Text, String, HTML},
	HTML:      {HTML, Text, String},
	Image:     {Image, File, URL},
	Audio:     {Audio, File},
	Video:     {Video, File},
	File:      {File},
	URL:       {URL, String, Text, Image},
	Date:      {Date, String, Text},
	Embedding: {Embedding, Array},
	Event:     {Event},
	Stream:    {Stream, Text},
}

// suggestions lists catalog capsules that usually follow a producer of each type
var suggestions = map[DataType][]string{
	Any:       {"json-viewer", "llm-prompt"},
	String:    {"llm-prompt", "markdown-viewer", "text-to-speech", "embedding-generator"},
	Text:      {"llm-prompt", "markdown-viewer", "text-to-speech", "embedding-generator"},
	Number:    {"number-display", "chart-bar"},
	Boolean:   {"conditional-branch", "toggle-switch"},
	Object:    {"json-viewer", "data-table"},
	Array:     {"data-table", "chart-bar"},
	JSON:      {"json-viewer", "data-table"},
	Markdown:  {"markdown-viewer", "html-preview"},
	HTML:      {"html-preview"},
	Image:     {"image-viewer", "image-captioner"},
	Audio:     {"audio-player", "speech-to-text"},
	Video:     {"video-player"},
	File:      {"file-preview"},
	URL:       {"url-fetcher", "image-viewer"},
	Date:      {"calendar-view"},
	Embedding: {"vector-search"},
	Event:     {"event-logger"},
	Stream:    {"stream-viewer"},
}

// AllTypes returns every known data type
func AllTypes() []DataType {
	return append([]DataType(nil), allTypes...)
}

// TypeNames returns every known data type as strings
func TypeNames() []string {
	names := make([]string, len(allTypes))
	for i, t := range allTypes {
		names[i] = string(t)
	}
	return names
}

// Parse normalises s into a DataType. An empty string is Any.
func Parse(s string) (DataType, bool) {
	t := DataType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return Any, true
	}
	if t == Any {
		return t, true
	}
	_, ok := matrix[t]
	return t, ok
}

// IsCompatible reports whether output can feed a port accepting any of the
// accepted types. Unknown types only match themselves.
func IsCompatible(output DataType, accepted []DataType) bool {
	if output == Any {
		return true
	}
	for _, target := range accepted {
		if target == Any || target == output {
			return true
		}
		for _, t := range matrix[output] {
			if t == target {
				return true
			}
		}
	}
	return false
}

// CanConnect reports whether an output port can be wired to an input port
func CanConnect(output, input models.Port) bool {
	from, _ := Parse(output.Type)
	to, _ := Parse(input.Type)
	return IsCompatible(from, []DataType{to})
}

// CompatibleTargets returns the types t can feed. Any feeds every type.
func CompatibleTargets(t DataType) []DataType {
	if t == Any {
		return AllTypes()
	}
	targets, ok := matrix[t]
	if !ok {
		return nil
	}
	return append(append([]DataType(nil), targets...), Any)
}

// SuggestNextCapsules returns the ids of capsules that commonly consume t.
// Unknown types yield an empty list.
func SuggestNextCapsules(t DataType) []string {
	return append([]string{}, suggestions[t]...)
}
