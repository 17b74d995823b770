package llm

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/genai"
)

// SchemaType is the JSON type of a Schema node.
type SchemaType string

const (
	TypeObject SchemaType = "object"
	TypeArray  SchemaType = "array"
	TypeString SchemaType = "string"
)

// Schema is the provider-neutral subset of JSON Schema used to request
// structured output. Property order follows PropertyOrder when set, which
// Gemini honours when generating.
type Schema struct {
	Type          SchemaType         `json:"type"`
	Description   string             `json:"description,omitempty"`
	Properties    map[string]*Schema `json:"properties,omitempty"`
	PropertyOrder []string           `json:"-"`
	Items         *Schema            `json:"items,omitempty"`
	Required      []string           `json:"required,omitempty"`
	Enum          []string           `json:"enum,omitempty"`
}

// JSON returns the schema as a JSON Schema document.
func (s *Schema) JSON() (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	return data, nil
}

// orderedKeys returns property names in declared order, falling back to
// sorted order for properties not listed in PropertyOrder.
func (s *Schema) orderedKeys() []string {
	keys := make([]string, 0, len(s.Properties))
	seen := make(map[string]bool, len(s.Properties))
	for _, k := range s.PropertyOrder {
		if _, ok := s.Properties[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range s.Properties {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

// toGenAI converts the schema into the genai representation.
func (s *Schema) toGenAI() *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       s.Items.toGenAI(),
	}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	case TypeArray:
		out.Type = genai.TypeArray
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = v.toGenAI()
		}
		out.PropertyOrdering = s.orderedKeys()
	}
	return out
}

// Instruction renders the schema as a prompt suffix for providers without
// native structured output.
func (s *Schema) Instruction() (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling schema: %w", err)
	}
	var b strings.Builder
	b.WriteString("Antworte ausschließlich mit einem einzelnen JSON-Objekt (kein Markdown, kein Kommentar), ")
	b.WriteString("das diesem JSON-Schema entspricht:\n")
	b.Write(data)
	return b.String(), nil
}
