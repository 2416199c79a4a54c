// Package openapi loads Swagger 2.0 / OpenAPI 3.x documents and exposes the
// read-only views the tool generator needs: endpoints in document order,
// their operations and parameters, and named type definitions.
package openapi

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Document is a parsed API description. It is never mutated after Load.
//
// Paths keeps document order. Path items, definitions and components are
// held undecoded and converted on access so a malformed entry only affects
// the endpoint or type that uses it.
type Document struct {
	Swagger     string                              `json:"swagger,omitempty" yaml:"swagger,omitempty"`
	OpenAPI     string                              `json:"openapi,omitempty" yaml:"openapi,omitempty"`
	Info        Info                                `json:"info" yaml:"info"`
	Host        string                              `json:"host,omitempty" yaml:"host,omitempty"`
	BasePath    string                              `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	Paths       *orderedmap.OrderedMap[string, any] `json:"paths,omitempty" yaml:"paths,omitempty"`
	Definitions map[string]any                      `json:"definitions,omitempty" yaml:"definitions,omitempty"`
	Parameters  map[string]any                      `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Components  Components                          `json:"components" yaml:"components"`
}

// Info is the document's info block.
type Info struct {
	Title       string `json:"title" yaml:"title"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Components holds the OpenAPI 3 reusable objects consulted for lookups.
type Components struct {
	Schemas    map[string]any `json:"schemas,omitempty" yaml:"schemas,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Operation is one HTTP method entry of a path item.
type Operation struct {
	OperationID string      `yaml:"operationId"`
	Summary     string      `yaml:"summary"`
	Description string      `yaml:"description"`
	Tags        []string    `yaml:"tags"`
	Parameters  []Parameter `yaml:"parameters"`
}

// Parameter is an operation or path-level parameter. OpenAPI 3 parameters
// carry their type and enum under Schema.
type Parameter struct {
	Ref         string  `yaml:"$ref"`
	Name        string  `yaml:"name"`
	In          string  `yaml:"in"`
	Type        string  `yaml:"type"`
	Description string  `yaml:"description"`
	Required    bool    `yaml:"required"`
	Enum        []any   `yaml:"enum"`
	Schema      *Schema `yaml:"schema"`
}

// DataType returns the declared type, falling back to the OpenAPI 3 schema type.
func (p Parameter) DataType() string {
	if p.Type != "" {
		return p.Type
	}
	if p.Schema != nil {
		return p.Schema.Type
	}
	return ""
}

// EnumValues returns the declared enum, falling back to the OpenAPI 3 schema enum.
func (p Parameter) EnumValues() []any {
	if len(p.Enum) > 0 {
		return p.Enum
	}
	if p.Schema != nil {
		return p.Schema.Enum
	}
	return nil
}

// Schema is the subset of a JSON schema used for description enrichment.
type Schema struct {
	Ref         string             `yaml:"$ref"`
	Type        string             `yaml:"type"`
	Description string             `yaml:"description"`
	Enum        []any              `yaml:"enum"`
	Properties  map[string]*Schema `yaml:"properties"`
	AllOf       []*Schema          `yaml:"allOf"`
}

// Endpoint is one path with its raw path item.
type Endpoint struct {
	Path string
	item any
}

// Endpoints returns the document's paths in document order.
func (d *Document) Endpoints() []Endpoint {
	if d == nil || d.Paths == nil {
		return nil
	}
	endpoints := make([]Endpoint, 0, d.Paths.Len())
	for pair := d.Paths.Oldest(); pair != nil; pair = pair.Next() {
		endpoints = append(endpoints, Endpoint{Path: pair.Key, item: pair.Value})
	}
	return endpoints
}

// HasMethod reports whether the path item declares the given method.
func (e Endpoint) HasMethod(method string) bool {
	item, ok := e.item.(map[string]any)
	if !ok {
		return false
	}
	_, ok = item[strings.ToLower(method)]
	return ok
}

// Operation decodes the operation for method, merging path-level parameters
// and resolving parameter references against doc. It fails when the path
// item or the operation entry is malformed.
func (e Endpoint) Operation(doc *Document, method string) (*Operation, error) {
	item, ok := e.item.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("path item for %s is %T, not an object", e.Path, e.item)
	}
	raw, ok := item[strings.ToLower(method)]
	if !ok {
		return nil, fmt.Errorf("no %s operation for %s", strings.ToUpper(method), e.Path)
	}
	if _, isMap := raw.(map[string]any); !isMap {
		return nil, fmt.Errorf("%s operation for %s is %T, not an object", strings.ToUpper(method), e.Path, raw)
	}

	var op Operation
	if err := convert(raw, &op); err != nil {
		return nil, fmt.Errorf("malformed %s operation for %s: %w", strings.ToUpper(method), e.Path, err)
	}

	var shared []Parameter
	if rawParams, ok := item["parameters"]; ok {
		if err := convert(rawParams, &shared); err != nil {
			return nil, fmt.Errorf("malformed path parameters for %s: %w", e.Path, err)
		}
	}

	params, err := doc.resolveParameters(append(shared, op.Parameters...))
	if err != nil {
		return nil, fmt.Errorf("operation %s %s: %w", strings.ToUpper(method), e.Path, err)
	}
	op.Parameters = mergeParameters(params)
	return &op, nil
}

// resolveParameters replaces $ref parameters with their targets.
func (d *Document) resolveParameters(params []Parameter) ([]Parameter, error) {
	out := make([]Parameter, 0, len(params))
	for _, p := range params {
		if p.Ref == "" {
			out = append(out, p)
			continue
		}
		name, table := d.parameterTable(p.Ref)
		raw, ok := table[name]
		if !ok {
			return nil, fmt.Errorf("unresolved parameter reference %q", p.Ref)
		}
		var resolved Parameter
		if err := convert(raw, &resolved); err != nil {
			return nil, fmt.Errorf("malformed parameter %q: %w", p.Ref, err)
		}
		out = append(out, resolved)
	}
	return out, nil
}

// parameterTable picks the lookup table for a local parameter reference.
func (d *Document) parameterTable(ref string) (string, map[string]any) {
	switch {
	case strings.HasPrefix(ref, "#/parameters/"):
		return strings.TrimPrefix(ref, "#/parameters/"), d.Parameters
	case strings.HasPrefix(ref, "#/components/parameters/"):
		return strings.TrimPrefix(ref, "#/components/parameters/"), d.Components.Parameters
	}
	return "", nil
}

// mergeParameters drops earlier entries that a later entry with the same
// name and location overrides, keeping first-seen order.
func mergeParameters(params []Parameter) []Parameter {
	last := make(map[string]int, len(params))
	for i, p := range params {
		last[p.In+"\x00"+p.Name] = i
	}
	out := make([]Parameter, 0, len(params))
	for i, p := range params {
		if last[p.In+"\x00"+p.Name] != i {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Definition looks up a named type in definitions (2.0) or
// components.schemas (3.x). Malformed definitions are reported as absent.
func (d *Document) Definition(name string) (*Schema, bool) {
	if d == nil || name == "" {
		return nil, false
	}
	raw, ok := d.Definitions[name]
	if !ok {
		raw, ok = d.Components.Schemas[name]
	}
	if !ok {
		return nil, false
	}
	var s Schema
	if err := convert(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// RefName returns the last segment of a local reference such as
// "#/definitions/AlertStateEnum".
func RefName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// convert re-decodes a generic value into a typed view. YAML is used as the
// intermediate form because YAML documents may carry non-string map keys
// (e.g. unquoted response codes).
func convert(in any, out any) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
