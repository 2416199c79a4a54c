package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bobmcallan/powerstore-mcp/internal/openapi"
)

const (
	maxFieldsDisplay    = 20
	maxKeyFields        = 10
	maxEnumValues       = 5
	maxFieldDescription = 80
)

// keyFieldPriority lists the instance fields worth describing, most useful first.
var keyFieldPriority = []string{
	"id",
	"name",
	"state",
	"status",
	"severity",
	"type",
	"description",
	"description_l10n",
	"is_acknowledged",
	"resource_name",
	"resource_type",
	"generated_timestamp",
	"created_timestamp",
	"size",
	"logical_used",
}

// filterExamples are queryParams examples for the resources operators query most.
var filterExamples = map[string][]string{
	"alert": {
		`{"state": "eq.ACTIVE"} - Active alerts only`,
		`{"severity": "eq.Critical"} - Critical severity only`,
		`{"is_acknowledged": "eq.false"} - Unacknowledged alerts`,
		`{"state": "eq.ACTIVE", "severity": "eq.Critical", "is_acknowledged": "eq.false"} - Active critical unacknowledged`,
	},
	"volume": {
		`{"state": "eq.Ready"} - Ready volumes only`,
		`{"type": "neq.Snapshot"} - Exclude snapshots`,
	},
	"appliance": {
		`{"is_valid": "eq.true"} - Valid appliances only`,
	},
}

const genericStateExample = `{"state": "eq.<value>"} - Filter by state`

// describe appends field, key-field and filter guidance to base for
// collection queries whose resource has a "<resource>_instance" definition.
func describe(doc *openapi.Document, base, resource string, collection bool) string {
	if !collection {
		return base
	}
	def, ok := doc.Definition(resource + "_instance")
	if !ok || len(def.Properties) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nAvailable fields for 'select': ")
	b.WriteString(fieldSummary(def.Properties))

	if lines := keyFields(doc, def.Properties); len(lines) > 0 {
		b.WriteString("\n\nKey fields:\n")
		b.WriteString(strings.Join(lines, "\n"))
	}

	if examples := filterExamplesFor(resource, def.Properties); len(examples) > 0 {
		b.WriteString("\n\nFilter examples (queryParams):")
		for _, ex := range examples {
			b.WriteString("\n- ")
			b.WriteString(ex)
		}
	}
	return b.String()
}

// fieldSummary lists property names alphabetically, truncated to maxFieldsDisplay.
func fieldSummary(props map[string]*openapi.Schema) string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) <= maxFieldsDisplay {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s, ... (%d total fields)", strings.Join(names[:maxFieldsDisplay], ", "), len(names))
}

// keyFields renders one "- field: description (values: ...)" line per
// priority field present in props.
func keyFields(doc *openapi.Document, props map[string]*openapi.Schema) []string {
	var lines []string
	for _, field := range keyFieldPriority {
		if len(lines) == maxKeyFields {
			break
		}
		prop, ok := props[field]
		if !ok {
			continue
		}

		line := "- " + field
		if prop != nil {
			if desc := truncate(prop.Description, maxFieldDescription); desc != "" {
				line += ": " + desc
			}
			if values := enumValues(doc, prop); len(values) > 0 {
				line += " (values: " + joinValues(values, maxEnumValues) + ")"
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// enumValues returns the inline enum of prop, or the enum of the named
// *Enum* definition it references directly or through a one-element allOf.
func enumValues(doc *openapi.Document, prop *openapi.Schema) []any {
	if len(prop.Enum) > 0 {
		return prop.Enum
	}
	ref := prop.Ref
	if ref == "" && len(prop.AllOf) == 1 && prop.AllOf[0] != nil {
		ref = prop.AllOf[0].Ref
	}
	if !strings.Contains(ref, "Enum") {
		return nil
	}
	def, ok := doc.Definition(openapi.RefName(ref))
	if !ok {
		return nil
	}
	return def.Enum
}

func filterExamplesFor(resource string, props map[string]*openapi.Schema) []string {
	if examples, ok := filterExamples[resource]; ok {
		return examples
	}
	if _, ok := props["state"]; ok {
		return []string{genericStateExample}
	}
	return nil
}

func joinValues(values []any, limit int) string {
	if len(values) > limit {
		values = values[:limit]
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
