package tools

import (
	"github.com/invopop/jsonschema"

	"github.com/bobmcallan/powerstore-mcp/internal/openapi"
)

// Credential argument names. Every tool requires all three.
const (
	ParamHost     = "host"
	ParamUsername = "username"
	ParamPassword = "password"
)

// Universal arguments added to collection queries.
const (
	ParamSelect      = "select"
	ParamLimit       = "limit"
	ParamOffset      = "offset"
	ParamQueryParams = "queryParams"
)

// CredentialParams lists the credential arguments in schema order.
var CredentialParams = []string{ParamHost, ParamUsername, ParamPassword}

var credentialDescriptions = map[string]string{
	ParamHost:     "PowerStore host (e.g., powerstore.example.com)",
	ParamUsername: "PowerStore username",
	ParamPassword: "PowerStore password",
}

// inputSchema builds the closed argument schema for an operation: the
// credentials, then the declared path and query parameters, then the
// universal collection arguments.
func inputSchema(op *openapi.Operation, collection bool) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	required := make([]string, 0, len(CredentialParams))

	for _, name := range CredentialParams {
		props.Set(name, &jsonschema.Schema{
			Type:        "string",
			Description: credentialDescriptions[name],
		})
		required = append(required, name)
	}

	for _, p := range op.Parameters {
		if p.Name == "" || (p.In != "query" && p.In != "path") {
			continue
		}
		if _, isCredential := credentialDescriptions[p.Name]; isCredential {
			continue
		}

		prop := &jsonschema.Schema{
			Type:        schemaType(p.DataType()),
			Description: p.Description,
		}
		if enum := p.EnumValues(); len(enum) > 0 {
			prop.Enum = enum
		}
		props.Set(p.Name, prop)

		if p.Required && !containsString(required, p.Name) {
			required = append(required, p.Name)
		}
	}

	if collection {
		props.Set(ParamSelect, &jsonschema.Schema{
			Type:        "string",
			Description: "Comma-separated list of field names to return (e.g., 'id,name,state')",
		})
		props.Set(ParamLimit, &jsonschema.Schema{
			Type:        "integer",
			Description: "Maximum number of results to return",
		})
		props.Set(ParamOffset, &jsonschema.Schema{
			Type:        "integer",
			Description: "Number of results to skip (for pagination)",
		})
		props.Set(ParamQueryParams, &jsonschema.Schema{
			Type:                 "object",
			Description:          "Additional query filters (e.g., {'state': 'eq.ACTIVE', 'severity': 'eq.Critical'})",
			AdditionalProperties: &jsonschema.Schema{Type: "string"},
		})
	}

	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

// schemaType maps an OpenAPI parameter type onto the argument schema type.
// Integers are advertised as numbers; unknown types become strings.
func schemaType(openapiType string) string {
	switch openapiType {
	case "integer", "number":
		return "number"
	case "string", "boolean", "array", "object":
		return openapiType
	}
	return "string"
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
