package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/powerstore-mcp/internal/client"
	"github.com/bobmcallan/powerstore-mcp/internal/common"
	"github.com/bobmcallan/powerstore-mcp/internal/metrics"
	"github.com/bobmcallan/powerstore-mcp/internal/tools"
)

// ExcludedParams are argument keys never forwarded as query parameters:
// the credentials plus session, chat and tool-call metadata that agent
// frameworks attach to every call.
var ExcludedParams = map[string]struct{}{
	tools.ParamHost:     {},
	tools.ParamUsername: {},
	tools.ParamPassword: {},
	"sessionId":         {},
	"session_id":        {},
	"chatInput":         {},
	"chatId":            {},
	"toolCallId":        {},
	"tool_call_id":      {},
	"action":            {},
	"tool":              {},
	"toolName":          {},
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Fetcher performs an authenticated GET against the array.
type Fetcher interface {
	Get(ctx context.Context, creds client.Credentials, path string, query url.Values) ([]byte, error)
}

// Dispatcher executes tool calls: it validates arguments, resolves the
// endpoint path, assembles the query and performs one logical GET.
// It holds no mutable state and is safe for concurrent use.
type Dispatcher struct {
	catalog  *tools.Catalog
	fetcher  Fetcher
	defaults client.Credentials
	logger   *common.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher. defaults fill credential arguments a
// call leaves out; values supplied with the call always win.
func NewDispatcher(catalog *tools.Catalog, fetcher Fetcher, defaults client.Credentials, logger *common.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Dispatcher{
		catalog:  catalog,
		fetcher:  fetcher,
		defaults: defaults,
		logger:   logger,
		metrics:  m,
	}
}

// Catalog returns the catalog the dispatcher serves.
func (d *Dispatcher) Catalog() *tools.Catalog {
	return d.catalog
}

// Execute runs the named tool and returns the decoded response body.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any) (result any, err error) {
	start := time.Now()
	logger := d.logger
	if id := CorrelationID(ctx); id != "" {
		logger = logger.WithCorrelationId(id)
	}

	tool, ok := d.catalog.Lookup(name)
	if !ok {
		d.metrics.ObserveToolCall("unknown", metrics.OutcomeError, time.Since(start))
		logger.Warn().Str("tool", name).Msg("Unknown tool requested")
		return nil, &UnknownToolError{Name: name}
	}
	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
		}
		d.metrics.ObserveToolCall(tool.Name, outcome, time.Since(start))
	}()

	if len(args) == 0 {
		return nil, &MissingArgumentsError{}
	}

	creds, err := d.credentials(args)
	if err != nil {
		return nil, err
	}

	path, substituted, err := resolvePath(tool.Path, args)
	if err != nil {
		return nil, err
	}

	params := BuildAPIParams(args)
	for _, key := range substituted {
		delete(params, key)
	}
	query := toQuery(params)

	logger.Info().
		Str("tool", tool.Name).
		Str("path", path).
		Int("query_params", len(query)).
		Msg("Executing tool")

	body, err := d.fetcher.Get(ctx, creds, path, query)
	if err != nil {
		logger.Warn().Str("tool", tool.Name).Err(err).Dur("duration", time.Since(start)).Msg("Tool execution failed")
		return nil, err
	}

	logger.Info().Str("tool", tool.Name).Int("bytes", len(body)).Dur("duration", time.Since(start)).Msg("Tool execution complete")
	return decodeBody(body), nil
}

// credentials merges call arguments over the configured defaults.
func (d *Dispatcher) credentials(args map[string]any) (client.Credentials, error) {
	creds := client.Credentials{
		Host:     firstNonEmpty(strings.TrimSpace(stringArg(args, tools.ParamHost)), d.defaults.Host),
		Username: firstNonEmpty(stringArg(args, tools.ParamUsername), d.defaults.Username),
		Password: firstNonEmpty(stringArg(args, tools.ParamPassword), d.defaults.Password),
	}

	var missing []string
	if creds.Host == "" {
		missing = append(missing, tools.ParamHost)
	}
	if creds.Username == "" {
		missing = append(missing, tools.ParamUsername)
	}
	if creds.Password == "" {
		missing = append(missing, tools.ParamPassword)
	}
	if len(missing) > 0 {
		return client.Credentials{}, &MissingCredentialsError{Missing: missing}
	}
	return creds, nil
}

// BuildAPIParams selects the arguments forwarded as query parameters.
// Excluded keys are dropped, a queryParams object is flattened into the
// result with stringified values, scalars pass through unchanged and arrays
// of scalars are joined with commas. Nested objects are dropped.
func BuildAPIParams(args map[string]any) map[string]any {
	params := make(map[string]any, len(args))

	for key, value := range args {
		if _, excluded := ExcludedParams[key]; excluded {
			continue
		}
		if key == tools.ParamQueryParams {
			continue
		}
		if v, ok := queryValue(value); ok {
			params[key] = v
		}
	}

	// queryParams entries are applied last so explicit filters win.
	for key, value := range queryParamsObject(args[tools.ParamQueryParams]) {
		if _, excluded := ExcludedParams[key]; excluded || value == nil {
			continue
		}
		if s, ok := formatValue(value); ok {
			params[key] = s
		} else {
			params[key] = fmt.Sprint(value)
		}
	}

	return params
}

// queryParamsObject accepts the queryParams argument as an object or as a
// JSON-encoded object string.
func queryParamsObject(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case string:
		var m map[string]any
		if strings.TrimSpace(v) != "" && json.Unmarshal([]byte(v), &m) == nil {
			return m
		}
	}
	return nil
}

// queryValue keeps scalars as they are and joins arrays of scalars.
func queryValue(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string, bool, float64, float32, int, int32, int64, json.Number:
		return v, true
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := formatValue(item)
			if !ok {
				return nil, false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true
	case []string:
		return strings.Join(v, ","), true
	}
	return nil, false
}

// formatValue renders a scalar as it should appear in a URL.
func formatValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	}
	return "", false
}

func toQuery(params map[string]any) url.Values {
	query := make(url.Values, len(params))
	for key, value := range params {
		if s, ok := formatValue(value); ok {
			query.Set(key, s)
		}
	}
	return query
}

// resolvePath substitutes {name} placeholders from args and returns the
// keys it consumed.
func resolvePath(path string, args map[string]any) (string, []string, error) {
	var missing, used []string
	resolved := placeholderPattern.ReplaceAllStringFunc(path, func(m string) string {
		name := m[1 : len(m)-1]
		value, ok := formatValue(args[name])
		if !ok || value == "" {
			missing = append(missing, name)
			return m
		}
		used = append(used, name)
		return url.PathEscape(value)
	})
	if len(missing) > 0 {
		return "", nil, &MissingArgumentsError{Names: missing}
	}
	return resolved, used, nil
}

// RawText is a response body that is not JSON. It is returned verbatim.
type RawText string

// decodeBody parses a JSON body, keeping large integers exact. An empty body
// decodes to nil and a non-JSON body is returned as RawText.
func decodeBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return RawText(body)
	}
	return v
}

// stringArg returns the argument unchanged. A whitespace-only value counts as
// absent, but surrounding whitespace is otherwise part of the value.
func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return ""
		}
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
