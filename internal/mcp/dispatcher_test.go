package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/bobmcallan/powerstore-mcp/internal/client"
	"github.com/bobmcallan/powerstore-mcp/internal/common"
	"github.com/bobmcallan/powerstore-mcp/internal/openapi"
	"github.com/bobmcallan/powerstore-mcp/internal/tools"
)

const dispatchSpec = `swagger: "2.0"
info:
  title: PowerStore REST API
  version: "3.0"
basePath: /api/rest
paths:
  /alert:
    get:
      operationId: getAlert
  /volume:
    get:
      operationId: getVolume
  /volume/{id}:
    get:
      parameters:
        - name: id
          in: path
          required: true
          type: string
`

// fakeFetcher records each Get and returns a canned body or error.
type fakeFetcher struct {
	body  []byte
	err   error
	calls []fetchCall
}

type fetchCall struct {
	creds client.Credentials
	path  string
	query url.Values
}

func (f *fakeFetcher) Get(_ context.Context, creds client.Credentials, path string, query url.Values) ([]byte, error) {
	f.calls = append(f.calls, fetchCall{creds: creds, path: path, query: query})
	return f.body, f.err
}

func testCatalog(t *testing.T) *tools.Catalog {
	t.Helper()
	doc, err := openapi.Parse([]byte(dispatchSpec), openapi.FormatYAML)
	if err != nil {
		t.Fatalf("failed to parse spec: %v", err)
	}
	return tools.Generate(doc, common.NewSilentLogger())
}

func newTestDispatcher(t *testing.T, f Fetcher, defaults client.Credentials) *Dispatcher {
	t.Helper()
	return NewDispatcher(testCatalog(t), f, defaults, common.NewSilentLogger(), nil)
}

func credArgs() map[string]any {
	return map[string]any{
		"host":     "10.0.0.1",
		"username": "admin",
		"password": "secret",
	}
}

// --- Execute ---

func TestExecute_UnknownTool(t *testing.T) {
	f := &fakeFetcher{}
	d := newTestDispatcher(t, f, client.Credentials{})

	for _, args := range []map[string]any{nil, {}, credArgs()} {
		_, err := d.Execute(context.Background(), "getNothing", args)
		if !errors.Is(err, ErrUnknownTool) {
			t.Fatalf("expected ErrUnknownTool for args %v, got %v", args, err)
		}
		if err.Error() != "Unknown tool: getNothing" {
			t.Errorf("unexpected message %q", err.Error())
		}
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no upstream calls, got %d", len(f.calls))
	}
}

func TestExecute_MissingArguments(t *testing.T) {
	f := &fakeFetcher{}
	d := newTestDispatcher(t, f, client.Credentials{})

	for _, args := range []map[string]any{nil, {}} {
		_, err := d.Execute(context.Background(), "getAlert", args)
		if !errors.Is(err, ErrMissingArguments) {
			t.Fatalf("expected ErrMissingArguments, got %v", err)
		}
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no upstream calls, got %d", len(f.calls))
	}
}

func TestExecute_MissingCredentials(t *testing.T) {
	f := &fakeFetcher{}
	d := newTestDispatcher(t, f, client.Credentials{})

	_, err := d.Execute(context.Background(), "getAlert", map[string]any{"host": "10.0.0.1"})
	var credErr *MissingCredentialsError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected MissingCredentialsError, got %v", err)
	}
	if !reflect.DeepEqual(credErr.Missing, []string{"username", "password"}) {
		t.Errorf("expected [username password], got %v", credErr.Missing)
	}
	if !strings.Contains(err.Error(), "username, password") {
		t.Errorf("error should name both fields, got %q", err.Error())
	}
	if !errors.Is(err, ErrMissingCredentials) {
		t.Error("expected errors.Is(err, ErrMissingCredentials)")
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no upstream calls, got %d", len(f.calls))
	}
}

func TestExecute_DefaultCredentials(t *testing.T) {
	f := &fakeFetcher{body: []byte(`[]`)}
	d := newTestDispatcher(t, f, client.Credentials{Host: "array.local", Username: "svc", Password: "pw"})

	if _, err := d.Execute(context.Background(), "getAlert", map[string]any{"username": "admin"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(f.calls))
	}
	want := client.Credentials{Host: "array.local", Username: "admin", Password: "pw"}
	if f.calls[0].creds != want {
		t.Errorf("expected %+v, got %+v", want, f.calls[0].creds)
	}
}

func TestExecute_CredentialsPassedVerbatim(t *testing.T) {
	f := &fakeFetcher{body: []byte(`[]`)}
	d := newTestDispatcher(t, f, client.Credentials{})

	args := map[string]any{
		"host":     " 10.0.0.1 ",
		"username": " admin",
		"password": " secret ",
	}
	if _, err := d.Execute(context.Background(), "getVolume", args); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := client.Credentials{Host: "10.0.0.1", Username: " admin", Password: " secret "}
	if f.calls[0].creds != want {
		t.Errorf("expected %+v, got %+v", want, f.calls[0].creds)
	}
}

func TestExecute_WhitespaceCredentialIsMissing(t *testing.T) {
	f := &fakeFetcher{}
	d := newTestDispatcher(t, f, client.Credentials{})

	args := credArgs()
	args["password"] = "   "
	_, err := d.Execute(context.Background(), "getVolume", args)
	var credErr *MissingCredentialsError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected MissingCredentialsError, got %v", err)
	}
	if !reflect.DeepEqual(credErr.Missing, []string{"password"}) {
		t.Errorf("expected [password], got %v", credErr.Missing)
	}
}

func TestExecute_NonJSONBody(t *testing.T) {
	f := &fakeFetcher{body: []byte("Service \"unavailable\"\n")}
	d := newTestDispatcher(t, f, client.Credentials{})

	result, err := d.Execute(context.Background(), "getAlert", credArgs())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	out, err := textResult(result)
	if err != nil {
		t.Fatalf("textResult failed: %v", err)
	}
	text := extractText(t, out.Content[0])
	if text != "Service \"unavailable\"\n" {
		t.Errorf("expected body verbatim, got %q", text)
	}
}

func TestTextResult_JSONIndented(t *testing.T) {
	out, err := textResult(map[string]any{"id": "v1"})
	if err != nil {
		t.Fatalf("textResult failed: %v", err)
	}
	if got := extractText(t, out.Content[0]); got != "{\n  \"id\": \"v1\"\n}" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestExecute_CollectionCall(t *testing.T) {
	f := &fakeFetcher{body: []byte(`[{"id":"v1","size":1099511627776}]`)}
	d := newTestDispatcher(t, f, client.Credentials{})

	result, err := d.Execute(context.Background(), "getVolume", credArgs())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(f.calls))
	}
	call := f.calls[0]
	if call.path != "/volume" {
		t.Errorf("expected /volume, got %s", call.path)
	}
	if len(call.query) != 0 {
		t.Errorf("expected no query parameters, got %v", call.query)
	}

	items, ok := result.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one decoded item, got %#v", result)
	}
	size := items[0].(map[string]any)["size"]
	if n, ok := size.(json.Number); !ok || n.String() != "1099511627776" {
		t.Errorf("expected exact size, got %#v", size)
	}
}

func TestExecute_PathSubstitution(t *testing.T) {
	f := &fakeFetcher{body: []byte(`{"id":"a b"}`)}
	d := newTestDispatcher(t, f, client.Credentials{})

	args := credArgs()
	args["id"] = "a b"
	args["select"] = "id,name"
	if _, err := d.Execute(context.Background(), "getVolume_volume", args); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	call := f.calls[0]
	if call.path != "/volume/a%20b" {
		t.Errorf("expected escaped path, got %s", call.path)
	}
	if call.query.Has("id") {
		t.Error("substituted path parameter must not be sent as a query parameter")
	}
	if call.query.Get("select") != "id,name" {
		t.Errorf("expected select=id,name, got %q", call.query.Get("select"))
	}
}

func TestExecute_MissingPathParameter(t *testing.T) {
	f := &fakeFetcher{}
	d := newTestDispatcher(t, f, client.Credentials{})

	_, err := d.Execute(context.Background(), "getVolume_volume", credArgs())
	var argErr *MissingArgumentsError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected MissingArgumentsError, got %v", err)
	}
	if !reflect.DeepEqual(argErr.Names, []string{"id"}) {
		t.Errorf("expected [id], got %v", argErr.Names)
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no upstream calls, got %d", len(f.calls))
	}
}

func TestExecute_UpstreamError(t *testing.T) {
	upstream := &client.UpstreamError{StatusCode: 404, Message: "Not found"}
	f := &fakeFetcher{err: upstream}
	d := newTestDispatcher(t, f, client.Credentials{})

	_, err := d.Execute(context.Background(), "getAlert", credArgs())
	if !errors.Is(err, client.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

// --- BuildAPIParams ---

func TestBuildAPIParams_Example(t *testing.T) {
	args := map[string]any{
		"host":     "h",
		"username": "u",
		"password": "p",
		"state":    "eq.ACTIVE",
		"limit":    float64(10),
	}
	got := BuildAPIParams(args)
	want := map[string]any{"state": "eq.ACTIVE", "limit": float64(10)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBuildAPIParams_ExcludesMetadata(t *testing.T) {
	args := map[string]any{}
	for key := range ExcludedParams {
		args[key] = "x"
	}
	args["select"] = "id"

	got := BuildAPIParams(args)
	if len(got) != 1 || got["select"] != "id" {
		t.Errorf("expected only select, got %v", got)
	}
}

func TestBuildAPIParams_ExcludedSet(t *testing.T) {
	want := []string{
		"action", "chatId", "chatInput", "host", "password", "sessionId",
		"session_id", "tool", "toolCallId", "toolName", "tool_call_id", "username",
	}
	var got []string
	for key := range ExcludedParams {
		got = append(got, key)
	}
	sort.Strings(got)
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBuildAPIParams_QueryParams(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want map[string]any
	}{
		{
			name: "object flattened with stringified values",
			args: map[string]any{
				"queryParams": map[string]any{"severity": "eq.Critical", "limit": float64(5), "is_acknowledged": false},
			},
			want: map[string]any{"severity": "eq.Critical", "limit": "5", "is_acknowledged": "false"},
		},
		{
			name: "queryParams overrides top-level",
			args: map[string]any{
				"state":       "eq.ACTIVE",
				"queryParams": map[string]any{"state": "eq.CLEARED"},
			},
			want: map[string]any{"state": "eq.CLEARED"},
		},
		{
			name: "json string",
			args: map[string]any{"queryParams": `{"order":"name.asc"}`},
			want: map[string]any{"order": "name.asc"},
		},
		{
			name: "invalid json string ignored",
			args: map[string]any{"queryParams": `{order`},
			want: map[string]any{},
		},
		{
			name: "credentials inside queryParams dropped",
			args: map[string]any{"queryParams": map[string]any{"password": "p", "name": "ilike.*prod*"}},
			want: map[string]any{"name": "ilike.*prod*"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildAPIParams(tt.args)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBuildAPIParams_Values(t *testing.T) {
	args := map[string]any{
		"select": []any{"id", "name", float64(3)},
		"nested": map[string]any{"a": "b"},
		"empty":  nil,
		"flag":   true,
	}
	got := BuildAPIParams(args)
	want := map[string]any{"select": "id,name,3", "flag": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestToQuery(t *testing.T) {
	q := toQuery(map[string]any{"limit": float64(10), "offset": 0, "flag": true, "state": "eq.ACTIVE"})
	if q.Encode() != "flag=true&limit=10&offset=0&state=eq.ACTIVE" {
		t.Errorf("unexpected query %q", q.Encode())
	}
}

func TestDecodeBody(t *testing.T) {
	if got := decodeBody(nil); got != nil {
		t.Errorf("expected nil for empty body, got %#v", got)
	}
	if got := decodeBody([]byte("  \n")); got != nil {
		t.Errorf("expected nil for whitespace body, got %#v", got)
	}
	if got := decodeBody([]byte("plain text")); got != RawText("plain text") {
		t.Errorf("expected text passthrough, got %#v", got)
	}
	obj, ok := decodeBody([]byte(`{"id":"x"}`)).(map[string]any)
	if !ok || obj["id"] != "x" {
		t.Errorf("expected decoded object, got %#v", obj)
	}
}
