package mcp

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed call errors below.
var (
	ErrMissingArguments   = errors.New("missing tool arguments")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrMissingCredentials = errors.New("missing PowerStore credentials")
)

// MissingArgumentsError names required arguments absent from a call.
// An empty Names means the call carried no arguments at all.
type MissingArgumentsError struct {
	Names []string
}

func (e *MissingArgumentsError) Error() string {
	if len(e.Names) == 0 {
		return "Missing arguments: tool arguments are required"
	}
	return "Missing required arguments: " + strings.Join(e.Names, ", ")
}

func (e *MissingArgumentsError) Is(target error) bool { return target == ErrMissingArguments }

// UnknownToolError reports a call to a tool that is not in the catalog.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.Name)
}

func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }

// MissingCredentialsError lists the credential arguments absent from a call,
// in host, username, password order.
type MissingCredentialsError struct {
	Missing []string
}

func (e *MissingCredentialsError) Error() string {
	return "Missing required credentials: " + strings.Join(e.Missing, ", ")
}

func (e *MissingCredentialsError) Is(target error) bool { return target == ErrMissingCredentials }
