package openapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrSpecNotFound is returned when the specification file is absent or unreadable.
var ErrSpecNotFound = errors.New("openapi specification not found")

// Format selects the decoder used by Parse.
type Format int

const (
	// FormatAuto tries JSON first and falls back to YAML.
	FormatAuto Format = iota
	FormatJSON
	FormatYAML
)

// ParseError reports a specification file that exists but cannot be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to parse openapi specification: %v", e.Err)
	}
	return fmt.Sprintf("failed to parse openapi specification %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FormatFor picks the decoder from the file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	return FormatAuto
}

// Load reads and parses the specification at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpecNotFound, path, err)
	}
	doc, err := Parse(data, FormatFor(path))
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return doc, nil
}

// Parse decodes a specification held in memory.
func Parse(data []byte, format Format) (*Document, error) {
	var doc Document
	var err error

	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
			doc = Document{}
			if yamlErr := yaml.Unmarshal(data, &doc); yamlErr != nil {
				err = fmt.Errorf("not JSON (%v) and not YAML (%v)", jsonErr, yamlErr)
			}
		}
	}
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if doc.Swagger == "" && doc.OpenAPI == "" && doc.Paths == nil {
		return nil, &ParseError{Err: errors.New("document has no swagger/openapi version and no paths")}
	}
	return &doc, nil
}
