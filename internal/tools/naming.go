package tools

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// pathSegments returns the non-parameter segments of path.
func pathSegments(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s == "" || strings.HasPrefix(s, "{") {
			continue
		}
		segments = append(segments, s)
	}
	return segments
}

// resourceName is the first non-parameter segment, e.g. "/alert/{id}" -> "alert".
func resourceName(path string) string {
	segments := pathSegments(path)
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

// isCollection reports whether path addresses a collection rather than a single instance.
func isCollection(path string) bool {
	return !strings.Contains(path, "{id}")
}

// cleanSegment replaces every non-alphanumeric rune with an underscore.
func cleanSegment(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, s)
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// generateToolName builds a camelCase name from the method and path,
// e.g. GET /file_system/{id}/snapshot -> getFile_systemSnapshot.
func generateToolName(path, method string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(cleanSegment(method)))
	for _, s := range pathSegments(path) {
		b.WriteString(capitalize(cleanSegment(s)))
	}
	return b.String()
}

// nameRegistry hands out catalog-unique tool names.
type nameRegistry struct {
	counts map[string]int
	used   map[string]bool
}

func newNameRegistry() *nameRegistry {
	return &nameRegistry{
		counts: make(map[string]int),
		used:   make(map[string]bool),
	}
}

// unique returns name the first time it is seen. Later occurrences get a
// suffix from the path's non-parameter segments, or the occurrence count
// when the path has none. A result that is still taken gets a numeric suffix.
func (r *nameRegistry) unique(name, path string) string {
	candidate := name
	if count, seen := r.counts[name]; seen {
		count++
		r.counts[name] = count

		var parts []string
		for _, s := range pathSegments(path) {
			parts = append(parts, cleanSegment(s))
		}
		suffix := strings.Join(parts, "_")
		if suffix == "" {
			suffix = strconv.Itoa(count)
		}
		candidate = name + "_" + suffix
	} else {
		r.counts[name] = 0
	}

	base := candidate
	for n := 2; r.used[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
	r.used[candidate] = true
	return candidate
}
