// Package path normalizes endpoint paths and matches request paths against
// them.
package path

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	placeholderPattern = regexp.MustCompile(`\{[a-zA-Z0-9_]+\}`)
	tokenPattern       = regexp.MustCompile(`:[a-zA-Z0-9_]+`)
)

// AmbiguousTokenError is returned when a placeholder is directly followed by
// a character that could continue the parameter name.
type AmbiguousTokenError struct {
	Placeholder string
	Path        string
}

func (e *AmbiguousTokenError) Error() string {
	return fmt.Sprintf("path parameter %s may not be followed by an alphanumeric character or underscore: %s",
		e.Placeholder, e.Path)
}

// Normalize rewrites {name} placeholders to :name tokens and makes the path
// /-rooted.
//
//	Normalize("/users/{id}/feed") // "/users/:id/feed"
func Normalize(p string) (string, error) {
	var sb strings.Builder
	last := 0
	for _, loc := range placeholderPattern.FindAllStringIndex(p, -1) {
		start, end := loc[0], loc[1]
		if end < len(p) && isNameChar(p[end]) {
			return "", &AmbiguousTokenError{Placeholder: p[start:end], Path: p}
		}
		sb.WriteString(p[last:start])
		sb.WriteByte(':')
		sb.WriteString(p[start+1 : end-1])
		last = end
	}
	sb.WriteString(p[last:])

	out := sb.String()
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out, nil
}

func isNameChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Merge joins a prefix and a path with exactly one slash between them.
func Merge(prefix, p string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return prefix + p
}

// Params returns the parameter names of a normalized path, in order.
func Params(p string) []string {
	tokens := tokenPattern.FindAllString(p, -1)
	names := make([]string, 0, len(tokens))
	for _, t := range tokens {
		names = append(names, t[1:])
	}
	return names
}

// HasParam reports whether the normalized path declares the named parameter.
func HasParam(p, name string) bool {
	for _, n := range Params(p) {
		if n == name {
			return true
		}
	}
	return false
}

// Matcher matches request paths against one normalized endpoint path.
type Matcher struct {
	pattern string
	regex   *regexp.Regexp
	names   []string
}

// Compile builds a Matcher for a normalized path. Parameter tokens match one
// non-empty segment; everything else matches literally.
func Compile(p string) *Matcher {
	var sb strings.Builder
	sb.WriteString("^")
	last := 0
	var names []string
	for _, loc := range tokenPattern.FindAllStringIndex(p, -1) {
		sb.WriteString(regexp.QuoteMeta(p[last:loc[0]]))
		sb.WriteString(`([^/]+)`)
		names = append(names, p[loc[0]+1:loc[1]])
		last = loc[1]
	}
	sb.WriteString(regexp.QuoteMeta(p[last:]))
	sb.WriteString("$")
	return &Matcher{
		pattern: p,
		regex:   regexp.MustCompile(sb.String()),
		names:   names,
	}
}

// Pattern returns the normalized path the matcher was compiled from.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Static reports whether the pattern has no parameters.
func (m *Matcher) Static() bool {
	return len(m.names) == 0
}

// Match returns the extracted parameters if requestPath matches.
func (m *Matcher) Match(requestPath string) (map[string]string, bool) {
	sub := m.regex.FindStringSubmatch(requestPath)
	if sub == nil {
		return nil, false
	}
	params := make(map[string]string, len(m.names))
	for i, name := range m.names {
		params[name] = sub[i+1]
	}
	return params, true
}
