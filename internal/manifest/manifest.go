// Package manifest parses the META-INF/MANIFEST.MF text format embedded in
// each bundle revision into the data model the resolver needs: a symbolic
// name, a version, an activator entry point, and the capability/requirement
// lists used for wiring.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/apache/celix-go/pkg/filter"
	"github.com/apache/celix-go/pkg/version"
)

// Well-known manifest header keys, matching spec.md §6.
const (
	HeaderSymbolicName     = "Bundle-SymbolicName"
	HeaderVersion          = "Bundle-Version"
	HeaderActivator        = "Bundle-Activator"
	HeaderPrivateLibrary   = "Private-Library"
	HeaderExportLibrary    = "Export-Library"
	HeaderRequireCapability = "Require-Capability"
	HeaderProvideCapability = "Provide-Capability"
)

// Capability is an offer a bundle revision makes to the rest of the
// framework: a name, a version, and an attribute bag.
type Capability struct {
	Name       string
	Version    version.Version
	Attributes map[string]string
}

// Requirement is a need a bundle revision has. It is satisfied either by a
// version range over a named capability, or — when the manifest used the
// filter:= form — by an arbitrary LDAP filter evaluated against the
// candidate capability's attributes (plus a synthetic "version" key).
type Requirement struct {
	Name       string
	Range      *version.Range
	Filter     filter.Node
	Attributes map[string]string
}

// Manifest is the parsed form of a bundle revision's META-INF/MANIFEST.MF.
type Manifest struct {
	SymbolicName string
	Version      version.Version
	Activator    string
	Capabilities []Capability
	Requirements []Requirement
	headers      map[string]string
}

// Header returns a raw manifest header value.
func (m *Manifest) Header(key string) (string, bool) {
	v, ok := m.headers[key]
	return v, ok
}

// Parse reads a MANIFEST.MF document: "Key: Value" lines, blank lines
// ignored, no continuation-line folding (celix manifests are single-line per
// header).
func Parse(r io.Reader) (*Manifest, error) {
	headers := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, fmt.Errorf("manifest: malformed header line %q", line)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		headers[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest: read failed: %w", err)
	}

	m := &Manifest{headers: headers}
	m.SymbolicName = headers[HeaderSymbolicName]
	if m.SymbolicName == "" {
		return nil, fmt.Errorf("manifest: missing required header %s", HeaderSymbolicName)
	}

	if raw, ok := headers[HeaderVersion]; ok && raw != "" {
		v, err := version.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("manifest: invalid %s: %w", HeaderVersion, err)
		}
		m.Version = v
	}
	m.Activator = headers[HeaderActivator]

	if raw, ok := headers[HeaderProvideCapability]; ok && raw != "" {
		caps, err := parseCapabilities(raw)
		if err != nil {
			return nil, fmt.Errorf("manifest: %s: %w", HeaderProvideCapability, err)
		}
		m.Capabilities = caps
	}
	if raw, ok := headers[HeaderRequireCapability]; ok && raw != "" {
		reqs, err := parseRequirements(raw)
		if err != nil {
			return nil, fmt.Errorf("manifest: %s: %w", HeaderRequireCapability, err)
		}
		m.Requirements = reqs
	}

	return m, nil
}

// splitClauses splits a header value on commas that are not inside
// parentheses or brackets, so that "name;filter:=(&(a=1)(b=2))" and
// "name;version=[1.0,2.0)" survive intact.
func splitClauses(value string) []string {
	var clauses []string
	depth := 0
	start := 0
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				clauses = append(clauses, strings.TrimSpace(value[start:i]))
				start = i + 1
			}
		}
	}
	clauses = append(clauses, strings.TrimSpace(value[start:]))
	return clauses
}

// splitAttrs splits a clause on ';' outside of parentheses, e.g.
// "name;version=1.2.3" -> ["name", "version=1.2.3"].
func splitAttrs(clause string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(clause); i++ {
		switch clause[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ';':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(clause[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(clause[start:]))
	return parts
}

func parseCapabilities(raw string) ([]Capability, error) {
	var caps []Capability
	for _, clause := range splitClauses(raw) {
		parts := splitAttrs(clause)
		if len(parts) == 0 || parts[0] == "" {
			return nil, fmt.Errorf("empty capability name in clause %q", clause)
		}
		cap := Capability{Name: parts[0], Attributes: make(map[string]string)}
		for _, attr := range parts[1:] {
			key, value, err := splitAssignment(attr)
			if err != nil {
				return nil, err
			}
			if key == "version" {
				v, err := version.Parse(value)
				if err != nil {
					return nil, fmt.Errorf("invalid version in capability %q: %w", cap.Name, err)
				}
				cap.Version = v
				continue
			}
			cap.Attributes[key] = value
		}
		caps = append(caps, cap)
	}
	return caps, nil
}

func parseRequirements(raw string) ([]Requirement, error) {
	var reqs []Requirement
	for _, clause := range splitClauses(raw) {
		parts := splitAttrs(clause)
		if len(parts) == 0 || parts[0] == "" {
			return nil, fmt.Errorf("empty requirement name in clause %q", clause)
		}
		req := Requirement{Name: parts[0], Attributes: make(map[string]string)}
		for _, attr := range parts[1:] {
			key, value, err := splitDirectiveOrAssignment(attr)
			if err != nil {
				return nil, err
			}
			switch key {
			case "filter":
				node, err := filter.Parse(value)
				if err != nil {
					return nil, fmt.Errorf("invalid filter in requirement %q: %w", req.Name, err)
				}
				req.Filter = node
			case "version":
				r, err := parseVersionRangeAttr(value)
				if err != nil {
					return nil, fmt.Errorf("invalid version range in requirement %q: %w", req.Name, err)
				}
				req.Range = r
			default:
				req.Attributes[key] = value
			}
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// splitAssignment splits "key=value".
func splitAssignment(attr string) (string, string, error) {
	idx := strings.Index(attr, "=")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed attribute %q, expected key=value", attr)
	}
	return strings.TrimSpace(attr[:idx]), strings.TrimSpace(attr[idx+1:]), nil
}

// splitDirectiveOrAssignment splits either "key:=value" (a directive, used
// for filter:=) or "key=value" (a plain attribute).
func splitDirectiveOrAssignment(attr string) (string, string, error) {
	if idx := strings.Index(attr, ":="); idx >= 0 {
		return strings.TrimSpace(attr[:idx]), strings.TrimSpace(attr[idx+2:]), nil
	}
	return splitAssignment(attr)
}

// parseVersionRangeAttr parses a bare version ("1.2.3", meaning >= that
// version) or an interval literal ("[1.2,2.0)").
func parseVersionRangeAttr(s string) (*version.Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty version range")
	}
	if s[0] == '[' || s[0] == '(' {
		return parseInterval(s)
	}
	v, err := version.Parse(s)
	if err != nil {
		return nil, err
	}
	r := version.AtLeast(v)
	return &r, nil
}

func parseInterval(s string) (*version.Range, error) {
	if len(s) < 2 {
		return nil, fmt.Errorf("malformed version interval %q", s)
	}
	lowInclusive := s[0] == '['
	highInclusive := s[len(s)-1] == ']'
	body := s[1 : len(s)-1]
	bounds := strings.SplitN(body, ",", 2)
	if len(bounds) != 2 {
		return nil, fmt.Errorf("malformed version interval %q", s)
	}
	low, err := version.Parse(strings.TrimSpace(bounds[0]))
	if err != nil {
		return nil, err
	}
	high, err := version.Parse(strings.TrimSpace(bounds[1]))
	if err != nil {
		return nil, err
	}
	return &version.Range{Low: low, LowInclusive: lowInclusive, High: &high, HighInclusive: highInclusive}, nil
}
