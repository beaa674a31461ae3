// Package diag defines the diagnostics reported by a generation run.
// Every diagnostic names the entity path it concerns, so the final report can
// be sorted deterministically regardless of the order in which concurrent
// phases produced it.
package diag

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Code is the unique diagnostic code (e.g. "RES201").
type Code string

// Category groups codes by pipeline phase.
type Category string

const (
	CategoryParse    Category = "parse"    // GIR0xx
	CategoryModel    Category = "model"    // MOD1xx
	CategoryResolve  Category = "resolve"  // RES2xx
	CategoryMapping  Category = "mapping"  // MAP3xx
	CategoryOverride Category = "override" // OVR4xx
	CategoryEmit     Category = "emit"     // EMT5xx
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

const (
	ParseError                Code = "GIR001"
	MalformedMetadata         Code = "MOD101"
	UnresolvedReference       Code = "RES201"
	CyclicTypeAlias           Code = "RES202"
	AmbiguousNamespaceVersion Code = "RES203"
	NamespaceCycle            Code = "RES204"
	ExternalReference         Code = "RES205"
	DependencyFailed          Code = "RES206"
	UnmappableType            Code = "MAP301"
	NullContract              Code = "MAP302"
	OwnershipViolation        Code = "MAP303"
	AmbiguousOverride         Code = "OVR401"
	DanglingOverride          Code = "OVR402"
	InvalidOverride           Code = "OVR403"
	SuppressedDependency      Code = "OVR404"
	TemplateError             Code = "EMT501"
	OutputError               Code = "EMT502"
)

var codeInfo = map[Code]struct {
	name     string
	category Category
}{
	ParseError:                {"ParseError", CategoryParse},
	MalformedMetadata:         {"MalformedMetadata", CategoryModel},
	UnresolvedReference:       {"UnresolvedReference", CategoryResolve},
	CyclicTypeAlias:           {"CyclicTypeAlias", CategoryResolve},
	AmbiguousNamespaceVersion: {"AmbiguousNamespaceVersion", CategoryResolve},
	NamespaceCycle:            {"NamespaceCycle", CategoryResolve},
	ExternalReference:         {"ExternalReference", CategoryResolve},
	DependencyFailed:          {"DependencyFailed", CategoryResolve},
	UnmappableType:            {"UnmappableType", CategoryMapping},
	NullContract:              {"NullContract", CategoryMapping},
	OwnershipViolation:        {"OwnershipViolation", CategoryMapping},
	AmbiguousOverride:         {"AmbiguousOverride", CategoryOverride},
	DanglingOverride:          {"DanglingOverride", CategoryOverride},
	InvalidOverride:           {"InvalidOverride", CategoryOverride},
	SuppressedDependency:      {"SuppressedDependency", CategoryOverride},
	TemplateError:             {"TemplateError", CategoryEmit},
	OutputError:               {"OutputError", CategoryEmit},
}

// Name returns the symbolic name of the code ("CyclicTypeAlias").
func (c Code) Name() string {
	if info, ok := codeInfo[c]; ok {
		return info.name
	}
	return string(c)
}

// Category returns the phase the code belongs to.
func (c Code) Category() Category {
	return codeInfo[c].category
}

// Diagnostic is one reported problem.
type Diagnostic struct {
	Code       Code     `json:"code"`
	Type       string   `json:"type"`
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	Path       string   `json:"path"`
	Message    string   `json:"message"`
	File       string   `json:"file,omitempty"`
	Line       int      `json:"line,omitempty"`
	Expected   string   `json:"expected,omitempty"`
	Actual     string   `json:"actual,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// New creates a diagnostic for the entity at path.
func New(code Code, severity Severity, path, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Code:     code,
		Type:     code.Name(),
		Category: code.Category(),
		Severity: severity,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Errorf creates an error severity diagnostic.
func Errorf(code Code, path, format string, args ...any) *Diagnostic {
	return New(code, SeverityError, path, format, args...)
}

// Warnf creates a warning severity diagnostic.
func Warnf(code Code, path, format string, args ...any) *Diagnostic {
	return New(code, SeverityWarning, path, format, args...)
}

// Infof creates an info severity diagnostic.
func Infof(code Code, path, format string, args ...any) *Diagnostic {
	return New(code, SeverityInfo, path, format, args...)
}

func (d *Diagnostic) Error() string {
	var b strings.Builder
	if d.Path != "" {
		b.WriteString(d.Path)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%s %s: %s", d.Code, d.Type, d.Message)
	return b.String()
}

// WithFile sets the source location.
func (d *Diagnostic) WithFile(file string, line int) *Diagnostic {
	d.File = file
	d.Line = line
	return d
}

// WithExpected sets the expected value.
func (d *Diagnostic) WithExpected(expected string) *Diagnostic {
	d.Expected = expected
	return d
}

// WithActual sets the actual value.
func (d *Diagnostic) WithActual(actual string) *Diagnostic {
	d.Actual = actual
	return d
}

// WithSuggestion sets a hint for fixing the problem.
func (d *Diagnostic) WithSuggestion(suggestion string) *Diagnostic {
	d.Suggestion = suggestion
	return d
}

// List is a collection of diagnostics.
type List []*Diagnostic

// Add appends diagnostics, ignoring nils.
func (l *List) Add(ds ...*Diagnostic) {
	for _, d := range ds {
		if d != nil {
			*l = append(*l, d)
		}
	}
}

// Merge appends every diagnostic of other.
func (l *List) Merge(other List) {
	*l = append(*l, other...)
}

// HasErrors returns true if the list contains any error severity diagnostic.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Has reports whether a diagnostic with the given code is present.
func (l List) Has(code Code) bool {
	for _, d := range l {
		if d.Code == code {
			return true
		}
	}
	return false
}

// ByCode returns the diagnostics with the given code.
func (l List) ByCode(code Code) List {
	var out List
	for _, d := range l {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Count returns the number of diagnostics per severity.
func (l List) Count() (errors, warnings, info int) {
	for _, d := range l {
		switch d.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		case SeverityInfo:
			info++
		}
	}
	return
}

// Sorted returns a copy ordered by path, then code, then message.
func (l List) Sorted() List {
	out := make(List, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
	return out
}

func (l List) Error() string {
	if len(l) == 0 {
		return "no diagnostics"
	}
	lines := make([]string, 0, len(l))
	for _, d := range l.Sorted() {
		lines = append(lines, d.Error())
	}
	return strings.Join(lines, "\n")
}

// ToJSON returns the sorted diagnostics as a JSON array.
func (l List) ToJSON() (string, error) {
	sorted := l.Sorted()
	if sorted == nil {
		sorted = List{}
	}
	b, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
