// Package overrides loads user rules that rename, suppress, replace or
// retype generated entities and compiles them into a directive table.
package overrides

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

type Action string

const (
	ActionRename    Action = "rename"
	ActionSuppress  Action = "suppress"
	ActionReplace   Action = "replace"
	ActionForceType Action = "force-type"
)

func (a Action) valid() bool {
	switch a {
	case ActionRename, ActionSuppress, ActionReplace, ActionForceType:
		return true
	}
	return false
}

// Ownership overrides for force-type rules.
const (
	OwnershipOwned    = "owned"
	OwnershipBorrowed = "borrowed"
	OwnershipValue    = "value"
)

// Rule is one entry of an override file.
type Rule struct {
	Selector string `toml:"selector" yaml:"selector"`
	Action   Action `toml:"action" yaml:"action"`
	// Value is the new name, the manual file or the forced type.
	Value string `toml:"value" yaml:"value"`
	// Scope restricts the rule to one entity kind ("method", "parameter").
	Scope     string `toml:"scope" yaml:"scope"`
	Ownership string `toml:"ownership" yaml:"ownership"`

	// Index is the position of the rule in its file.
	Index int `toml:"-" yaml:"-"`
}

func (r Rule) String() string {
	s := fmt.Sprintf("rule #%d (%s %s", r.Index+1, r.Action, r.Selector)
	if r.Scope != "" {
		s += " scope=" + r.Scope
	}
	return s + ")"
}

// RuleSet is a parsed override file.
type RuleSet struct {
	Rules []Rule `toml:"rule" yaml:"rule"`

	// Source is the file the rules came from.
	Source string `toml:"-" yaml:"-"`
	// Dir is the directory replace files are relative to.
	Dir string `toml:"-" yaml:"-"`
}

const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

var ErrUnknownFormat = errors.New("unknown override file format")

// FormatOf picks the file format from the extension.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %s (use .toml, .yaml or .yml)", ErrUnknownFormat, path)
}

// Load reads an override file. Replace rules resolve their files relative to
// the directory of path.
func Load(path string) (*RuleSet, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	rs, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rs.Source = path
	rs.Dir = filepath.Dir(path)
	return rs, nil
}

// Parse decodes rules from data in the given format.
func Parse(data []byte, format string) (*RuleSet, error) {
	rs := &RuleSet{}
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, rs); err != nil {
			return nil, fmt.Errorf("parse toml overrides: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(rs); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml overrides: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	for i := range rs.Rules {
		rs.Rules[i].Index = i
		rs.Rules[i].Action = Action(strings.ToLower(strings.TrimSpace(string(rs.Rules[i].Action))))
		rs.Rules[i].Selector = strings.TrimSpace(rs.Rules[i].Selector)
	}
	return rs, nil
}
