package rust

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/Alia5/girgen/internal/codegen/mapping"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// TemplateNames lists the templates a template directory may override.
// "fn" and "wrapper" hold the shared definitions the others build on.
var TemplateNames = []string{
	"cargo", "lib", "ffi", "runtime", "class", "interface", "record", "union",
	"enum", "bitfield", "callback", "functions", "constants", "readme",
	"fn", "wrapper",
}

// TemplateError is a template that could not be parsed or executed.
type TemplateError struct {
	Template string
	File     string
	Err      error
}

func (e *TemplateError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("template %s (%s): %v", e.Template, e.File, e.Err)
	}
	return fmt.Sprintf("template %s: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

var funcMap = template.FuncMap{
	"doc":      doc,
	"lines":    lines,
	"verbatim": verbatim,
	"params": func(ps []mapping.RawParam) string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name + ": " + p.Type
		}
		return strings.Join(out, ", ")
	},
	"indent": func(prefix, s string) string {
		return lines(prefix, strings.Split(strings.TrimRight(s, "\n"), "\n"))
	},
}

// loadTemplates parses the embedded defaults and replaces every template
// found as NAME.tmpl in dir. Missing templates keep their default.
func loadTemplates(logger *slog.Logger, dir string) (*template.Template, error) {
	tmpl, err := template.New("girgen").Funcs(funcMap).ParseFS(defaultTemplates, "templates/*.tmpl")
	if err != nil {
		return nil, &TemplateError{Template: "defaults", Err: err}
	}
	if dir == "" {
		return tmpl, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read template directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".tmpl" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		name := strings.TrimSuffix(entry.Name(), ".tmpl")
		if !slices.Contains(TemplateNames, name) {
			logger.Warn("Ignoring unknown template", "file", path)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", path, err)
		}
		if _, err := tmpl.New(entry.Name()).Parse(string(data)); err != nil {
			return nil, &TemplateError{Template: name, File: path, Err: err}
		}
		logger.Debug("Using template override", "template", name, "file", path)
	}
	return tmpl, nil
}

// doc renders lines as Rust doc comments.
func doc(indent string, ls []string) string {
	var b strings.Builder
	for _, l := range ls {
		if l == "" {
			b.WriteString(indent + "///\n")
			continue
		}
		b.WriteString(indent + "/// " + l + "\n")
	}
	return b.String()
}

func lines(indent string, ls []string) string {
	out := make([]string, len(ls))
	for i, l := range ls {
		if l == "" {
			continue
		}
		out[i] = indent + l
	}
	return strings.Join(out, "\n")
}

// verbatim returns s with exactly one trailing newline.
func verbatim(s string) string {
	return strings.TrimRight(s, "\n") + "\n"
}

// tidy strips trailing blanks and collapses runs of empty lines so that
// template whitespace never shows up in the output.
func tidy(src []byte) []byte {
	ls := strings.Split(string(src), "\n")
	out := make([]string, 0, len(ls))
	blank := false
	for _, l := range ls {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return []byte(strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n")
}
