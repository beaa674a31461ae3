package generator_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/generator"
	"github.com/Alia5/girgen/internal/log"
	girtest "github.com/Alia5/girgen/internal/testing"
)

const self = `<instance-parameter name="widget" transfer-ownership="none"><type name="Widget" c:type="DemoWidget*"/></instance-parameter>`

var demo = girtest.Repository("Demo", "1.0", []string{"GObject-2.0"}, `
    <class name="Widget" c:type="DemoWidget" parent="GObject.Object" glib:get-type="demo_widget_get_type">
      <constructor name="new" c:identifier="demo_widget_new">
        <return-value transfer-ownership="full"><type name="Widget" c:type="DemoWidget*"/></return-value>
      </constructor>
      <method name="get_name" c:identifier="demo_widget_get_name">
        <return-value transfer-ownership="none"><type name="utf8" c:type="const gchar*"/></return-value>
        <parameters>`+self+`</parameters>
      </method>
    </class>`)

var withFile = girtest.Repository("Demo", "1.0", []string{"GObject-2.0"}, `
    <function name="open" c:identifier="demo_open">
      `+girtest.Void+`
      <parameters>
        <parameter name="file" transfer-ownership="none"><type name="Gio.File" c:type="GFile*"/></parameter>
      </parameters>
    </function>`)

type fixture struct {
	opts generator.Options
}

func setup(t *testing.T, input string) fixture {
	t.Helper()
	dir := t.TempDir()
	includes := filepath.Join(dir, "gir-1.0")
	require.NoError(t, os.MkdirAll(includes, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(includes, "GObject-2.0.gir"), []byte(girtest.GObjectStub), 0o644))
	in := filepath.Join(dir, "Demo-1.0.gir")
	require.NoError(t, os.WriteFile(in, []byte(input), 0o644))
	return fixture{opts: generator.Options{
		GIRPaths:    []string{in},
		IncludeDirs: []string{includes},
		Output:      filepath.Join(dir, "out"),
	}}
}

func (f fixture) run(t *testing.T) (*diag.Summary, error) {
	t.Helper()
	return generator.New(f.opts, log.Discard()).Run(t.Context())
}

func TestRunGeneratesRequestedNamespaces(t *testing.T) {
	f := setup(t, demo)
	s, err := f.run(t)
	require.NoError(t, err)

	require.Len(t, s.Namespaces, 1)
	ns := s.Namespaces[0]
	assert.Equal(t, "Demo", ns.Namespace)
	assert.Equal(t, "demo_1_0", ns.Crate)
	assert.Equal(t, diag.StatusGenerated, ns.Status)
	assert.Empty(t, ns.Unmapped)
	assert.Zero(t, s.Counts.Errors)

	var paths []string
	for _, file := range ns.Files {
		paths = append(paths, file.Path)
	}
	assert.Contains(t, paths, "demo_1_0/Cargo.toml")
	assert.Contains(t, paths, "demo_1_0/src/widget.rs")
	assert.FileExists(t, filepath.Join(f.opts.Output, "demo_1_0", "src", "widget.rs"))
	assert.NoDirExists(t, filepath.Join(f.opts.Output, "gobject_2_0"))

	written, err := os.ReadFile(filepath.Join(f.opts.Output, generator.SummaryFile))
	require.NoError(t, err)
	want, err := s.JSON()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))
}

func TestRunIsIdempotent(t *testing.T) {
	f := setup(t, demo)
	_, err := f.run(t)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(f.opts.Output, generator.SummaryFile))
	require.NoError(t, err)
	widget, err := os.ReadFile(filepath.Join(f.opts.Output, "demo_1_0", "src", "widget.rs"))
	require.NoError(t, err)

	_, err = f.run(t)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(f.opts.Output, generator.SummaryFile))
	require.NoError(t, err)
	again, err := os.ReadFile(filepath.Join(f.opts.Output, "demo_1_0", "src", "widget.rs"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, widget, again)
}

func TestRunRejectsUnknownNamespace(t *testing.T) {
	f := setup(t, demo)
	f.opts.Namespaces = []string{"Gtk"}
	_, err := f.run(t)

	var fe *generator.FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "select", fe.Phase)

	f.opts.Namespaces = []string{"Demo-1.0"}
	s, err := f.run(t)
	require.NoError(t, err)
	assert.Len(t, s.Namespaces, 1)
}

func TestAmbiguousOverrideWritesNothing(t *testing.T) {
	f := setup(t, demo)
	rules := filepath.Join(t.TempDir(), "overrides.toml")
	require.NoError(t, os.WriteFile(rules, []byte(`
[[rule]]
selector = "Demo.Widget.get_name"
action = "rename"
value = "name"

[[rule]]
selector = "Demo.Widget.get_name"
action = "rename"
value = "label"
`), 0o644))
	f.opts.Overrides = rules

	s, err := f.run(t)
	var fe *generator.FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "overrides", fe.Phase)
	assert.True(t, s.Diagnostics.Has(diag.AmbiguousOverride))
	assert.NoDirExists(t, f.opts.Output)
}

func TestOverridesApplyToOutput(t *testing.T) {
	f := setup(t, demo)
	rules := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(`
rule:
  - selector: Demo.Widget.get_name
    action: suppress
`), 0o644))
	f.opts.Overrides = rules

	s, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, []string{"Demo.Widget.get_name"}, s.Namespace("Demo").Suppressed)
	widget, err := os.ReadFile(filepath.Join(f.opts.Output, "demo_1_0", "src", "widget.rs"))
	require.NoError(t, err)
	assert.NotContains(t, string(widget), "get_name")
}

func TestStrictModeFailsNamespace(t *testing.T) {
	f := setup(t, withFile)
	f.opts.Strict = true
	s, err := f.run(t)
	require.NoError(t, err)

	ns := s.Namespace("Demo")
	require.NotNil(t, ns)
	assert.Equal(t, diag.StatusFailed, ns.Status)
	assert.Empty(t, ns.Files)
	assert.Contains(t, ns.Errored, "Demo.open")
	assert.True(t, s.Diagnostics.Has(diag.UnresolvedReference))
	assert.NoDirExists(t, filepath.Join(f.opts.Output, "demo_1_0"))
}

func TestLenientModeKeepsExternalReferences(t *testing.T) {
	f := setup(t, withFile)
	s, err := f.run(t)
	require.NoError(t, err)

	assert.NotEqual(t, diag.StatusFailed, s.Namespace("Demo").Status)
	assert.True(t, s.Diagnostics.Has(diag.ExternalReference))
	assert.False(t, s.Diagnostics.Has(diag.UnresolvedReference))
}

func TestMissingIncludeStaysExternal(t *testing.T) {
	f := setup(t, demo)
	f.opts.IncludeDirs = nil
	s, err := f.run(t)
	require.NoError(t, err)
	assert.True(t, s.Diagnostics.Has(diag.ExternalReference))
	assert.NotEqual(t, diag.StatusFailed, s.Namespace("Demo").Status)
}

func TestMalformedInputIsFatal(t *testing.T) {
	f := setup(t, "<repository><namespace")
	s, err := f.run(t)
	var fe *generator.FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "load", fe.Phase)
	assert.True(t, s.Diagnostics.Has(diag.ParseError))
}

func TestOutputErrorFailsOnlyItsNamespace(t *testing.T) {
	repo := func(name string) string {
		return girtest.Repository(name, "1.0", []string{"GObject-2.0"}, `
    <function name="version" c:identifier="`+strings.ToLower(name)+`_version">
      <return-value transfer-ownership="none"><type name="guint" c:type="guint"/></return-value>
    </function>`)
	}
	f := setup(t, repo("Alpha"))
	beta := filepath.Join(filepath.Dir(f.opts.GIRPaths[0]), "Beta-1.0.gir")
	require.NoError(t, os.WriteFile(beta, []byte(repo("Beta")), 0o644))
	f.opts.GIRPaths = append(f.opts.GIRPaths, beta)

	// A non-empty directory where Cargo.toml belongs cannot be replaced.
	blocked := filepath.Join(f.opts.Output, "alpha_1_0", "Cargo.toml")
	require.NoError(t, os.MkdirAll(blocked, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(blocked, "keep"), nil, 0o644))

	s, err := f.run(t)
	require.NoError(t, err)

	alpha := s.Namespace("Alpha")
	require.NotNil(t, alpha)
	assert.Equal(t, diag.StatusFailed, alpha.Status)
	outputs := s.Diagnostics.ByCode(diag.OutputError)
	require.Len(t, outputs, 1)
	assert.Equal(t, "Alpha", outputs[0].Path)
	assert.Equal(t, diag.SeverityError, outputs[0].Severity)

	b := s.Namespace("Beta")
	require.NotNil(t, b)
	assert.Equal(t, diag.StatusGenerated, b.Status)
	assert.FileExists(t, filepath.Join(f.opts.Output, "beta_1_0", "Cargo.toml"))
	assert.FileExists(t, filepath.Join(f.opts.Output, "beta_1_0", "src", "functions.rs"))
	assert.FileExists(t, filepath.Join(f.opts.Output, generator.SummaryFile))
}
