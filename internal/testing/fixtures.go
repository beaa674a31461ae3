// Package testing provides GIR fixtures shared by the codegen tests.
package testing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/model"
	"github.com/Alia5/girgen/internal/gir"

	"github.com/stretchr/testify/require"
)

// Repository wraps namespace content in a complete GIR document. Includes are
// written as "Name-Version".
func Repository(name, version string, includes []string, body string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>
<repository version="1.2"
            xmlns="http://www.gtk.org/introspection/core/1.0"
            xmlns:c="http://www.gtk.org/introspection/c/1.0"
            xmlns:glib="http://www.gtk.org/introspection/glib/1.0">
`)
	for _, inc := range includes {
		i := strings.LastIndexByte(inc, '-')
		fmt.Fprintf(&b, "  <include name=%q version=%q/>\n", inc[:i], inc[i+1:])
	}
	prefix := strings.ToLower(name)
	fmt.Fprintf(&b, "  <namespace name=%q version=%q shared-library=\"lib%s.so.0\" c:identifier-prefixes=%q c:symbol-prefixes=%q>\n",
		name, version, prefix, name, prefix)
	b.WriteString(body)
	b.WriteString("\n  </namespace>\n</repository>\n")
	return b.String()
}

// Document parses xml as if read from path.
func Document(t testing.TB, path, xml string) *gir.Document {
	t.Helper()
	root, err := gir.Parse(strings.NewReader(xml))
	require.NoError(t, err, "parse fixture %s", path)
	return &gir.Document{Path: path, Root: root}
}

// Build parses every document and builds a model, returning its diagnostics.
func Build(t testing.TB, docs ...string) (*model.Model, diag.List) {
	t.Helper()
	parsed := make([]*gir.Document, 0, len(docs))
	for i, d := range docs {
		parsed = append(parsed, Document(t, fmt.Sprintf("fixture%d.gir", i), d))
	}
	return model.Build(parsed)
}

// MustBuild is Build that fails the test on any error diagnostic.
func MustBuild(t testing.TB, docs ...string) *model.Model {
	t.Helper()
	m, diags := Build(t, docs...)
	require.False(t, diags.HasErrors(), "fixture model has errors:\n%s", diags.Error())
	return m
}

// Entity looks up an entity by path and fails the test when it is missing.
func Entity(t testing.TB, m *model.Model, path string) *model.Entity {
	t.Helper()
	id, ok := m.Lookup(path)
	require.True(t, ok, "entity %s not found", path)
	return m.Entity(id)
}

// Ret is a return-value element for a C type.
func Ret(name, ctype, transfer string) string {
	return fmt.Sprintf(`<return-value transfer-ownership=%q><type name=%q c:type=%q/></return-value>`, transfer, name, ctype)
}

// Void is an empty return-value element.
const Void = `<return-value transfer-ownership="none"><type name="none" c:type="void"/></return-value>`

// GObjectStub is a minimal GObject namespace with Object and InitiallyUnowned.
var GObjectStub = Repository("GObject", "2.0", nil, `
    <class name="Object" c:type="GObject" glib:type-name="GObject" glib:get-type="g_object_get_type">
      <method name="ref" c:identifier="g_object_ref">
        <return-value transfer-ownership="none"><type name="Object" c:type="gpointer"/></return-value>
        <parameters><instance-parameter name="object" transfer-ownership="none"><type name="Object" c:type="GObject*"/></instance-parameter></parameters>
      </method>
      <method name="unref" c:identifier="g_object_unref">
        `+Void+`
        <parameters><instance-parameter name="object" transfer-ownership="none"><type name="Object" c:type="GObject*"/></instance-parameter></parameters>
      </method>
    </class>
    <class name="InitiallyUnowned" c:type="GInitiallyUnowned" parent="Object" glib:get-type="g_initially_unowned_get_type"/>`)
