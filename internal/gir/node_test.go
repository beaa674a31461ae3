package gir

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGIR = `<?xml version="1.0"?>
<repository version="1.2"
            xmlns="http://www.gtk.org/introspection/core/1.0"
            xmlns:c="http://www.gtk.org/introspection/c/1.0"
            xmlns:glib="http://www.gtk.org/introspection/glib/1.0">
  <include name="GObject" version="2.0"/>
  <namespace name="Demo" version="1.0" shared-library="libdemo.so.1" c:identifier-prefixes="Demo" c:symbol-prefixes="demo">
    <class name="Widget" c:type="DemoWidget" glib:get-type="demo_widget_get_type" parent="GObject.Object">
      <doc xml:space="preserve">A widget.</doc>
      <glib:signal name="clicked">
        <return-value transfer-ownership="none"><type name="none" c:type="void"/></return-value>
      </glib:signal>
    </class>
  </namespace>
</repository>`

func TestParse(t *testing.T) {
	root, err := Parse(strings.NewReader(sampleGIR))
	require.NoError(t, err)

	assert.Equal(t, "repository", root.Name)
	assert.Equal(t, "1.2", root.Attr("version"))

	inc := root.Child("include")
	require.NotNil(t, inc)
	assert.Equal(t, "GObject", inc.Attr("name"))

	ns := root.Child("namespace")
	require.NotNil(t, ns)
	assert.Equal(t, "Demo", ns.Attr("c:identifier-prefixes"))
	assert.Equal(t, "demo", ns.Attr("c:symbol-prefixes"))

	cls := ns.Child("class")
	require.NotNil(t, cls)
	assert.Equal(t, "DemoWidget", cls.Attr("c:type"))
	assert.Equal(t, "demo_widget_get_type", cls.Attr("glib:get-type"))
	assert.Equal(t, "A widget.", cls.Child("doc").Text)
	assert.Len(t, cls.ChildrenNamed("glib:signal"), 1)
	assert.Greater(t, cls.Line, 1)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		is    error
	}{
		{name: "unclosed element", input: `<repository><namespace name="X">`},
		{name: "wrong root", input: `<module/>`, is: ErrNotRepository},
		{name: "empty", input: ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "expected *ParseError, got %T", err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestBoolAttr(t *testing.T) {
	n := &Node{Attrs: map[string]string{"nullable": "1", "introspectable": "0", "throws": "true"}}
	assert.True(t, n.BoolAttr("nullable"))
	assert.False(t, n.BoolAttr("introspectable"))
	assert.True(t, n.BoolAttr("throws"))
	assert.False(t, n.BoolAttr("missing"))
	assert.True(t, n.HasAttr("introspectable"))

	var nilNode *Node
	assert.Equal(t, "", nilNode.Attr("x"))
	assert.Nil(t, nilNode.Child("x"))
}

func writeGIR(t *testing.T, dir, name, version string, includes ...Include) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<repository version="1.2" xmlns="http://www.gtk.org/introspection/core/1.0">`)
	for _, inc := range includes {
		b.WriteString(`<include name="` + inc.Name + `" version="` + inc.Version + `"/>`)
	}
	b.WriteString(`<namespace name="` + name + `" version="` + version + `"/></repository>`)
	p := filepath.Join(dir, name+"-"+version+".gir")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o644))
	return p
}

func TestLoadFollowsIncludes(t *testing.T) {
	dir := t.TempDir()
	incDir := filepath.Join(dir, "gir-1.0")
	require.NoError(t, os.MkdirAll(incDir, 0o755))

	writeGIR(t, incDir, "GLib", "2.0")
	writeGIR(t, incDir, "GObject", "2.0", Include{"GLib", "2.0"})
	broken := filepath.Join(incDir, "Broken-1.0.gir")
	require.NoError(t, os.WriteFile(broken, []byte("<repository>"), 0o644))
	main := writeGIR(t, dir, "Demo", "1.0",
		Include{"GObject", "2.0"}, Include{"Gone", "3.0"}, Include{"Broken", "1.0"})

	docs, missing, failed, err := Load([]string{main}, []string{incDir})
	require.NoError(t, err)

	var names []string
	for _, d := range docs {
		names = append(names, d.Root.Child("namespace").Attr("name"))
	}
	assert.Equal(t, []string{"Demo", "GObject", "GLib"}, names)
	assert.Equal(t, []Include{{"Gone", "3.0"}}, missing)
	require.Len(t, failed, 1)
	assert.Equal(t, "Broken", failed[0].Include.Name)
}

func TestLocate(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeGIR(t, second, "Gio", "2.0")
	want := writeGIR(t, first, "Gio", "2.0")

	got, err := Locate("Gio", "2.0", []string{first, second})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Locate("Gtk", "4.0", []string{first})
	assert.ErrorIs(t, err, ErrNotFound)
}
