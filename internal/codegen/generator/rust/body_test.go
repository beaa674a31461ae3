package rust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/girgen/internal/codegen/mapping"
	"github.com/Alia5/girgen/internal/codegen/overrides"
	"github.com/Alia5/girgen/internal/codegen/resolve"
	"github.com/Alia5/girgen/internal/log"
	girtest "github.com/Alia5/girgen/internal/testing"
)

const widget = `<instance-parameter name="widget" transfer-ownership="none"><type name="Widget" c:type="DemoWidget*"/></instance-parameter>`

var calls = girtest.Repository("Demo", "1.0", []string{"GObject-2.0"}, `
    <class name="Widget" c:type="DemoWidget" parent="GObject.Object" glib:get-type="demo_widget_get_type">
      <method name="set_points" c:identifier="demo_widget_set_points">
        `+girtest.Void+`
        <parameters>`+widget+`
          <parameter name="points" transfer-ownership="none">
            <array length="1" zero-terminated="0" c:type="gint*"><type name="gint" c:type="gint"/></array>
          </parameter>
          <parameter name="n_points" transfer-ownership="none"><type name="gsize" c:type="gsize"/></parameter>
        </parameters>
      </method>
      <method name="load" c:identifier="demo_widget_load" throws="1">
        <return-value transfer-ownership="none"><type name="gboolean" c:type="gboolean"/></return-value>
        <parameters>`+widget+`
          <parameter name="contents" direction="out" caller-allocates="0" transfer-ownership="full"><type name="utf8" c:type="gchar**"/></parameter>
        </parameters>
      </method>
    </class>
    <function name="list_names" c:identifier="demo_list_names">
      <return-value transfer-ownership="full">
        <array length="0" zero-terminated="0" c:type="gchar**"><type name="utf8" c:type="gchar*"/></array>
      </return-value>
      <parameters>
        <parameter name="n_names" direction="out" caller-allocates="0" transfer-ownership="full"><type name="guint" c:type="guint*"/></parameter>
      </parameters>
    </function>`)

func signature(t *testing.T, path string) *mapping.Signature {
	t.Helper()
	m := girtest.MustBuild(t, girtest.GObjectStub, calls)
	rt, _, err := resolve.New(m, resolve.Options{}, log.Discard()).ResolveAll(t.Context())
	require.NoError(t, err)
	e := girtest.Entity(t, m, path)
	sig, err := mapping.New(rt, overrides.Empty(rt), e.Namespace).MapCallable(e.ID)
	require.NoError(t, err)
	return sig
}

func TestBodyReleasesOutputOnError(t *testing.T) {
	assert.Equal(t, []string{
		"let mut contents: *mut gchar = std::mem::zeroed();",
		"let mut error = std::ptr::null_mut();",
		"ffi::demo_widget_load(self.as_ptr() as _, &mut contents, &mut error);",
		"if !error.is_null() {",
		"    if !contents.is_null() {",
		"        runtime::g_free(contents as *mut _);",
		"    }",
		"    return Err(runtime::Error::from_glib_full(error as _));",
		"}",
		"debug_assert!(!contents.is_null());",
		"Ok(runtime::take_string(contents as *mut _))",
	}, body(signature(t, "Demo.Widget.load")))
}

func TestBodyPassesSliceLength(t *testing.T) {
	assert.Equal(t, []string{
		"ffi::demo_widget_set_points(self.as_ptr() as _, points.as_ptr() as _, (points.len()) as _);",
	}, body(signature(t, "Demo.Widget.set_points")))
}

func TestBodyTakesReturnedArray(t *testing.T) {
	sig := signature(t, "Demo.list_names")
	assert.Equal(t, []string{
		"let mut n_names: guint = std::mem::zeroed();",
		"let ret = ffi::demo_list_names(&mut n_names);",
		"runtime::take_string_array(ret as *mut _, n_names as usize)",
	}, body(sig))

	v := newFnView(sig, "")
	assert.Equal(t, "list_names", v.Name)
	assert.Empty(t, v.Args)
	assert.Equal(t, "Vec<String>", v.Result)
}

func TestFnViewDocumentsHazards(t *testing.T) {
	v := newFnView(signature(t, "Demo.Widget.load"), "    ")
	assert.Equal(t, "&self", v.Args)
	assert.Equal(t, []string{"# Panics", "", "Debug builds panic when `demo_widget_load` returns NULL for a value it promised."}, v.Doc)
}

func TestTidy(t *testing.T) {
	assert.Equal(t, "a\n\nb\n", string(tidy([]byte("\n\na  \n\n\n\nb\t\n\n"))))
	assert.Equal(t, "\n", string(tidy(nil)))
}

func TestDocLines(t *testing.T) {
	assert.Nil(t, docLines("  \n"))
	assert.Equal(t, []string{"First line.", "", "Second."}, docLines("First line.  \n\nSecond.\n"))
	assert.Equal(t, "    /// First line.\n    ///\n", doc("    ", []string{"First line.", ""}))
}

func TestRawPath(t *testing.T) {
	assert.Equal(t, "ffi::DemoWidget", rawPath("DemoWidget"))
	assert.Equal(t, "gobject::ffi::GObject", rawPath("gobject::ffi::GObject"))
}
