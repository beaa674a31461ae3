package mapping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/mapping"
	"github.com/Alia5/girgen/internal/codegen/model"
	"github.com/Alia5/girgen/internal/codegen/overrides"
	"github.com/Alia5/girgen/internal/codegen/resolve"
	"github.com/Alia5/girgen/internal/log"
	girtest "github.com/Alia5/girgen/internal/testing"
)

const self = `<instance-parameter name="widget" transfer-ownership="none"><type name="Widget" c:type="DemoWidget*"/></instance-parameter>`

var demo = girtest.Repository("Demo", "1.0", []string{"GObject-2.0"}, `
    <record name="Point" c:type="DemoPoint">
      <field name="x" writable="1"><type name="gint" c:type="gint"/></field>
      <field name="y" writable="1"><type name="gint" c:type="gint"/></field>
    </record>
    <class name="Widget" c:type="DemoWidget" parent="GObject.Object" glib:get-type="demo_widget_get_type">
      <constructor name="new" c:identifier="demo_widget_new">
        <return-value transfer-ownership="full"><type name="GObject.Object" c:type="GObject*"/></return-value>
      </constructor>
      <method name="set_label" c:identifier="demo_widget_set_label">
        `+girtest.Void+`
        <parameters>`+self+`
          <parameter name="label" transfer-ownership="none" nullable="1"><type name="utf8" c:type="const gchar*"/></parameter>
        </parameters>
      </method>
      <method name="set_points" c:identifier="demo_widget_set_points">
        `+girtest.Void+`
        <parameters>`+self+`
          <parameter name="points" transfer-ownership="none">
            <array length="1" zero-terminated="0" c:type="gint*"><type name="gint" c:type="gint"/></array>
          </parameter>
          <parameter name="n_points" transfer-ownership="none"><type name="gsize" c:type="gsize"/></parameter>
        </parameters>
      </method>
      <method name="load" c:identifier="demo_widget_load" throws="1">
        <return-value transfer-ownership="none"><type name="gboolean" c:type="gboolean"/></return-value>
        <parameters>`+self+`
          <parameter name="contents" direction="out" caller-allocates="0" transfer-ownership="full"><type name="utf8" c:type="gchar**"/></parameter>
        </parameters>
      </method>
      <method name="get_name" c:identifier="demo_widget_get_name">
        <return-value transfer-ownership="none"><type name="utf8" c:type="const gchar*"/></return-value>
        <parameters>`+self+`</parameters>
      </method>
      <method name="move_to" c:identifier="demo_widget_move_to">
        `+girtest.Void+`
        <parameters>
          <instance-parameter name="widget" transfer-ownership="none" nullable="1"><type name="Widget" c:type="DemoWidget*"/></instance-parameter>
          <parameter name="where" transfer-ownership="none"><type name="Point" c:type="const DemoPoint*"/></parameter>
          <parameter name="speed" transfer-ownership="none" nullable="1"><type name="gint" c:type="gint"/></parameter>
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
    </function>
    <function name="printf" c:identifier="demo_printf">
      `+girtest.Void+`
      <parameters>
        <parameter name="format" transfer-ownership="none"><type name="utf8" c:type="const gchar*"/></parameter>
        <parameter name="..." transfer-ownership="none"><varargs/></parameter>
      </parameters>
    </function>`)

type fixture struct {
	m  *model.Model
	rt *resolve.Table
	ot *overrides.Table
	ns model.NamespaceID
}

func setup(t *testing.T, rules string) fixture {
	t.Helper()
	m := girtest.MustBuild(t, girtest.GObjectStub, demo)
	rt, _, err := resolve.New(m, resolve.Options{}, log.Discard()).ResolveAll(t.Context())
	require.NoError(t, err)
	ot := overrides.Empty(rt)
	if rules != "" {
		rs, err := overrides.Parse([]byte(rules), overrides.FormatTOML)
		require.NoError(t, err)
		ot, _, err = overrides.Compile(rs, rt)
		require.NoError(t, err)
	}
	return fixture{m: m, rt: rt, ot: ot, ns: girtest.Entity(t, m, "Demo.Widget").Namespace}
}

func (f fixture) signature(t *testing.T, path string) (*mapping.Signature, *mapping.Mapper) {
	t.Helper()
	mp := mapping.New(f.rt, f.ot, f.ns)
	sig, err := mp.MapCallable(girtest.Entity(t, f.m, path).ID)
	require.NoError(t, err)
	return sig, mp
}

func steps(p *mapping.CallPlan, branch string, kind mapping.StepKind) []string {
	var out []string
	for _, s := range p.Paths()[branch] {
		if s.Kind == kind {
			out = append(out, s.Value)
		}
	}
	return out
}

func TestNullableBorrowedStringIsNeverReleased(t *testing.T) {
	sig, _ := setup(t, "").signature(t, "Demo.Widget.set_label")

	require.Len(t, sig.Params, 1)
	label := sig.Params[0]
	assert.Equal(t, "Option<&str>", label.Desc.Target)
	assert.Equal(t, mapping.Borrowed, label.Desc.Passing)
	assert.True(t, label.Desc.Nullable)
	assert.Empty(t, label.ReleaseStmt())
	assert.Equal(t, "let label_tmp = runtime::to_opt_cstring_string(label);", label.PrepareStmt())
	assert.Equal(t, "runtime::opt_cstr_ptr(&label_tmp) as _", label.NativeExpr())

	for branch := range sig.Plan.Paths() {
		assert.Empty(t, steps(sig.Plan, branch, mapping.StepRelease), branch)
		assert.Zero(t, sig.Plan.Releases(branch, "label"), branch)
	}
	assert.Empty(t, mapping.Verify(sig.Plan))
	assert.Equal(t, "self.as_ptr() as _", sig.Instance.NativeExpr())
	assert.Empty(t, sig.Result)
}

func TestArrayLengthCollapses(t *testing.T) {
	sig, _ := setup(t, "").signature(t, "Demo.Widget.set_points")

	require.Len(t, sig.Params, 1)
	assert.Equal(t, "points", sig.Params[0].Name)
	assert.Equal(t, "&[i32]", sig.Params[0].Desc.Target)
	assert.Equal(t, "points.as_ptr() as _", sig.Params[0].NativeExpr())

	var length *mapping.Arg
	for _, a := range sig.Args {
		if a.Role == mapping.RoleLength {
			length = a
		}
	}
	require.NotNil(t, length)
	assert.False(t, length.Public)
	assert.Equal(t, "(points.len()) as _", length.NativeExpr())
	assert.Len(t, sig.RawParams, 3)
}

func TestReturnedArrayTakesOutLength(t *testing.T) {
	sig, _ := setup(t, "").signature(t, "Demo.list_names")

	assert.Empty(t, sig.Params)
	assert.Equal(t, "Vec<String>", sig.Result)
	assert.Equal(t, "runtime::take_string_array(ret as *mut _, n_names as usize)", sig.Return.ValueExpr())
	assert.Equal(t, "runtime::free_string_array(ret as *mut _, n_names as usize);", sig.Return.ReleaseStmt())
	assert.Equal(t, []string{"ret"}, steps(sig.Plan, "ok", mapping.StepAcquire))
	assert.Equal(t, 1, sig.Plan.Releases("ok", "ret"))
	assert.Equal(t, "*mut *mut gchar", sig.RawReturn)
	assert.Equal(t, "*mut guint", sig.RawParams[0].Type)
}

func TestFullTransferReleasedOnceOnEveryPath(t *testing.T) {
	sig, _ := setup(t, "").signature(t, "Demo.Widget.load")

	assert.True(t, sig.Throws)
	assert.Equal(t, "Result<String, runtime::Error>", sig.Result)
	assert.Equal(t, mapping.RoleStatus, sig.Return.Role)
	assert.False(t, sig.Return.Public)
	require.Len(t, sig.Outputs, 1)
	assert.Equal(t, "contents", sig.Outputs[0].Name)
	assert.Contains(t, sig.Hazards, mapping.HazardNull)

	require.Len(t, sig.Plan.Branches, 2)
	for _, branch := range []string{"error", "ok"} {
		assert.Equal(t, 1, sig.Plan.Releases(branch, "contents"), branch)
	}
	assert.Equal(t, 1, sig.Plan.Releases("error", "error"))
	assert.Zero(t, sig.Plan.Releases("ok", "error"))
	assert.Empty(t, mapping.Verify(sig.Plan))
	assert.Equal(t, "*mut *mut crate::runtime::GError", sig.RawParams[len(sig.RawParams)-1].Type)
}

func TestVerifyCatchesBrokenPlans(t *testing.T) {
	plan := &mapping.CallPlan{
		Setup: []mapping.Step{{Kind: mapping.StepBorrow, Value: "input"}},
		Call: mapping.Call{Symbol: "demo_broken", Results: []mapping.Step{
			{Kind: mapping.StepAcquire, Value: "out"},
		}},
		Branches: []mapping.Branch{
			{Name: "error", Steps: []mapping.Step{
				{Kind: mapping.StepCheck, Value: "error"},
				{Kind: mapping.StepRelease, Value: "out"},
				{Kind: mapping.StepRelease, Value: "out"},
				{Kind: mapping.StepRelease, Value: "input"},
			}},
			{Name: "ok", Steps: nil},
		},
	}
	violations := mapping.Verify(plan)
	require.Len(t, violations, 3)
	assert.Equal(t, mapping.Violation{Branch: "error", Value: "out", Problem: "is released twice"}, violations[0])
	assert.Equal(t, "error", violations[1].Branch)
	assert.Equal(t, "input", violations[1].Value)
	assert.Equal(t, "is released while only borrowed", violations[1].Problem)
	assert.Equal(t, mapping.Violation{Branch: "ok", Value: "out", Problem: "leaks: acquired but never released or wrapped"}, violations[2])
}

func TestVerifyGiveAndRef(t *testing.T) {
	plan := &mapping.CallPlan{
		Setup: []mapping.Step{
			{Kind: mapping.StepBorrow, Value: "a"},
			{Kind: mapping.StepRef, Value: "a"},
			{Kind: mapping.StepWrap, Value: "a"},
			{Kind: mapping.StepGive, Value: "b"},
			{Kind: mapping.StepGive, Value: "b"},
			{Kind: mapping.StepRef, Value: "c"},
		},
	}
	violations := mapping.Verify(plan)
	require.Len(t, violations, 2)
	assert.Equal(t, "b", violations[0].Value)
	assert.Equal(t, "is given to the callee twice", violations[0].Problem)
	assert.Equal(t, "c", violations[1].Value)
	assert.Equal(t, "ok", violations[1].Branch)
}

func TestConstructorReturnsOwnType(t *testing.T) {
	sig, _ := setup(t, "").signature(t, "Demo.Widget.new")

	assert.Nil(t, sig.Instance)
	assert.Equal(t, "crate::Widget", sig.Result)
	assert.Equal(t, "crate::Widget::from_glib_full(ret as _)", sig.Return.ValueExpr())
	assert.Equal(t, "*mut gobject::ffi::GObject", sig.RawReturn)
	assert.Equal(t, 1, sig.Plan.Releases("ok", "ret"))
}

func TestForceTypeReplacesTarget(t *testing.T) {
	f := setup(t, `
[[rule]]
selector = "Demo.Widget.get_name.return"
action = "force-type"
value = "crate::Name"
ownership = "borrowed"
`)
	sig, _ := f.signature(t, "Demo.Widget.get_name")

	assert.True(t, sig.Return.Desc.Forced)
	assert.Equal(t, "crate::Name", sig.Result)
	assert.Equal(t, mapping.Borrowed, sig.Return.Desc.Passing)
	assert.Equal(t, "runtime::FromNative::from_native(ret)", sig.Return.ValueExpr())
}

func TestNullContractWarnings(t *testing.T) {
	sig, mp := setup(t, "").signature(t, "Demo.Widget.move_to")

	warnings := mp.Diagnostics().ByCode(diag.NullContract)
	require.Len(t, warnings, 2)
	paths := []string{warnings[0].Path, warnings[1].Path}
	assert.ElementsMatch(t, []string{"Demo.Widget.move_to.widget", "Demo.Widget.move_to.speed"}, paths)

	require.Len(t, sig.Params, 2)
	assert.Equal(t, "&crate::Point", sig.Params[0].Desc.Target)
	assert.Equal(t, "where_ as *const _ as *mut _", sig.Params[0].NativeExpr())
	assert.Equal(t, "i32", sig.Params[1].Desc.Target)
	assert.False(t, sig.Params[1].Desc.Nullable)
}

func TestMapNamespace(t *testing.T) {
	f := setup(t, "")
	ns := mapping.MapNamespace(f.rt, f.ot, f.ns)

	assert.Equal(t, "demo_1_0", ns.Crate)
	assert.Equal(t, "demo", ns.Alias)
	assert.Equal(t, []string{"demo"}, ns.Links)
	require.Len(t, ns.Deps, 1)
	assert.Equal(t, mapping.Crate{Name: "gobject_2_0", Alias: "gobject", Namespace: "GObject", Version: "2.0"}, ns.Deps[0])

	assert.Equal(t, []string{"Demo.printf"}, ns.Unmapped)
	assert.True(t, ns.Diags.Has(diag.UnmappableType))

	var symbols []string
	for _, fn := range ns.Raw.Functions {
		symbols = append(symbols, fn.Symbol)
	}
	assert.Contains(t, symbols, "demo_widget_get_type")
	assert.Contains(t, symbols, "demo_widget_new")
	assert.NotContains(t, symbols, "demo_printf")

	require.Len(t, ns.Raw.Records, 2)
	assert.Equal(t, mapping.RawRecord{Name: "DemoPoint", Fields: []mapping.RawField{{Name: "x", Type: "gint"}, {Name: "y", Type: "gint"}}}, ns.Raw.Records[0])
	assert.True(t, ns.Raw.Records[1].Opaque)

	require.Len(t, ns.Types, 2)
	assert.True(t, ns.Types[0].Plain())
	widget := ns.Types[1]
	assert.Equal(t, "Widget", widget.Name)
	assert.Equal(t, "widget", widget.File)
	assert.Equal(t, []string{"gobject::Object"}, widget.Upcasts)
	var methods []string
	for _, m := range widget.Methods {
		methods = append(methods, m.Name)
	}
	assert.Equal(t, []string{"new", "set_label", "set_points", "load", "get_name", "move_to"}, methods)
}

func TestMapAllKeepsOrder(t *testing.T) {
	f := setup(t, "")
	gobject := girtest.Entity(t, f.m, "GObject.Object").Namespace
	out, err := mapping.MapAll(t.Context(), f.rt, f.ot, []model.NamespaceID{f.ns, gobject}, 2, log.Discard())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Demo", out[0].Name)
	assert.Equal(t, "GObject", out[1].Name)
	assert.Empty(t, out[1].Deps)
}

func TestSuppressedMethodLeavesWrapper(t *testing.T) {
	f := setup(t, `
[[rule]]
selector = "Demo.Widget.load"
action = "suppress"
`)
	ns := mapping.MapNamespace(f.rt, f.ot, f.ns)
	for _, ty := range ns.Types {
		for _, m := range ty.Methods {
			assert.NotEqual(t, "load", m.Name)
		}
	}
	for _, fn := range ns.Raw.Functions {
		assert.NotEqual(t, "demo_widget_load", fn.Symbol)
	}
	assert.Contains(t, ns.Suppressed, "Demo.Widget.load")
}

func TestSuppressedEmbeddedRecordMakesOuterOpaque(t *testing.T) {
	m := girtest.MustBuild(t, girtest.GObjectStub, girtest.Repository("Demo", "1.0", []string{"GObject-2.0"}, `
    <record name="Inner" c:type="DemoInner">
      <field name="x" writable="1"><type name="gint" c:type="gint"/></field>
    </record>
    <record name="Outer" c:type="DemoOuter">
      <field name="inner" writable="1"><type name="Inner" c:type="DemoInner"/></field>
    </record>`))
	rt, _, err := resolve.New(m, resolve.Options{}, log.Discard()).ResolveAll(t.Context())
	require.NoError(t, err)
	rs, err := overrides.Parse([]byte(`
[[rule]]
selector = "Demo.Inner"
action = "suppress"
`), overrides.FormatTOML)
	require.NoError(t, err)
	ot, _, err := overrides.Compile(rs, rt)
	require.NoError(t, err)

	ns := mapping.MapNamespace(rt, ot, girtest.Entity(t, m, "Demo.Outer").Namespace)
	require.Len(t, ns.Raw.Records, 1)
	assert.Equal(t, mapping.RawRecord{Name: "DemoOuter", Opaque: true}, ns.Raw.Records[0])
	assert.Empty(t, ns.Types)
	assert.Equal(t, []string{"Demo.Inner", "Demo.Outer.inner"}, ns.Suppressed)
}
