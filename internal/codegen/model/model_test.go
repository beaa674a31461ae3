package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/model"
	girtest "github.com/Alia5/girgen/internal/testing"
)

const demoBody = `
    <alias name="Id" c:type="DemoId"><type name="guint32" c:type="guint32"/></alias>
    <constant name="MAJOR" value="1" c:type="DEMO_MAJOR"><type name="gint" c:type="gint"/></constant>
    <enumeration name="Mode" c:type="DemoMode">
      <member name="off" value="0" c:identifier="DEMO_MODE_OFF"/>
      <member name="on" value="1" c:identifier="DEMO_MODE_ON"/>
    </enumeration>
    <bitfield name="Flags" c:type="DemoFlags">
      <member name="none" value="0" c:identifier="DEMO_FLAGS_NONE"/>
      <member name="read" value="1" c:identifier="DEMO_FLAGS_READ"/>
      <member name="default" value="1" c:identifier="DEMO_FLAGS_DEFAULT"/>
    </bitfield>
    <interface name="Sized" c:type="DemoSized" glib:get-type="demo_sized_get_type">
      <prerequisite name="GObject.Object"/>
    </interface>
    <class name="Widget" c:type="DemoWidget" parent="GObject.Object" glib:get-type="demo_widget_get_type">
      <implements name="Sized"/>
      <constructor name="new" c:identifier="demo_widget_new">
        <return-value transfer-ownership="full"><type name="Widget" c:type="DemoWidget*"/></return-value>
      </constructor>
      <method name="set_data" c:identifier="demo_widget_set_data">
        ` + girtest.Void + `
        <parameters>
          <instance-parameter name="self" transfer-ownership="none"><type name="Widget" c:type="DemoWidget*"/></instance-parameter>
          <parameter name="data" transfer-ownership="none">
            <array length="1" zero-terminated="0" c:type="const guint8*"><type name="guint8" c:type="guint8"/></array>
          </parameter>
          <parameter name="len" transfer-ownership="none"><type name="gsize" c:type="gsize"/></parameter>
          <parameter name="label" transfer-ownership="none" allow-none="1"><type name="utf8" c:type="const gchar*"/></parameter>
        </parameters>
      </method>
      <method name="activate" c:identifier="demo_widget_activate">
        ` + girtest.Void + `
        <parameters><instance-parameter name="self" transfer-ownership="none"><type name="Widget" c:type="DemoWidget*"/></instance-parameter></parameters>
      </method>
      <virtual-method name="activate">
        ` + girtest.Void + `
        <parameters><instance-parameter name="self" transfer-ownership="none"><type name="Widget" c:type="DemoWidget*"/></instance-parameter></parameters>
      </virtual-method>
      <property name="label" writable="1" transfer-ownership="none"><type name="utf8" c:type="gchar*"/></property>
      <glib:signal name="clicked">` + girtest.Void + `</glib:signal>
    </class>
    <record name="Point" c:type="DemoPoint">
      <field name="x" writable="1"><type name="gint" c:type="gint"/></field>
      <field name="flag" bits="1"><type name="guint" c:type="guint"/></field>
      <field name="notify"><callback name="notify">` + girtest.Void + `</callback></field>
    </record>
    <function name="init" c:identifier="demo_init" throws="1">
      <return-value transfer-ownership="none"><type name="gboolean" c:type="gboolean"/></return-value>
      <parameters>
        <parameter name="argv" direction="inout" caller-allocates="0" transfer-ownership="full" allow-none="1">
          <array length="2" zero-terminated="0" c:type="char***"><type name="utf8" c:type="char*"/></array>
        </parameter>
        <parameter name="format" transfer-ownership="none"><type name="utf8" c:type="const char*"/></parameter>
        <parameter name="argc" direction="inout" transfer-ownership="full"><type name="gint" c:type="int*"/></parameter>
        <parameter name="rest" transfer-ownership="none"><varargs/></parameter>
      </parameters>
    </function>`

func demoModel(t *testing.T) *model.Model {
	return girtest.MustBuild(t,
		girtest.Repository("Demo", "1.0", []string{"GObject-2.0"}, demoBody),
		girtest.GObjectStub,
	)
}

func TestBuildNamespace(t *testing.T) {
	m := demoModel(t)
	require.Len(t, m.Namespaces, 2)

	ns := m.Namespaces[0]
	assert.Equal(t, "Demo", ns.Name)
	assert.Equal(t, "1.0", ns.Version)
	assert.Equal(t, []string{"libdemo.so.0"}, ns.SharedLibraries)
	assert.Equal(t, []model.Include{{Name: "GObject", Version: "2.0"}}, ns.Includes)

	var names []string
	for _, e := range m.TopLevel(ns.ID) {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Id", "MAJOR", "Mode", "Flags", "Sized", "Widget", "Point", "init"}, names)

	id, ok := ns.Lookup("Widget")
	require.True(t, ok)
	assert.Equal(t, model.KindClass, m.Entity(id).Kind)
}

func TestBuildClassMembers(t *testing.T) {
	m := demoModel(t)
	w := girtest.Entity(t, m, "Demo.Widget")

	assert.Equal(t, "GObject.Object", w.Parent.Name)
	require.Len(t, w.Implements, 1)
	assert.Equal(t, "Sized", w.Implements[0].Name)
	assert.Equal(t, "demo_widget_get_type", w.GetType)

	var paths []string
	for _, mem := range m.Members(w.ID) {
		paths = append(paths, m.Path(mem.ID))
	}
	assert.Equal(t, []string{
		"Demo.Widget.new",
		"Demo.Widget.set_data",
		"Demo.Widget.activate",
		"Demo.Widget.vfunc:activate",
		"Demo.Widget.property:label",
		"Demo.Widget.signal:clicked",
	}, paths)

	set := girtest.Entity(t, m, "Demo.Widget.set_data")
	c := set.Callable
	require.NotNil(t, c.Instance)
	require.Len(t, c.Params, 3)
	data := c.Params[0]
	require.NotNil(t, data.Type.Array)
	assert.Equal(t, 1, data.Type.Array.Length)
	assert.False(t, data.Type.Array.ZeroTerminated)
	assert.Equal(t, "guint8", data.Type.Elements[0].Name)

	label := c.Params[2]
	assert.True(t, label.Nullable, "allow-none on an in parameter means nullable")
	assert.Equal(t, model.TransferNone, label.Transfer)
	assert.Equal(t, "Demo.Widget.set_data.label", m.ParamPath(set.ID, label))
	assert.Equal(t, "Demo.Widget.set_data.return", m.ParamPath(set.ID, c.Return))
}

func TestBuildFunctionAnnotations(t *testing.T) {
	m := demoModel(t)
	f := girtest.Entity(t, m, "Demo.init")
	c := f.Callable

	assert.True(t, c.Throws)
	assert.True(t, c.HasVarargs())
	argv := c.Params[0]
	assert.Equal(t, model.DirInOut, argv.Direction)
	assert.Equal(t, model.TransferFull, argv.Transfer)
	assert.True(t, argv.Optional, "allow-none on an inout parameter means optional")
	assert.False(t, argv.Nullable)
}

func TestBuildEnumsAndRecords(t *testing.T) {
	m := demoModel(t)

	flags := girtest.Entity(t, m, "Demo.Flags")
	require.Len(t, flags.Members, 3, "bitfields may repeat values")
	assert.Equal(t, "1", m.Entity(flags.Members[2]).Value)

	pt := girtest.Entity(t, m, "Demo.Point")
	fields := m.Members(pt.ID, model.KindField)
	require.Len(t, fields, 3)
	assert.Equal(t, 1, fields[1].Bits)
	assert.Equal(t, model.KindCallback, fields[2].AnonKind)
	require.NotNil(t, fields[2].FieldCallee)
	assert.Equal(t, "Demo.Point.field:x", m.Path(fields[0].ID))

	alias := girtest.Entity(t, m, "Demo.Id")
	assert.Equal(t, "guint32", alias.Type.Name)

	c := girtest.Entity(t, m, "Demo.MAJOR")
	assert.Equal(t, "1", c.Value)
}

func TestTargets(t *testing.T) {
	m := demoModel(t)
	var paths []string
	for _, tg := range m.Targets(m.Namespaces[0].ID) {
		if tg.Kind == model.KindParameter || tg.Kind == model.KindReturn {
			paths = append(paths, tg.Path)
		}
	}
	assert.Contains(t, paths, "Demo.Widget.set_data.self")
	assert.Contains(t, paths, "Demo.Widget.set_data.data")
	assert.Contains(t, paths, "Demo.init.return")
}

func TestMalformedMetadata(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
	}{
		{
			name: "callable without return value",
			body: `<function name="broken" c:identifier="demo_broken"/>`,
			path: "Demo.broken",
		},
		{
			name: "duplicate top-level name",
			body: `<record name="Dup" c:type="DemoDup"/><record name="Dup" c:type="DemoDup2"/>`,
			path: "Demo.Dup",
		},
		{
			name: "duplicate enum value",
			body: `<enumeration name="E" c:type="DemoE"><member name="a" value="1"/><member name="b" value="1"/></enumeration>`,
			path: "Demo.E.b",
		},
		{
			name: "parameter without type",
			body: `<function name="f" c:identifier="demo_f">` + girtest.Void + `<parameters><parameter name="x"/></parameters></function>`,
			path: "Demo.f",
		},
		{
			name: "length index out of range",
			body: `<function name="g" c:identifier="demo_g">` + girtest.Void + `<parameters><parameter name="x"><array length="4" c:type="gint*"><type name="gint"/></array></parameter></parameters></function>`,
			path: "Demo.g",
		},
		{
			name: "constant without value",
			body: `<constant name="C"><type name="gint"/></constant>`,
			path: "Demo.C",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, diags := girtest.Build(t,
				girtest.Repository("Demo", "1.0", nil, tt.body),
				girtest.Repository("Other", "1.0", nil, `<record name="Fine" c:type="OtherFine"/>`),
			)
			require.True(t, diags.HasErrors())
			malformed := diags.ByCode(diag.MalformedMetadata)
			require.NotEmpty(t, malformed)
			assert.Equal(t, tt.path, malformed[0].Path)
			assert.True(t, m.Namespaces[0].Failed)
			assert.False(t, m.Namespaces[1].Failed, "other namespaces are unaffected")
		})
	}
}
