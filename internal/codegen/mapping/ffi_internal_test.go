package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/girgen/internal/codegen/model"
)

func TestUnwrapPointer(t *testing.T) {
	for _, tt := range []struct {
		ctype      string
		allowConst bool
		prefix     string
		inner      string
	}{
		{"const gchar*", true, "*const ", "gchar"},
		{"const gchar*", false, "*mut ", "const gchar"},
		{"GObject* const*", true, "*const ", "GObject*"},
		{"gchar**", false, "*mut ", "gchar*"},
		{"GtkWidget *", true, "*mut ", "GtkWidget"},
	} {
		t.Run(tt.ctype, func(t *testing.T) {
			prefix, inner, err := unwrapPointer(tt.ctype, tt.allowConst)
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, prefix)
			assert.Equal(t, tt.inner, inner)
		})
	}

	_, _, err := unwrapPointer("gint", false)
	assert.Error(t, err)
}

func TestCleanCType(t *testing.T) {
	assert.Equal(t, "gint", cleanCType(" volatile gint "))
	assert.Equal(t, "const gchar*", cleanCType("const gchar*"))
}

func TestConstantValue(t *testing.T) {
	for _, tt := range []struct {
		name, ctype, value, want string
	}{
		{"gboolean", "gboolean", "true", "TRUE"},
		{"gboolean", "gboolean", "false", "FALSE"},
		{"utf8", "gchar*", `say "hi"`, `b"say \"hi\"\0"`},
		{"utf8", "", "a\tb", `b"a\tb\0"`},
		{"gint8", "gint8", "200", "-56"},
		{"gint32", "gint32", "2147483648", "-2147483648"},
		{"gint32", "gint32", "-5", "-5"},
		{"guint32", "guint32", "-1", "-1i64 as u32"},
		{"guint", "guint", "-1", "-1i64 as guint"},
		{"gint", "gint", "12", "12"},
		{"gdouble", "gdouble", "1.5", "1.5"},
	} {
		t.Run(tt.name+"="+tt.value, func(t *testing.T) {
			got, err := ConstantValue(&model.TypeRef{Name: tt.name, CType: tt.ctype}, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ConstantValue(&model.TypeRef{Name: "gboolean"}, "yes")
	assert.Error(t, err)
	_, err = ConstantValue(&model.TypeRef{Name: "gint64"}, "0x10")
	assert.Error(t, err)
}

func TestLinkNames(t *testing.T) {
	assert.Equal(t, []string{"gtk-3", "gdk-3"}, linkNames([]string{"libgtk-3.so.0", "libgdk-3.so.0", "libgtk-3-0.dll"}))
	assert.Equal(t, []string{"gobject-2.0"}, linkNames([]string{"/usr/lib/libgobject-2.0.so.0"}))
}
