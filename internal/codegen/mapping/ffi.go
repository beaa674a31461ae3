package mapping

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Alia5/girgen/internal/codegen/common"
	"github.com/Alia5/girgen/internal/codegen/model"
	"github.com/Alia5/girgen/internal/codegen/resolve"
)

// ffiBasic maps C types that are usable in FFI declarations as they are.
// The GLib names are declared as type aliases at the top of every ffi.rs.
var ffiBasic = map[string]string{
	"gpointer": "gpointer", "gconstpointer": "gconstpointer", "gboolean": "gboolean",
	"gchar": "gchar", "gshort": "gshort", "gushort": "gushort", "gint": "gint",
	"guint": "guint", "glong": "glong", "gulong": "gulong", "gsize": "gsize",
	"gssize": "gssize", "gintptr": "gintptr", "guintptr": "guintptr",
	"gfloat": "gfloat", "gdouble": "gdouble", "gunichar": "gunichar", "GType": "GType",

	"gint8": "i8", "guint8": "u8", "gint16": "i16", "guint16": "u16",
	"gint32": "i32", "guint32": "u32", "gint64": "i64", "guint64": "u64",

	"const gchar*": "*const gchar",
	"const char*":  "*const gchar",

	"gchar**":             "*mut *mut gchar",
	"char**":              "*mut *mut gchar",
	"const gchar**":       "*mut *const gchar",
	"const char**":        "*mut *const gchar",
	"const gchar* const*": "*const *const gchar",
	"const char* const*":  "*const *const gchar",
}

// Basic GIR type names that have no entry above but are declared in the
// ffi.rs prelude all the same.
var ffiNamesakes = map[string]bool{
	"guchar": true, "goffset": true, "gunichar2": true,
}

var libcTypes = map[string]string{
	"size_t": "size_t", "ssize_t": "ssize_t", "time_t": "time_t", "off_t": "off_t",
	"pid_t": "pid_t", "uid_t": "uid_t", "gid_t": "gid_t", "dev_t": "dev_t",
	"socklen_t":          "socklen_t",
	"long long":          "c_longlong",
	"unsigned long long": "c_ulonglong",
}

var unsignedTypes = map[string]bool{
	"guchar": true, "gushort": true, "guint": true, "gulong": true,
	"guint8": true, "guint16": true, "guint32": true, "guint64": true,
	"gsize": true, "guintptr": true, "gunichar": true, "gunichar2": true,
	"unsigned long long": true,
}

var stringCTypes = map[string]bool{
	"gchar*": true, "const gchar*": true, "char*": true, "const char*": true,
}

var (
	ptrConstPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(.*[^ ]) +const *\*$`),
		regexp.MustCompile(`^const +(.*[^* ]) *\*$`),
	}
	ptrMutPattern   = regexp.MustCompile(`^(.*[^ ]) *\*$`)
	volatilePattern = regexp.MustCompile(`^volatile +(.*)$`)
)

var errVarargs = errors.New("variadic arguments have no FFI type")

// unwrapPointer strips one level of pointer syntax from a C type and returns
// the matching Rust pointer prefix.
func unwrapPointer(ctype string, allowConst bool) (prefix, inner string, err error) {
	if allowConst {
		for _, pat := range ptrConstPatterns {
			if m := pat.FindStringSubmatch(ctype); m != nil {
				return "*const ", m[1], nil
			}
		}
	}
	if m := ptrMutPattern.FindStringSubmatch(ctype); m != nil {
		return "*mut ", m[1], nil
	}
	if allowConst {
		return "", "", fmt.Errorf("expected pointer syntax in C type %q", ctype)
	}
	return "", "", fmt.Errorf("expected non-const pointer syntax in C type %q", ctype)
}

func cleanCType(ctype string) string {
	ctype = strings.TrimSpace(ctype)
	if m := volatilePattern.FindStringSubmatch(ctype); m != nil {
		return m[1]
	}
	return ctype
}

// rawMapper produces Rust FFI syntax for the types of one namespace. It
// records the crates the declarations refer to.
type rawMapper struct {
	rt *resolve.Table
	m  *model.Model
	ns model.NamespaceID

	// hidden reports entities that are not emitted. Declarations naming them
	// cannot be mapped.
	hidden func(model.EntityID) bool

	crates map[model.NamespaceID]bool
	libc   bool
	layout map[model.EntityID]bool
}

func newRawMapper(rt *resolve.Table, ns model.NamespaceID, hidden func(model.EntityID) bool) *rawMapper {
	if hidden == nil {
		hidden = func(model.EntityID) bool { return false }
	}
	return &rawMapper{
		rt:     rt,
		m:      rt.Model(),
		ns:     ns,
		hidden: hidden,
		crates: map[model.NamespaceID]bool{},
		layout: map[model.EntityID]bool{},
	}
}

func (r *rawMapper) typ(t *model.TypeRef, nullable bool) (string, error) {
	return r.mapType(t, cleanCType(t.CType), nullable)
}

func (r *rawMapper) mapType(t *model.TypeRef, ctype string, nullable bool) (string, error) {
	if t == nil {
		return "", errors.New("missing type")
	}
	if t.Varargs {
		return "", errVarargs
	}
	if rs, ok := ffiBasic[ctype]; ok && !isFixedArray(t, ctype) {
		return rs, nil
	}
	if t.Array != nil {
		return r.array(t, ctype)
	}
	res := r.rt.Lookup(t)
	switch res.Kind {
	case resolve.KindFundamental:
		return r.fundamental(t.Name, ctype)
	case resolve.KindEntity:
		return r.introspected(r.m.Entity(res.Entity), ctype, nullable)
	case resolve.KindExternal, resolve.KindUnknown:
		return r.opaque(t, ctype)
	}
	return "", fmt.Errorf("type %s is unresolved", t)
}

func isFixedArray(t *model.TypeRef, ctype string) bool {
	return t.Array != nil && t.Array.Kind == model.ArrayC && t.Array.FixedSize > 0 && !strings.HasSuffix(ctype, "*")
}

func (r *rawMapper) fundamental(name, ctype string) (string, error) {
	if l, ok := libcTypes[ctype]; ok {
		r.libc = true
		return "libc::" + l, nil
	}
	if l, ok := libcTypes[name]; ok {
		r.libc = true
		return "libc::" + l, nil
	}
	if rs, ok := ffiBasic[name]; ok {
		return rs, nil
	}
	if ffiNamesakes[name] {
		return name, nil
	}
	switch name {
	case "utf8", "filename":
		return "*mut gchar", nil
	case "none":
		return "c_void", nil
	}
	return "", fmt.Errorf("unsupported fundamental type %q", name)
}

// defaultCType is the C type of a reference written without c:type.
func defaultCType(e *model.Entity) string {
	if e.Kind.IsComposite() {
		return e.CType + "*"
	}
	return e.CType
}

func (r *rawMapper) introspected(e *model.Entity, ctype string, nullable bool) (string, error) {
	if r.hidden(e.ID) {
		return "", fmt.Errorf("%s is suppressed", r.m.Path(e.ID))
	}
	if ctype == "" {
		ctype = defaultCType(e)
	}
	prefix := ""
	// One level for a pointer value, possibly another for an unannotated
	// output parameter.
	for i := 0; i < 2 && strings.HasSuffix(ctype, "*"); i++ {
		p, inner, err := unwrapPointer(ctype, true)
		if err != nil {
			return "", err
		}
		prefix += p
		ctype = strings.TrimSpace(inner)
	}
	if !common.IsIdent(ctype) {
		return "", fmt.Errorf("C type %q (%s) does not map to a valid Rust identifier", ctype, r.m.Path(e.ID))
	}
	syntax := prefix + r.qualify(e.Namespace, ctype)
	if nullable && e.Kind == model.KindCallback {
		// extern fns cannot be null; Option gets the null pointer optimization.
		return "Option<" + syntax + ">", nil
	}
	return syntax, nil
}

func (r *rawMapper) qualify(ns model.NamespaceID, name string) string {
	if ns == r.ns {
		return name
	}
	r.crates[ns] = true
	return common.CrateAlias(r.m.Namespace(ns).Name) + "::ffi::" + name
}

// opaque maps a type from a namespace that is not loaded. Only pointers to
// such types can be declared.
func (r *rawMapper) opaque(t *model.TypeRef, ctype string) (string, error) {
	if ctype == "" {
		return "", fmt.Errorf("type %s from an unloaded namespace has no C type", t.Name)
	}
	prefix := ""
	for i := 0; i < 2 && strings.HasSuffix(ctype, "*"); i++ {
		p, inner, err := unwrapPointer(ctype, true)
		if err != nil {
			return "", err
		}
		prefix += p
		ctype = inner
	}
	if prefix == "" {
		return "", fmt.Errorf("type %s from an unloaded namespace is used by value", t.Name)
	}
	return prefix + "c_void", nil
}

func (r *rawMapper) array(t *model.TypeRef, ctype string) (string, error) {
	a := t.Array
	var elem *model.TypeRef
	if len(t.Elements) > 0 {
		elem = t.Elements[0]
	}
	if a.Kind == model.ArrayC {
		if elem == nil {
			return "", errors.New("array has no element type")
		}
		if a.FixedSize > 0 && !strings.HasSuffix(ctype, "*") {
			et, err := r.typ(elem, false)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("[%s; %d]", et, a.FixedSize), nil
		}
		if ctype == "" {
			et, err := r.typ(elem, false)
			if err != nil {
				return "", err
			}
			return "*mut " + et, nil
		}
		prefix, inner, err := unwrapPointer(ctype, true)
		if err != nil {
			return "", err
		}
		et, err := r.mapType(elem, cleanCType(inner), false)
		if err != nil {
			return "", err
		}
		return prefix + et, nil
	}

	short := strings.TrimPrefix(string(a.Kind), "GLib.")
	if ctype == "" {
		ctype = "G" + short + "*"
	}
	prefix, inner, err := unwrapPointer(ctype, true)
	if err != nil {
		return "", err
	}
	if inner != "G"+short {
		return "", fmt.Errorf("the array type %s and C type %q do not match", a.Kind, ctype)
	}
	return prefix + r.glib(short, inner), nil
}

// glib names a GLib type by its C name, or c_void when GLib is not loaded.
func (r *rawMapper) glib(name, ctype string) string {
	for _, ns := range r.m.NamespacesNamed("GLib") {
		if _, ok := ns.Lookup(name); ok {
			return r.qualify(ns.ID, ctype)
		}
	}
	return "c_void"
}

// errorType is the raw GError type for throwing functions.
func (r *rawMapper) errorType() string {
	if t := r.glib("Error", "GError"); t != "c_void" {
		return t
	}
	return "crate::runtime::GError"
}

// param maps a parameter as declared in an extern fn. Output parameters
// that the callee fills in lose one pointer level before their value type
// is mapped.
func (r *rawMapper) param(p *model.Param) (string, error) {
	if p.Type == nil {
		return "", fmt.Errorf("parameter %s has no type", p.Name)
	}
	if p.Type.Varargs {
		return "", errVarargs
	}
	ctype := cleanCType(p.Type.CType)
	prefix := ""
	if (p.Direction == model.DirOut || p.Direction == model.DirInOut) && !p.CallerAllocates {
		if ctype == "" {
			return "", fmt.Errorf("parameter %s: C type attribute is missing", p.Name)
		}
		pp, inner, err := unwrapPointer(ctype, false)
		if err != nil {
			return "", fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		prefix, ctype = pp, cleanCType(inner)
	}
	t, err := r.mapType(p.Type, ctype, p.Nullable)
	if err != nil {
		return "", fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	return prefix + t, nil
}

// ret maps a return value; "" means the function returns nothing.
func (r *rawMapper) ret(p *model.Param) (string, error) {
	if isVoid(p.Type) {
		return "", nil
	}
	t, err := r.typ(p.Type, p.Nullable)
	if err != nil {
		return "", fmt.Errorf("return value: %w", err)
	}
	return t, nil
}

func isVoid(t *model.TypeRef) bool {
	return t == nil || (t.Name == "none" && t.Array == nil && !strings.HasSuffix(t.CType, "*"))
}

// RawParam is one parameter of an extern declaration.
type RawParam struct {
	Name string
	Type string
}

// signature maps every parameter of a callable in C order: instance first,
// then the declared parameters, then the GError location.
func (r *rawMapper) signature(c *model.Callable) ([]RawParam, string, error) {
	var params []RawParam
	if c.Instance != nil {
		t, err := r.param(c.Instance)
		if err != nil {
			return nil, "", err
		}
		params = append(params, RawParam{Name: common.SanitizeIdent(c.Instance.Name), Type: t})
	}
	for _, p := range c.Params {
		if p.Type != nil && p.Type.Varargs {
			continue
		}
		t, err := r.param(p)
		if err != nil {
			return nil, "", err
		}
		params = append(params, RawParam{Name: common.SanitizeIdent(p.Name), Type: t})
	}
	if c.Throws {
		params = append(params, RawParam{Name: "error", Type: "*mut *mut " + r.errorType()})
	}
	ret, err := r.ret(c.Return)
	if err != nil {
		return nil, "", err
	}
	return params, ret, nil
}

// callback returns the extern fn type of a callback.
func (r *rawMapper) callback(c *model.Callable, nullable bool) (string, error) {
	params, ret, err := r.signature(c)
	if err != nil {
		return "", err
	}
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	syntax := `extern "C" fn(` + strings.Join(types, ", ") + ")"
	if ret != "" {
		syntax += " -> " + ret
	}
	if nullable {
		return "Option<" + syntax + ">", nil
	}
	return syntax, nil
}

// field maps the type of a structure member. Function pointers in
// structures are always nullable.
func (r *rawMapper) field(f *model.Entity) (string, error) {
	if f.Bits > 0 {
		return "", fmt.Errorf("cannot represent bit field %s", f.Name)
	}
	switch f.AnonKind {
	case model.KindCallback:
		return r.callback(f.FieldCallee, true)
	case "":
	default:
		return "", fmt.Errorf("cannot represent anonymous %s of field %s", f.AnonKind, f.Name)
	}
	return r.typ(f.Type, true)
}

// hasLayout reports whether the memory layout of a record, union or class
// instance can be declared. Records that embed a type without a layout by
// value have none either, and neither do records with a suppressed field:
// leaving the field out would change the layout.
func (r *rawMapper) hasLayout(e *model.Entity) bool {
	if ok, seen := r.layout[e.ID]; seen {
		return ok
	}
	r.layout[e.ID] = false
	ok := !e.Opaque && !e.Disguised
	fields := r.m.Members(e.ID, model.KindField)
	if len(fields) == 0 {
		ok = false
	}
	for _, f := range fields {
		if !ok {
			break
		}
		if r.hidden(f.ID) {
			ok = false
			break
		}
		if _, err := r.field(f); err != nil {
			ok = false
			break
		}
		if f.Type != nil && !f.Type.IsPointer() {
			if inner, found := r.rt.Entity(f.Type); found && inner.Kind.IsComposite() && !r.hasLayout(inner) {
				ok = false
			}
		}
	}
	r.layout[e.ID] = ok
	return ok
}
