package mapping

import (
	"fmt"
	"strings"

	"github.com/Alia5/girgen/internal/codegen/common"
	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/model"
	"github.com/Alia5/girgen/internal/codegen/overrides"
	"github.com/Alia5/girgen/internal/codegen/resolve"
)

// Passing says how the generated binding holds a value.
type Passing string

const (
	// ByValue values are plain data copied across the boundary.
	ByValue Passing = "value"
	// Borrowed values are lent to the native side for the duration of the
	// call, or lent by it. They are never stored or released.
	Borrowed Passing = "borrowed"
	// Owned values carry a native resource that must be released exactly once.
	Owned Passing = "owned"
	// PassingRaw values are native pointers passed through unchanged.
	PassingRaw Passing = "raw"
)

// Hazard is a property of a mapped value that the generated code can only
// check at run time.
type Hazard string

const (
	// HazardNull marks a pointer annotated as never NULL.
	HazardNull Hazard = "null"
	// HazardRaw marks a raw pointer on the public surface.
	HazardRaw Hazard = "raw"
)

// Annotations are the metadata a value carries at one use site.
type Annotations struct {
	Direction       model.Direction
	Transfer        model.Transfer
	Nullable        bool
	Optional        bool
	CallerAllocates bool
	Instance        bool
	Return          bool
	// Path addresses the use site for force-type lookups and diagnostics.
	Path string
}

// ParamAnnotations collects the annotations of a parameter or return value.
func ParamAnnotations(m *model.Model, id model.EntityID, p *model.Param) Annotations {
	return Annotations{
		Direction:       p.Direction,
		Transfer:        p.Transfer,
		Nullable:        p.Nullable,
		Optional:        p.Optional,
		CallerAllocates: p.CallerAllocates,
		Instance:        p.Instance,
		Return:          p.Index == model.NoIndex && !p.Instance,
		Path:            m.ParamPath(id, p),
	}
}

func (a Annotations) output() bool {
	return a.Return || a.Direction == model.DirOut
}

// Descriptor is the target representation of a value.
//
// The conversion patterns are Rust expressions in which "$" stands for the
// value being converted and "@len" for the element count of a sequence.
type Descriptor struct {
	// Target is the type in the public Rust signature.
	Target string
	// FFI is the type of the native value.
	FFI      string
	Passing  Passing
	Nullable bool

	// Prepare builds a temporary from the target value that must outlive
	// the native call; ToNative then applies to the temporary.
	Prepare    string
	ToNative   string
	FromNative string
	// Release frees one native value.
	Release string
	// Len measures an input sequence.
	Len string

	Transfer        model.Transfer
	ElementTransfer model.Transfer
	Element         *Descriptor
	Hazards         []Hazard
	Forced          bool
}

func expand(pattern, v string) string {
	if pattern == "" {
		return v
	}
	return strings.ReplaceAll(pattern, "$", v)
}

// To converts the target value v for the native call.
func (d Descriptor) To(v string) string { return expand(d.ToNative, v) }

// From converts the native value v to the target type.
func (d Descriptor) From(v string) string { return expand(d.FromNative, v) }

// PrepareOf returns the temporary for v, or "" when none is needed.
func (d Descriptor) PrepareOf(v string) string {
	if d.Prepare == "" {
		return ""
	}
	return expand(d.Prepare, v)
}

// ReleaseOf returns the statement releasing the native value v.
func (d Descriptor) ReleaseOf(v string) string {
	if d.Release == "" {
		return ""
	}
	return expand(d.Release, v)
}

// LenOf measures the input sequence v.
func (d Descriptor) LenOf(v string) string { return expand(d.Len, v) }

// HasHazard reports whether the descriptor carries h.
func (d Descriptor) HasHazard(h Hazard) bool {
	for _, x := range d.Hazards {
		if x == h {
			return true
		}
	}
	return false
}

// Pointer reports whether the native value is a pointer.
func (d Descriptor) Pointer() bool { return isPointerFFI(d.FFI) }

func isPointerFFI(ffi string) bool {
	return strings.HasPrefix(ffi, "*") || strings.HasPrefix(ffi, "Option<") ||
		ffi == "gpointer" || ffi == "gconstpointer"
}

// UnmappableError reports an entity or use site no mapping rule covers.
type UnmappableError struct {
	Path   string
	Reason string
}

func (e *UnmappableError) Error() string {
	return fmt.Sprintf("%s: cannot map: %s", e.Path, e.Reason)
}

func unmappable(path, format string, args ...any) *UnmappableError {
	return &UnmappableError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Mapper maps the types of one namespace. A Mapper is not safe for
// concurrent use; namespaces are mapped by separate mappers.
type Mapper struct {
	rt  *resolve.Table
	ot  *overrides.Table
	m   *model.Model
	ns  model.NamespaceID
	raw *rawMapper

	handles map[model.EntityID]*Handle
	diags   diag.List
	// unmappedPaths lists the entities left out of the safe layer.
	unmappedPaths []string
}

// New returns a mapper for namespace ns.
func New(rt *resolve.Table, ot *overrides.Table, ns model.NamespaceID) *Mapper {
	return &Mapper{
		rt:      rt,
		ot:      ot,
		m:       rt.Model(),
		ns:      ns,
		raw:     newRawMapper(rt, ns, ot.Suppressed),
		handles: map[model.EntityID]*Handle{},
	}
}

// Diagnostics returns the warnings collected while mapping.
func (mp *Mapper) Diagnostics() diag.List { return mp.diags }

// Map returns the descriptor of a type at a use site.
func (mp *Mapper) Map(t *model.TypeRef, a Annotations) (Descriptor, error) {
	if t == nil {
		return Descriptor{}, unmappable(a.Path, "no type")
	}
	if t.Varargs {
		return Descriptor{}, unmappable(a.Path, "variadic arguments")
	}
	ffi, rawErr := mp.ffiOf(t, a)
	if d, ok := mp.forced(t, a, ffi, rawErr); ok {
		return d, nil
	}
	if rawErr != nil {
		return Descriptor{}, unmappable(a.Path, "%v", rawErr)
	}

	if a.Nullable && (a.Instance || !isPointerFFI(ffi)) {
		what := "a value type"
		if a.Instance {
			what = "an instance parameter"
		}
		mp.diags.Add(diag.Warnf(diag.NullContract, a.Path, "nullable annotation on %s ignored", what).
			WithActual(ffi))
		a.Nullable = false
	}
	d, err := mp.mapValue(t, a, ffi)
	if err != nil {
		return Descriptor{}, err
	}
	d.FFI = ffi
	if a.Transfer == "" {
		d.Transfer = model.TransferNone
	} else {
		d.Transfer = a.Transfer
	}
	if a.output() && !a.CallerAllocates && !d.Nullable && isPointerFFI(ffi) && d.Passing != PassingRaw && t.Array == nil {
		d.Hazards = append(d.Hazards, HazardNull)
	}
	return d, nil
}

// ffiOf returns the native type of the value at a use site. Output
// parameters are declared one pointer level deeper; the value is what the
// callee stores through that pointer.
func (mp *Mapper) ffiOf(t *model.TypeRef, a Annotations) (string, error) {
	ctype := cleanCType(t.CType)
	if !a.Return && (a.Direction == model.DirOut || a.Direction == model.DirInOut) && !a.CallerAllocates && ctype != "" {
		_, inner, err := unwrapPointer(ctype, false)
		if err != nil {
			return "", err
		}
		ctype = cleanCType(inner)
	}
	return mp.raw.mapType(t, ctype, a.Nullable)
}

func (mp *Mapper) forced(t *model.TypeRef, a Annotations, ffi string, rawErr error) (Descriptor, bool) {
	if a.Path == "" {
		return Descriptor{}, false
	}
	dir, ok := mp.ot.ForceType(a.Path)
	if !ok {
		return Descriptor{}, false
	}
	if rawErr != nil {
		ffi = "gpointer"
		if !t.IsPointer() {
			ffi = "gint"
		}
	}
	d := Descriptor{
		Target:     dir.Value,
		FFI:        ffi,
		Passing:    ByValue,
		ToNative:   "runtime::IntoNative::into_native($)",
		FromNative: "runtime::FromNative::from_native($)",
		Transfer:   a.Transfer,
		Forced:     true,
	}
	switch dir.Ownership {
	case overrides.OwnershipOwned:
		d.Passing = Owned
	case overrides.OwnershipBorrowed:
		d.Passing = Borrowed
	}
	if d.Transfer == "" {
		d.Transfer = model.TransferNone
	}
	return d, true
}

func (mp *Mapper) mapValue(t *model.TypeRef, a Annotations, ffi string) (Descriptor, error) {
	if t.Array != nil {
		return mp.array(t, a, ffi)
	}
	res := mp.rt.Final(t)
	switch res.Kind {
	case resolve.KindFundamental:
		return mp.fundamental(res.Name, a, ffi)
	case resolve.KindExternal, resolve.KindUnknown:
		return rawDescriptor(ffi), nil
	case resolve.KindEntity:
		return mp.entity(mp.m.Entity(res.Entity), a, ffi)
	}
	return Descriptor{}, unmappable(a.Path, "type %s is unresolved", t)
}

func rawDescriptor(ffi string) Descriptor {
	return Descriptor{Target: ffi, Passing: PassingRaw, Hazards: []Hazard{HazardRaw}}
}

// valueTypes are fundamentals whose target type differs from the FFI alias.
var valueTypes = map[string]string{
	"gint8": "i8", "guint8": "u8", "gint16": "i16", "guint16": "u16",
	"gint32": "i32", "guint32": "u32", "gint64": "i64", "guint64": "u64",
	"gint": "i32", "guint": "u32", "gshort": "i16", "gushort": "u16",
	"guchar": "u8", "goffset": "i64", "gsize": "usize", "gssize": "isize",
	"gintptr": "isize", "guintptr": "usize", "gfloat": "f32", "gdouble": "f64",
	"gchar": "gchar", "glong": "glong", "gulong": "gulong", "gunichar2": "gunichar2",
	"GType": "GType",
}

func (mp *Mapper) fundamental(name string, a Annotations, ffi string) (Descriptor, error) {
	if t, ok := valueTypes[name]; ok {
		return mp.inout(Descriptor{Target: t, Passing: ByValue}, a)
	}
	if l, ok := libcTypes[name]; ok {
		return mp.inout(Descriptor{Target: "libc::" + l, Passing: ByValue}, a)
	}
	if strings.HasPrefix(ffi, "libc::") {
		return mp.inout(Descriptor{Target: ffi, Passing: ByValue}, a)
	}
	switch name {
	case "gboolean":
		return mp.inout(Descriptor{
			Target: "bool", Passing: ByValue,
			ToNative: "$ as gboolean", FromNative: "$ != FALSE",
		}, a)
	case "gunichar":
		return mp.inout(Descriptor{
			Target: "char", Passing: ByValue,
			ToNative: "$ as gunichar", FromNative: "runtime::unichar_to_char($)",
		}, a)
	case "utf8", "filename":
		return mp.str(name == "filename", a)
	case "gpointer", "gconstpointer":
		return rawDescriptor(ffi), nil
	case "none":
		if isPointerFFI(ffi) {
			return rawDescriptor(ffi), nil
		}
	}
	return Descriptor{}, unmappable(a.Path, "no mapping for fundamental type %s", name)
}

// inout turns a plain value descriptor into a mutable reference for inout
// parameters.
func (mp *Mapper) inout(d Descriptor, a Annotations) (Descriptor, error) {
	if a.Direction == model.DirInOut && !a.Return {
		d.Target = "&mut " + d.Target
	}
	return d, nil
}

func (mp *Mapper) str(path bool, a Annotations) (Descriptor, error) {
	borrowed, owned := "str", "String"
	fn := "string"
	if path {
		borrowed, owned = "std::path::Path", "std::path::PathBuf"
		fn = "path"
	}
	opt := ""
	if a.Nullable {
		opt = "opt_"
	}
	wrap := func(t string) string {
		if a.Nullable {
			return "Option<" + t + ">"
		}
		return t
	}

	switch {
	case a.Direction == model.DirInOut && !a.Return:
		return Descriptor{}, unmappable(a.Path, "inout strings are not supported")
	case !a.output():
		d := Descriptor{Target: wrap("&" + borrowed), Nullable: a.Nullable}
		if a.Transfer == model.TransferNone || a.Transfer == "" {
			d.Passing = Borrowed
			d.Prepare = fmt.Sprintf("runtime::to_%scstring_%s($)", opt, fn)
			if a.Nullable {
				d.ToNative = "runtime::opt_cstr_ptr(&$) as _"
			} else {
				d.ToNative = "$.as_ptr() as _"
			}
			return d, nil
		}
		d.Passing = Owned
		d.ToNative = fmt.Sprintf("runtime::to_%sglib_%s($) as _", opt, fn)
		return d, nil
	}

	d := Descriptor{Target: wrap(owned), Nullable: a.Nullable}
	if a.Transfer == model.TransferNone || a.Transfer == "" {
		d.Passing = ByValue
		d.FromNative = fmt.Sprintf("runtime::copy_%s%s($ as *const _)", opt, fn)
		return d, nil
	}
	d.Passing = Owned
	d.FromNative = fmt.Sprintf("runtime::take_%s%s($ as *mut _)", opt, fn)
	d.Release = "runtime::g_free($ as *mut _)"
	return d, nil
}

// glibContainers have no safe mapping; they need a force-type rule.
var glibContainers = map[string]bool{
	"List": true, "SList": true, "HashTable": true, "Array": true,
	"PtrArray": true, "ByteArray": true,
}

func (mp *Mapper) entity(e *model.Entity, a Annotations, ffi string) (Descriptor, error) {
	if mp.m.Namespace(e.Namespace).Name == "GLib" && glibContainers[e.Name] {
		return Descriptor{}, unmappable(a.Path, "GLib.%s has no safe mapping", e.Name)
	}
	switch e.Kind {
	case model.KindEnum, model.KindBitfield:
		if isPointerFFI(ffi) {
			return Descriptor{}, unmappable(a.Path, "pointer to %s", mp.m.Path(e.ID))
		}
		return mp.inout(Descriptor{
			Target:     mp.safeName(e),
			Passing:    ByValue,
			ToNative:   "$.to_glib()",
			FromNative: mp.safeName(e) + "::from_glib($)",
		}, a)
	case model.KindCallback:
		return rawDescriptor(ffi), nil
	case model.KindClass, model.KindInterface, model.KindRecord, model.KindUnion:
		if !isPointerFFI(ffi) {
			return mp.plain(e, a, ffi)
		}
		h := mp.handle(e)
		if h == nil {
			return mp.plain(e, a, ffi)
		}
		return mp.handleDescriptor(e, h, a, ffi)
	}
	return Descriptor{}, unmappable(a.Path, "%s %s cannot be used as a type", e.Kind, mp.m.Path(e.ID))
}

// safeName is the path of an entity's wrapper type as seen from this
// namespace's crate.
func (mp *Mapper) safeName(e *model.Entity) string {
	name := common.SanitizeIdent(mp.ot.Name(e.ID))
	if e.Namespace == mp.ns {
		return "crate::" + name
	}
	mp.raw.crates[e.Namespace] = true
	return common.CrateAlias(mp.m.Namespace(e.Namespace).Name) + "::" + name
}

func (mp *Mapper) handleDescriptor(e *model.Entity, h *Handle, a Annotations, ffi string) (Descriptor, error) {
	t := mp.safeName(e)
	d := Descriptor{Nullable: a.Nullable, Release: h.Release}
	opt := func(s string) string {
		if a.Nullable {
			return "Option<" + s + ">"
		}
		return s
	}
	full := a.Transfer == model.TransferFull || a.Transfer == model.TransferContainer

	switch {
	case a.CallerAllocates:
		return Descriptor{}, unmappable(a.Path, "caller-allocated %s", mp.m.Path(e.ID))
	case a.Direction == model.DirInOut && !a.Return:
		return Descriptor{}, unmappable(a.Path, "inout %s", mp.m.Path(e.ID))
	case !a.output() && !full:
		d.Passing = Borrowed
		d.Release = ""
		d.Target = opt("&" + t)
		d.ToNative = "$.as_ptr() as _"
		if a.Nullable {
			d.ToNative = "$.map_or(std::ptr::null_mut(), |v| v.as_ptr()) as _"
		}
	case !a.output():
		d.Passing = Owned
		d.Target = opt(t)
		d.ToNative = "$.into_raw() as _"
		if a.Nullable {
			d.ToNative = "$.map_or(std::ptr::null_mut(), |v| v.into_raw()) as _"
		}
	case full:
		d.Passing = Owned
		d.Target = opt(t)
		d.FromNative = t + "::from_glib_full($ as _)"
		if a.Nullable {
			d.FromNative = t + "::from_glib_full_opt($ as _)"
		}
	default:
		if h.Ref == "" {
			// Nothing can take a reference: the pointer is only valid as
			// long as its owner keeps it alive.
			return rawDescriptor(ffi), nil
		}
		d.Passing = Owned
		d.Release = h.Release
		d.Target = opt(t)
		d.FromNative = t + "::from_glib_none($ as _)"
		if a.Nullable {
			d.FromNative = t + "::from_glib_none_opt($ as _)"
		}
	}
	return d, nil
}

// plain maps a record without ownership functions. Records with a known
// layout are plain values; anything else stays a raw pointer.
func (mp *Mapper) plain(e *model.Entity, a Annotations, ffi string) (Descriptor, error) {
	if !mp.raw.hasLayout(e) {
		if isPointerFFI(ffi) {
			return rawDescriptor(ffi), nil
		}
		return Descriptor{}, unmappable(a.Path, "%s has no known layout", mp.m.Path(e.ID))
	}
	t := mp.safeName(e)
	full := a.Transfer == model.TransferFull || a.Transfer == model.TransferContainer
	switch {
	case !isPointerFFI(ffi):
		return mp.inout(Descriptor{Target: t, Passing: ByValue}, a)
	case a.CallerAllocates:
		return Descriptor{Target: t, Passing: ByValue}, nil
	case a.Direction == model.DirInOut && !a.Return:
		return Descriptor{Target: "&mut " + t, Passing: Borrowed, ToNative: "$ as *mut _"}, nil
	case !a.output() && !full:
		if a.Nullable {
			return Descriptor{
				Target: "Option<&" + t + ">", Passing: Borrowed, Nullable: true,
				ToNative: "$.map_or(std::ptr::null(), |v| v as *const _) as *mut _",
			}, nil
		}
		return Descriptor{Target: "&" + t, Passing: Borrowed, ToNative: "$ as *const _ as *mut _"}, nil
	case a.output() && !full:
		if a.Nullable {
			return Descriptor{
				Target: "Option<" + t + ">", Passing: ByValue, Nullable: true,
				FromNative: "runtime::copy_opt_value($ as *const _)",
			}, nil
		}
		return Descriptor{Target: t, Passing: ByValue, FromNative: "runtime::copy_value($ as *const _)"}, nil
	}
	return Descriptor{}, unmappable(a.Path, "%s has no release function", mp.m.Path(e.ID))
}
