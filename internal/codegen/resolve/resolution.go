// Package resolve binds the type references of a model to entities.
//
// Each namespace is resolved by one goroutine after all of its dependencies
// have finished, so a namespace only ever reads results that are already
// final. The outcome is a Table that the mapper and the emitter consult; the
// model itself is never modified.
package resolve

import (
	"slices"

	"github.com/Alia5/girgen/internal/codegen/model"
)

type Kind string

const (
	// KindEntity is a reference bound to a loaded entity.
	KindEntity Kind = "entity"
	// KindFundamental is a GIR basic type (gint, utf8, gpointer, ...).
	KindFundamental Kind = "fundamental"
	// KindExternal is a type from a namespace that is not loaded. It is
	// represented as an opaque handle.
	KindExternal Kind = "external"
	// KindUnknown is a name found nowhere although every dependency is
	// loaded. It degrades to an opaque handle like an external type.
	KindUnknown Kind = "unknown"
	// KindUnresolved is a reference that failed resolution outright (strict
	// mode or a cyclic alias chain); nothing may be generated from it.
	KindUnresolved Kind = "unresolved"
)

// Resolution is the answer for one (namespace, name) pair.
type Resolution struct {
	Kind   Kind
	Entity model.EntityID
	// Namespace is the foreign namespace of an external reference, or the
	// namespace of the bound entity.
	Namespace string
	// Name is the fully qualified name ("GObject.Object") or the fundamental
	// type name.
	Name string
}

// Opaque reports whether the reference can only be represented as a handle.
func (r Resolution) Opaque() bool {
	return r.Kind == KindExternal || r.Kind == KindUnknown
}

func (r Resolution) String() string {
	if r.Name == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + " " + r.Name
}

var fundamentals = map[string]bool{
	"none": true, "gboolean": true, "gchar": true, "guchar": true,
	"gshort": true, "gushort": true, "gint": true, "guint": true,
	"glong": true, "gulong": true, "gint8": true, "guint8": true,
	"gint16": true, "guint16": true, "gint32": true, "guint32": true,
	"gint64": true, "guint64": true, "gfloat": true, "gdouble": true,
	"gsize": true, "gssize": true, "gintptr": true, "guintptr": true,
	"goffset": true, "gunichar": true, "gunichar2": true, "gpointer": true, "gconstpointer": true,
	"utf8": true, "filename": true, "GType": true, "va_list": true,
	"long double": true, "time_t": true, "off_t": true, "size_t": true, "ssize_t": true,
	"pid_t": true, "uid_t": true, "gid_t": true, "dev_t": true, "socklen_t": true,
	"long long": true, "unsigned long long": true,
}

// IsFundamental reports whether name is a GIR basic type.
func IsFundamental(name string) bool { return fundamentals[name] }

// Table holds the results of a resolution run.
type Table struct {
	m       *model.Model
	results []*nsResult
	caps    map[model.EntityID][]model.EntityID
	capSet  map[model.EntityID]map[model.EntityID]bool
}

type nsResult struct {
	memo      map[string]Resolution
	finals    map[model.EntityID]Resolution
	externals []string
	failed    bool
	refs      int
}

// Model returns the model the table was built from.
func (t *Table) Model() *model.Model { return t.m }

// Lookup returns the resolution of a type reference as written. Nameless
// references (arrays, varargs) are reported as fundamentals; their element
// types are resolved separately.
func (t *Table) Lookup(ref *model.TypeRef) Resolution {
	if ref == nil {
		return Resolution{Kind: KindUnresolved, Entity: model.NoEntity}
	}
	if ref.Name == "" {
		return Resolution{Kind: KindFundamental, Entity: model.NoEntity, Name: ref.String()}
	}
	if IsFundamental(ref.Name) {
		return Resolution{Kind: KindFundamental, Entity: model.NoEntity, Name: ref.Name}
	}
	res := t.result(ref.Namespace)
	if res == nil {
		return Resolution{Kind: KindUnresolved, Entity: model.NoEntity, Name: ref.Name}
	}
	r, ok := res.memo[ref.Name]
	if !ok {
		return Resolution{Kind: KindUnresolved, Entity: model.NoEntity, Name: ref.Name}
	}
	return r
}

// Final is Lookup with alias chains followed to their target.
func (t *Table) Final(ref *model.TypeRef) Resolution {
	r := t.Lookup(ref)
	if r.Kind != KindEntity {
		return r
	}
	e := t.m.Entity(r.Entity)
	if e.Kind != model.KindAlias {
		return r
	}
	res := t.result(e.Namespace)
	if res == nil {
		return Resolution{Kind: KindUnresolved, Entity: model.NoEntity, Name: r.Name}
	}
	if f, ok := res.finals[e.ID]; ok {
		return f
	}
	return Resolution{Kind: KindUnresolved, Entity: model.NoEntity, Name: r.Name}
}

// Entity returns the final entity a reference is bound to.
func (t *Table) Entity(ref *model.TypeRef) (*model.Entity, bool) {
	r := t.Final(ref)
	if r.Kind != KindEntity {
		return nil, false
	}
	return t.m.Entity(r.Entity), true
}

// Failed reports whether resolution of a namespace was aborted.
func (t *Table) Failed(ns model.NamespaceID) bool {
	res := t.result(ns)
	return res == nil || res.failed
}

// ExternalNamespaces lists the unloaded namespaces a namespace refers to,
// sorted by name.
func (t *Table) ExternalNamespaces(ns model.NamespaceID) []string {
	if res := t.result(ns); res != nil {
		return slices.Clone(res.externals)
	}
	return nil
}

// Capabilities returns the transitive parents, implemented interfaces and
// interface prerequisites of a composite entity: parents first, nearest
// first, then interfaces in discovery order.
func (t *Table) Capabilities(id model.EntityID) []model.EntityID {
	return slices.Clone(t.caps[id])
}

// Provides reports whether x provides capability y (y is an ancestor or an
// interface of x). Every entity provides itself.
func (t *Table) Provides(x, y model.EntityID) bool {
	if x == y {
		return true
	}
	return t.capSet[x][y]
}

func (t *Table) result(ns model.NamespaceID) *nsResult {
	if ns < 0 || int(ns) >= len(t.results) {
		return nil
	}
	return t.results[ns]
}
