package model

import "strings"

type Model struct {
	Namespaces []*Namespace
	Entities   []*Entity

	paths map[string]EntityID
}

func (m *Model) Namespace(id NamespaceID) *Namespace {
	return m.Namespaces[id]
}

func (m *Model) Entity(id EntityID) *Entity {
	if id < 0 || int(id) >= len(m.Entities) {
		return nil
	}
	return m.Entities[id]
}

// NamespacesNamed returns every loaded version of a namespace.
func (m *Model) NamespacesNamed(name string) []*Namespace {
	var out []*Namespace
	for _, ns := range m.Namespaces {
		if ns.Name == name {
			out = append(out, ns)
		}
	}
	return out
}

// Path returns the dotted entity path, e.g. "Gtk.Widget.show" or
// "Gtk.Widget.signal:clicked".
func (m *Model) Path(id EntityID) string {
	e := m.Entity(id)
	if e == nil {
		return ""
	}
	if e.Owner == NoEntity {
		return m.Namespaces[e.Namespace].Name + "." + e.Name
	}
	return m.Path(e.Owner) + "." + e.Kind.pathQualifier() + e.Name
}

// ParamPath addresses a parameter or the return value of a callable.
func (m *Model) ParamPath(id EntityID, p *Param) string {
	if p.Index == NoIndex && !p.Instance {
		return m.Path(id) + ".return"
	}
	return m.Path(id) + "." + p.Name
}

// Lookup finds an entity by path.
func (m *Model) Lookup(path string) (EntityID, bool) {
	id, ok := m.paths[path]
	return id, ok
}

// TopLevel returns the top-level entities of a namespace in declaration order.
func (m *Model) TopLevel(ns NamespaceID) []*Entity {
	ids := m.Namespaces[ns].Entities
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.Entities[id])
	}
	return out
}

// Members returns the members of an entity, optionally filtered by kind.
func (m *Model) Members(id EntityID, kinds ...Kind) []*Entity {
	e := m.Entity(id)
	if e == nil {
		return nil
	}
	var out []*Entity
	for _, mid := range e.Members {
		me := m.Entities[mid]
		if len(kinds) == 0 || containsKind(kinds, me.Kind) {
			out = append(out, me)
		}
	}
	return out
}

// Target is one addressable part of the model: an entity, a parameter or a
// return value.
type Target struct {
	Path   string
	Kind   Kind
	Entity EntityID
	Param  *Param
}

// Targets lists every addressable path of a namespace in declaration order.
func (m *Model) Targets(ns NamespaceID) []Target {
	var out []Target
	var visit func(id EntityID)
	visit = func(id EntityID) {
		e := m.Entities[id]
		out = append(out, Target{Path: m.Path(id), Kind: e.Kind, Entity: id})
		if c := e.Callable; c != nil {
			if c.Instance != nil {
				out = append(out, Target{Path: m.ParamPath(id, c.Instance), Kind: KindParameter, Entity: id, Param: c.Instance})
			}
			for _, p := range c.Params {
				out = append(out, Target{Path: m.ParamPath(id, p), Kind: KindParameter, Entity: id, Param: p})
			}
			out = append(out, Target{Path: m.ParamPath(id, c.Return), Kind: KindReturn, Entity: id, Param: c.Return})
		}
		for _, mid := range e.Members {
			visit(mid)
		}
	}
	for _, id := range m.Namespaces[ns].Entities {
		visit(id)
	}
	return out
}

// Walk calls fn for every entity of a namespace, owners before members,
// in declaration order. Returning false skips the entity's members.
func (m *Model) Walk(ns NamespaceID, fn func(e *Entity) bool) {
	var visit func(id EntityID)
	visit = func(id EntityID) {
		e := m.Entities[id]
		if !fn(e) {
			return
		}
		for _, mid := range e.Members {
			visit(mid)
		}
	}
	for _, id := range m.Namespaces[ns].Entities {
		visit(id)
	}
}

// TypeRefs returns every type reference an entity carries directly, in a
// stable order. Members are not included.
func (e *Entity) TypeRefs() []*TypeRef {
	var refs []*TypeRef
	add := func(t *TypeRef) {
		if t == nil {
			return
		}
		refs = append(refs, t)
		for _, el := range t.Elements {
			refs = append(refs, flatten(el)...)
		}
	}
	add(e.Parent)
	for _, t := range e.Implements {
		add(t)
	}
	for _, t := range e.Prerequisites {
		add(t)
	}
	add(e.Type)
	for _, c := range []*Callable{e.Callable, e.FieldCallee} {
		if c == nil {
			continue
		}
		if c.Instance != nil {
			add(c.Instance.Type)
		}
		for _, p := range c.Params {
			add(p.Type)
		}
		if c.Return != nil {
			add(c.Return.Type)
		}
	}
	return refs
}

func flatten(t *TypeRef) []*TypeRef {
	out := []*TypeRef{t}
	for _, el := range t.Elements {
		out = append(out, flatten(el)...)
	}
	return out
}

// SplitName splits "Ns.Name" into its parts; unqualified names return "" as
// the namespace.
func SplitName(name string) (ns, short string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}
