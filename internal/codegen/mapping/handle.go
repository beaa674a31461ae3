package mapping

import (
	"github.com/Alia5/girgen/internal/codegen/common"
	"github.com/Alia5/girgen/internal/codegen/model"
)

// HandleKind is the ownership scheme of a wrapper type.
type HandleKind string

const (
	// HandleObject wrappers are GObject references.
	HandleObject HandleKind = "object"
	// HandleBoxed wrappers are copied and freed through their GType.
	HandleBoxed HandleKind = "boxed"
	// HandleRefCounted types bring their own ref and unref functions.
	HandleRefCounted HandleKind = "refcounted"
	// HandleCopyFree types bring copy and free functions.
	HandleCopyFree HandleKind = "copy-free"
	// HandleFree types can be freed but not copied.
	HandleFree HandleKind = "free"
)

// Handle describes how the wrapper of a class, interface, record or union
// owns its native instance. Ref and Release are patterns over "$".
type Handle struct {
	Kind HandleKind
	// Raw is the native instance type.
	Raw string
	// Ref takes a new reference or copy; empty when the type has none.
	Ref     string
	Release string
	// GetType calls the GType function, when the type is registered.
	GetType string
}

// handle returns the ownership scheme of e, or nil for plain records.
func (mp *Mapper) handle(e *model.Entity) *Handle {
	if h, ok := mp.handles[e.ID]; ok {
		return h
	}
	h := mp.computeHandle(e)
	mp.handles[e.ID] = h
	return h
}

func (mp *Mapper) computeHandle(e *model.Entity) *Handle {
	h := &Handle{Raw: mp.raw.qualify(e.Namespace, e.CType)}
	if e.GetType != "" {
		h.GetType = mp.raw.qualify(e.Namespace, e.GetType) + "()"
	}
	switch e.Kind {
	case model.KindClass:
		for cur := e; cur != nil; {
			if cur.RefFunc != "" && cur.UnrefFunc != "" {
				h.Kind = HandleRefCounted
				h.Ref = "{ " + mp.raw.qualify(cur.Namespace, cur.RefFunc) + "($ as *mut _); $ }"
				h.Release = mp.raw.qualify(cur.Namespace, cur.UnrefFunc) + "($ as *mut _)"
				return h
			}
			if cur.Parent == nil {
				break
			}
			parent, ok := mp.rt.Entity(cur.Parent)
			if !ok {
				break
			}
			cur = parent
		}
		return objectHandle(h)
	case model.KindInterface:
		return objectHandle(h)
	case model.KindRecord, model.KindUnion:
		if h.GetType != "" {
			h.Kind = HandleBoxed
			h.Ref = "runtime::g_boxed_copy(" + h.GetType + ", $ as *const _) as *mut _"
			h.Release = "runtime::g_boxed_free(" + h.GetType + ", $ as *mut _)"
			return h
		}
		methods := map[string]string{}
		for _, m := range mp.m.Members(e.ID, model.KindMethod) {
			if m.Symbol == "" || m.Callable == nil || m.Callable.Instance == nil || mp.ot.Suppressed(m.ID) {
				continue
			}
			methods[m.Name] = mp.raw.qualify(e.Namespace, m.Symbol)
		}
		switch {
		case methods["ref"] != "" && methods["unref"] != "":
			h.Kind = HandleRefCounted
			h.Ref = "{ " + methods["ref"] + "($ as *mut _); $ }"
			h.Release = methods["unref"] + "($ as *mut _)"
		case methods["copy"] != "" && methods["free"] != "":
			h.Kind = HandleCopyFree
			h.Ref = methods["copy"] + "($ as *mut _) as *mut _"
			h.Release = methods["free"] + "($ as *mut _)"
		case methods["free"] != "":
			h.Kind = HandleFree
			h.Release = methods["free"] + "($ as *mut _)"
		default:
			return nil
		}
		return h
	}
	return nil
}

func objectHandle(h *Handle) *Handle {
	h.Kind = HandleObject
	h.Ref = "runtime::g_object_ref($ as *mut _) as *mut _"
	h.Release = "runtime::g_object_unref($ as *mut _)"
	return h
}

// Handle returns the ownership scheme of a composite entity of this
// namespace, or nil when its wrapper is a plain value.
func (mp *Mapper) Handle(id model.EntityID) *Handle {
	return mp.handle(mp.m.Entity(id))
}

// TypeName is the wrapper name of an entity as seen from this crate.
func (mp *Mapper) TypeName(id model.EntityID) string {
	return mp.safeName(mp.m.Entity(id))
}

// localName is the bare wrapper name of an entity of this namespace.
func (mp *Mapper) localName(id model.EntityID) string {
	return common.SanitizeIdent(mp.ot.Name(id))
}
