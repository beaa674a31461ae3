// Package model holds the typed, cross referenced representation of loaded
// GIR namespaces.
//
// Namespaces and entities live in arenas owned by Model and refer to each
// other by index (NamespaceID, EntityID), never by pointer, so forward and
// cross namespace references need no fully built graph. Type references stay
// unresolved names here; the resolve package turns them into entity IDs.
// A Model is immutable once Build returns.
package model

import "strings"

type NamespaceID int

type EntityID int

// NoEntity marks an absent entity reference (e.g. the owner of a top-level entity).
const NoEntity EntityID = -1

type Kind string

const (
	KindClass         Kind = "class"
	KindInterface     Kind = "interface"
	KindRecord        Kind = "record"
	KindUnion         Kind = "union"
	KindEnum          Kind = "enum"
	KindBitfield      Kind = "bitfield"
	KindCallback      Kind = "callback"
	KindFunction      Kind = "function"
	KindAlias         Kind = "alias"
	KindConstant      Kind = "constant"
	KindMethod        Kind = "method"
	KindConstructor   Kind = "constructor"
	KindVirtualMethod Kind = "virtual-method"
	KindSignal        Kind = "signal"
	KindProperty      Kind = "property"
	KindField         Kind = "field"
	KindMember        Kind = "member"

	// Addressable parts of a callable that are not entities themselves.
	KindParameter Kind = "parameter"
	KindReturn    Kind = "return"
)

// IsComposite reports kinds that own members and may take part in
// capability relations.
func (k Kind) IsComposite() bool {
	switch k {
	case KindClass, KindInterface, KindRecord, KindUnion:
		return true
	}
	return false
}

func (k Kind) IsCallable() bool {
	switch k {
	case KindFunction, KindMethod, KindConstructor, KindVirtualMethod, KindSignal, KindCallback:
		return true
	}
	return false
}

// Typed reports kinds that carry a single type reference a force-type rule
// can replace.
func (k Kind) Typed() bool {
	switch k {
	case KindAlias, KindConstant, KindProperty, KindField, KindParameter, KindReturn:
		return true
	}
	return false
}

// pathQualifier is the prefix that keeps members of different kinds from
// sharing a path segment (a virtual method often shares its method's name).
func (k Kind) pathQualifier() string {
	switch k {
	case KindSignal:
		return "signal:"
	case KindProperty:
		return "property:"
	case KindVirtualMethod:
		return "vfunc:"
	case KindField:
		return "field:"
	}
	return ""
}

type Direction string

const (
	DirIn    Direction = "in"
	DirOut   Direction = "out"
	DirInOut Direction = "inout"
)

type Transfer string

const (
	TransferNone      Transfer = "none"
	TransferContainer Transfer = "container"
	TransferFull      Transfer = "full"
)

type ArrayKind string

const (
	ArrayC         ArrayKind = "c"
	ArrayGLib      ArrayKind = "GLib.Array"
	ArrayPtr       ArrayKind = "GLib.PtrArray"
	ArrayByteArray ArrayKind = "GLib.ByteArray"
)

// NoIndex marks an absent parameter index.
const NoIndex = -1

type ArrayInfo struct {
	Kind           ArrayKind
	ZeroTerminated bool
	// FixedSize is the element count of a fixed size C array, 0 otherwise.
	FixedSize int
	// Length is the index of the parameter carrying the element count.
	Length int
}

// TypeRef is a type as written in the metadata. Name is empty for arrays,
// whose element type is Elements[0].
type TypeRef struct {
	Name      string
	CType     string
	Namespace NamespaceID
	Array     *ArrayInfo
	Elements  []*TypeRef
	Varargs   bool
}

// Qualified reports whether the name carries a namespace ("GObject.Object").
func (t *TypeRef) Qualified() bool {
	return strings.Contains(t.Name, ".")
}

// IsPointer reports whether the C type is a pointer.
func (t *TypeRef) IsPointer() bool {
	c := strings.TrimSpace(t.CType)
	if c == "" {
		switch t.Name {
		case "utf8", "filename", "gpointer", "gconstpointer":
			return true
		}
		return t.Array != nil && t.Array.FixedSize == 0
	}
	return strings.HasSuffix(c, "*") || c == "gpointer" || c == "gconstpointer"
}

func (t *TypeRef) String() string {
	switch {
	case t == nil:
		return "<nil>"
	case t.Varargs:
		return "..."
	case t.Array != nil && len(t.Elements) > 0:
		return "[" + t.Elements[0].String() + "]"
	case t.Name != "":
		return t.Name
	default:
		return t.CType
	}
}

// Param is a parameter or return value of a callable.
type Param struct {
	Name            string
	Type            *TypeRef
	Direction       Direction
	Transfer        Transfer
	Nullable        bool
	Optional        bool
	CallerAllocates bool
	Closure         int
	Destroy         int
	Scope           string
	Skip            bool
	Instance        bool
	// Index is the position in Callable.Params, NoIndex for the instance
	// parameter and the return value.
	Index int

	// Raw annotations, kept for contract checks.
	NullableAttr  string
	AllowNoneAttr string
}

type Callable struct {
	Instance *Param
	Params   []*Param
	Return   *Param
	Throws   bool
}

// HasVarargs reports whether the callable takes C varargs.
func (c *Callable) HasVarargs() bool {
	for _, p := range c.Params {
		if p.Type != nil && p.Type.Varargs {
			return true
		}
	}
	return false
}

type Include struct {
	Name    string
	Version string
}

func (i Include) String() string { return i.Name + "-" + i.Version }

type Namespace struct {
	ID                 NamespaceID
	Name               string
	Version            string
	Source             string
	SharedLibraries    []string
	IdentifierPrefixes []string
	SymbolPrefixes     []string
	Includes           []Include
	Packages           []string
	CIncludes          []string
	// Entities lists top-level entities in declaration order.
	Entities []EntityID
	// Failed is set when the namespace carried structural errors.
	Failed bool

	names map[string]EntityID
}

// Lookup finds a top-level entity by its unqualified name.
func (n *Namespace) Lookup(name string) (EntityID, bool) {
	id, ok := n.names[name]
	return id, ok
}

func (n *Namespace) String() string { return n.Name + "-" + n.Version }

type Entity struct {
	ID        EntityID
	Kind      Kind
	Name      string
	Namespace NamespaceID
	Owner     EntityID
	CType     string
	Symbol    string
	Doc       string
	Line      int

	Deprecated     bool
	Introspectable bool

	Members []EntityID

	// Composite relations, still unresolved.
	Parent        *TypeRef
	Implements    []*TypeRef
	Prerequisites []*TypeRef

	GetType        string
	Abstract       bool
	Final          bool
	Fundamental    bool
	Opaque         bool
	Disguised      bool
	GTypeStructFor string
	RefFunc        string
	UnrefFunc      string

	Callable *Callable

	// Type of an alias, constant, property or field.
	Type *TypeRef
	// Value of a constant or enum member.
	Value string

	// Field details.
	Bits        int
	AnonKind    Kind
	FieldCallee *Callable

	Readable      bool
	Writable      bool
	Construct     bool
	ConstructOnly bool
}

// IsTopLevel reports whether the entity is declared directly in a namespace.
func (e *Entity) IsTopLevel() bool { return e.Owner == NoEntity }
