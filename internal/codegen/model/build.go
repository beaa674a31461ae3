package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/gir"
)

// Build turns raw GIR documents into a Model. Structural problems are
// reported as MalformedMetadata; a namespace with any such error is marked
// Failed and its siblings are unaffected. Build performs no I/O.
func Build(docs []*gir.Document) (*Model, diag.List) {
	b := &builder{m: &Model{paths: map[string]EntityID{}}}
	for _, d := range docs {
		b.file = d.Path
		includes := d.Includes()
		var packages, cincludes []string
		for _, p := range d.Root.ChildrenNamed("package") {
			packages = append(packages, p.Attr("name"))
		}
		for _, c := range d.Root.ChildrenNamed("c:include") {
			cincludes = append(cincludes, c.Attr("name"))
		}
		for _, nsNode := range d.Root.ChildrenNamed("namespace") {
			b.namespace(nsNode, includes, packages, cincludes)
		}
	}

	for _, ns := range b.m.Namespaces {
		b.m.Walk(ns.ID, func(e *Entity) bool {
			p := b.m.Path(e.ID)
			if _, dup := b.m.paths[p]; !dup {
				b.m.paths[p] = e.ID
			}
			return true
		})
	}
	return b.m, b.diags
}

type builder struct {
	m     *Model
	diags diag.List
	file  string
	ns    *Namespace
}

func (b *builder) malformed(path string, node *gir.Node, format string, args ...any) {
	d := diag.Errorf(diag.MalformedMetadata, path, format, args...).WithFile(b.file, node.Line)
	b.diags.Add(d)
	if b.ns != nil {
		b.ns.Failed = true
	}
}

func (b *builder) namespace(node *gir.Node, includes []gir.Include, packages, cincludes []string) {
	b.ns = nil
	name, version := node.Attr("name"), node.Attr("version")
	if name == "" || version == "" {
		b.malformed(b.file, node, "namespace lacks name or version (name=%q version=%q)", name, version)
		return
	}

	ns := &Namespace{
		ID:                 NamespaceID(len(b.m.Namespaces)),
		Name:               name,
		Version:            version,
		Source:             b.file,
		SharedLibraries:    splitList(node.Attr("shared-library")),
		IdentifierPrefixes: splitList(node.Attr("c:identifier-prefixes")),
		SymbolPrefixes:     splitList(node.Attr("c:symbol-prefixes")),
		Packages:           packages,
		CIncludes:          cincludes,
		names:              map[string]EntityID{},
	}
	for _, inc := range includes {
		ns.Includes = append(ns.Includes, Include{Name: inc.Name, Version: inc.Version})
	}
	b.m.Namespaces = append(b.m.Namespaces, ns)
	b.ns = ns

	for _, child := range node.Children {
		kind, ok := topLevelKinds[child.Name]
		if !ok {
			continue
		}
		b.topLevel(kind, child)
	}
}

var topLevelKinds = map[string]Kind{
	"class":       KindClass,
	"interface":   KindInterface,
	"record":      KindRecord,
	"glib:boxed":  KindRecord,
	"union":       KindUnion,
	"enumeration": KindEnum,
	"bitfield":    KindBitfield,
	"callback":    KindCallback,
	"function":    KindFunction,
	"alias":       KindAlias,
	"constant":    KindConstant,
}

func (b *builder) newEntity(kind Kind, node *gir.Node, owner EntityID) *Entity {
	name := node.Attr("name")
	if node.Name == "glib:boxed" {
		name = node.Attr("glib:name")
	}
	ctype := node.Attr("c:type")
	if ctype == "" {
		ctype = node.Attr("glib:type-name")
	}
	e := &Entity{
		ID:             EntityID(len(b.m.Entities)),
		Kind:           kind,
		Name:           name,
		Namespace:      b.ns.ID,
		Owner:          owner,
		CType:          ctype,
		Symbol:         node.Attr("c:identifier"),
		Line:           node.Line,
		Deprecated:     node.BoolAttr("deprecated"),
		Introspectable: node.Attr("introspectable") != "0",
	}
	if doc := node.Child("doc"); doc != nil {
		e.Doc = doc.Text
	}
	return e
}

func (b *builder) topLevel(kind Kind, node *gir.Node) {
	e := b.newEntity(kind, node, NoEntity)
	if e.Name == "" {
		b.malformed(b.ns.Name, node, "%s at line %d lacks a name", node.Name, node.Line)
		return
	}
	path := b.ns.Name + "." + e.Name
	if prev, dup := b.ns.names[e.Name]; dup {
		b.malformed(path, node, "duplicate top-level name %q (first declared at line %d)", e.Name, b.m.Entities[prev].Line)
		return
	}

	b.m.Entities = append(b.m.Entities, e)
	b.ns.names[e.Name] = e.ID
	b.ns.Entities = append(b.ns.Entities, e.ID)
	b.fill(e, node, path)
}

// fill parses the kind specific content of e.
func (b *builder) fill(e *Entity, node *gir.Node, path string) {
	switch e.Kind {
	case KindClass:
		if p := node.Attr("parent"); p != "" {
			e.Parent = b.named(p)
		}
		for _, impl := range node.ChildrenNamed("implements") {
			e.Implements = append(e.Implements, b.named(impl.Attr("name")))
		}
		e.GetType = node.Attr("glib:get-type")
		e.Abstract = node.BoolAttr("abstract")
		e.Final = node.BoolAttr("final")
		e.Fundamental = node.BoolAttr("glib:fundamental")
		e.RefFunc = node.Attr("glib:ref-func")
		e.UnrefFunc = node.Attr("glib:unref-func")
		b.members(e, node, path, "constructor", "method", "function", "virtual-method", "property", "field", "glib:signal")
	case KindInterface:
		for _, pre := range node.ChildrenNamed("prerequisite") {
			e.Prerequisites = append(e.Prerequisites, b.named(pre.Attr("name")))
		}
		e.GetType = node.Attr("glib:get-type")
		b.members(e, node, path, "constructor", "method", "function", "virtual-method", "property", "glib:signal")
	case KindRecord, KindUnion:
		e.GetType = node.Attr("glib:get-type")
		e.Opaque = node.BoolAttr("opaque") || node.Name == "glib:boxed"
		e.Disguised = node.BoolAttr("disguised")
		e.GTypeStructFor = node.Attr("glib:is-gtype-struct-for")
		b.members(e, node, path, "field", "record", "union", "constructor", "method", "function")
	case KindEnum, KindBitfield:
		e.GetType = node.Attr("glib:get-type")
		b.enumMembers(e, node, path)
		b.members(e, node, path, "function")
	case KindCallback, KindFunction, KindMethod, KindConstructor, KindVirtualMethod, KindSignal:
		e.Callable = b.callable(node, path)
	case KindAlias:
		e.Type = b.typeOf(node)
		if e.Type == nil {
			b.malformed(path, node, "alias has no target type")
		}
	case KindConstant:
		if !node.HasAttr("value") {
			b.malformed(path, node, "constant has no value")
		}
		e.Value = node.Attr("value")
		e.Type = b.typeOf(node)
		if e.Type == nil {
			b.malformed(path, node, "constant has no type")
		}
	case KindProperty:
		e.Type = b.typeOf(node)
		if e.Type == nil {
			b.malformed(path, node, "property has no type")
		}
		e.Readable = node.Attr("readable") != "0"
		e.Writable = node.BoolAttr("writable")
		e.Construct = node.BoolAttr("construct")
		e.ConstructOnly = node.BoolAttr("construct-only")
	case KindField:
		e.Readable = node.Attr("readable") != "0"
		e.Writable = node.BoolAttr("writable")
		if bits := node.Attr("bits"); bits != "" {
			n, err := strconv.Atoi(bits)
			if err != nil || n <= 0 {
				b.malformed(path, node, "invalid bit width %q", bits)
			}
			e.Bits = n
		}
		switch {
		case node.Name == "record" || node.Name == "union":
			e.AnonKind = topLevelKinds[node.Name]
		case node.Child("callback") != nil:
			e.AnonKind = KindCallback
			e.FieldCallee = b.callable(node.Child("callback"), path)
		default:
			e.Type = b.typeOf(node)
			if e.Type == nil {
				b.malformed(path, node, "field has no type")
			}
		}
	}
}

var memberKinds = map[string]Kind{
	"constructor":    KindConstructor,
	"method":         KindMethod,
	"function":       KindFunction,
	"virtual-method": KindVirtualMethod,
	"property":       KindProperty,
	"field":          KindField,
	"glib:signal":    KindSignal,
	// Anonymous nested compounds are recorded as fields.
	"record": KindField,
	"union":  KindField,
}

func (b *builder) members(owner *Entity, node *gir.Node, ownerPath string, elements ...string) {
	anon := 0
	for _, child := range node.ChildrenNamed(elements...) {
		kind := memberKinds[child.Name]
		e := b.newEntity(kind, child, owner.ID)
		if e.Name == "" {
			if child.Name == "record" || child.Name == "union" {
				e.Name = fmt.Sprintf("_anon%d", anon)
				anon++
			} else {
				b.malformed(ownerPath, child, "%s at line %d lacks a name", child.Name, child.Line)
				continue
			}
		}
		path := ownerPath + "." + kind.pathQualifier() + e.Name
		if b.memberExists(owner, kind, e.Name) {
			b.diags.Add(diag.Warnf(diag.MalformedMetadata, path, "duplicate member %q ignored", e.Name).WithFile(b.file, child.Line))
			continue
		}
		b.m.Entities = append(b.m.Entities, e)
		owner.Members = append(owner.Members, e.ID)
		b.fill(e, child, path)
	}
}

func (b *builder) memberExists(owner *Entity, kind Kind, name string) bool {
	q := kind.pathQualifier()
	for _, id := range owner.Members {
		m := b.m.Entities[id]
		if m.Name == name && m.Kind.pathQualifier() == q {
			return true
		}
	}
	return false
}

func (b *builder) enumMembers(owner *Entity, node *gir.Node, ownerPath string) {
	values := map[int64]string{}
	for _, child := range node.ChildrenNamed("member") {
		e := b.newEntity(KindMember, child, owner.ID)
		if e.Name == "" {
			b.malformed(ownerPath, child, "enum member at line %d lacks a name", child.Line)
			continue
		}
		path := ownerPath + "." + e.Name
		if !child.HasAttr("value") {
			b.malformed(path, child, "enum member has no value")
			continue
		}
		v, err := strconv.ParseInt(child.Attr("value"), 10, 64)
		if err != nil {
			b.malformed(path, child, "enum member value %q is not an integer", child.Attr("value"))
			continue
		}
		if other, dup := values[v]; dup && owner.Kind == KindEnum {
			b.malformed(path, child, "enum value %d already used by member %q", v, other)
			continue
		}
		if b.memberExists(owner, KindMember, e.Name) {
			b.malformed(path, child, "duplicate enum member %q", e.Name)
			continue
		}
		values[v] = e.Name
		e.Value = strconv.FormatInt(v, 10)
		b.m.Entities = append(b.m.Entities, e)
		owner.Members = append(owner.Members, e.ID)
	}
}

func (b *builder) callable(node *gir.Node, path string) *Callable {
	c := &Callable{Throws: node.BoolAttr("throws")}

	rv := node.Child("return-value")
	if rv == nil {
		b.malformed(path, node, "callable has no return-value")
		c.Return = &Param{
			Name: "return", Direction: DirOut, Transfer: TransferNone, Index: NoIndex,
			Closure: NoIndex, Destroy: NoIndex, Type: &TypeRef{Name: "none", Namespace: b.ns.ID},
		}
		return c
	}
	c.Return = b.param(rv, path, NoIndex)
	c.Return.Name = "return"
	c.Return.Direction = DirOut

	if params := node.Child("parameters"); params != nil {
		if inst := params.Child("instance-parameter"); inst != nil {
			c.Instance = b.param(inst, path, NoIndex)
			c.Instance.Instance = true
		}
		for _, pn := range params.ChildrenNamed("parameter") {
			p := b.param(pn, path, len(c.Params))
			if p.Name == "" {
				b.malformed(path, pn, "parameter %d lacks a name", len(c.Params))
			}
			c.Params = append(c.Params, p)
		}
	}

	check := func(p *Param) {
		if p == nil || p.Type == nil {
			return
		}
		if a := p.Type.Array; a != nil && a.Length != NoIndex && (a.Length < 0 || a.Length >= len(c.Params)) {
			b.malformed(path, node, "array length index %d of %q out of range", a.Length, p.Name)
		}
		for _, idx := range []int{p.Closure, p.Destroy} {
			if idx != NoIndex && (idx < 0 || idx >= len(c.Params)) {
				b.malformed(path, node, "closure/destroy index %d of %q out of range", idx, p.Name)
			}
		}
	}
	for _, p := range c.Params {
		check(p)
	}
	check(c.Return)
	return c
}

func (b *builder) param(node *gir.Node, path string, index int) *Param {
	p := &Param{
		Name:            node.Attr("name"),
		Direction:       Direction(strings.ToLower(node.Attr("direction"))),
		Transfer:        Transfer(node.Attr("transfer-ownership")),
		CallerAllocates: node.BoolAttr("caller-allocates"),
		Optional:        node.BoolAttr("optional"),
		Closure:         intAttr(node, "closure", NoIndex),
		Destroy:         intAttr(node, "destroy", NoIndex),
		Scope:           node.Attr("scope"),
		Skip:            node.BoolAttr("skip"),
		Index:           index,
		NullableAttr:    node.Attr("nullable"),
		AllowNoneAttr:   node.Attr("allow-none"),
	}
	if p.Direction == "" {
		p.Direction = DirIn
	}
	if p.Transfer == "" {
		p.Transfer = TransferNone
	}
	allowNone := p.AllowNoneAttr == "1"
	p.Nullable = p.NullableAttr == "1" || (allowNone && p.Direction == DirIn) || (allowNone && node.Name == "return-value")
	if allowNone && (p.Direction == DirOut || p.Direction == DirInOut) && node.Name != "return-value" {
		p.Optional = true
	}

	if node.Child("varargs") != nil {
		p.Type = &TypeRef{Varargs: true, Namespace: b.ns.ID}
	} else {
		p.Type = b.typeOf(node)
	}
	if p.Type == nil {
		where := p.Name
		if node.Name == "return-value" {
			where = "return value"
		}
		b.malformed(path, node, "%s has no type", where)
	}
	return p
}

// typeOf parses the first <type> or <array> child of node.
func (b *builder) typeOf(node *gir.Node) *TypeRef {
	for _, c := range node.Children {
		if c.Name == "type" || c.Name == "array" {
			return b.parseType(c)
		}
	}
	return nil
}

func (b *builder) parseType(n *gir.Node) *TypeRef {
	t := &TypeRef{
		Name:      n.Attr("name"),
		CType:     n.Attr("c:type"),
		Namespace: b.ns.ID,
	}
	if n.Name == "array" {
		info := &ArrayInfo{
			Kind:      ArrayC,
			Length:    intAttr(n, "length", NoIndex),
			FixedSize: intAttr(n, "fixed-size", 0),
		}
		if t.Name != "" {
			info.Kind = ArrayKind(t.Name)
			t.Name = ""
		}
		switch {
		case n.HasAttr("zero-terminated"):
			info.ZeroTerminated = n.BoolAttr("zero-terminated")
		default:
			info.ZeroTerminated = info.Kind == ArrayC && info.Length == NoIndex && info.FixedSize == 0
		}
		t.Array = info
	}
	for _, c := range n.Children {
		if c.Name == "type" || c.Name == "array" {
			t.Elements = append(t.Elements, b.parseType(c))
		}
	}
	return t
}

func (b *builder) named(name string) *TypeRef {
	return &TypeRef{Name: name, Namespace: b.ns.ID}
}

func intAttr(n *gir.Node, name string, def int) int {
	v := n.Attr(name)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
