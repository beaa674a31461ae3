package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Alia5/girgen/internal/codegen/common"
	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/model"
	"github.com/Alia5/girgen/internal/codegen/overrides"
	"github.com/Alia5/girgen/internal/codegen/resolve"
)

// Crate is a generated crate another crate depends on.
type Crate struct {
	Name      string
	Alias     string
	Namespace string
	Version   string
}

type RawAlias struct {
	Name string
	Type string
}

type RawConstant struct {
	Name  string
	Type  string
	Value string
}

type RawEnum struct {
	Name    string
	Repr    string
	Members []RawConstant
}

type RawField struct {
	Name string
	Type string
}

// RawRecord is a C structure or union. Records without a known layout are
// declared as opaque types.
type RawRecord struct {
	Name   string
	Union  bool
	Opaque bool
	Fields []RawField
}

type RawFunction struct {
	Symbol     string
	Params     []RawParam
	Return     string
	Deprecated bool
}

// Raw is the content of a crate's ffi module in declaration order.
type Raw struct {
	Aliases   []RawAlias
	Enums     []RawEnum
	Records   []RawRecord
	Callbacks []RawAlias
	Constants []RawConstant
	Functions []RawFunction
}

// Type is the safe wrapper of a class, interface, record or union.
type Type struct {
	Entity model.EntityID
	Kind   model.Kind
	Name   string
	// File is the module name the wrapper is emitted to.
	File string
	Raw  string
	// Handle is nil for plain records, which are aliases of their C struct.
	Handle *Handle
	// Upcasts are the wrapper types this type can be borrowed as.
	Upcasts []string
	Methods []*Signature
	// Manual holds replace files spliced in for individual methods.
	ManualMethods []string
	Manual        string
	Deprecated    bool
	Doc           string
}

// Plain reports whether the wrapper is the C struct itself.
func (t *Type) Plain() bool { return t.Handle == nil }

type EnumMember struct {
	Name string
	Raw  string
	Doc  string
}

type Enum struct {
	Entity   model.EntityID
	Name     string
	File     string
	Raw      string
	Bitfield bool
	Members  []EnumMember
	// Functions are the static functions declared on the enumeration.
	Functions  []*Signature
	Manual     string
	Deprecated bool
	Doc        string
}

type Callback struct {
	Entity model.EntityID
	Name   string
	File   string
	Raw    string
	Manual string
	Doc    string
}

type Constant struct {
	Name string
	Raw  string
	Type string
	Doc  string
}

// Namespace is everything the emitter needs to write one crate. Names are
// final (overrides applied), suppressed entities are gone and every type is
// mapped.
type Namespace struct {
	ID      model.NamespaceID
	Name    string
	Version string
	Crate   string
	Alias   string
	// Deps are sorted by crate name.
	Deps []Crate
	Libc bool
	// Links are the native libraries to link against.
	Links []string

	Raw       Raw
	Types     []*Type
	Enums     []*Enum
	Callbacks []*Callback
	Functions []*Signature
	Constants []Constant
	// ManualFunctions holds replace files of namespace level functions.
	ManualFunctions []string

	Unmapped   []string
	Suppressed []string
	Diags      diag.List
}

// MapNamespace maps one namespace.
func MapNamespace(rt *resolve.Table, ot *overrides.Table, id model.NamespaceID) *Namespace {
	mp := New(rt, ot, id)
	ns := mp.m.Namespace(id)
	out := &Namespace{
		ID:         id,
		Name:       ns.Name,
		Version:    ns.Version,
		Crate:      common.CrateName(ns.Name, ns.Version),
		Alias:      common.CrateAlias(ns.Name),
		Links:      linkNames(ns.SharedLibraries),
		Suppressed: ot.SuppressedPaths(id),
	}
	files := names{"lib": true, "ffi": true, "runtime": true, "functions": true, "constants": true}
	symbols := map[string]bool{}

	for _, e := range ot.TopLevel(id) {
		mp.declare(&out.Raw, e, symbols)
		switch e.Kind {
		case model.KindClass, model.KindInterface, model.KindRecord, model.KindUnion:
			if t := mp.wrapper(e, files); t != nil {
				out.Types = append(out.Types, t)
			}
		case model.KindEnum, model.KindBitfield:
			if en := mp.enum(e, files); en != nil {
				out.Enums = append(out.Enums, en)
			}
		case model.KindCallback:
			if e.CType == "" {
				continue
			}
			cb := &Callback{Entity: e.ID, Name: mp.localName(e.ID), Raw: e.CType, Doc: e.Doc}
			cb.File = files.fresh(moduleName(cb.Name))
			cb.Manual, _ = ot.Manual(e.ID)
			out.Callbacks = append(out.Callbacks, cb)
		case model.KindFunction:
			if manual, ok := ot.Manual(e.ID); ok {
				out.ManualFunctions = append(out.ManualFunctions, manual)
				continue
			}
			if sig := mp.callable(e); sig != nil {
				out.Functions = append(out.Functions, sig)
			}
		case model.KindConstant:
			if c, ok := mp.constant(e); ok {
				out.Constants = append(out.Constants, c)
			}
		}
	}

	for dep := range mp.raw.crates {
		d := mp.m.Namespace(dep)
		out.Deps = append(out.Deps, Crate{
			Name:      common.CrateName(d.Name, d.Version),
			Alias:     common.CrateAlias(d.Name),
			Namespace: d.Name,
			Version:   d.Version,
		})
	}
	slices.SortFunc(out.Deps, func(a, b Crate) int { return strings.Compare(a.Name, b.Name) })
	out.Libc = mp.raw.libc
	slices.Sort(mp.unmappedPaths)
	out.Unmapped = slices.Compact(mp.unmappedPaths)
	out.Diags = mp.diags
	return out
}

// MapAll maps namespaces concurrently, one mapper each, and returns them in
// the order of ids.
func MapAll(ctx context.Context, rt *resolve.Table, ot *overrides.Table, ids []model.NamespaceID, jobs int, logger *slog.Logger) ([]*Namespace, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	out := make([]*Namespace, len(ids))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(jobs)
	for i, id := range ids {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ns := MapNamespace(rt, ot, id)
			logger.Debug("Mapped namespace", "namespace", ns.Name+"-"+ns.Version,
				"types", len(ns.Types), "functions", len(ns.Functions), "unmapped", len(ns.Unmapped))
			out[i] = ns
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("map namespaces: %w", err)
	}
	return out, nil
}

// callable maps a wrapper and records the failure when it cannot be built.
func (mp *Mapper) callable(e *model.Entity) *Signature {
	if e.Symbol == "" {
		return nil
	}
	sig, err := mp.MapCallable(e.ID)
	if err == nil {
		return sig
	}
	mp.unmapped(e, err)
	return nil
}

func (mp *Mapper) unmapped(e *model.Entity, err error) {
	path := mp.m.Path(e.ID)
	reason := err.Error()
	var ue *UnmappableError
	if errors.As(err, &ue) {
		reason = ue.Reason
		path = ue.Path
	}
	var d *diag.Diagnostic
	if e.Introspectable {
		d = diag.Warnf(diag.UnmappableType, path, "%s", reason)
	} else {
		d = diag.Infof(diag.UnmappableType, path, "%s", reason)
	}
	mp.diags.Add(d.WithFile(mp.m.Namespace(mp.ns).Source, e.Line))
	mp.unmappedPaths = append(mp.unmappedPaths, mp.m.Path(e.ID))
}

func (mp *Mapper) wrapper(e *model.Entity, files names) *Type {
	if e.CType == "" || !common.IsIdent(e.CType) || e.GTypeStructFor != "" {
		return nil
	}
	h := mp.handle(e)
	if h == nil && !mp.raw.hasLayout(e) {
		for _, m := range mp.ot.Members(e.ID, model.KindConstructor, model.KindMethod, model.KindFunction) {
			if m.Symbol != "" {
				mp.unmapped(m, unmappable(mp.m.Path(m.ID), "%s has no wrapper type", mp.m.Path(e.ID)))
			}
		}
		return nil
	}
	t := &Type{
		Entity:     e.ID,
		Kind:       e.Kind,
		Name:       mp.localName(e.ID),
		Raw:        e.CType,
		Handle:     h,
		Deprecated: e.Deprecated,
		Doc:        e.Doc,
	}
	t.File = files.fresh(moduleName(t.Name))
	if manual, ok := mp.ot.Manual(e.ID); ok {
		t.Manual = manual
		return t
	}
	if h != nil {
		for _, c := range mp.ot.Capabilities(e.ID) {
			ce := mp.m.Entity(c)
			if ce.ID != e.ID && mp.handle(ce) != nil && ce.Kind != model.KindRecord && ce.Kind != model.KindUnion {
				t.Upcasts = append(t.Upcasts, mp.safeName(ce))
			}
		}
	}
	methods := names{}
	for _, m := range mp.ot.Members(e.ID, model.KindConstructor, model.KindMethod, model.KindFunction) {
		if manual, ok := mp.ot.Manual(m.ID); ok {
			t.ManualMethods = append(t.ManualMethods, manual)
			continue
		}
		sig := mp.callable(m)
		if sig == nil {
			continue
		}
		if methods[sig.Name] {
			mp.unmapped(m, unmappable(mp.m.Path(m.ID), "another method is already named %s", sig.Name))
			continue
		}
		methods[sig.Name] = true
		t.Methods = append(t.Methods, sig)
	}
	return t
}

func (mp *Mapper) enum(e *model.Entity, files names) *Enum {
	if e.CType == "" || !common.IsIdent(e.CType) {
		return nil
	}
	en := &Enum{
		Entity:     e.ID,
		Name:       mp.localName(e.ID),
		Raw:        e.CType,
		Bitfield:   e.Kind == model.KindBitfield,
		Deprecated: e.Deprecated,
		Doc:        e.Doc,
	}
	en.File = files.fresh(moduleName(en.Name))
	if manual, ok := mp.ot.Manual(e.ID); ok {
		en.Manual = manual
		return en
	}
	members := names{}
	for _, m := range mp.ot.Members(e.ID, model.KindMember) {
		if _, err := ConstantValue(enumRepr(e.Kind), m.Value); err != nil {
			// Reported when the ffi declaration is skipped.
			continue
		}
		en.Members = append(en.Members, EnumMember{
			Name: members.fresh(common.ConstName(mp.ot.Name(m.ID))),
			Raw:  memberSymbol(e, m),
			Doc:  m.Doc,
		})
	}
	for _, f := range mp.ot.Members(e.ID, model.KindFunction) {
		if sig := mp.callable(f); sig != nil {
			en.Functions = append(en.Functions, sig)
		}
	}
	return en
}

// enumRepr is the integer type member values are converted to.
func enumRepr(k model.Kind) *model.TypeRef {
	if k == model.KindBitfield {
		return &model.TypeRef{Name: "guint32"}
	}
	return &model.TypeRef{Name: "gint32"}
}

func moduleName(name string) string {
	return common.SanitizeIdent(common.ToSnakeCase(name))
}

func memberSymbol(owner, m *model.Entity) string {
	if m.Symbol != "" && common.IsIdent(m.Symbol) {
		return m.Symbol
	}
	return common.ConstName(owner.CType + "_" + m.Name)
}

func (mp *Mapper) constant(e *model.Entity) (Constant, bool) {
	typ, _, err := mp.raw.constant(e)
	if err != nil {
		return Constant{}, false
	}
	return Constant{
		Name: common.ConstName(mp.ot.Name(e.ID)),
		Raw:  constantSymbol(e),
		Type: typ,
		Doc:  e.Doc,
	}, true
}

func constantSymbol(e *model.Entity) string {
	if common.IsIdent(e.CType) {
		return e.CType
	}
	return common.ConstName(e.Name)
}

// declare adds the ffi declarations of a top-level entity. Failures are
// reported as unmappable; the entity is left out of the ffi module.
func (mp *Mapper) declare(raw *Raw, e *model.Entity, symbols map[string]bool) {
	r := mp.raw
	fail := func(err error) { mp.unmapped(e, unmappable(mp.m.Path(e.ID), "%v", err)) }
	function := func(c *model.Entity) {
		if c.Symbol == "" || symbols[c.Symbol] || mp.ot.Suppressed(c.ID) || c.Callable.HasVarargs() {
			return
		}
		// Failures surface when the wrapper is mapped.
		params, ret, err := r.signature(c.Callable)
		if err != nil {
			return
		}
		symbols[c.Symbol] = true
		raw.Functions = append(raw.Functions, RawFunction{Symbol: c.Symbol, Params: params, Return: ret, Deprecated: c.Deprecated})
	}
	getType := func() {
		if e.GetType != "" && !symbols[e.GetType] && common.IsIdent(e.GetType) {
			symbols[e.GetType] = true
			raw.Functions = append(raw.Functions, RawFunction{Symbol: e.GetType, Return: "GType"})
		}
	}

	switch e.Kind {
	case model.KindAlias:
		if !common.IsIdent(e.CType) {
			return
		}
		t, err := r.typ(e.Type, false)
		if err != nil {
			fail(err)
			return
		}
		raw.Aliases = append(raw.Aliases, RawAlias{Name: e.CType, Type: t})
	case model.KindEnum, model.KindBitfield:
		if !common.IsIdent(e.CType) {
			return
		}
		re := RawEnum{Name: e.CType, Repr: "gint"}
		if e.Kind == model.KindBitfield {
			re.Repr = "guint"
		}
		ref := enumRepr(e.Kind)
		for _, m := range mp.ot.Members(e.ID, model.KindMember) {
			v, err := ConstantValue(ref, m.Value)
			if err != nil {
				mp.unmapped(m, err)
				continue
			}
			re.Members = append(re.Members, RawConstant{Name: memberSymbol(e, m), Type: e.CType, Value: v})
		}
		raw.Enums = append(raw.Enums, re)
		getType()
		for _, f := range mp.ot.Members(e.ID, model.KindFunction) {
			function(f)
		}
	case model.KindClass, model.KindInterface, model.KindRecord, model.KindUnion:
		if common.IsIdent(e.CType) {
			rec := RawRecord{Name: e.CType, Union: e.Kind == model.KindUnion, Opaque: true}
			if e.Kind != model.KindInterface && r.hasLayout(e) {
				rec.Opaque = false
				for _, f := range r.m.Members(e.ID, model.KindField) {
					// hasLayout returned true only after mapping every field.
					t, _ := r.field(f)
					rec.Fields = append(rec.Fields, RawField{Name: common.SanitizeIdent(f.Name), Type: t})
				}
			}
			raw.Records = append(raw.Records, rec)
		}
		getType()
		for _, m := range mp.ot.Members(e.ID, model.KindConstructor, model.KindMethod, model.KindFunction) {
			function(m)
		}
	case model.KindCallback:
		if !common.IsIdent(e.CType) {
			return
		}
		t, err := r.callback(e.Callable, false)
		if err != nil {
			fail(err)
			return
		}
		raw.Callbacks = append(raw.Callbacks, RawAlias{Name: e.CType, Type: t})
	case model.KindConstant:
		t, v, err := r.constant(e)
		if err != nil {
			fail(err)
			return
		}
		raw.Constants = append(raw.Constants, RawConstant{Name: constantSymbol(e), Type: t, Value: v})
	case model.KindFunction:
		function(e)
	}
}

// linkNames turns shared library file names ("libgtk-3.so.0") into linker
// names ("gtk-3").
func linkNames(libs []string) []string {
	var out []string
	for _, lib := range libs {
		name := filepath.Base(lib)
		name = strings.TrimPrefix(name, "lib")
		for _, ext := range []string{".so", ".dylib", ".dll"} {
			if i := strings.Index(name, ext); i > 0 {
				name = name[:i]
				break
			}
		}
		name = strings.TrimSuffix(name, "-0")
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
