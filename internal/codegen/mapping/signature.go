package mapping

import (
	"fmt"
	"strings"

	"github.com/Alia5/girgen/internal/codegen/common"
	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/model"
)

// Role is the part an argument plays in a generated wrapper.
type Role string

const (
	RoleInstance Role = "instance"
	RoleIn       Role = "in"
	RoleOut      Role = "out"
	RoleInOut    Role = "inout"
	RoleReturn   Role = "return"
	// RoleLength arguments carry the element count of an array argument and
	// are computed by the wrapper.
	RoleLength Role = "length"
	// RoleStatus is the boolean result of a throwing function, which only
	// repeats whether the error was set.
	RoleStatus Role = "status"
	RoleError  Role = "error"
)

// Arg is one native argument of a wrapper, or its return value.
type Arg struct {
	// Name is the Rust name of the public parameter.
	Name  string
	Param *model.Param
	Role  Role
	Desc  Descriptor
	// Raw is the type in the extern declaration.
	Raw string
	// Public arguments appear in the Rust signature or its result.
	Public bool
	// Array is the array a length argument measures.
	Array *Arg
	// Length is the argument carrying the element count of an array.
	Length *Arg
	// Local holds the native value of an output.
	Local string
	// Temp holds the prepared form of an input.
	Temp string
}

func (a *Arg) output() bool {
	switch a.Role {
	case RoleOut, RoleReturn, RoleStatus:
		return true
	case RoleLength:
		return a.Param.Direction == model.DirOut
	}
	return false
}

// PrepareStmt declares the temporary of an input, or returns "".
func (a *Arg) PrepareStmt() string {
	if a.Temp == "" {
		return ""
	}
	return "let " + a.Temp + " = " + a.Desc.PrepareOf(a.Name) + ";"
}

// LocalStmt declares the native storage of an output or inout argument, or
// returns "". Return values need no declaration.
func (a *Arg) LocalStmt() string {
	if a.Local == "" || a.Role == RoleReturn || a.Role == RoleStatus {
		return ""
	}
	switch {
	case a.Role == RoleError:
		return "let mut " + a.Local + " = std::ptr::null_mut();"
	case a.Role == RoleInOut:
		return fmt.Sprintf("let mut %s: %s = %s;", a.Local, a.localType(), a.Desc.To("(*"+a.Name+")"))
	}
	return fmt.Sprintf("let mut %s: %s = std::mem::zeroed();", a.Local, a.localType())
}

func (a *Arg) localType() string {
	if a.Param != nil && a.Param.CallerAllocates {
		return strings.TrimPrefix(a.Desc.FFI, "*mut ")
	}
	return a.Desc.FFI
}

// NativeExpr is the expression passed to the extern function.
func (a *Arg) NativeExpr() string {
	switch a.Role {
	case RoleInstance:
		return a.Desc.To("self")
	case RoleError:
		return "&mut " + a.Local
	case RoleLength:
		if a.Local != "" {
			return "&mut " + a.Local
		}
		return "(" + a.Array.Desc.LenOf(a.Array.Name) + ") as _"
	case RoleOut:
		return "&mut " + a.Local
	case RoleInOut:
		if a.Local == "" {
			return a.Desc.To(a.Name)
		}
		return "&mut " + a.Local
	}
	if !a.Public {
		if a.Desc.Pointer() {
			return "std::ptr::null_mut()"
		}
		return "std::mem::zeroed()"
	}
	src := a.Name
	if a.Temp != "" {
		src = a.Temp
	}
	return a.Desc.To(src)
}

// ValueExpr converts the native output to its public value.
func (a *Arg) ValueExpr() string {
	return a.count(a.Desc.From(a.Local))
}

// ReleaseStmt frees the native output, or returns "".
func (a *Arg) ReleaseStmt() string {
	if a.Desc.Release == "" {
		return ""
	}
	return a.count(a.Desc.ReleaseOf(a.Local)) + ";"
}

// WritebackStmt stores an inout value back into its public reference.
func (a *Arg) WritebackStmt() string {
	if a.Role != RoleInOut || a.Local == "" {
		return ""
	}
	return "*" + a.Name + " = " + a.Desc.From(a.Local) + ";"
}

func (a *Arg) count(expr string) string {
	if a.Length == nil {
		return expr
	}
	n := a.Length.Name
	if a.Length.Local != "" {
		n = a.Length.Local
	}
	return strings.ReplaceAll(expr, "@len", n+" as usize")
}

// Signature is the safe wrapper of one callable.
type Signature struct {
	Entity model.EntityID
	// Name is the Rust function name.
	Name   string
	Symbol string

	RawParams []RawParam
	RawReturn string

	// Args lists every native argument in C order.
	Args     []*Arg
	Instance *Arg
	Return   *Arg
	Error    *Arg
	// Params are the public parameters after the receiver.
	Params []*Arg
	// Outputs form the result, return value first.
	Outputs []*Arg
	// Result is the Rust return type; "" for functions that return nothing.
	Result string

	Throws     bool
	Unsafe     bool
	Hazards    []Hazard
	Plan       *CallPlan
	Deprecated bool
	Doc        string
}

type names map[string]bool

func (n names) fresh(base string) string {
	name := base
	for n[name] {
		name += "_"
	}
	n[name] = true
	return name
}

// MapCallable builds the safe wrapper of a function, method or
// constructor. Callables that cannot be wrapped return an
// *UnmappableError; their extern declaration is still emitted.
func (mp *Mapper) MapCallable(id model.EntityID) (*Signature, error) {
	e := mp.m.Entity(id)
	path := mp.m.Path(id)
	c := e.Callable
	if c == nil {
		return nil, unmappable(path, "%s is not callable", e.Kind)
	}
	if !e.Introspectable {
		return nil, unmappable(path, "not introspectable")
	}
	if c.HasVarargs() {
		return nil, unmappable(path, "variadic arguments")
	}
	rawParams, rawRet, err := mp.raw.signature(c)
	if err != nil {
		return nil, unmappable(path, "%v", err)
	}
	sig := &Signature{
		Entity:     id,
		Name:       common.SanitizeIdent(mp.ot.Name(id)),
		Symbol:     e.Symbol,
		RawParams:  rawParams,
		RawReturn:  rawRet,
		Throws:     c.Throws,
		Deprecated: e.Deprecated,
		Doc:        e.Doc,
	}

	used := names{"ret": true, "error": true, "self": true}
	offset := 0
	if c.Instance != nil {
		inst, err := mp.instance(e, c.Instance, rawParams[0].Type)
		if err != nil {
			return nil, err
		}
		sig.Instance = inst
		sig.Args = append(sig.Args, inst)
		offset = 1
	}

	params := make([]*Arg, len(c.Params))
	for i, p := range c.Params {
		d, err := mp.Map(p.Type, ParamAnnotations(mp.m, id, p))
		if err != nil {
			return nil, err
		}
		arg := &Arg{
			Name:   used.fresh(common.SanitizeIdent(mp.ot.ParamName(id, p))),
			Param:  p,
			Desc:   d,
			Raw:    rawParams[offset+i].Type,
			Public: !p.Skip,
		}
		switch p.Direction {
		case model.DirOut:
			arg.Role = RoleOut
		case model.DirInOut:
			arg.Role = RoleInOut
		default:
			arg.Role = RoleIn
		}
		params[i] = arg
	}

	if !isVoid(c.Return.Type) {
		d, err := mp.returnDescriptor(e, c.Return)
		if err != nil {
			return nil, err
		}
		ret := &Arg{Name: "ret", Local: "ret", Param: c.Return, Role: RoleReturn, Desc: d, Raw: rawRet, Public: !c.Return.Skip}
		if c.Throws && c.Return.Type.Name == "gboolean" && c.Return.Type.Array == nil {
			ret.Role = RoleStatus
			ret.Public = false
		}
		sig.Return = ret
	}
	if err := linkLengths(path, params, sig.Return); err != nil {
		return nil, err
	}

	for _, arg := range params {
		switch {
		case arg.Role == RoleOut || (arg.Role == RoleLength && arg.Param.Direction == model.DirOut):
			arg.Local = arg.Name
		case arg.Role == RoleInOut && arg.Desc.Passing != Borrowed:
			arg.Local = used.fresh(arg.Name + "_native")
		case arg.Role == RoleIn && arg.Desc.Prepare != "" && arg.Public:
			arg.Temp = used.fresh(arg.Name + "_tmp")
		}
		sig.Args = append(sig.Args, arg)
		if arg.Public && (arg.Role == RoleIn || arg.Role == RoleInOut) {
			sig.Params = append(sig.Params, arg)
		}
	}
	if c.Throws {
		sig.Error = &Arg{Name: "error", Local: "error", Role: RoleError, Raw: rawParams[len(rawParams)-1].Type,
			Desc: Descriptor{Target: "runtime::Error", Passing: Owned, FromNative: "runtime::Error::from_glib_full($ as _)", Transfer: model.TransferFull}}
		sig.Args = append(sig.Args, sig.Error)
	}

	if sig.Return != nil && sig.Return.Public {
		sig.Outputs = append(sig.Outputs, sig.Return)
	}
	for _, arg := range params {
		if arg.Role == RoleOut && arg.Public {
			sig.Outputs = append(sig.Outputs, arg)
		}
	}
	sig.Result = resultType(sig.Outputs, c.Throws)
	sig.collectHazards()
	sig.Plan = sig.plan()
	if violations := Verify(sig.Plan); len(violations) > 0 {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.String()
		}
		mp.diags.Add(diag.Errorf(diag.OwnershipViolation, path, "wrapper would mishandle ownership: %s",
			strings.Join(msgs, "; ")))
		return nil, unmappable(path, "ownership plan does not verify")
	}
	return sig, nil
}

// instance maps the receiver of a method, which is always the owner type.
func (mp *Mapper) instance(e *model.Entity, p *model.Param, raw string) (*Arg, error) {
	path := mp.m.ParamPath(e.ID, p)
	owner := mp.m.Entity(e.Owner)
	if owner == nil || !owner.Kind.IsComposite() {
		return nil, unmappable(path, "method outside of a type")
	}
	if p.Nullable {
		mp.diags.Add(diag.Warnf(diag.NullContract, path, "nullable annotation on an instance parameter ignored"))
	}
	arg := &Arg{Name: "self", Param: p, Role: RoleInstance, Raw: raw, Public: true}
	full := p.Transfer == model.TransferFull
	h := mp.handle(owner)
	switch {
	case h != nil && full:
		arg.Desc = Descriptor{Target: "self", FFI: raw, Passing: Owned, ToNative: "$.into_raw() as _", Transfer: model.TransferFull}
	case h != nil:
		arg.Desc = Descriptor{Target: "&self", FFI: raw, Passing: Borrowed, ToNative: "$.as_ptr() as _", Transfer: model.TransferNone}
	case full:
		return nil, unmappable(path, "%s cannot be handed over", mp.m.Path(owner.ID))
	case mp.raw.hasLayout(owner):
		arg.Desc = Descriptor{Target: "&self", FFI: raw, Passing: Borrowed, ToNative: "$ as *const Self as *mut _", Transfer: model.TransferNone}
	default:
		return nil, unmappable(path, "%s has no wrapper type", mp.m.Path(owner.ID))
	}
	return arg, nil
}

// returnDescriptor maps a return value. Constructors that are declared to
// return an ancestor of their type return the type itself.
func (mp *Mapper) returnDescriptor(e *model.Entity, p *model.Param) (Descriptor, error) {
	d, err := mp.Map(p.Type, ParamAnnotations(mp.m, e.ID, p))
	if err != nil || e.Kind != model.KindConstructor || d.Forced || d.Passing != Owned || p.Type.Array != nil {
		return d, err
	}
	owner := mp.m.Entity(e.Owner)
	ret, ok := mp.rt.Entity(p.Type)
	if owner == nil || !ok || ret.ID == owner.ID || !mp.rt.Provides(owner.ID, ret.ID) || mp.handle(owner) == nil {
		return d, nil
	}
	from, to := mp.safeName(ret), mp.safeName(owner)
	d.Target = strings.Replace(d.Target, from, to, 1)
	d.FromNative = strings.Replace(d.FromNative, from+"::", to+"::", 1)
	return d, nil
}

// linkLengths pairs arrays with their length arguments. Lengths that follow
// from the array are dropped from the public signature.
func linkLengths(path string, params []*Arg, ret *Arg) error {
	arrays := append([]*Arg(nil), params...)
	if ret != nil {
		arrays = append(arrays, ret)
	}
	for _, arg := range arrays {
		t := arg.Param.Type
		if t.Array == nil || t.Array.Length == model.NoIndex {
			continue
		}
		if t.Array.Length < 0 || t.Array.Length >= len(params) {
			return unmappable(path, "array %s names length parameter %d of %d", arg.Param.Name, t.Array.Length, len(params))
		}
		l := params[t.Array.Length]
		if l == arg {
			return unmappable(path, "array %s is its own length", arg.Param.Name)
		}
		arg.Length = l
		if l.Role == RoleLength {
			continue
		}
		switch {
		case !arg.output() && l.Role == RoleIn:
			l.Role, l.Array, l.Public = RoleLength, arg, false
		case arg.output() && l.Role == RoleOut:
			l.Role, l.Array, l.Public = RoleLength, arg, false
		case arg.output() && l.Role == RoleIn:
			// The caller chooses how many elements to read back.
		default:
			return unmappable(path, "array %s has %s length %s", arg.Param.Name, l.Param.Direction, l.Param.Name)
		}
	}
	return nil
}

func resultType(outputs []*Arg, throws bool) string {
	var res string
	switch len(outputs) {
	case 0:
		if throws {
			res = "()"
		}
	case 1:
		res = outputs[0].Desc.Target
	default:
		types := make([]string, len(outputs))
		for i, o := range outputs {
			types[i] = o.Desc.Target
		}
		res = "(" + strings.Join(types, ", ") + ")"
	}
	if throws {
		return "Result<" + res + ", runtime::Error>"
	}
	return res
}

func (s *Signature) collectHazards() {
	seen := map[Hazard]bool{}
	args := s.Args
	if s.Return != nil {
		args = append(append([]*Arg(nil), args...), s.Return)
	}
	for _, a := range args {
		if !a.Public {
			continue
		}
		for _, h := range a.Desc.Hazards {
			if !seen[h] {
				seen[h] = true
				s.Hazards = append(s.Hazards, h)
			}
		}
	}
	s.Unsafe = seen[HazardRaw]
}

// tracked reports whether the wrapper manages the lifetime of the native value.
func tracked(a *Arg) bool {
	return a.Desc.Passing == Owned && a.Desc.Release != ""
}

// plan derives the ownership schedule of the wrapper. Inputs are borrowed
// or given before the call. Outputs that arrive owned are acquired by the
// call; outputs that arrive borrowed and are wrapped take a reference first.
// A throwing wrapper has an error branch that releases every acquired output
// and wraps the error, and an ok branch that wraps the outputs.
func (s *Signature) plan() *CallPlan {
	p := &CallPlan{Call: Call{Symbol: s.Symbol}}
	var outputs []*Arg
	for _, a := range s.Args {
		switch {
		case a.Role == RoleError:
		case a.output() || (a.Role == RoleInOut && a.Local != ""):
			outputs = append(outputs, a)
		case a.Desc.Passing == Owned && a.Public:
			p.Setup = append(p.Setup, Step{Kind: StepGive, Value: a.Name, Arg: a})
		default:
			p.Setup = append(p.Setup, Step{Kind: StepBorrow, Value: a.Name, Arg: a})
		}
	}
	if s.Return != nil {
		outputs = append(outputs, s.Return)
	}

	var ok []Step
	var cleanup []Step
	for _, o := range outputs {
		full := o.Desc.Transfer == model.TransferFull || o.Desc.Transfer == model.TransferContainer
		v := o.Local
		switch {
		case !tracked(o):
			p.Call.Results = append(p.Call.Results, Step{Kind: StepBorrow, Value: v, Arg: o})
		case full:
			p.Call.Results = append(p.Call.Results, Step{Kind: StepAcquire, Value: v, Arg: o})
			cleanup = append(cleanup, Step{Kind: StepRelease, Value: v, Arg: o})
			if o.Public {
				ok = append(ok, Step{Kind: StepWrap, Value: v, Arg: o})
			} else {
				ok = append(ok, Step{Kind: StepRelease, Value: v, Arg: o})
			}
		default:
			p.Call.Results = append(p.Call.Results, Step{Kind: StepBorrow, Value: v, Arg: o})
			if o.Public {
				ok = append(ok, Step{Kind: StepRef, Value: v, Arg: o}, Step{Kind: StepWrap, Value: v, Arg: o})
			}
		}
	}

	if !s.Throws {
		p.Branches = []Branch{{Name: "ok", Steps: ok}}
		return p
	}
	errSteps := []Step{{Kind: StepCheck, Value: "error", Arg: s.Error}}
	errSteps = append(errSteps, cleanup...)
	errSteps = append(errSteps,
		Step{Kind: StepAcquire, Value: "error", Arg: s.Error},
		Step{Kind: StepWrap, Value: "error", Arg: s.Error})
	p.Branches = []Branch{
		{Name: "error", Steps: errSteps},
		{Name: "ok", Steps: ok},
	}
	return p
}
