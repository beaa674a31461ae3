package rust

import (
	"strings"

	"github.com/Alia5/girgen/internal/codegen/mapping"
)

// body renders the statements of a wrapper inside its unsafe block. The
// statements follow the call plan: releases are emitted exactly where the
// plan schedules them and wraps happen in the result expression.
func body(sig *mapping.Signature) []string {
	var out []string
	for _, a := range sig.Args {
		if s := a.PrepareStmt(); s != "" {
			out = append(out, s)
		}
	}
	for _, a := range sig.Args {
		if s := a.LocalStmt(); s != "" {
			out = append(out, s)
		}
	}

	native := make([]string, len(sig.Args))
	for i, a := range sig.Args {
		native[i] = a.NativeExpr()
	}
	call := "ffi::" + sig.Symbol + "(" + strings.Join(native, ", ") + ")"
	if bindsReturn(sig) {
		out = append(out, "let ret = "+call+";")
	} else {
		out = append(out, call+";")
	}

	var ok []mapping.Step
	for _, b := range sig.Plan.Branches {
		switch b.Name {
		case "error":
			out = append(out, "if !error.is_null() {")
			for _, s := range b.Steps {
				if s.Kind == mapping.StepRelease {
					out = append(out, indented(release(s.Arg))...)
				}
			}
			out = append(out, "    return Err("+sig.Error.ValueExpr()+");", "}")
		case "ok":
			ok = b.Steps
		}
	}

	for _, a := range sig.Args {
		if s := a.WritebackStmt(); s != "" {
			out = append(out, s)
		}
	}
	for _, o := range sig.Outputs {
		if o.Desc.HasHazard(mapping.HazardNull) {
			out = append(out, "debug_assert!(!"+o.Local+".is_null());")
		}
	}
	for _, s := range ok {
		if s.Kind == mapping.StepRelease {
			out = append(out, release(s.Arg)...)
		}
	}
	if expr := result(sig); expr != "" {
		out = append(out, expr)
	}
	return out
}

// bindsReturn reports whether the return value is needed after the call.
func bindsReturn(sig *mapping.Signature) bool {
	r := sig.Return
	if r == nil || r.Role == mapping.RoleStatus {
		return false
	}
	return r.Public || r.Desc.Release != ""
}

// release frees a native output. Pointers are checked first because the
// callee may leave them unset.
func release(a *mapping.Arg) []string {
	stmt := a.ReleaseStmt()
	if stmt == "" {
		return nil
	}
	if !a.Desc.Pointer() {
		return []string{stmt}
	}
	return []string{"if !" + a.Local + ".is_null() {", "    " + stmt, "}"}
}

func result(sig *mapping.Signature) string {
	vals := make([]string, len(sig.Outputs))
	for i, o := range sig.Outputs {
		vals[i] = o.ValueExpr()
	}
	var expr string
	switch len(vals) {
	case 0:
		if sig.Throws {
			expr = "()"
		}
	case 1:
		expr = vals[0]
	default:
		expr = "(" + strings.Join(vals, ", ") + ")"
	}
	if sig.Throws {
		return "Ok(" + expr + ")"
	}
	return expr
}

func indented(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = "    " + l
	}
	return out
}
