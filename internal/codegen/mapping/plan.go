package mapping

import (
	"fmt"
	"strings"
)

// StepKind is an ownership operation of a generated wrapper body.
type StepKind string

const (
	// StepBorrow lends a value across the call without owning it.
	StepBorrow StepKind = "borrow"
	// StepGive moves a value the binding owns into the callee.
	StepGive StepKind = "give"
	// StepAcquire receives ownership of a value from the callee.
	StepAcquire StepKind = "acquire"
	// StepRef takes a new reference on a borrowed value, making it owned.
	StepRef StepKind = "ref"
	// StepRelease frees an owned value.
	StepRelease StepKind = "release"
	// StepWrap moves an owned value into a wrapper that releases it later.
	StepWrap StepKind = "wrap"
	// StepCheck tests a condition that selects a branch.
	StepCheck StepKind = "check"
)

// Step is one operation on a named local.
type Step struct {
	Kind  StepKind
	Value string
	Arg   *Arg
}

func (s Step) String() string { return string(s.Kind) + " " + s.Value }

// Branch is one way out of a wrapper after the native call returned.
type Branch struct {
	Name  string
	Steps []Step
}

// Call is the native call and the values it hands back.
type Call struct {
	Symbol  string
	Results []Step
}

// CallPlan is the ownership schedule of one wrapper: what happens before
// the call, what the call yields, and how each exit path disposes of it.
type CallPlan struct {
	Setup    []Step
	Call     Call
	Branches []Branch
}

// Paths returns every control flow path through the plan as a step list.
func (p *CallPlan) Paths() map[string][]Step {
	base := append(append([]Step(nil), p.Setup...), p.Call.Results...)
	if len(p.Branches) == 0 {
		return map[string][]Step{"ok": base}
	}
	out := make(map[string][]Step, len(p.Branches))
	for _, b := range p.Branches {
		out[b.Name] = append(append([]Step(nil), base...), b.Steps...)
	}
	return out
}

// Violation is an ownership error on one path.
type Violation struct {
	Branch  string
	Value   string
	Problem string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s path: %s %s", v.Branch, v.Value, v.Problem)
}

type ownership int

const (
	unseen ownership = iota
	borrowed
	owned
	given
	consumed
)

// Verify checks that on every path each acquired value is released or
// wrapped exactly once, nothing is given away twice, and no borrowed value
// is released. Violations come in branch order, then step order.
func Verify(p *CallPlan) []Violation {
	var out []Violation
	for _, b := range p.branchNames() {
		out = append(out, verifyPath(b, p.Paths()[b])...)
	}
	return out
}

func (p *CallPlan) branchNames() []string {
	if len(p.Branches) == 0 {
		return []string{"ok"}
	}
	names := make([]string, len(p.Branches))
	for i, b := range p.Branches {
		names[i] = b.Name
	}
	return names
}

func verifyPath(branch string, steps []Step) []Violation {
	var out []Violation
	state := map[string]ownership{}
	var order []string
	bad := func(v, format string, args ...any) {
		out = append(out, Violation{Branch: branch, Value: v, Problem: fmt.Sprintf(format, args...)})
	}
	for _, s := range steps {
		cur, seen := state[s.Value]
		if !seen {
			order = append(order, s.Value)
		}
		switch s.Kind {
		case StepCheck:
		case StepBorrow:
			if cur != unseen && cur != borrowed {
				bad(s.Value, "is borrowed after it was %s", describe(cur))
				continue
			}
			state[s.Value] = borrowed
		case StepGive:
			switch cur {
			case given:
				bad(s.Value, "is given to the callee twice")
			case borrowed:
				bad(s.Value, "is given away while only borrowed")
			case consumed:
				bad(s.Value, "is given away after it was released")
			default:
				state[s.Value] = given
			}
		case StepAcquire:
			if cur != unseen {
				bad(s.Value, "is acquired twice")
				continue
			}
			state[s.Value] = owned
		case StepRef:
			if cur != borrowed {
				bad(s.Value, "takes a reference on a value that is %s", describe(cur))
				continue
			}
			state[s.Value] = owned
		case StepRelease, StepWrap:
			verb := "released"
			if s.Kind == StepWrap {
				verb = "wrapped"
			}
			switch cur {
			case owned:
				state[s.Value] = consumed
			case consumed:
				bad(s.Value, "is %s twice", verb)
			case borrowed:
				bad(s.Value, "is %s while only borrowed", verb)
			case given:
				bad(s.Value, "is %s after it was given to the callee", verb)
			default:
				bad(s.Value, "is %s but never acquired", verb)
			}
		default:
			bad(s.Value, "has unknown step %q", s.Kind)
		}
	}
	for _, v := range order {
		if state[v] == owned {
			bad(v, "leaks: acquired but never released or wrapped")
		}
	}
	return out
}

func describe(o ownership) string {
	switch o {
	case borrowed:
		return "borrowed"
	case owned:
		return "owned"
	case given:
		return "given away"
	case consumed:
		return "released"
	}
	return "unknown"
}

// Releases counts the release and wrap steps applied to value on a path.
func (p *CallPlan) Releases(branch, value string) int {
	n := 0
	for _, s := range p.Paths()[branch] {
		if s.Value == value && (s.Kind == StepRelease || s.Kind == StepWrap) {
			n++
		}
	}
	return n
}

func (p *CallPlan) String() string {
	var b strings.Builder
	write := func(label string, steps []Step) {
		parts := make([]string, len(steps))
		for i, s := range steps {
			parts[i] = s.String()
		}
		fmt.Fprintf(&b, "%s: %s\n", label, strings.Join(parts, ", "))
	}
	write("setup", p.Setup)
	write("call "+p.Call.Symbol, p.Call.Results)
	for _, br := range p.Branches {
		write(br.Name, br.Steps)
	}
	return b.String()
}
