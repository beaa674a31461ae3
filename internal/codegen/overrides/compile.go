package overrides

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Alia5/girgen/internal/codegen/common"
	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/model"
	"github.com/Alia5/girgen/internal/codegen/resolve"
)

// AmbiguousError reports rules of equal specificity matching one path.
type AmbiguousError struct {
	Path  string
	Rules []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s is matched by %s with equal specificity", e.Path, strings.Join(e.Rules, " and "))
}

// ErrInvalidRules is returned when a rule set contains unusable rules.
var ErrInvalidRules = errors.New("invalid override rules")

// Directive is the effective override of one path.
type Directive struct {
	Action Action
	// Value is the final name, the forced type, or the manual file path.
	Value     string
	Ownership string
	// Manual holds the contents of a replace file.
	Manual string
	Rule   Rule
}

// Table is the directive table of a run, computed once and read-only
// afterwards.
type Table struct {
	rt *resolve.Table
	m  *model.Model

	byPath map[string]Directive
	// suppressed holds entities removed by a suppress rule or because their
	// owner was suppressed.
	suppressed map[model.EntityID]bool
	// skipped holds entities dropped because they refer to a suppressed type.
	skipped map[model.EntityID]string
	renames map[model.EntityID]string
}

// Empty returns a table without directives.
func Empty(rt *resolve.Table) *Table {
	return &Table{
		rt:         rt,
		m:          rt.Model(),
		byPath:     map[string]Directive{},
		suppressed: map[model.EntityID]bool{},
		skipped:    map[model.EntityID]string{},
		renames:    map[model.EntityID]string{},
	}
}

type candidate struct {
	rule Rule
	sel  selector
	rank specificity
}

// Compile validates rs against the resolved model and builds the directive
// table. Namespaces that failed resolution are not matched. Ambiguous or
// invalid rules make the returned error non-nil; the table is then nil.
func Compile(rs *RuleSet, rt *resolve.Table) (*Table, diag.List, error) {
	t := Empty(rt)
	if rs == nil {
		return t, nil, nil
	}
	m := rt.Model()
	where := rs.Source
	if where == "" {
		where = "overrides"
	}

	var diags diag.List
	var cands []candidate
	invalid := 0
	for _, r := range rs.Rules {
		sel, err := validateRule(r)
		if err != nil {
			diags.Add(diag.Errorf(diag.InvalidOverride, r.Selector, "%s: %v", r, err).WithFile(where, 0))
			invalid++
			continue
		}
		cands = append(cands, candidate{rule: r, sel: sel, rank: sel.specificity(r.Scope != "")})
	}

	matched := make([]bool, len(rs.Rules))
	applied := make([]bool, len(rs.Rules))
	var ambiguous []*AmbiguousError
	var targets []model.Target
	for _, ns := range m.Namespaces {
		if !rt.Failed(ns.ID) {
			targets = append(targets, m.Targets(ns.ID)...)
		}
	}
	targetAt := map[string]model.Target{}

	for _, tg := range targets {
		var best []candidate
		for _, c := range cands {
			if c.rule.Scope != "" && c.rule.Scope != string(tg.Kind) {
				continue
			}
			if !c.sel.match(tg.Path) {
				continue
			}
			matched[c.rule.Index] = true
			if !applicable(c.rule.Action, tg.Kind) {
				continue
			}
			applied[c.rule.Index] = true
			switch {
			case len(best) == 0 || c.rank.compare(best[0].rank) > 0:
				best = []candidate{c}
			case c.rank.compare(best[0].rank) == 0:
				best = append(best, c)
			}
		}
		if len(best) == 0 {
			continue
		}
		if len(best) > 1 {
			err := &AmbiguousError{Path: tg.Path}
			for _, c := range best {
				err.Rules = append(err.Rules, c.rule.String())
			}
			ambiguous = append(ambiguous, err)
			diags.Add(diag.Errorf(diag.AmbiguousOverride, tg.Path, "%s", err.Error()).
				WithSuggestion("make one selector more specific or add a scope"))
			continue
		}
		d, err := t.directive(tg, best[0], rs.Dir)
		if err != nil {
			diags.Add(diag.Errorf(diag.InvalidOverride, tg.Path, "%s: %v", best[0].rule, err).WithFile(where, 0))
			invalid++
			continue
		}
		t.byPath[tg.Path] = d
		targetAt[tg.Path] = tg
	}

	for _, c := range cands {
		switch {
		case !matched[c.rule.Index]:
			diags.Add(diag.Warnf(diag.DanglingOverride, c.rule.Selector, "%s matches no entity", c.rule).WithFile(where, 0))
		case !applied[c.rule.Index]:
			diags.Add(diag.Errorf(diag.InvalidOverride, c.rule.Selector, "%s: %s", c.rule, notApplicable[c.rule.Action]).WithFile(where, 0))
			invalid++
		}
	}

	if len(ambiguous) > 0 {
		slices.SortFunc(ambiguous, func(a, b *AmbiguousError) int { return strings.Compare(a.Path, b.Path) })
		return nil, diags, ambiguous[0]
	}
	if invalid > 0 {
		return nil, diags, fmt.Errorf("%w: %d rule(s) rejected", ErrInvalidRules, invalid)
	}

	for p, d := range t.byPath {
		tg := targetAt[p]
		if tg.Param != nil {
			continue
		}
		switch d.Action {
		case ActionSuppress:
			t.suppress(tg.Entity)
		case ActionRename:
			t.renames[tg.Entity] = d.Value
		}
	}
	diags.Merge(t.skipDependents())
	return t, diags, nil
}

func validateRule(r Rule) (selector, error) {
	if !r.Action.valid() {
		return selector{}, fmt.Errorf("unknown action %q", r.Action)
	}
	sel, err := parseSelector(r.Selector)
	if err != nil {
		return selector{}, err
	}
	switch r.Action {
	case ActionRename, ActionReplace, ActionForceType:
		if strings.TrimSpace(r.Value) == "" {
			return selector{}, fmt.Errorf("%s needs a value", r.Action)
		}
	}
	if r.Action == ActionRename && strings.Contains(r.Value, "*") {
		if strings.Count(r.Value, "*") != 1 {
			return selector{}, fmt.Errorf("rename value %q may hold one '*'", r.Value)
		}
		if !sel.captures() {
			return selector{}, fmt.Errorf("rename value %q uses '*' but the last selector segment has no single '*'", r.Value)
		}
	}
	if r.Ownership != "" {
		if r.Action != ActionForceType {
			return selector{}, fmt.Errorf("ownership only applies to force-type")
		}
		switch r.Ownership {
		case OwnershipOwned, OwnershipBorrowed, OwnershipValue:
		default:
			return selector{}, fmt.Errorf("unknown ownership %q", r.Ownership)
		}
	}
	if r.Scope != "" && !knownScope(r.Scope) {
		return selector{}, fmt.Errorf("unknown scope %q", r.Scope)
	}
	return sel, nil
}

func knownScope(s string) bool {
	switch model.Kind(s) {
	case model.KindClass, model.KindInterface, model.KindRecord, model.KindUnion, model.KindEnum,
		model.KindBitfield, model.KindCallback, model.KindFunction, model.KindAlias, model.KindConstant,
		model.KindMethod, model.KindConstructor, model.KindVirtualMethod, model.KindSignal,
		model.KindProperty, model.KindField, model.KindMember, model.KindParameter, model.KindReturn:
		return true
	}
	return false
}

// applicable reports whether an action can apply to a target kind. Rules
// whose selector only matches inapplicable kinds are invalid.
func applicable(a Action, k model.Kind) bool {
	isParam := k == model.KindParameter || k == model.KindReturn
	switch a {
	case ActionRename:
		return k != model.KindReturn
	case ActionSuppress, ActionReplace:
		return !isParam
	case ActionForceType:
		return k.Typed()
	}
	return false
}

var notApplicable = map[Action]string{
	ActionRename:    "a return value has no name",
	ActionSuppress:  "parameters cannot be suppressed; suppress the callable",
	ActionReplace:   "parameters cannot be replaced; replace the callable",
	ActionForceType: "force-type needs a typed entity (alias, constant, property, field, parameter or return)",
}

// directive checks a winning rule against its concrete target.
func (t *Table) directive(tg model.Target, c candidate, dir string) (Directive, error) {
	r := c.rule
	d := Directive{Action: r.Action, Value: r.Value, Ownership: r.Ownership, Rule: r}

	switch r.Action {
	case ActionRename:
		if strings.Contains(r.Value, "*") {
			captured, ok := c.sel.capture(tg.Path)
			if !ok {
				return d, fmt.Errorf("cannot capture '*' from %s", tg.Path)
			}
			d.Value = strings.Replace(r.Value, "*", captured, 1)
		}
		if !common.IsIdent(d.Value) || common.IsRustKeyword(d.Value) {
			return d, fmt.Errorf("%q is not a valid identifier", d.Value)
		}
	case ActionReplace:
		p := r.Value
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return d, fmt.Errorf("replace file: %w", err)
		}
		d.Manual = string(data)
	}
	return d, nil
}

func (t *Table) suppress(id model.EntityID) {
	if t.suppressed[id] {
		return
	}
	t.suppressed[id] = true
	for _, mid := range t.m.Entity(id).Members {
		t.suppress(mid)
	}
}

// skipDependents drops entities whose types refer to a suppressed entity.
// A forced type on the referring parameter or field replaces the reference.
func (t *Table) skipDependents() diag.List {
	var diags diag.List
	for _, ns := range t.m.Namespaces {
		if t.rt.Failed(ns.ID) {
			continue
		}
		t.m.Walk(ns.ID, func(e *model.Entity) bool {
			if t.suppressed[e.ID] {
				return false
			}
			if e.Kind.IsComposite() || e.Kind == model.KindEnum || e.Kind == model.KindBitfield {
				return true
			}
			if ref, dep := t.suppressedRef(e); dep != "" {
				t.skipped[e.ID] = dep
				diags.Add(diag.Warnf(diag.SuppressedDependency, t.m.Path(e.ID), "%s refers to suppressed %s", ref, dep))
				return false
			}
			return true
		})
	}
	return diags
}

// suppressedRef finds the first type reference of e bound to a suppressed
// entity, returning the reference and the suppressed path.
func (t *Table) suppressedRef(e *model.Entity) (string, string) {
	check := func(path string, ref *model.TypeRef) (string, string) {
		if ref == nil {
			return "", ""
		}
		if _, forced := t.ForceType(path); forced {
			return "", ""
		}
		for _, r := range flatten(ref) {
			if target, ok := t.rt.Entity(r); ok && t.suppressed[target.ID] {
				return r.Name, t.m.Path(target.ID)
			}
		}
		return "", ""
	}

	path := t.m.Path(e.ID)
	if ref, dep := check(path, e.Type); dep != "" {
		return ref, dep
	}
	for _, c := range []*model.Callable{e.Callable, e.FieldCallee} {
		if c == nil {
			continue
		}
		params := append([]*model.Param{}, c.Params...)
		if c.Instance != nil {
			params = append(params, c.Instance)
		}
		params = append(params, c.Return)
		for _, p := range params {
			if ref, dep := check(t.m.ParamPath(e.ID, p), p.Type); dep != "" {
				return ref, dep
			}
		}
	}
	return "", ""
}

func flatten(ref *model.TypeRef) []*model.TypeRef {
	out := []*model.TypeRef{ref}
	for _, el := range ref.Elements {
		out = append(out, flatten(el)...)
	}
	return out
}

// Directive returns the effective directive of a path.
func (t *Table) Directive(path string) (Directive, bool) {
	d, ok := t.byPath[path]
	return d, ok
}

// ForceType returns the force-type directive of a typed path.
func (t *Table) ForceType(path string) (Directive, bool) {
	d, ok := t.byPath[path]
	if !ok || d.Action != ActionForceType {
		return Directive{}, false
	}
	return d, true
}

// Manual returns the manual binding that replaces an entity.
func (t *Table) Manual(id model.EntityID) (string, bool) {
	d, ok := t.byPath[t.m.Path(id)]
	if !ok || d.Action != ActionReplace {
		return "", false
	}
	return d.Manual, true
}

// Suppressed reports whether an entity is excluded from emission, either by
// a rule or because it depends on a suppressed entity.
func (t *Table) Suppressed(id model.EntityID) bool {
	if t.suppressed[id] {
		return true
	}
	_, skipped := t.skipped[id]
	return skipped
}

// Name returns the emitted name of an entity: the renamed name when a rename
// rule applies, the metadata name otherwise.
func (t *Table) Name(id model.EntityID) string {
	if n, ok := t.renames[id]; ok {
		return n
	}
	return t.m.Entity(id).Name
}

// Renamed reports whether an entity carries a rename.
func (t *Table) Renamed(id model.EntityID) bool {
	_, ok := t.renames[id]
	return ok
}

// ParamName returns the emitted name of a parameter.
func (t *Table) ParamName(id model.EntityID, p *model.Param) string {
	if d, ok := t.byPath[t.m.ParamPath(id, p)]; ok && d.Action == ActionRename {
		return d.Value
	}
	return p.Name
}

// Members returns the visible members of an entity, optionally filtered by
// kind.
func (t *Table) Members(id model.EntityID, kinds ...model.Kind) []*model.Entity {
	var out []*model.Entity
	for _, e := range t.m.Members(id, kinds...) {
		if !t.Suppressed(e.ID) {
			out = append(out, e)
		}
	}
	return out
}

// TopLevel returns the visible top-level entities of a namespace.
func (t *Table) TopLevel(ns model.NamespaceID) []*model.Entity {
	var out []*model.Entity
	for _, e := range t.m.TopLevel(ns) {
		if !t.Suppressed(e.ID) {
			out = append(out, e)
		}
	}
	return out
}

// Parent returns the nearest visible ancestor of a class. Suppressed
// ancestors are skipped over.
func (t *Table) Parent(id model.EntityID) (*model.Entity, bool) {
	cur := t.m.Entity(id)
	for cur.Parent != nil {
		p, ok := t.rt.Entity(cur.Parent)
		if !ok {
			return nil, false
		}
		if !t.Suppressed(p.ID) {
			return p, true
		}
		cur = p
	}
	return nil, false
}

// Capabilities returns the visible capability set of an entity.
func (t *Table) Capabilities(id model.EntityID) []model.EntityID {
	var out []model.EntityID
	for _, c := range t.rt.Capabilities(id) {
		if !t.Suppressed(c) {
			out = append(out, c)
		}
	}
	return out
}

// SuppressedPaths lists the paths removed from a namespace, sorted.
func (t *Table) SuppressedPaths(ns model.NamespaceID) []string {
	var out []string
	t.m.Walk(ns, func(e *model.Entity) bool {
		if t.Suppressed(e.ID) {
			out = append(out, t.m.Path(e.ID))
		}
		return true
	})
	slices.Sort(out)
	return out
}
