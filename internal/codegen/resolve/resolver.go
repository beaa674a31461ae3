package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/model"
	"github.com/Alia5/girgen/internal/log"
)

type Options struct {
	// Strict turns external and unknown references into errors.
	Strict bool
	// Jobs limits how many namespaces resolve at once; 0 means GOMAXPROCS.
	Jobs int
}

type Resolver struct {
	m      *model.Model
	opts   Options
	logger *slog.Logger
}

func New(m *model.Model, opts Options, logger *slog.Logger) *Resolver {
	return &Resolver{m: m, opts: opts, logger: logger}
}

// ResolveAll resolves every namespace in dependency order. Namespaces of one
// batch share no state and run concurrently. A namespace that fails aborts
// itself and its dependents only. The returned error is reserved for
// conditions that invalidate the whole run: conflicting namespace versions
// and cancellation.
func (r *Resolver) ResolveAll(ctx context.Context) (*Table, diag.List, error) {
	diags, err := checkVersions(r.m)
	if err != nil {
		return nil, diags, err
	}

	n := len(r.m.Namespaces)
	t := &Table{m: r.m, results: make([]*nsResult, n)}
	perNS := make([]diag.List, n)

	g := newGraph(r.m)
	batches, cyclic := g.batches()
	for _, id := range cyclic {
		ns := r.m.Namespace(id)
		t.results[id] = &nsResult{failed: true}
		if g.onCycle(id) {
			perNS[id].Add(diag.Errorf(diag.NamespaceCycle, ns.Name, "%s is part of an include cycle", ns))
		} else {
			perNS[id].Add(diag.Errorf(diag.DependencyFailed, ns.Name, "%s depends on a namespace in an include cycle", ns))
		}
	}

	for i, batch := range batches {
		eg, gctx := errgroup.WithContext(ctx)
		eg.SetLimit(r.jobs())
		for _, id := range batch {
			ns := r.m.Namespace(id)
			if dep := r.failedDependency(t, g, id); dep != nil {
				t.results[id] = &nsResult{failed: true}
				perNS[id].Add(diag.Errorf(diag.DependencyFailed, ns.Name, "dependency %s failed; %s is not generated", dep, ns))
				continue
			}
			if ns.Failed {
				t.results[id] = &nsResult{failed: true}
				continue
			}
			eg.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, d := r.resolveNamespace(gctx, ns)
				t.results[id] = res
				perNS[id] = d
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, diags, fmt.Errorf("resolve batch %d: %w", i, err)
		}
	}

	t.computeCapabilities()
	for _, d := range perNS {
		diags.Merge(d)
	}
	return t, diags, nil
}

func (r *Resolver) jobs() int {
	if r.opts.Jobs > 0 {
		return r.opts.Jobs
	}
	return runtime.GOMAXPROCS(0)
}

func (r *Resolver) failedDependency(t *Table, g *graph, id model.NamespaceID) *model.Namespace {
	for _, dep := range g.deps[id] {
		if res := t.results[dep]; res == nil || res.failed {
			return r.m.Namespace(dep)
		}
	}
	return nil
}

// worker resolves one namespace. Its result is written by this goroutine
// only and published when the batch completes.
type worker struct {
	r     *Resolver
	ctx   context.Context
	ns    *model.Namespace
	res   *nsResult
	diags diag.List
	ext   map[string]bool
}

func (r *Resolver) resolveNamespace(ctx context.Context, ns *model.Namespace) (*nsResult, diag.List) {
	w := &worker{
		r:   r,
		ctx: ctx,
		ns:  ns,
		res: &nsResult{memo: map[string]Resolution{}, finals: map[model.EntityID]Resolution{}},
		ext: map[string]bool{},
	}
	r.m.Walk(ns.ID, func(e *model.Entity) bool {
		for _, ref := range e.TypeRefs() {
			w.ref(e, ref)
		}
		return true
	})
	for _, id := range ns.Entities {
		if e := r.m.Entity(id); e.Kind == model.KindAlias {
			w.alias(e)
		}
	}

	for name := range w.ext {
		w.res.externals = append(w.res.externals, name)
	}
	slices.Sort(w.res.externals)
	r.logger.Debug("Resolved namespace", "namespace", ns.String(), "references", w.res.refs,
		"names", len(w.res.memo), "external", len(w.res.externals), "failed", w.res.failed)
	return w.res, w.diags
}

func (w *worker) ref(e *model.Entity, ref *model.TypeRef) {
	if ref.Name == "" || IsFundamental(ref.Name) {
		return
	}
	w.res.refs++
	if _, done := w.res.memo[ref.Name]; done {
		return
	}

	path := w.r.m.Path(e.ID)
	res := w.r.lookupName(w.ns, ref.Name)
	switch res.Kind {
	case KindExternal, KindUnknown:
		if w.r.opts.Strict {
			w.res.failed = true
			w.diags.Add(diag.Errorf(diag.UnresolvedReference, path, "cannot resolve %s (strict mode)", ref.Name).
				WithSuggestion("load the namespace that declares " + ref.Name + " or drop --strict"))
			res = Resolution{Kind: KindUnresolved, Entity: model.NoEntity, Name: ref.Name}
		} else if res.Kind == KindExternal {
			if res.Namespace != "" {
				w.ext[res.Namespace] = true
			}
			w.diags.Add(diag.Infof(diag.ExternalReference, path, "%s is not loaded; treated as an opaque handle", ref.Name))
		} else {
			w.diags.Add(diag.Warnf(diag.UnresolvedReference, path, "no loaded namespace declares %s; treated as an opaque handle", ref.Name))
		}
	}
	w.res.memo[ref.Name] = res
	w.r.logger.Log(w.ctx, log.LevelTrace, "Resolved reference", "namespace", w.ns.String(), "name", ref.Name, "resolution", res.String())
}

func (w *worker) alias(e *model.Entity) {
	final, cycle := w.r.follow(e.ID)
	if cycle != nil {
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = w.r.m.Path(id)
		}
		d := diag.Errorf(diag.CyclicTypeAlias, w.r.m.Path(e.ID), "alias chain %s cycles", strings.Join(names, " -> "))
		if w.r.opts.Strict {
			w.res.failed = true
			final = Resolution{Kind: KindUnresolved, Entity: model.NoEntity, Name: w.r.m.Path(e.ID)}
		} else {
			d = d.WithSuggestion("the alias is emitted as an opaque handle; add a force-type rule to pick its type")
			final = Resolution{Kind: KindExternal, Entity: model.NoEntity, Name: w.r.m.Path(e.ID)}
		}
		w.diags.Add(d)
	}
	w.res.finals[e.ID] = final
}

// follow walks an alias chain to its first non-alias target. When the chain
// revisits an alias, the cycle (closed, first element repeated at the end)
// is returned instead. follow reads only the immutable model.
func (r *Resolver) follow(id model.EntityID) (Resolution, []model.EntityID) {
	var chain []model.EntityID
	cur := id
	for {
		if i := slices.Index(chain, cur); i >= 0 {
			return Resolution{}, append(slices.Clone(chain[i:]), cur)
		}
		chain = append(chain, cur)
		e := r.m.Entity(cur)
		if e.Type == nil {
			return Resolution{Kind: KindUnresolved, Entity: model.NoEntity, Name: r.m.Path(cur)}, nil
		}
		if e.Type.Name == "" {
			return Resolution{Kind: KindFundamental, Entity: model.NoEntity, Name: e.Type.String()}, nil
		}
		res := r.lookupName(r.m.Namespace(e.Namespace), e.Type.Name)
		if res.Kind != KindEntity || r.m.Entity(res.Entity).Kind != model.KindAlias {
			return res, nil
		}
		cur = res.Entity
	}
}

// lookupName applies the lookup order: fundamentals, then the namespace
// named by a qualified reference, else the declaring namespace followed by
// its includes in declaration order. The first match wins.
func (r *Resolver) lookupName(ns *model.Namespace, name string) Resolution {
	if IsFundamental(name) {
		return Resolution{Kind: KindFundamental, Entity: model.NoEntity, Name: name}
	}

	nsName, short := model.SplitName(name)
	if nsName != "" {
		target := ns
		if nsName != ns.Name {
			target = r.namespaceFor(ns, nsName)
		}
		if target == nil {
			return Resolution{Kind: KindExternal, Entity: model.NoEntity, Namespace: nsName, Name: name}
		}
		if id, ok := target.Lookup(short); ok {
			return Resolution{Kind: KindEntity, Entity: id, Namespace: target.Name, Name: target.Name + "." + short}
		}
		return Resolution{Kind: KindUnknown, Entity: model.NoEntity, Namespace: nsName, Name: name}
	}

	if id, ok := ns.Lookup(name); ok {
		return Resolution{Kind: KindEntity, Entity: id, Namespace: ns.Name, Name: ns.Name + "." + name}
	}
	unloaded := false
	for _, inc := range ns.Includes {
		dep, ok := loadedInclude(r.m, inc)
		if !ok {
			unloaded = true
			continue
		}
		depNS := r.m.Namespace(dep)
		if id, ok := depNS.Lookup(name); ok {
			return Resolution{Kind: KindEntity, Entity: id, Namespace: depNS.Name, Name: depNS.Name + "." + name}
		}
	}
	if unloaded {
		return Resolution{Kind: KindExternal, Entity: model.NoEntity, Name: name}
	}
	return Resolution{Kind: KindUnknown, Entity: model.NoEntity, Name: ns.Name + "." + name}
}

// namespaceFor finds the loaded namespace a qualified reference names,
// preferring the version the declaring namespace includes.
func (r *Resolver) namespaceFor(ns *model.Namespace, name string) *model.Namespace {
	for _, inc := range ns.Includes {
		if inc.Name != name {
			continue
		}
		if id, ok := loadedInclude(r.m, inc); ok {
			return r.m.Namespace(id)
		}
		return nil
	}
	if loaded := r.m.NamespacesNamed(name); len(loaded) > 0 {
		return loaded[0]
	}
	return nil
}

func (t *Table) computeCapabilities() {
	t.caps = map[model.EntityID][]model.EntityID{}
	t.capSet = map[model.EntityID]map[model.EntityID]bool{}
	for _, ns := range t.m.Namespaces {
		if t.Failed(ns.ID) {
			continue
		}
		for _, id := range ns.Entities {
			e := t.m.Entity(id)
			if !e.Kind.IsComposite() {
				continue
			}
			caps := t.capabilitiesOf(e)
			if len(caps) == 0 {
				continue
			}
			t.caps[id] = caps
			set := make(map[model.EntityID]bool, len(caps))
			for _, c := range caps {
				set[c] = true
			}
			t.capSet[id] = set
		}
	}
}

func (t *Table) capabilitiesOf(e *model.Entity) []model.EntityID {
	seen := map[model.EntityID]bool{e.ID: true}
	var out []model.EntityID

	lineage := []*model.Entity{e}
	for cur := e; cur.Parent != nil; {
		p, ok := t.Entity(cur.Parent)
		if !ok || seen[p.ID] {
			break
		}
		seen[p.ID] = true
		out = append(out, p.ID)
		lineage = append(lineage, p)
		cur = p
	}

	var queue []*model.TypeRef
	for _, l := range lineage {
		queue = append(queue, l.Implements...)
		queue = append(queue, l.Prerequisites...)
	}
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		x, ok := t.Entity(ref)
		if !ok || seen[x.ID] {
			continue
		}
		seen[x.ID] = true
		out = append(out, x.ID)
		if x.Parent != nil {
			queue = append(queue, x.Parent)
		}
		queue = append(queue, x.Implements...)
		queue = append(queue, x.Prerequisites...)
	}
	return out
}
