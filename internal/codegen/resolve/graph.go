package resolve

import (
	"slices"

	"github.com/Alia5/girgen/internal/codegen/model"
)

// graph is the include graph between loaded namespaces. Includes of
// namespaces that are not loaded are not edges; their references resolve as
// external.
type graph struct {
	deps       [][]model.NamespaceID
	dependents [][]model.NamespaceID
}

func newGraph(m *model.Model) *graph {
	g := &graph{
		deps:       make([][]model.NamespaceID, len(m.Namespaces)),
		dependents: make([][]model.NamespaceID, len(m.Namespaces)),
	}
	for _, ns := range m.Namespaces {
		for _, inc := range ns.Includes {
			dep, ok := loadedInclude(m, inc)
			if !ok || dep == ns.ID {
				continue
			}
			g.deps[ns.ID] = append(g.deps[ns.ID], dep)
			g.dependents[dep] = append(g.dependents[dep], ns.ID)
		}
	}
	return g
}

// loadedInclude finds the loaded namespace an include refers to.
func loadedInclude(m *model.Model, inc model.Include) (model.NamespaceID, bool) {
	for _, ns := range m.Namespaces {
		if ns.Name == inc.Name && ns.Version == inc.Version {
			return ns.ID, true
		}
	}
	return 0, false
}

// batches orders namespaces with Kahn's algorithm. Each batch holds the
// namespaces whose dependencies all sit in earlier batches, in namespace
// order. Namespaces that never become ready lie on or behind a cycle and
// are returned separately.
func (g *graph) batches() (batches [][]model.NamespaceID, cyclic []model.NamespaceID) {
	inDegree := make([]int, len(g.deps))
	var ready []model.NamespaceID
	for id, deps := range g.deps {
		inDegree[id] = len(deps)
		if len(deps) == 0 {
			ready = append(ready, model.NamespaceID(id))
		}
	}

	done := 0
	for len(ready) > 0 {
		batches = append(batches, ready)
		done += len(ready)
		var next []model.NamespaceID
		for _, id := range ready {
			for _, dependent := range g.dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		slices.Sort(next)
		ready = next
	}

	if done != len(g.deps) {
		for id, degree := range inDegree {
			if degree > 0 {
				cyclic = append(cyclic, model.NamespaceID(id))
			}
		}
	}
	return batches, cyclic
}

// onCycle reports whether id can reach itself through its dependencies.
func (g *graph) onCycle(id model.NamespaceID) bool {
	seen := make([]bool, len(g.deps))
	stack := append([]model.NamespaceID(nil), g.deps[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == id {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, g.deps[cur]...)
	}
	return false
}
