package resolve

import (
	"fmt"
	"sort"

	"golang.org/x/mod/semver"

	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/model"
)

// VersionConflictError reports two versions of one namespace in a run. The
// run cannot continue because unqualified and qualified references alike
// would depend on which version happens to be consulted.
type VersionConflictError struct {
	Namespace string
	Versions  []string
	// RequestedBy is the namespace whose include asked for a version that
	// is not loaded, empty when two versions were loaded directly.
	RequestedBy string
}

func (e *VersionConflictError) Error() string {
	newer := e.Newer()
	if e.RequestedBy != "" {
		return fmt.Sprintf("%s requires %s-%s but %s-%s is loaded (%s is newer)",
			e.RequestedBy, e.Namespace, e.Versions[1], e.Namespace, e.Versions[0], newer)
	}
	return fmt.Sprintf("namespace %s is loaded at versions %v (%s is newer)", e.Namespace, e.Versions, newer)
}

// Newer returns the highest version involved in the conflict.
func (e *VersionConflictError) Newer() string {
	vs := append([]string(nil), e.Versions...)
	sortVersions(vs)
	return vs[len(vs)-1]
}

// sortVersions orders GIR versions ("2.0", "3.24") ascending. Versions
// semver cannot parse sort after valid ones, lexically.
func sortVersions(vs []string) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := "v"+vs[i], "v"+vs[j]
		va, vb := semver.IsValid(a), semver.IsValid(b)
		switch {
		case va && vb:
			if c := semver.Compare(a, b); c != 0 {
				return c < 0
			}
			return vs[i] < vs[j]
		case va != vb:
			return va
		default:
			return vs[i] < vs[j]
		}
	})
}

// checkVersions fails fast on namespace version conflicts. Every conflict is
// reported; the returned error describes the first one in namespace order.
func checkVersions(m *model.Model) (diag.List, error) {
	var diags diag.List
	var first error
	seen := map[string]bool{}

	for _, ns := range m.Namespaces {
		if seen[ns.Name] {
			continue
		}
		seen[ns.Name] = true
		all := m.NamespacesNamed(ns.Name)
		if len(all) < 2 {
			continue
		}
		var versions []string
		for _, n := range all {
			versions = append(versions, n.Version)
		}
		sortVersions(versions)
		err := &VersionConflictError{Namespace: ns.Name, Versions: versions}
		diags.Add(diag.Errorf(diag.AmbiguousNamespaceVersion, ns.Name, "%s", err.Error()).
			WithSuggestion("load a single version of " + ns.Name))
		if first == nil {
			first = err
		}
	}

	for _, ns := range m.Namespaces {
		for _, inc := range ns.Includes {
			loaded := m.NamespacesNamed(inc.Name)
			if len(loaded) != 1 || loaded[0].Version == inc.Version {
				continue
			}
			err := &VersionConflictError{
				Namespace:   inc.Name,
				Versions:    []string{loaded[0].Version, inc.Version},
				RequestedBy: ns.String(),
			}
			diags.Add(diag.Errorf(diag.AmbiguousNamespaceVersion, ns.Name, "%s", err.Error()).
				WithExpected(inc.String()).
				WithActual(loaded[0].String()))
			if first == nil {
				first = err
			}
		}
	}
	return diags, first
}
