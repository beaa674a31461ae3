package diag

import (
	"encoding/json"
	"sort"
)

// Namespace generation status values.
const (
	StatusGenerated = "generated"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// FileEntry is one emitted file.
type FileEntry struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
}

// NamespaceSummary describes the outcome for one namespace.
type NamespaceSummary struct {
	Namespace  string      `json:"namespace"`
	Version    string      `json:"version"`
	Crate      string      `json:"crate"`
	Status     string      `json:"status"`
	Files      []FileEntry `json:"files"`
	Unmapped   []string    `json:"unmapped"`
	Suppressed []string    `json:"suppressed"`
	Errored    []string    `json:"errored"`
}

// Counts aggregates a run.
type Counts struct {
	Errors     int `json:"errors"`
	Warnings   int `json:"warnings"`
	Info       int `json:"info"`
	Unmapped   int `json:"unmapped"`
	Suppressed int `json:"suppressed"`
}

// Summary is the machine readable result of a run. It holds no timestamps so
// identical runs produce identical summaries.
type Summary struct {
	Namespaces  []*NamespaceSummary `json:"namespaces"`
	Diagnostics List                `json:"diagnostics"`
	Counts      Counts              `json:"counts"`
}

// Namespace returns the entry for name, or nil.
func (s *Summary) Namespace(name string) *NamespaceSummary {
	for _, ns := range s.Namespaces {
		if ns.Namespace == name {
			return ns
		}
	}
	return nil
}

// Finalize sorts every list and recomputes the aggregate counts.
func (s *Summary) Finalize() {
	sort.Slice(s.Namespaces, func(i, j int) bool {
		return s.Namespaces[i].Namespace < s.Namespaces[j].Namespace
	})
	s.Counts = Counts{}
	for _, ns := range s.Namespaces {
		sort.Slice(ns.Files, func(i, j int) bool { return ns.Files[i].Path < ns.Files[j].Path })
		ns.Unmapped = sortedUnique(ns.Unmapped)
		ns.Suppressed = sortedUnique(ns.Suppressed)
		ns.Errored = sortedUnique(ns.Errored)
		if ns.Files == nil {
			ns.Files = []FileEntry{}
		}
		s.Counts.Unmapped += len(ns.Unmapped)
		s.Counts.Suppressed += len(ns.Suppressed)
	}
	s.Diagnostics = s.Diagnostics.Sorted()
	s.Counts.Errors, s.Counts.Warnings, s.Counts.Info = s.Diagnostics.Count()
}

// JSON renders the finalized summary.
func (s *Summary) JSON() ([]byte, error) {
	s.Finalize()
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func sortedUnique(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
