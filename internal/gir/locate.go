package gir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Locate when no include directory holds the file.
var ErrNotFound = errors.New("GIR file not found")

// Include is a <include name=".." version=".."/> reference of a repository.
type Include struct {
	Name    string
	Version string
}

func (i Include) String() string { return i.Name + "-" + i.Version }

// FileName is the conventional file name of an included repository.
func (i Include) FileName() string { return i.String() + ".gir" }

// Document is a parsed GIR file.
type Document struct {
	Path string
	Root *Node
}

// Includes lists the repository-level includes in declaration order.
func (d *Document) Includes() []Include {
	var out []Include
	for _, n := range d.Root.ChildrenNamed("include") {
		out = append(out, Include{Name: n.Attr("name"), Version: n.Attr("version")})
	}
	return out
}

// Failure records a document that was found but could not be parsed.
type Failure struct {
	Include Include
	Path    string
	Err     error
}

// Locate finds Name-Version.gir in the first include directory holding it.
func Locate(name, version string, dirs []string) (string, error) {
	file := Include{Name: name, Version: version}.FileName()
	for _, dir := range dirs {
		p := filepath.Join(dir, file)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s in %v: %w", file, dirs, ErrNotFound)
}

// Load parses the given files and, transitively, every repository they
// include that can be found in includeDirs. Includes that cannot be located
// are returned in missing; their namespaces stay unloaded. Documents that exist
// but fail to parse are returned in failed. An error is returned only when
// one of the explicitly requested paths cannot be read or parsed.
func Load(paths, includeDirs []string) (docs []*Document, missing []Include, failed []Failure, err error) {
	seen := map[string]bool{}
	var queue []Include

	enqueue := func(d *Document) {
		for _, inc := range d.Includes() {
			if !seen[inc.String()] {
				seen[inc.String()] = true
				queue = append(queue, inc)
			}
		}
	}

	for _, p := range paths {
		root, err := ParseFile(p)
		if err != nil {
			return nil, nil, nil, err
		}
		d := &Document{Path: p, Root: root}
		for _, ns := range root.ChildrenNamed("namespace") {
			seen[Include{Name: ns.Attr("name"), Version: ns.Attr("version")}.String()] = true
		}
		docs = append(docs, d)
	}
	for _, d := range docs {
		enqueue(d)
	}

	for len(queue) > 0 {
		inc := queue[0]
		queue = queue[1:]

		p, err := Locate(inc.Name, inc.Version, includeDirs)
		if err != nil {
			missing = append(missing, inc)
			continue
		}
		root, err := ParseFile(p)
		if err != nil {
			failed = append(failed, Failure{Include: inc, Path: p, Err: err})
			continue
		}
		d := &Document{Path: p, Root: root}
		docs = append(docs, d)
		enqueue(d)
	}
	return docs, missing, failed, nil
}
