// Package rust renders mapped namespaces as Rust crates.
//
// Each namespace becomes one crate with a raw layer (src/ffi.rs), a small
// runtime of conversion helpers (src/runtime.rs) and one module per wrapper
// type. Rendering is a pure function of the mapped namespace, so unchanged
// inputs produce byte-identical trees.
package rust

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"golang.org/x/sync/errgroup"

	"github.com/Alia5/girgen/internal/codegen/common"
	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/mapping"
	"github.com/Alia5/girgen/internal/log"
)

type Options struct {
	// TemplateDir holds NAME.tmpl files replacing the default templates.
	TemplateDir string
	// Jobs limits concurrent rendering; zero means GOMAXPROCS.
	Jobs int
}

// Emitter writes crates. Its templates are parsed once and shared by every
// namespace, which makes an Emitter safe for concurrent use.
type Emitter struct {
	logger *slog.Logger
	tmpl   *template.Template
	jobs   int
}

// OutputError is a file of the generated tree that could not be written.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string { return fmt.Sprintf("write %s: %v", e.Path, e.Err) }

func (e *OutputError) Unwrap() error { return e.Err }

// Result describes one emitted crate. File paths are relative to the output
// root and use forward slashes.
type Result struct {
	Crate   string
	Dir     string
	Files   []diag.FileEntry
	Written int
	// Removed lists generated sources of earlier runs that this run no
	// longer emits and that were deleted.
	Removed []string
}

// generatedMarker starts every generated Rust source. Files in src/ without it
// belong to the user and are never removed.
const generatedMarker = "// Code generated by girgen"

func New(logger *slog.Logger, opts Options) (*Emitter, error) {
	tmpl, err := loadTemplates(logger, opts.TemplateDir)
	if err != nil {
		return nil, err
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	return &Emitter{logger: logger, tmpl: tmpl, jobs: jobs}, nil
}

type job struct {
	file string
	tmpl string
	data any
}

// jobs lists every file of a crate in a fixed order.
func jobs(ns *mapping.Namespace) []job {
	cv := newCrateView(ns)
	out := []job{
		{"Cargo.toml", "cargo", newCargoView(ns)},
		{"README.md", "readme", newReadmeView(ns)},
		{"src/lib.rs", "lib", newLibView(ns)},
		{"src/ffi.rs", "ffi", ffiView{crateView: cv, Raw: ns.Raw, Links: ns.Links}},
		{"src/runtime.rs", "runtime", cv},
	}
	for _, t := range ns.Types {
		out = append(out, job{"src/" + t.File + ".rs", templateFor(t.Kind), newTypeView(ns, t)})
	}
	for _, e := range ns.Enums {
		name := "enum"
		if e.Bitfield {
			name = "bitfield"
		}
		out = append(out, job{"src/" + e.File + ".rs", name, newEnumView(ns, e)})
	}
	for _, c := range ns.Callbacks {
		out = append(out, job{"src/" + c.File + ".rs", "callback", newCallbackView(ns, c)})
	}
	if len(ns.Functions) > 0 || len(ns.ManualFunctions) > 0 {
		out = append(out, job{"src/functions.rs", "functions", newFunctionsView(ns)})
	}
	if len(ns.Constants) > 0 {
		out = append(out, job{"src/constants.rs", "constants", newConstantsView(ns)})
	}
	return out
}

// Render returns the paths inside the crate and the contents of every file of
// a crate, in emission order.
func (e *Emitter) Render(ctx context.Context, ns *mapping.Namespace) ([]string, [][]byte, error) {
	js := jobs(ns)
	files := make([]string, len(js))
	out := make([][]byte, len(js))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.jobs)
	for i, j := range js {
		files[i] = j.file
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := e.tmpl.ExecuteTemplate(&buf, j.tmpl+".tmpl", j.data); err != nil {
				return &TemplateError{Template: j.tmpl, File: ns.Crate + "/" + j.file, Err: err}
			}
			out[i] = tidy(buf.Bytes())
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return files, out, nil
}

// Emit renders a crate and writes it below root. Files whose content did not
// change are left untouched.
func (e *Emitter) Emit(ctx context.Context, root string, ns *mapping.Namespace) (*Result, error) {
	e.logger.Debug("Generating crate", "namespace", ns.Name+"-"+ns.Version, "crate", ns.Crate)
	dir, err := common.JoinWithin(root, ns.Crate)
	if err != nil {
		return nil, &OutputError{Path: ns.Crate, Err: err}
	}
	files, contents, err := e.Render(ctx, ns)
	if err != nil {
		return nil, err
	}

	res := &Result{Crate: ns.Crate, Dir: dir}
	for i, file := range files {
		path := filepath.Join(dir, filepath.FromSlash(file))
		written, err := common.WriteFileAtomic(path, contents[i])
		if err != nil {
			return res, &OutputError{Path: path, Err: err}
		}
		res.Files = append(res.Files, diag.FileEntry{Path: ns.Crate + "/" + file, Digest: common.Digest(contents[i])})
		if written {
			res.Written++
			e.logger.Log(ctx, log.LevelTrace, "Wrote file", "file", path)
		}
	}
	if err := e.prune(ctx, dir, files, res); err != nil {
		return res, err
	}
	e.logger.Info("Generated crate", "crate", ns.Crate, "dir", dir, "files", len(files), "written", res.Written,
		"removed", len(res.Removed))
	return res, nil
}

// prune deletes generated sources below dir/src that are not in files.
func (e *Emitter) prune(ctx context.Context, dir string, files []string, res *Result) error {
	src := filepath.Join(dir, "src")
	entries, err := os.ReadDir(src)
	if err != nil {
		return &OutputError{Path: src, Err: err}
	}
	keep := make(map[string]bool, len(files))
	for _, f := range files {
		keep[f] = true
	}
	for _, de := range entries {
		rel := "src/" + de.Name()
		if de.IsDir() || filepath.Ext(de.Name()) != ".rs" || keep[rel] {
			continue
		}
		path := filepath.Join(src, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return &OutputError{Path: path, Err: err}
		}
		if !bytes.HasPrefix(data, []byte(generatedMarker)) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return &OutputError{Path: path, Err: err}
		}
		res.Removed = append(res.Removed, res.Crate+"/"+rel)
		e.logger.Log(ctx, log.LevelTrace, "Removed stale file", "file", path)
	}
	return nil
}
