// Package generator runs the pipeline from GIR files to generated crates:
// load, build, resolve, apply overrides, map and emit.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Alia5/girgen/internal/codegen/common"
	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/generator/rust"
	"github.com/Alia5/girgen/internal/codegen/mapping"
	"github.com/Alia5/girgen/internal/codegen/model"
	"github.com/Alia5/girgen/internal/codegen/overrides"
	"github.com/Alia5/girgen/internal/codegen/resolve"
	"github.com/Alia5/girgen/internal/gir"
)

// SummaryFile is written to the output root after every run that got as far
// as emission.
const SummaryFile = "summary.json"

type Options struct {
	// GIRPaths are the input documents; their namespaces are generated.
	GIRPaths []string
	// IncludeDirs are searched for included repositories.
	IncludeDirs []string
	// Namespaces restricts generation to the named input namespaces, given
	// as "Name" or "Name-Version".
	Namespaces []string
	Output     string
	// Overrides is a TOML or YAML rule file.
	Overrides string
	Templates string
	Strict    bool
	Jobs      int
}

type Generator struct {
	opts   Options
	logger *slog.Logger
}

// FatalError ends a run before every requested namespace was considered.
// The summary returned alongside it holds the diagnostics gathered so far.
type FatalError struct {
	Phase string
	Err   error
}

func (e *FatalError) Error() string { return e.Phase + ": " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

func New(opts Options, logger *slog.Logger) *Generator {
	return &Generator{opts: opts, logger: logger}
}

// Run executes one generation run. The returned summary is never nil. A
// non-nil error is always a *FatalError; per entity and per namespace
// problems are reported in the summary only.
func (g *Generator) Run(ctx context.Context) (*diag.Summary, error) {
	s := &diag.Summary{}
	fatal := func(phase string, err error) (*diag.Summary, error) {
		s.Finalize()
		g.logger.Error("Generation aborted", "phase", phase, "error", err)
		return s, &FatalError{Phase: phase, Err: err}
	}
	if len(g.opts.GIRPaths) == 0 {
		return fatal("load", errors.New("no GIR input given"))
	}

	g.logger.Debug("Loading GIR files", "inputs", len(g.opts.GIRPaths), "include_dirs", g.opts.IncludeDirs)
	docs, missing, failed, err := gir.Load(g.opts.GIRPaths, g.opts.IncludeDirs)
	if err != nil {
		s.Diagnostics.Add(parseDiagnostic(err))
		return fatal("load", err)
	}
	for _, inc := range missing {
		g.logger.Info("Included repository not found, its types stay external", "include", inc.String())
	}
	for _, f := range failed {
		s.Diagnostics.Add(parseDiagnostic(f.Err))
		g.logger.Warn("Included repository could not be parsed", "include", f.Include.String(), "file", f.Path, "error", f.Err)
	}
	g.logger.Info("Loaded GIR files", "documents", len(docs), "missing", len(missing))

	m, diags := model.Build(docs)
	s.Diagnostics.Merge(diags)
	g.logger.Info("Built metadata model", "namespaces", len(m.Namespaces), "entities", len(m.Entities))

	targets, err := g.targets(m)
	if err != nil {
		return fatal("select", err)
	}

	rt, diags, err := resolve.New(m, resolve.Options{Strict: g.opts.Strict, Jobs: g.opts.Jobs}, g.logger).ResolveAll(ctx)
	s.Diagnostics.Merge(diags)
	if err != nil {
		return fatal("resolve", err)
	}

	ot, err := g.overrides(rt, s)
	if err != nil {
		return fatal("overrides", err)
	}

	emitter, err := rust.New(g.logger, rust.Options{TemplateDir: g.opts.Templates, Jobs: g.opts.Jobs})
	if err != nil {
		var te *rust.TemplateError
		if errors.As(err, &te) {
			s.Diagnostics.Add(diag.Errorf(diag.TemplateError, te.Template, "%v", te.Err).WithFile(te.File, 0))
		}
		return fatal("templates", err)
	}

	var ids []model.NamespaceID
	for _, ns := range targets {
		if rt.Failed(ns.ID) {
			g.logger.Warn("Skipping failed namespace", "namespace", ns.String())
			s.Namespaces = append(s.Namespaces, &diag.NamespaceSummary{
				Namespace: ns.Name,
				Version:   ns.Version,
				Crate:     common.CrateName(ns.Name, ns.Version),
				Status:    diag.StatusFailed,
			})
			continue
		}
		ids = append(ids, ns.ID)
	}

	mapped, err := mapping.MapAll(ctx, rt, ot, ids, g.opts.Jobs, g.logger)
	if err != nil {
		return fatal("map", err)
	}
	for _, ns := range mapped {
		s.Diagnostics.Merge(ns.Diags)
		entry := &diag.NamespaceSummary{
			Namespace:  ns.Name,
			Version:    ns.Version,
			Crate:      ns.Crate,
			Unmapped:   ns.Unmapped,
			Suppressed: ns.Suppressed,
		}
		s.Namespaces = append(s.Namespaces, entry)

		res, err := emitter.Emit(ctx, g.opts.Output, ns)
		var te *rust.TemplateError
		var oe *rust.OutputError
		switch {
		case errors.As(err, &te):
			s.Diagnostics.Add(diag.Errorf(diag.TemplateError, ns.Name, "%v", te.Err).WithFile(te.File, 0).
				WithSuggestion("check template " + te.Template))
			entry.Status = diag.StatusFailed
			g.logger.Error("Emission failed", "namespace", ns.Name+"-"+ns.Version, "error", err)
			continue
		case errors.As(err, &oe):
			s.Diagnostics.Add(diag.Errorf(diag.OutputError, ns.Name, "%v", oe.Err).WithFile(oe.Path, 0))
			entry.Status = diag.StatusFailed
			if res != nil {
				entry.Files = res.Files
			}
			g.logger.Error("Writing crate failed", "namespace", ns.Name+"-"+ns.Version, "error", err)
			continue
		case err != nil:
			entry.Status = diag.StatusFailed
			return fatal("emit", err)
		}
		entry.Files = res.Files
	}

	for _, entry := range s.Namespaces {
		entry.Errored = errored(s.Diagnostics, entry.Namespace)
		if entry.Status != "" {
			continue
		}
		if len(entry.Errored) > 0 || len(entry.Unmapped) > 0 {
			entry.Status = diag.StatusPartial
		} else {
			entry.Status = diag.StatusGenerated
		}
	}

	data, err := s.JSON()
	if err != nil {
		return fatal("summary", err)
	}
	path := filepath.Join(g.opts.Output, SummaryFile)
	if _, err := common.WriteFileAtomic(path, data); err != nil {
		s.Diagnostics.Add(diag.Errorf(diag.OutputError, "", "%v", err).WithFile(path, 0))
		return fatal("summary", err)
	}
	g.logger.Info("Generation complete", "output", g.opts.Output, "namespaces", len(s.Namespaces),
		"errors", s.Counts.Errors, "warnings", s.Counts.Warnings)
	return s, nil
}

// targets returns the namespaces to generate: those declared by the input
// files, filtered by Options.Namespaces.
func (g *Generator) targets(m *model.Model) ([]*model.Namespace, error) {
	inputs := map[string]bool{}
	for _, p := range g.opts.GIRPaths {
		inputs[p] = true
	}
	var out []*model.Namespace
	for _, ns := range m.Namespaces {
		if inputs[ns.Source] {
			out = append(out, ns)
		}
	}
	if len(g.opts.Namespaces) == 0 {
		return out, nil
	}

	var selected []*model.Namespace
	for _, want := range g.opts.Namespaces {
		i := slices.IndexFunc(out, func(ns *model.Namespace) bool {
			return ns.Name == want || ns.String() == want
		})
		if i < 0 {
			return nil, fmt.Errorf("namespace %s is not declared by any input file", want)
		}
		if !slices.Contains(selected, out[i]) {
			selected = append(selected, out[i])
		}
	}
	return selected, nil
}

func (g *Generator) overrides(rt *resolve.Table, s *diag.Summary) (*overrides.Table, error) {
	if g.opts.Overrides == "" {
		return overrides.Empty(rt), nil
	}
	rs, err := overrides.Load(g.opts.Overrides)
	if err != nil {
		return nil, err
	}
	ot, diags, err := overrides.Compile(rs, rt)
	s.Diagnostics.Merge(diags)
	if err != nil {
		return nil, err
	}
	g.logger.Info("Compiled override rules", "file", g.opts.Overrides, "rules", len(rs.Rules))
	return ot, nil
}

func parseDiagnostic(err error) *diag.Diagnostic {
	var pe *gir.ParseError
	if errors.As(err, &pe) {
		return diag.Errorf(diag.ParseError, "", "%v", pe.Err).WithFile(pe.File, pe.Line)
	}
	return diag.Errorf(diag.ParseError, "", "%v", err)
}

// errored lists the entity paths of a namespace with an error diagnostic.
func errored(diags diag.List, ns string) []string {
	var out []string
	for _, d := range diags {
		if d.Severity != diag.SeverityError {
			continue
		}
		if d.Path == ns || strings.HasPrefix(d.Path, ns+".") {
			out = append(out, d.Path)
		}
	}
	return out
}
