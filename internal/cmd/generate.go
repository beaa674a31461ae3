package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Alia5/girgen/internal/codegen/diag"
	"github.com/Alia5/girgen/internal/codegen/generator"
)

type Generate struct {
	GIR          []string `name:"gir" help:"GIR file to generate bindings for (repeatable)" required:"" type:"existingfile" env:"GIRGEN_GIR"`
	IncludeDir   []string `help:"Directory searched for included GIR files (repeatable)" default:"/usr/share/gir-1.0" type:"path" env:"GIRGEN_INCLUDE_DIR"`
	Namespace    []string `help:"Only generate these input namespaces (Name or Name-Version)" env:"GIRGEN_NAMESPACE"`
	Output       string   `help:"Output directory; one crate per namespace is written below it" default:"./bindings" type:"path" env:"GIRGEN_OUTPUT"`
	Overrides    string   `help:"Override rule file (.toml, .yaml or .yml)" type:"path" env:"GIRGEN_OVERRIDES"`
	Templates    string   `help:"Directory with NAME.tmpl files replacing default templates" type:"path" env:"GIRGEN_TEMPLATE_DIR"`
	Strict       bool     `help:"Treat references to unloaded namespaces as errors" env:"GIRGEN_STRICT"`
	Jobs         int      `help:"Concurrent workers per phase; 0 uses all CPUs" default:"0" env:"GIRGEN_JOBS"`
	AllowPartial bool     `help:"Exit 0 when entities were skipped as unmappable" env:"GIRGEN_ALLOW_PARTIAL"`
	NoColor      bool     `help:"Disable coloured report output" env:"GIRGEN_NO_COLOR"`
	Format       string   `name:"summary-format" help:"Report format printed after the run" enum:"text,json" default:"text" env:"GIRGEN_SUMMARY_FORMAT"`
}

// ExitError ends the process with Code. It is returned when a run finished
// but the result should fail a build.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string { return e.Reason }

func (e *ExitError) ExitCode() int { return e.Code }

// Run is called by Kong when the generate command is executed.
func (g *Generate) Run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return g.Execute(ctx, logger, os.Stdout)
}

// Execute runs the generator and prints the report to w.
func (g *Generate) Execute(ctx context.Context, logger *slog.Logger, w io.Writer) error {
	logger.Info("Starting binding generation", "inputs", len(g.GIR), "output", g.Output, "strict", g.Strict)

	gen := generator.New(generator.Options{
		GIRPaths:    g.GIR,
		IncludeDirs: g.IncludeDir,
		Namespaces:  g.Namespace,
		Output:      g.Output,
		Overrides:   g.Overrides,
		Templates:   g.Templates,
		Strict:      g.Strict,
		Jobs:        g.Jobs,
	}, logger)
	s, runErr := gen.Run(ctx)

	if err := g.report(w, s); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return exitStatus(s, g.AllowPartial)
}

func (g *Generate) report(w io.Writer, s *diag.Summary) error {
	if g.Format == "json" {
		data, err := s.JSON()
		if err != nil {
			return fmt.Errorf("render summary: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	noColor := g.NoColor
	if f, ok := w.(*os.File); !ok || !diag.ColorEnabled(f) {
		noColor = true
	}
	diag.Report(w, s, diag.ReportOptions{NoColor: noColor})
	return nil
}

// exitStatus fails a finished run with exit code 2 when any error was
// reported, or when entities were skipped and partial output is not allowed.
func exitStatus(s *diag.Summary, allowPartial bool) error {
	if s.Counts.Errors > 0 {
		return &ExitError{Code: 2, Reason: fmt.Sprintf("generation reported %d error(s)", s.Counts.Errors)}
	}
	if !allowPartial && s.Counts.Unmapped > 0 {
		return &ExitError{Code: 2, Reason: fmt.Sprintf("%d entities could not be mapped (use --allow-partial to accept)", s.Counts.Unmapped)}
	}
	return nil
}
