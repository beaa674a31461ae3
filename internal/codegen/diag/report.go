package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ReportOptions configures the terminal report.
type ReportOptions struct {
	NoColor bool
	// MinSeverity hides less severe diagnostics. Empty shows everything.
	MinSeverity Severity
}

// ColorEnabled reports whether f is a terminal that should receive colour.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Report writes one line per diagnostic, sorted by entity path, followed by
// the aggregate counts.
//
// Example output:
//
//	error   MAP301 Demo.Widget.add_many: UnmappableType: varargs cannot be represented
//	warning OVR402 Demo.Missing.*: DanglingOverride: rule matches no entity
//
//	1 error(s), 1 warning(s), 0 info
func Report(w io.Writer, s *Summary, opts ReportOptions) {
	errColor := color.New(color.FgRed, color.Bold)
	warnColor := color.New(color.FgYellow, color.Bold)
	infoColor := color.New(color.FgCyan)
	pathColor := color.New(color.Bold)
	if opts.NoColor {
		for _, c := range []*color.Color{errColor, warnColor, infoColor, pathColor} {
			c.DisableColor()
		}
	} else {
		for _, c := range []*color.Color{errColor, warnColor, infoColor, pathColor} {
			c.EnableColor()
		}
	}

	for _, d := range s.Diagnostics.Sorted() {
		if !visible(d.Severity, opts.MinSeverity) {
			continue
		}
		var sev *color.Color
		switch d.Severity {
		case SeverityError:
			sev = errColor
		case SeverityWarning:
			sev = warnColor
		default:
			sev = infoColor
		}
		sev.Fprintf(w, "%-7s %s ", d.Severity, d.Code)
		if d.Path != "" {
			pathColor.Fprint(w, d.Path)
			fmt.Fprint(w, ": ")
		}
		fmt.Fprintf(w, "%s: %s\n", d.Type, d.Message)
		if d.Suggestion != "" {
			fmt.Fprintf(w, "        → %s\n", d.Suggestion)
		}
	}

	for _, ns := range s.Namespaces {
		fmt.Fprintf(w, "%s-%s: %s (%d files, %d unmapped, %d suppressed)\n",
			ns.Namespace, ns.Version, ns.Status, len(ns.Files), len(ns.Unmapped), len(ns.Suppressed))
	}

	errs, warns, info := s.Diagnostics.Count()
	summary := fmt.Sprintf("%d error(s), %d warning(s), %d info\n", errs, warns, info)
	switch {
	case errs > 0:
		errColor.Fprint(w, summary)
	case warns > 0:
		warnColor.Fprint(w, summary)
	default:
		fmt.Fprint(w, summary)
	}
}

func visible(s, threshold Severity) bool {
	rank := map[Severity]int{SeverityInfo: 0, SeverityWarning: 1, SeverityError: 2}
	return rank[s] >= rank[threshold]
}
