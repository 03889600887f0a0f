package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/clapval/internal/result"
)

// renderReport writes the human-readable form of a report. The tally
// covers the full run even when r has been narrowed by --only-failed.
func renderReport(f *OutputFormatter, r *result.Report, tally result.Tally) error {
	w := &errWriter{w: f.Writer}
	st := f.Styles()

	for _, msg := range r.ConfigErrors {
		w.printf("%s %s\n", st.Status(result.StatusSetupError), "config: "+msg)
	}
	if len(r.ConfigErrors) > 0 {
		w.printf("\n")
	}

	for _, m := range r.Modules {
		title := m.Path
		if m.Version != "" {
			title += " (CLAP " + m.Version + ")"
		}
		w.printf("%s\n", st.Heading.Render(title))
		if m.SetupError != "" {
			w.printf("  %s %s\n", st.Status(result.StatusSetupError), m.SetupError)
		}
		if len(m.LibraryOutcomes) > 0 {
			w.printf("  %s\n", st.Subtle.Render("library"))
			for _, o := range m.LibraryOutcomes {
				renderOutcome(w, st, o, f.Verbose)
			}
		}
		for _, p := range m.Plugins {
			w.printf("  %s\n", pluginTitle(p))
			for _, o := range p.Outcomes {
				renderOutcome(w, st, o, f.Verbose)
			}
		}
		w.printf("\n")
	}

	w.printf("%s\n", summaryLine(tally))
	return w.err
}

func renderOutcome(w *errWriter, st Styles, o result.Outcome, verbose bool) {
	line := fmt.Sprintf("    %s %s", st.Status(o.Status), o.TestID)
	if verbose && o.Duration > 0 {
		line += st.Subtle.Render(fmt.Sprintf(" (%s)", o.Duration.Round(time.Millisecond)))
	}
	w.printf("%s\n", line)

	const indent = "                "
	if verbose && o.Description != "" {
		w.printf("%s%s\n", indent, st.Subtle.Render(o.Description))
	}
	if o.Reason != "" {
		w.printf("%s\n", indentLines(o.Reason, indent))
	}
	if o.TracePath != "" {
		w.printf("%strace: %s\n", indent, o.TracePath)
	}
	if o.Diagnostic != "" {
		w.printf("%soutput:\n%s\n", indent, indentLines(strings.TrimRight(o.Diagnostic, "\n"), indent+"  "))
	}
}

func pluginTitle(p result.PluginReport) string {
	var b strings.Builder
	b.WriteString(p.ID)
	if p.Name != "" {
		fmt.Fprintf(&b, " (%s", p.Name)
		if p.Vendor != "" {
			fmt.Fprintf(&b, " by %s", p.Vendor)
		}
		if p.Version != "" {
			fmt.Fprintf(&b, ", version %s", p.Version)
		}
		b.WriteString(")")
	}
	return b.String()
}

func summaryLine(t result.Tally) string {
	parts := []string{fmt.Sprintf("%d passed", t.Pass), fmt.Sprintf("%d failed", t.Fail)}
	optional := []struct {
		n     int
		label string
	}{
		{t.Warning, "warnings"},
		{t.Skipped, "skipped"},
		{t.Crashed, "crashed"},
		{t.TimedOut, "timed out"},
		{t.SetupError, "setup errors"},
	}
	for _, o := range optional {
		if o.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", o.n, o.label))
		}
	}
	return fmt.Sprintf("%d tests run: %s", t.Total(), strings.Join(parts, ", "))
}

func indentLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// errWriter remembers the first write error so rendering code does not
// need to check every call.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
