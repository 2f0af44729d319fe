package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/runger/clipfix/internal/pipeline"
)

// writeSummary prints one status line for the run.
func writeSummary(w io.Writer, res *pipeline.Result, input string) {
	var formatted, repaired, failed, cached, skipped int
	for _, s := range res.Segments {
		if uninstalled(s) {
			skipped++
		}
		switch s.Mode {
		case pipeline.ModeFormatted:
			formatted++
		case pipeline.ModeRepaired:
			repaired++
		case pipeline.ModeFailed:
			failed++
		}
		if s.Cached {
			cached++
		}
	}

	if len(res.Segments) == 0 {
		fmt.Fprintln(w, styleDim.Render("clipfix: no code found"))
		return
	}

	parts := []string{fmt.Sprintf("%d segment(s)", len(res.Segments))}
	if formatted > 0 {
		parts = append(parts, styleOK.Render(fmt.Sprintf("%d formatted", formatted)))
	}
	if repaired > 0 {
		parts = append(parts, styleWarn.Render(fmt.Sprintf("%d repaired", repaired)))
	}
	if failed > 0 {
		parts = append(parts, styleError.Render(fmt.Sprintf("%d failed", failed)))
	}
	if skipped > 0 {
		parts = append(parts, styleWarn.Render(fmt.Sprintf("%d left as is", skipped)))
	}
	if cached > 0 {
		parts = append(parts, styleDim.Render(fmt.Sprintf("%d cached", cached)))
	}
	if !res.Changed(input) {
		parts = append(parts, styleDim.Render("no changes"))
	}
	fmt.Fprintf(w, "clipfix: %s\n", strings.Join(parts, ", "))

	for _, s := range res.Segments {
		switch {
		case s.Mode == pipeline.ModeFailed:
			fmt.Fprintf(w, "  %s segment %d (%s): %s %s\n",
				styleError.Render("x"), s.Index, s.Language, s.Failure, styleDim.Render(s.Diagnostic))
		case uninstalled(s):
			fmt.Fprintf(w, "  %s segment %d (%s): %s\n",
				styleWarn.Render("!"), s.Index, s.Language, styleDim.Render(s.Diagnostic))
		}
	}
}

// uninstalled reports a segment passed through because none of its
// formatters is installed.
func uninstalled(s pipeline.SegmentSummary) bool {
	return s.Mode == pipeline.ModeUnchanged && s.Failure == pipeline.FailureFormatterUnavailable
}

// writeTiming prints per-segment durations and the parallel speed-up.
func writeTiming(w io.Writer, res *pipeline.Result) {
	fmt.Fprintln(w, rule())
	fmt.Fprintf(w, "%s\n", styleBold.Render(fmt.Sprintf("%-4s %-8s %-11s %-10s %-12s %10s", "#", "kind", "language", "mode", "formatter", "duration")))
	for _, s := range res.Segments {
		formatter := s.Formatter
		if formatter == "" {
			formatter = "-"
		}
		if s.RepairUsed {
			formatter += "+repair"
		}
		fmt.Fprintf(w, "%-4d %-8s %-11s %-10s %-12s %10s\n",
			s.Index, s.Kind, s.Language, s.Mode, formatter, round(s.Duration))
	}
	fmt.Fprintln(w, rule())
	fmt.Fprintf(w, "total %s with %d worker(s), speed-up %.2fx\n", round(res.Duration), res.Workers, res.Speedup())
}

func round(d time.Duration) time.Duration {
	if d > time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(time.Microsecond)
}

// writeDiff prints a coloured unified diff of before and after.
func writeDiff(w io.Writer, name, before, after string) {
	if before == after {
		fmt.Fprintln(w, styleDim.Render("no changes"))
		return
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: name,
		ToFile:   name + " (fixed)",
		Context:  3,
	})
	if err != nil {
		fmt.Fprintln(w, styleError.Render(fmt.Sprintf("failed to compute diff: %v", err)))
		return
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			io.WriteString(w, styleBold.Render(strings.TrimSuffix(line, "\n"))+"\n")
		case strings.HasPrefix(line, "@@"):
			io.WriteString(w, styleKey.Render(strings.TrimSuffix(line, "\n"))+"\n")
		case strings.HasPrefix(line, "+"):
			io.WriteString(w, styleOK.Render(strings.TrimSuffix(line, "\n"))+"\n")
		case strings.HasPrefix(line, "-"):
			io.WriteString(w, styleError.Render(strings.TrimSuffix(line, "\n"))+"\n")
		default:
			io.WriteString(w, line)
		}
	}
}
