// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/moldock/moldockpipe/internal/engine"
	"github.com/moldock/moldockpipe/internal/planner"
	"github.com/moldock/moldockpipe/internal/runstate"
	"github.com/moldock/moldockpipe/internal/stage"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the status, plan, and validate
// commands.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintWorkPlan outputs the per-stage TODO counts, scheduling reasons,
// and a small id sample per stage with pending work.
func (p *Printer) PrintWorkPlan(plan *planner.WorkPlan) {
	if plan == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Input entities: %d\n\n", plan.Stats.InputIDs))

	for _, s := range stage.All() {
		ids := plan.StageIDs(s)
		sb.WriteString(fmt.Sprintf("%-16s %d to do\n", s, len(ids)))
		if len(ids) == 0 {
			continue
		}
		for reason, n := range plan.Stats.ReasonCounts[s] {
			sb.WriteString(fmt.Sprintf("  %s: %d\n", reason, n))
		}
		count := min(len(ids), maxItemsToShow)
		sb.WriteString(fmt.Sprintf("  e.g. %s", strings.Join(ids[:count], ", ")))
		if len(ids) > count {
			sb.WriteString(fmt.Sprintf(" ... and %d more", len(ids)-count))
		}
		sb.WriteString("\n")
	}

	if len(plan.Backfills) > 0 {
		sb.WriteString(fmt.Sprintf("\nFingerprint backfills pending: %d\n", len(plan.Backfills)))
	}

	p.printBox("WORK PLAN", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintValidation outputs the preflight report: resolved tool
// identities plus any warnings or blocking errors.
func (p *Printer) PrintValidation(rep *engine.Report) {
	if rep == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Config hash:  %s\n", shorten(rep.ConfigHash, 20)))
	if rep.ReceptorPath != "" {
		sb.WriteString(fmt.Sprintf("Receptor:     %s\n", rep.ReceptorPath))
	}
	if rep.VinaPath != "" {
		sb.WriteString(fmt.Sprintf("Docking tool: %s\n", rep.VinaPath))
	}
	for _, s := range stage.All() {
		if v, ok := rep.ToolVersions[string(s)]; ok {
			sb.WriteString(fmt.Sprintf("  %-15s %s\n", s, shorten(v, 35)))
		}
	}

	if len(rep.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range rep.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠ %s\n", w))
		}
	}
	if len(rep.Errors) > 0 {
		sb.WriteString("\nErrors:\n")
		for _, e := range rep.Errors {
			sb.WriteString(fmt.Sprintf("  ✗ %s\n", e))
		}
	}

	title := "VALIDATION PASSED"
	if !rep.OK() {
		title = "VALIDATION FAILED"
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRunStatus outputs the live run record: phase, manifest entity
// count, completed stages, recent history, and the closing summary when
// present.
func (p *Printer) PrintRunStatus(rs *runstate.RunStatus, manifestRows int) {
	if rs == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:    %s\n", orDash(rs.RunID)))
	sb.WriteString(fmt.Sprintf("Phase:  %s\n", rs.Phase))
	sb.WriteString(fmt.Sprintf("Rows:   %d in manifest\n", manifestRows))
	if rs.FailedStage != "" {
		sb.WriteString(fmt.Sprintf("Failed: %s\n", rs.FailedStage))
	}
	if rs.Error != "" {
		sb.WriteString(fmt.Sprintf("Error:  %s\n", shorten(rs.Error, 45)))
	}
	sb.WriteString(fmt.Sprintf("Stages: %s\n", orDash(strings.Join(rs.CompletedStages, ", "))))

	if n := len(rs.History); n > 0 {
		sb.WriteString("\nHistory:\n")
		first := max(0, n-maxItemsToShow)
		for _, h := range rs.History[first:] {
			mark := "✗"
			if h.OK {
				mark = "✓"
			}
			sb.WriteString(fmt.Sprintf("  %s %-16s rc=%d %.1fs\n", mark, h.Stage, h.ReturnCode, h.DurationSeconds))
		}
	}

	if rs.Summary != nil {
		s := rs.Summary
		sb.WriteString("\nSummary:\n")
		sb.WriteString(fmt.Sprintf("  screened %d pass / %d fail\n", s.ScreenedPass, s.ScreenedFail))
		sb.WriteString(fmt.Sprintf("  structures %d, prepared %d\n", s.StructuresDone, s.PreparedDone))
		sb.WriteString(fmt.Sprintf("  docked %d done / %d failed\n", s.DockedDone, s.DockedFailed))
	}

	p.printBox("RUN STATUS", strings.TrimSuffix(sb.String(), "\n"))
}

func shorten(s string, limit int) string {
	if len(s) > limit {
		return s[:limit-3] + "..."
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
