package engine

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/moldock/moldockpipe/internal/artifacts"
	"github.com/moldock/moldockpipe/internal/atomicfile"
	"github.com/moldock/moldockpipe/internal/manifest"
	"github.com/moldock/moldockpipe/internal/planner"
	"github.com/moldock/moldockpipe/internal/runstate"
)

var reportColumns = []string{
	"id", "screen_status", "struct_status", "prep_status",
	"dock_status", "dock_score", "dock_pose", "dock_reason", "updated_at",
}

// ExportReport writes the per-entity progress report derived from the
// manifest to results/engine_report.csv.
func ExportReport(projectDir string, records []manifest.Record) (string, error) {
	sorted := make([]manifest.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportColumns); err != nil {
		return "", fmt.Errorf("export report: %w", err)
	}
	for _, rec := range sorted {
		row := []string{
			rec.ID, rec.ScreenStatus, rec.StructStatus, rec.PrepStatus,
			rec.DockStatus, rec.DockScore, rec.DockPose, rec.DockReason, rec.UpdatedAt,
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("export report: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("export report: %w", err)
	}

	path := artifacts.ReportPath(projectDir)
	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("export report: %w", err)
	}
	return path, nil
}

// buildSummary derives the run's closing counters from the manifest.
func buildSummary(projectDir string, inputs []planner.InputRow, records []manifest.Record) runstate.Summary {
	sum := runstate.Summary{InputRows: len(inputs)}
	for _, rec := range records {
		switch strings.ToUpper(strings.TrimSpace(rec.ScreenStatus)) {
		case manifest.ScreenPass:
			sum.ScreenedPass++
		case manifest.ScreenFail:
			sum.ScreenedFail++
		}
		if strings.EqualFold(rec.StructStatus, manifest.StatusDone) {
			sum.StructuresDone++
		}
		if strings.EqualFold(rec.PrepStatus, manifest.StatusDone) {
			sum.PreparedDone++
		}
		switch strings.ToUpper(strings.TrimSpace(rec.DockStatus)) {
		case manifest.StatusDone:
			sum.DockedDone++
		case manifest.StatusFailed:
			sum.DockedFailed++
		}
	}
	sum.Result = fmt.Sprintf("docked %d/%d", sum.DockedDone, sum.DockedDone+sum.DockedFailed)
	sum.SummaryCSV = artifacts.SummaryPath(projectDir)
	sum.LeaderboardCSV = artifacts.LeaderboardPath(projectDir)
	sum.ReportCSV = artifacts.ReportPath(projectDir)
	return sum
}
