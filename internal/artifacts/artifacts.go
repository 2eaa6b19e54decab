// Package artifacts fixes the per-entity artifact path conventions the
// planner and adapters share, and rebuilds the derived result views
// (summary and leaderboard CSVs) from the manifest.
package artifacts

import (
	"path/filepath"
)

// Per-stage artifact locations under the project directory. The planner
// checks existence and non-emptiness only; content validity is the
// producing adapter's responsibility.
func StructurePath(projectDir, id string) string {
	return filepath.Join(projectDir, "3D_Structures", id+".sdf")
}

func PreparedPath(projectDir, id string) string {
	return filepath.Join(projectDir, "prepared_ligands", id+".pdbqt")
}

func DockingPosePath(projectDir, id string) string {
	return filepath.Join(projectDir, "results", id+"_out.pdbqt")
}

func DockingLogPath(projectDir, id string) string {
	return filepath.Join(projectDir, "results", id+"_vina.log")
}

// State and report locations.
func ManifestPath(projectDir string) string {
	return filepath.Join(projectDir, "state", "manifest.csv")
}

func StateDir(projectDir string) string {
	return filepath.Join(projectDir, "state")
}

func InputPath(projectDir string) string {
	return filepath.Join(projectDir, "input", "input.csv")
}

func EngineLogsDir(projectDir string) string {
	return filepath.Join(projectDir, "logs", "engine")
}

func SummaryPath(projectDir string) string {
	return filepath.Join(projectDir, "results", "summary.csv")
}

func LeaderboardPath(projectDir string) string {
	return filepath.Join(projectDir, "results", "leaderboard.csv")
}

func ReportPath(projectDir string) string {
	return filepath.Join(projectDir, "results", "engine_report.csv")
}
