// Package runstate persists the run-status singleton: one live JSON
// record describing the current or most recent run, plus a per-run
// archive written before every new run overwrites the live record.
// Observers read this file; only the engine writes it.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moldock/moldockpipe/internal/atomicfile"
	"github.com/moldock/moldockpipe/internal/stage"
)

// SchemaVersion is stamped into every record so future readers can
// detect the layout.
const SchemaVersion = "2.0"

// Phase is the run lifecycle state.
type Phase string

const (
	PhaseNotStarted          Phase = "not_started"
	PhasePreflight           Phase = "preflight"
	PhaseRunning             Phase = "running"
	PhaseCompleted           Phase = "completed"
	PhaseCompletedWithErrors Phase = "completed_with_errors"
	PhaseFailed              Phase = "failed"
	PhaseValidationFailed    Phase = "validation_failed"
)

// HistoryEntry records one stage attempt. History is append-only.
type HistoryEntry struct {
	ID              string   `json:"id"`
	Stage           string   `json:"stage"`
	ReturnCode      int      `json:"returncode"`
	Command         []string `json:"command,omitempty"`
	StdoutLog       string   `json:"stdout_log,omitempty"`
	StderrLog       string   `json:"stderr_log,omitempty"`
	StartedAt       string   `json:"started_at"`
	FinishedAt      string   `json:"finished_at"`
	DurationSeconds float64  `json:"duration_seconds"`
	OK              bool     `json:"ok"`
}

// Summary is the final result computed from the manifest after a run.
type Summary struct {
	InputRows      int    `json:"input_rows"`
	ScreenedPass   int    `json:"screened_pass"`
	ScreenedFail   int    `json:"screened_fail"`
	StructuresDone int    `json:"structures_done"`
	PreparedDone   int    `json:"prepared_done"`
	DockedDone     int    `json:"docked_done"`
	DockedFailed   int    `json:"docked_failed"`
	Result         string `json:"result,omitempty"`
	SummaryCSV     string `json:"summary_csv,omitempty"`
	LeaderboardCSV string `json:"leaderboard_csv,omitempty"`
	ReportCSV      string `json:"report_csv,omitempty"`
}

// RunStatus is the durable singleton record for one run.
type RunStatus struct {
	SchemaVersion   string            `json:"schema_version"`
	RunID           string            `json:"run_id,omitempty"`
	Phase           Phase             `json:"phase"`
	Detail          string            `json:"detail,omitempty"`
	CompletedStages []string          `json:"completed_stages"`
	FailedStage     string            `json:"failed_stage,omitempty"`
	History         []HistoryEntry    `json:"history"`
	Config          json.RawMessage   `json:"config,omitempty"`
	ConfigHash      string            `json:"config_hash,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	ToolVersions    map[string]string `json:"tool_versions,omitempty"`
	Summary         *Summary          `json:"summary,omitempty"`
	Error           string            `json:"error,omitempty"`
	DiagnosticLog   string            `json:"diagnostic_log,omitempty"`
	StartedAt       string            `json:"started_at,omitempty"`
	FinishedAt      string            `json:"finished_at,omitempty"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
}

// StageCompleted reports whether s is in the completed-stage set.
func (rs *RunStatus) StageCompleted(s stage.Stage) bool {
	for _, name := range rs.CompletedStages {
		if name == string(s) {
			return true
		}
	}
	return false
}

// Store reads and writes the run-status record under a project's state
// directory.
type Store struct {
	dir string // state directory
}

// NewStore returns a store rooted at the project's state directory.
func NewStore(stateDir string) *Store {
	return &Store{dir: stateDir}
}

// Path returns the live record's location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, "run_status.json")
}

// ArchivePath returns where a run's record is archived.
func (s *Store) ArchivePath(runID string) string {
	return filepath.Join(s.dir, "runs", runID, "run_status.json")
}

func defaultStatus() RunStatus {
	return RunStatus{
		SchemaVersion:   SchemaVersion,
		Phase:           PhaseNotStarted,
		CompletedStages: []string{},
		History:         []HistoryEntry{},
	}
}

// Read returns the live record, or a default "not_started" record if
// none exists yet. A missing file is never an error.
func (s *Store) Read() (RunStatus, error) {
	raw, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return defaultStatus(), nil
	}
	if err != nil {
		return RunStatus{}, fmt.Errorf("read run status: %w", err)
	}
	var rs RunStatus
	if err := json.Unmarshal(raw, &rs); err != nil {
		return RunStatus{}, fmt.Errorf("parse run status: %w", err)
	}
	if rs.CompletedStages == nil {
		rs.CompletedStages = []string{}
	}
	if rs.History == nil {
		rs.History = []HistoryEntry{}
	}
	return rs, nil
}

// Write replaces the live record atomically.
func (s *Store) Write(rs RunStatus) error {
	rs.SchemaVersion = SchemaVersion
	raw, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run status: %w", err)
	}
	return atomicfile.WriteFile(s.Path(), raw, 0o644)
}

// Update reads the live record, applies mutate, stamps updated_at (and
// started_at on first write), and persists atomically. Returns the
// persisted record.
func (s *Store) Update(mutate func(*RunStatus)) (RunStatus, error) {
	rs, err := s.Read()
	if err != nil {
		return RunStatus{}, err
	}
	mutate(&rs)
	now := NowISO()
	if rs.StartedAt == "" {
		rs.StartedAt = now
	}
	rs.UpdatedAt = now
	if err := s.Write(rs); err != nil {
		return RunStatus{}, err
	}
	return rs, nil
}

// Archive copies the current live record under the per-run archive path.
// Archiving when no live record exists is a no-op.
func (s *Store) Archive(runID string) error {
	raw, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("archive run status: %w", err)
	}
	if runID == "" {
		runID = "unidentified"
	}
	return atomicfile.WriteFile(s.ArchivePath(runID), raw, 0o644)
}

// NowISO returns the current UTC time in second precision RFC 3339,
// the timestamp format used across the state files.
func NowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}
