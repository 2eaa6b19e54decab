// Package engine orchestrates the four-stage pipeline: preflight
// validation, work planning against the manifest, stage execution
// through adapters, and the durable run-status lifecycle. Every write
// to state is atomic, so a crash at any point leaves a resumable
// project.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moldock/moldockpipe/internal/adapters"
	"github.com/moldock/moldockpipe/internal/artifacts"
	"github.com/moldock/moldockpipe/internal/atomicfile"
	"github.com/moldock/moldockpipe/internal/cancel"
	"github.com/moldock/moldockpipe/internal/config"
	"github.com/moldock/moldockpipe/internal/fingerprint"
	"github.com/moldock/moldockpipe/internal/manifest"
	"github.com/moldock/moldockpipe/internal/planner"
	"github.com/moldock/moldockpipe/internal/runstate"
	"github.com/moldock/moldockpipe/internal/stage"
)

// Options configures one engine invocation.
type Options struct {
	ProjectDir string
	Overrides  config.Config
	// Resume keeps the previous run's identity, replays its stored
	// configuration snapshot, and carries over its completed-stage set
	// instead of archiving it and starting a new run.
	Resume bool
	Stop   *cancel.Token
	// Runner defaults to the real process runner when nil.
	Runner adapters.ProcessRunner
}

// RunResult is the engine's outcome: the process exit code the CLI
// should use plus the final persisted status.
type RunResult struct {
	ExitCode int
	RunID    string
	Status   runstate.RunStatus
}

// Run executes the pipeline to completion or first failure.
// It returns an error only for infrastructural faults (lock contention,
// unreadable state); pipeline outcomes are reported through ExitCode.
func Run(ctx context.Context, opts Options) (RunResult, error) {
	if opts.Runner == nil {
		opts.Runner = adapters.ExecRunner{}
	}
	cfg, err := config.Load(opts.ProjectDir, opts.Overrides)
	if err != nil {
		return RunResult{}, err
	}
	store := runstate.NewStore(artifacts.StateDir(opts.ProjectDir))

	lock, err := acquireLock(artifacts.StateDir(opts.ProjectDir))
	if err != nil {
		return RunResult{}, err
	}
	defer lock.Release()

	prev, err := store.Read()
	if err != nil {
		return RunResult{}, err
	}
	if opts.Resume && len(prev.Config) > 0 {
		// A resume replays the configuration the run started with.
		var snap config.Config
		if err := json.Unmarshal(prev.Config, &snap); err != nil {
			return RunResult{}, fmt.Errorf("decode stored run config: %w", err)
		}
		cfg = snap
	}

	report := Validate(ctx, opts.ProjectDir, cfg, opts.Runner)
	if !report.OK() {
		return failValidation(opts.ProjectDir, store, report)
	}

	runID, err := openRun(store, cfg, report, prev, opts.Resume)
	if err != nil {
		return RunResult{}, err
	}

	inputs, err := planner.ReadInputs(artifacts.InputPath(opts.ProjectDir))
	if err != nil {
		return markFailed(store, runID, "", err)
	}

	run := &runInstance{
		projectDir: opts.ProjectDir,
		cfg:        cfg,
		report:     report,
		store:      store,
		runID:      runID,
		prior:      prev,
		inputs:     inputs,
		resume:     opts.Resume,
		stop:       opts.Stop,
		runner:     opts.Runner,
	}
	return run.execute(ctx)
}

// StatusInfo pairs the durable run record with a live entity count from
// the manifest store.
type StatusInfo struct {
	Run          runstate.RunStatus
	ManifestRows int
}

// Status returns the live run-status record for a project plus the
// current manifest row count. Read-only, no side effects.
func Status(projectDir string) (StatusInfo, error) {
	rs, err := runstate.NewStore(artifacts.StateDir(projectDir)).Read()
	if err != nil {
		return StatusInfo{}, err
	}
	records, err := manifest.Load(artifacts.ManifestPath(projectDir))
	if err != nil {
		return StatusInfo{}, err
	}
	return StatusInfo{Run: rs, ManifestRows: len(records)}, nil
}

// Plan computes the work plan without executing or mutating anything.
// Pending fingerprint backfills stay pending.
func Plan(ctx context.Context, projectDir string, overrides config.Config, runner adapters.ProcessRunner) (planner.WorkPlan, Report, error) {
	if runner == nil {
		runner = adapters.ExecRunner{}
	}
	cfg, err := config.Load(projectDir, overrides)
	if err != nil {
		return planner.WorkPlan{}, Report{}, err
	}
	report := Validate(ctx, projectDir, cfg, runner)
	if !report.OK() {
		return planner.WorkPlan{}, report, &ValidationError{Issues: report.Errors}
	}
	inputs, err := planner.ReadInputs(artifacts.InputPath(projectDir))
	if err != nil {
		return planner.WorkPlan{}, report, err
	}
	records, err := manifest.Load(artifacts.ManifestPath(projectDir))
	if err != nil {
		return planner.WorkPlan{}, report, err
	}
	return planner.Compute(projectDir, records, inputs, report.ToolContext()), report, nil
}

func marshalConfig(cfg config.Config) (json.RawMessage, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return raw, nil
}

// newRunID allocates a fresh run identity: sortable by start time, with
// a short config-hash prefix and a random tail so two runs started
// within the same second never collide.
func newRunID(configHash string) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	short := configHash
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("run_%s_%s_%s", ts, short, uuid.NewString()[:8])
}

// failValidation archives whatever run record exists and leaves a
// validation_failed record behind, pointing at a diagnostic log with
// the full report.
func failValidation(projectDir string, store *runstate.Store, report Report) (RunResult, error) {
	prev, err := store.Read()
	if err != nil {
		return RunResult{}, err
	}
	if err := store.Archive(prev.RunID); err != nil {
		return RunResult{}, err
	}
	runID := newRunID(report.ConfigHash)
	logPath := filepath.Join(artifacts.EngineLogsDir(projectDir), "validation_failed.log")
	if err := atomicfile.WriteFile(logPath, validationLog(runID, report), 0o644); err != nil {
		return RunResult{}, fmt.Errorf("write validation log: %w", err)
	}
	now := runstate.NowISO()
	rs := runstate.RunStatus{
		RunID:           runID,
		Phase:           runstate.PhaseValidationFailed,
		Detail:          "preflight validation failed",
		CompletedStages: []string{},
		History:         []runstate.HistoryEntry{},
		ConfigHash:      report.ConfigHash,
		Warnings:        report.Warnings,
		ToolVersions:    report.ToolVersions,
		Error:           (&ValidationError{Issues: report.Errors}).Error(),
		DiagnosticLog:   logPath,
		StartedAt:       now,
		FinishedAt:      now,
		UpdatedAt:       now,
	}
	if err := store.Write(rs); err != nil {
		return RunResult{}, err
	}
	slog.Error("validation failed", "run_id", runID, "issues", report.Errors, "log", logPath)
	return RunResult{ExitCode: ExitValidationFailed, RunID: runID, Status: rs}, nil
}

// validationLog renders the preflight report for the diagnostic log.
func validationLog(runID string, report Report) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "run: %s\n", runID)
	fmt.Fprintf(&b, "config_hash: %s\n", report.ConfigHash)
	fmt.Fprintf(&b, "receptor: %s\n", report.ReceptorPath)
	fmt.Fprintf(&b, "docking_tool: %s\n", report.VinaPath)
	for name, version := range report.ToolVersions {
		fmt.Fprintf(&b, "tool %s: %s\n", name, version)
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(&b, "error: %s\n", e)
	}
	return []byte(b.String())
}

// openRun establishes the run identity. Every call archives the prior
// live record and allocates a fresh run id; a resume differs only in
// carrying the prior run's context forward (the config snapshot is
// applied by the caller, the completed-stage seed during execution).
func openRun(store *runstate.Store, cfg config.Config, report Report, prev runstate.RunStatus, resume bool) (string, error) {
	if err := store.Archive(prev.RunID); err != nil {
		return "", err
	}
	runID := newRunID(report.ConfigHash)
	rawCfg, err := marshalConfig(cfg)
	if err != nil {
		return "", err
	}
	detail := ""
	if resume && prev.RunID != "" {
		detail = "resumed from " + prev.RunID
	}
	now := runstate.NowISO()
	rs := runstate.RunStatus{
		RunID:           runID,
		Phase:           runstate.PhasePreflight,
		Detail:          detail,
		CompletedStages: []string{},
		History:         []runstate.HistoryEntry{},
		Config:          rawCfg,
		ConfigHash:      report.ConfigHash,
		Warnings:        report.Warnings,
		ToolVersions:    report.ToolVersions,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	if err := store.Write(rs); err != nil {
		return "", err
	}
	return runID, nil
}

// resumeCompleted seeds the stage-skip set for a resumed run: the
// previous record's completed stages, extended by any stage where every
// manifest row has already reached a terminal status.
func resumeCompleted(prev runstate.RunStatus, records []manifest.Record) map[stage.Stage]bool {
	completed := map[stage.Stage]bool{}
	for _, s := range stage.All() {
		if prev.StageCompleted(s) {
			completed[s] = true
			continue
		}
		if len(records) == 0 {
			continue
		}
		terminal := true
		for i := range records {
			if !records[i].Terminal(s) {
				terminal = false
				break
			}
		}
		if terminal {
			completed[s] = true
		}
	}
	return completed
}

func markFailed(store *runstate.Store, runID string, failedStage stage.Stage, cause error) (RunResult, error) {
	rs, err := store.Update(func(rs *runstate.RunStatus) {
		rs.Phase = runstate.PhaseFailed
		rs.FailedStage = string(failedStage)
		rs.Error = cause.Error()
		rs.FinishedAt = runstate.NowISO()
	})
	if err != nil {
		return RunResult{}, err
	}
	slog.Error("run failed", "run_id", runID, "stage", failedStage, "error", cause)
	return RunResult{ExitCode: ExitStageFailure, RunID: runID, Status: rs}, nil
}

type runInstance struct {
	projectDir string
	cfg        config.Config
	report     Report
	store      *runstate.Store
	runID      string
	prior      runstate.RunStatus
	inputs     []planner.InputRow
	resume     bool
	stop       *cancel.Token
	runner     adapters.ProcessRunner
}

func (r *runInstance) execute(ctx context.Context) (RunResult, error) {
	if _, err := r.store.Update(func(rs *runstate.RunStatus) {
		rs.Phase = runstate.PhaseRunning
	}); err != nil {
		return RunResult{}, err
	}

	completed := map[stage.Stage]bool{}
	if r.resume {
		records, err := manifest.Load(artifacts.ManifestPath(r.projectDir))
		if err != nil {
			return markFailed(r.store, r.runID, "", err)
		}
		completed = resumeCompleted(r.prior, records)
	}

	partial := false
	for _, s := range stage.All() {
		if r.stop.Stopped() {
			return markFailed(r.store, r.runID, s, fmt.Errorf("interrupted before stage %s", s))
		}
		if completed[s] {
			if err := r.markStageDone(s); err != nil {
				return RunResult{}, err
			}
			slog.Info("stage carried over from previous run", "stage", s)
			continue
		}

		plan, err := r.freshPlan()
		if err != nil {
			return markFailed(r.store, r.runID, s, err)
		}
		ids := plan.StageIDs(s)
		if len(ids) == 0 {
			if err := r.markStageDone(s); err != nil {
				return RunResult{}, err
			}
			slog.Info("stage already satisfied", "stage", s)
			continue
		}
		res, err := r.invokeStage(ctx, s, ids)
		if err != nil {
			return markFailed(r.store, r.runID, s, err)
		}
		if res.Interrupted {
			return markFailed(r.store, r.runID, s, fmt.Errorf("interrupted during stage %s", s))
		}
		accepted := res.OK() || (s == stage.Docking && res.ReturnCode == adapters.DockRCPartial)
		if !accepted {
			return markFailed(r.store, r.runID, s, &StageError{Stage: s, ReturnCode: res.ReturnCode})
		}
		if s == stage.Docking && res.ReturnCode == adapters.DockRCPartial {
			partial = true
		}
		if err := r.stampFingerprints(s, ids); err != nil {
			return markFailed(r.store, r.runID, s, err)
		}
		if err := r.markStageDone(s); err != nil {
			return RunResult{}, err
		}
	}

	return r.finish(partial)
}

// freshPlan reloads the manifest, recomputes the plan, and persists any
// fingerprint backfills so valid legacy artifacts are recognized without
// rework on every subsequent planning pass.
func (r *runInstance) freshPlan() (planner.WorkPlan, error) {
	records, err := manifest.Load(artifacts.ManifestPath(r.projectDir))
	if err != nil {
		return planner.WorkPlan{}, err
	}
	plan := planner.Compute(r.projectDir, records, r.inputs, r.report.ToolContext())
	if len(plan.Backfills) > 0 {
		byID := manifest.ByID(records)
		for _, bf := range plan.Backfills {
			rec := byID[bf.ID]
			if rec == nil {
				continue
			}
			switch bf.Stage {
			case stage.StructureBuild:
				rec.StructFP = bf.Fingerprint
			case stage.Preparation:
				rec.PrepFP = bf.Fingerprint
			case stage.Docking:
				rec.DockFP = bf.Fingerprint
			}
			rec.UpdatedAt = runstate.NowISO()
		}
		if err := manifest.Save(artifacts.ManifestPath(r.projectDir), records); err != nil {
			return planner.WorkPlan{}, err
		}
		slog.Info("fingerprints backfilled", "count", len(plan.Backfills))
	}
	return plan, nil
}

// stampFingerprints overwrites the fingerprint columns for entities a
// stage just recomputed. The external tools only write status and path,
// so after a stale rerun the old fingerprint would otherwise stay in
// place and reschedule the entity on every later plan.
func (r *runInstance) stampFingerprints(s stage.Stage, ids []string) error {
	if s != stage.StructureBuild && s != stage.Preparation {
		return nil
	}
	records, err := manifest.Load(artifacts.ManifestPath(r.projectDir))
	if err != nil {
		return err
	}
	byID := manifest.ByID(records)
	smiles := map[string]string{}
	for _, in := range r.inputs {
		smiles[in.ID] = in.SMILES
	}
	tc := r.report.ToolContext()

	stamped := 0
	for _, id := range ids {
		rec := byID[id]
		if rec == nil || !strings.EqualFold(rec.StageStatus(s), manifest.StatusDone) {
			continue
		}
		structFP := fingerprint.Structure(smiles[id], tc.GeneratorVersion, nil)
		var artifact, fresh string
		if s == stage.StructureBuild {
			artifact = artifacts.StructurePath(r.projectDir, id)
			fresh = structFP
		} else {
			artifact = artifacts.PreparedPath(r.projectDir, id)
			fresh = fingerprint.Preparation(structFP, tc.PrepToolVersion, nil)
		}
		if info, err := os.Stat(artifact); err != nil || info.Size() == 0 {
			continue
		}
		if s == stage.StructureBuild {
			rec.StructFP = fresh
		} else {
			rec.PrepFP = fresh
		}
		rec.UpdatedAt = runstate.NowISO()
		stamped++
	}
	if stamped == 0 {
		return nil
	}
	if err := manifest.Save(artifacts.ManifestPath(r.projectDir), records); err != nil {
		return err
	}
	slog.Info("fingerprints stamped", "stage", s, "count", stamped)
	return nil
}

func (r *runInstance) invokeStage(ctx context.Context, s stage.Stage, ids []string) (adapters.Result, error) {
	adapter, err := r.buildAdapter(s)
	if err != nil {
		return adapters.Result{}, err
	}
	req := adapters.Request{
		ProjectDir: r.projectDir,
		LogsDir:    artifacts.EngineLogsDir(r.projectDir),
		OnlyIDs:    ids,
		Stop:       r.stop,
	}

	started := time.Now()
	slog.Info("stage starting", "stage", s, "todo", len(ids))
	res, err := adapter.Invoke(ctx, req)
	finished := time.Now()
	if err != nil {
		return adapters.Result{}, err
	}

	entry := runstate.HistoryEntry{
		ID:              uuid.NewString(),
		Stage:           string(s),
		ReturnCode:      res.ReturnCode,
		Command:         res.Command,
		StdoutLog:       res.StdoutLog,
		StderrLog:       res.StderrLog,
		StartedAt:       started.UTC().Truncate(time.Second).Format(time.RFC3339),
		FinishedAt:      finished.UTC().Truncate(time.Second).Format(time.RFC3339),
		DurationSeconds: finished.Sub(started).Seconds(),
		OK:              !res.Interrupted && (res.OK() || (s == stage.Docking && res.ReturnCode == adapters.DockRCPartial)),
	}
	if _, err := r.store.Update(func(rs *runstate.RunStatus) {
		rs.History = append(rs.History, entry)
	}); err != nil {
		return adapters.Result{}, err
	}
	slog.Info("stage finished", "stage", s, "returncode", res.ReturnCode,
		"duration_s", entry.DurationSeconds)
	return res, nil
}

func (r *runInstance) buildAdapter(s stage.Stage) (adapters.Adapter, error) {
	switch s {
	case stage.Screening:
		return adapters.NewScriptAdapter(s, r.cfg.Tools.ScreeningCmd, r.runner)
	case stage.StructureBuild:
		return adapters.NewScriptAdapter(s, r.cfg.Tools.StructureCmd, r.runner)
	case stage.Preparation:
		return adapters.NewScriptAdapter(s, r.cfg.Tools.PreparationCmd, r.runner)
	case stage.Docking:
		return adapters.NewDockingAdapter(adapters.DockingSettings{
			VinaPath:     r.report.VinaPath,
			ToolSHA1:     r.report.VinaSHA1,
			ReceptorPath: r.report.ReceptorPath,
			ReceptorSHA1: r.report.ReceptorSHA1,
			Params:       r.cfg.Docking,
			ConfigHash:   r.report.ConfigHash,
			BatchSize:    r.cfg.BatchSize,
			GPU:          r.cfg.DockingMode == "gpu",
		}, r.runner), nil
	}
	return nil, fmt.Errorf("unknown stage %q", s)
}

func (r *runInstance) markStageDone(s stage.Stage) error {
	_, err := r.store.Update(func(rs *runstate.RunStatus) {
		if !rs.StageCompleted(s) {
			rs.CompletedStages = append(rs.CompletedStages, string(s))
		}
	})
	return err
}

// finish stamps the config hash onto every manifest row, rebuilds the
// derived result views, and closes the run record.
func (r *runInstance) finish(partial bool) (RunResult, error) {
	records, err := manifest.Load(artifacts.ManifestPath(r.projectDir))
	if err != nil {
		return RunResult{}, err
	}
	for i := range records {
		records[i].ConfigHash = r.report.ConfigHash
	}
	if err := manifest.Save(artifacts.ManifestPath(r.projectDir), records); err != nil {
		return RunResult{}, err
	}
	if err := artifacts.WriteSummaries(r.projectDir, records); err != nil {
		return RunResult{}, err
	}
	if _, err := ExportReport(r.projectDir, records); err != nil {
		return RunResult{}, err
	}

	summary := buildSummary(r.projectDir, r.inputs, records)
	phase := runstate.PhaseCompleted
	exit := ExitOK
	if partial {
		phase = runstate.PhaseCompletedWithErrors
		exit = ExitDockingPartial
	}
	rs, err := r.store.Update(func(rs *runstate.RunStatus) {
		rs.Phase = phase
		rs.Summary = &summary
		rs.FinishedAt = runstate.NowISO()
	})
	if err != nil {
		return RunResult{}, err
	}
	slog.Info("run finished", "run_id", r.runID, "phase", phase,
		"docked_done", summary.DockedDone, "docked_failed", summary.DockedFailed)
	return RunResult{ExitCode: exit, RunID: r.runID, Status: rs}, nil
}
