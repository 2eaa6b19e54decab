package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/moldock/moldockpipe/internal/artifacts"
	"github.com/moldock/moldockpipe/internal/cancel"
	"github.com/moldock/moldockpipe/internal/config"
	"github.com/moldock/moldockpipe/internal/fingerprint"
	"github.com/moldock/moldockpipe/internal/manifest"
	"github.com/moldock/moldockpipe/internal/stage"
)

// Docking stage return codes. The stage distinguishes "the stage itself
// completed but some entities failed" from an outright stage failure.
const (
	DockRCSuccess = 0
	DockRCPartial = 2
)

// minPoseBytes guards against truncated pose files passing validation.
const minPoseBytes = 200

var vinaResultRe = regexp.MustCompile(`(?i)REMARK VINA RESULT:\s+(-?\d+\.\d+)`)

// DockingSettings is the resolved identity and geometry the docking
// stage needs. Produced by engine validation.
type DockingSettings struct {
	VinaPath     string
	ToolSHA1     string
	ReceptorPath string
	ReceptorSHA1 string
	Params       config.Docking
	ConfigHash   string
	BatchSize    int
	GPU          bool
}

// DockingAdapter drives the external docking tool entity by entity,
// chunked into fixed-size batches with the manifest checkpointed after
// every batch, so an interruption loses at most one batch of progress.
type DockingAdapter struct {
	settings DockingSettings
	runner   ProcessRunner
}

func NewDockingAdapter(settings DockingSettings, runner ProcessRunner) *DockingAdapter {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 64
	}
	return &DockingAdapter{settings: settings, runner: runner}
}

func (a *DockingAdapter) Stage() stage.Stage {
	return stage.Docking
}

// PoseScore validates a pose file and extracts its best (minimum)
// docking score. A pose under minPoseBytes or without any result line
// is invalid.
func PoseScore(path string) (float64, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() < minPoseBytes {
		return 0, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	best := 0.0
	found := false
	for _, m := range vinaResultRe.FindAllStringSubmatch(string(raw), -1) {
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if !found || score < best {
			best = score
			found = true
		}
	}
	return best, found
}

func (a *DockingAdapter) Invoke(ctx context.Context, req Request) (Result, error) {
	records, err := manifest.Load(artifacts.ManifestPath(req.ProjectDir))
	if err != nil {
		return Result{}, fmt.Errorf("docking: %w", err)
	}
	byID := manifest.ByID(records)

	ids := a.pendingIDs(records, req.OnlyIDs)
	if len(ids) == 0 {
		stdoutLog, stderrLog, err := writeLogs(req.LogsDir, string(stage.Docking),
			ProcessResult{Stdout: "no docking work pending\n"})
		if err != nil {
			return Result{}, err
		}
		return Result{Stage: stage.Docking, ReturnCode: DockRCSuccess, StdoutLog: stdoutLog, StderrLog: stderrLog}, nil
	}

	manifestPath := artifacts.ManifestPath(req.ProjectDir)
	done, failed := 0, 0
	stopped := false

	for start := 0; start < len(ids); start += a.settings.BatchSize {
		if req.Stop.Stopped() {
			stopped = true
			break
		}
		end := start + a.settings.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		for _, id := range batch {
			if req.Stop.Level() >= cancel.Hard {
				stopped = true
				break
			}
			rec := byID[id]
			if rec == nil {
				records = append(records, manifest.Record{ID: id, CreatedAt: nowISO()})
				byID = manifest.ByID(records)
				rec = byID[id]
			}
			ok := a.dockOne(ctx, req.ProjectDir, rec)
			if ok {
				done++
			} else {
				failed++
			}
		}

		// Batch checkpoint: durable before the next batch starts.
		if err := manifest.Save(manifestPath, records); err != nil {
			return Result{}, fmt.Errorf("docking checkpoint: %w", err)
		}
		slog.Info("docking batch checkpointed",
			"batch_end", end, "total", len(ids), "done", done, "failed", failed)
		if stopped {
			break
		}
	}

	if err := manifest.Save(manifestPath, records); err != nil {
		return Result{}, fmt.Errorf("docking: save manifest: %w", err)
	}
	if err := artifacts.WriteSummaries(req.ProjectDir, records); err != nil {
		return Result{}, fmt.Errorf("docking: %w", err)
	}

	summary := fmt.Sprintf("docking finished: done=%d failed=%d pending=%d stopped=%v\n",
		done, failed, len(ids)-done-failed, stopped)
	stdoutLog, stderrLog, err := writeLogs(req.LogsDir, string(stage.Docking), ProcessResult{Stdout: summary})
	if err != nil {
		return Result{}, err
	}

	rc := DockRCSuccess
	if failed > 0 {
		rc = DockRCPartial
	}
	return Result{
		Stage:       stage.Docking,
		ReturnCode:  rc,
		Command:     []string{a.settings.VinaPath},
		StdoutLog:   stdoutLog,
		StderrLog:   stderrLog,
		Interrupted: stopped && done+failed < len(ids),
	}, nil
}

// pendingIDs picks the entities to dock: the engine's restricted subset
// when given, otherwise every record with a completed preparation.
func (a *DockingAdapter) pendingIDs(records []manifest.Record, only []string) []string {
	var ids []string
	if len(only) > 0 {
		ids = append(ids, only...)
	} else {
		for _, rec := range records {
			if strings.EqualFold(rec.PrepStatus, manifest.StatusDone) {
				ids = append(ids, rec.ID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// dockOne runs the external tool for a single entity and reflects the
// outcome into its manifest record. Per-entity failure never aborts the
// stage.
func (a *DockingAdapter) dockOne(ctx context.Context, projectDir string, rec *manifest.Record) bool {
	ligand := artifacts.PreparedPath(projectDir, rec.ID)
	pose := artifacts.DockingPosePath(projectDir, rec.ID)
	logPath := artifacts.DockingLogPath(projectDir, rec.ID)

	ok, reason := a.runVina(ctx, ligand, pose, logPath)

	score := ""
	if ok {
		best, valid := PoseScore(pose)
		if valid {
			score = fmt.Sprintf("%.2f", best)
		} else {
			ok = false
			reason = "pose written but invalid"
		}
	}

	rec.DockPose = pose
	rec.DockScore = score
	rec.DockToolSHA1 = a.settings.ToolSHA1
	rec.ReceptorSHA1 = a.settings.ReceptorSHA1
	rec.ConfigHash = a.settings.ConfigHash
	rec.DockFP = fingerprint.Docking(rec.PrepFP, a.settings.ToolSHA1, a.settings.ReceptorSHA1,
		a.settings.Params, a.settings.ConfigHash)
	rec.UpdatedAt = nowISO()
	if ok {
		rec.DockStatus = manifest.StatusDone
		rec.DockReason = "OK"
	} else {
		rec.DockStatus = manifest.StatusFailed
		rec.DockReason = reason
	}
	return ok
}

// runVina launches the docking tool for one ligand. The pose is written
// to a temporary name and renamed into place only when valid, so a
// crash never leaves a plausible-looking partial pose.
func (a *DockingAdapter) runVina(ctx context.Context, ligand, pose, logPath string) (bool, string) {
	if err := os.MkdirAll(filepath.Dir(pose), 0o755); err != nil {
		return false, fmt.Sprintf("create results dir: %v", err)
	}
	tmpPose := pose + ".tmp"
	for _, p := range []string{pose, tmpPose} {
		_ = os.Remove(p)
	}

	box := a.settings.Params.Box
	args := []string{
		"--receptor", a.settings.ReceptorPath,
		"--ligand", ligand,
		"--center_x", formatFloat(box.CenterX),
		"--center_y", formatFloat(box.CenterY),
		"--center_z", formatFloat(box.CenterZ),
		"--size_x", formatFloat(box.SizeX),
		"--size_y", formatFloat(box.SizeY),
		"--size_z", formatFloat(box.SizeZ),
		"--exhaustiveness", strconv.Itoa(a.settings.Params.Exhaustiveness),
		"--num_modes", strconv.Itoa(a.settings.Params.NumModes),
		"--energy_range", formatFloat(a.settings.Params.EnergyRange),
		"--out", tmpPose,
	}
	if a.settings.Params.Seed != 0 {
		args = append(args, "--seed", strconv.Itoa(a.settings.Params.Seed))
	}
	inv := Invocation{Executable: a.settings.VinaPath, Args: args}

	res, err := a.runner.Run(ctx, inv)
	writeVinaLog(logPath, inv, res, err)
	if err != nil {
		_ = os.Remove(tmpPose)
		return false, fmt.Sprintf("launch docking tool: %v", err)
	}
	if res.ReturnCode != 0 {
		_ = os.Remove(tmpPose)
		return false, lastLine(res.Stderr, res.Stdout, fmt.Sprintf("docking tool rc=%d", res.ReturnCode))
	}
	if _, valid := PoseScore(tmpPose); !valid {
		_ = os.Remove(tmpPose)
		return false, lastLine(res.Stderr, res.Stdout, "invalid or empty pose")
	}
	if err := os.Rename(tmpPose, pose); err != nil {
		return false, fmt.Sprintf("finalize pose: %v", err)
	}
	return true, "OK"
}

func writeVinaLog(path string, inv Invocation, res ProcessResult, runErr error) {
	var b strings.Builder
	b.WriteString("[CMD]\n" + strings.Join(inv.Command(), " ") + "\n")
	b.WriteString("\n[STDOUT]\n" + res.Stdout + "\n")
	b.WriteString("\n[STDERR]\n" + res.Stderr + "\n")
	if runErr != nil {
		fmt.Fprintf(&b, "\n[ERROR]\n%v\n", runErr)
	}
	fmt.Fprintf(&b, "RC=%d\n", res.ReturnCode)
	_ = os.WriteFile(path, []byte(b.String()), 0o644)
}

// lastLine extracts a short reason from tool output for the manifest.
func lastLine(primary, fallback, dflt string) string {
	text := strings.TrimSpace(primary)
	if text == "" {
		text = strings.TrimSpace(fallback)
	}
	if text == "" {
		return dflt
	}
	lines := strings.Split(text, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if len(last) > 300 {
		last = last[:300]
	}
	return last
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
