package adapters

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moldock/moldockpipe/internal/artifacts"
	"github.com/moldock/moldockpipe/internal/cancel"
	"github.com/moldock/moldockpipe/internal/config"
	"github.com/moldock/moldockpipe/internal/fingerprint"
	"github.com/moldock/moldockpipe/internal/manifest"
)

var validPose = "REMARK VINA RESULT:    -7.5      0.000      0.000\n" +
	"REMARK VINA RESULT:    -6.9      1.200      2.100\n" +
	strings.Repeat("ATOM      1  C   LIG A   1       0.000   0.000   0.000\n", 5)

func testSettings() DockingSettings {
	return DockingSettings{
		VinaPath:     "/tools/vina",
		ToolSHA1:     "tool-sha",
		ReceptorSHA1: "rec-sha",
		ReceptorPath: "/proj/receptor/receptor.pdbqt",
		Params:       config.Defaults().Docking,
		ConfigHash:   "cfg-1",
		BatchSize:    64,
	}
}

// dockingProject seeds a manifest with prepared entities.
func dockingProject(t *testing.T, ids ...string) string {
	t.Helper()
	dir := t.TempDir()
	records := make([]manifest.Record, 0, len(ids))
	for _, id := range ids {
		require.NoError(t, os.MkdirAll(filepath.Dir(artifacts.PreparedPath(dir, id)), 0o755))
		require.NoError(t, os.WriteFile(artifacts.PreparedPath(dir, id), []byte("ligand\n"), 0o644))
		records = append(records, manifest.Record{
			ID:         id,
			PrepStatus: manifest.StatusDone,
			PrepFP:     "prep-fp-" + id,
		})
	}
	require.NoError(t, manifest.Save(artifacts.ManifestPath(dir), records))
	return dir
}

// writePoseOnOut emulates the docking tool: it writes a pose at the
// path given by the --out flag.
func writePoseOnOut(content string) func(Invocation) (ProcessResult, error) {
	return func(inv Invocation) (ProcessResult, error) {
		for i, arg := range inv.Args {
			if arg == "--out" && i+1 < len(inv.Args) {
				if err := os.WriteFile(inv.Args[i+1], []byte(content), 0o644); err != nil {
					return ProcessResult{}, err
				}
			}
		}
		return ProcessResult{ReturnCode: 0, Stdout: "docked\n"}, nil
	}
}

func TestPoseScore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pdbqt")
	require.NoError(t, os.WriteFile(path, []byte(validPose), 0o644))

	score, ok := PoseScore(path)
	require.True(t, ok)
	assert.Equal(t, -7.5, score)
}

func TestPoseScore_TooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pdbqt")
	require.NoError(t, os.WriteFile(path, []byte("REMARK VINA RESULT: -7.5\n"), 0o644))

	_, ok := PoseScore(path)
	assert.False(t, ok)
}

func TestPoseScore_NoResultLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pdbqt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("ATOM\n", 100)), 0o644))

	_, ok := PoseScore(path)
	assert.False(t, ok)
}

func TestDockingAdapter_Success(t *testing.T) {
	dir := dockingProject(t, "mol-001")
	runner := &fakeRunner{handler: writePoseOnOut(validPose)}
	a := NewDockingAdapter(testSettings(), runner)

	res, err := a.Invoke(context.Background(), Request{
		ProjectDir: dir,
		LogsDir:    filepath.Join(dir, "logs"),
		OnlyIDs:    []string{"mol-001"},
	})
	require.NoError(t, err)
	assert.Equal(t, DockRCSuccess, res.ReturnCode)

	records, err := manifest.Load(artifacts.ManifestPath(dir))
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, manifest.StatusDone, rec.DockStatus)
	assert.Equal(t, "-7.50", rec.DockScore)
	assert.Equal(t, "tool-sha", rec.DockToolSHA1)
	assert.Equal(t, "rec-sha", rec.ReceptorSHA1)
	assert.Equal(t, "cfg-1", rec.ConfigHash)
	wantFP := fingerprint.Docking("prep-fp-mol-001", "tool-sha", "rec-sha", testSettings().Params, "cfg-1")
	assert.Equal(t, wantFP, rec.DockFP)

	// Pose renamed into place, no temp leftover, per-ligand log written.
	assert.FileExists(t, artifacts.DockingPosePath(dir, "mol-001"))
	assert.NoFileExists(t, artifacts.DockingPosePath(dir, "mol-001")+".tmp")
	assert.FileExists(t, artifacts.DockingLogPath(dir, "mol-001"))
	assert.FileExists(t, artifacts.SummaryPath(dir))
}

func TestDockingAdapter_PartialFailure(t *testing.T) {
	dir := dockingProject(t, "mol-001", "mol-002")
	runner := &fakeRunner{handler: func(inv Invocation) (ProcessResult, error) {
		for _, arg := range inv.Args {
			if strings.Contains(arg, "mol-002") && strings.HasSuffix(arg, ".pdbqt") && !strings.HasSuffix(arg, ".tmp") {
				return ProcessResult{ReturnCode: 1, Stderr: "ligand parse error\n"}, nil
			}
		}
		return writePoseOnOut(validPose)(inv)
	}}
	a := NewDockingAdapter(testSettings(), runner)

	res, err := a.Invoke(context.Background(), Request{
		ProjectDir: dir,
		LogsDir:    filepath.Join(dir, "logs"),
		OnlyIDs:    []string{"mol-001", "mol-002"},
	})
	require.NoError(t, err)
	assert.Equal(t, DockRCPartial, res.ReturnCode)

	byID := manifest.ByID(mustLoad(t, dir))
	assert.Equal(t, manifest.StatusDone, byID["mol-001"].DockStatus)
	assert.Equal(t, manifest.StatusFailed, byID["mol-002"].DockStatus)
	assert.Equal(t, "ligand parse error", byID["mol-002"].DockReason)
	assert.NoFileExists(t, artifacts.DockingPosePath(dir, "mol-002"))
}

func TestDockingAdapter_InvalidPoseFails(t *testing.T) {
	dir := dockingProject(t, "mol-001")
	runner := &fakeRunner{handler: writePoseOnOut("too short")}
	a := NewDockingAdapter(testSettings(), runner)

	res, err := a.Invoke(context.Background(), Request{
		ProjectDir: dir,
		LogsDir:    filepath.Join(dir, "logs"),
		OnlyIDs:    []string{"mol-001"},
	})
	require.NoError(t, err)
	assert.Equal(t, DockRCPartial, res.ReturnCode)

	byID := manifest.ByID(mustLoad(t, dir))
	assert.Equal(t, manifest.StatusFailed, byID["mol-001"].DockStatus)
	assert.NoFileExists(t, artifacts.DockingPosePath(dir, "mol-001"))
}

func TestDockingAdapter_DefaultsToPreparedEntities(t *testing.T) {
	dir := dockingProject(t, "mol-002", "mol-001")
	runner := &fakeRunner{handler: writePoseOnOut(validPose)}
	a := NewDockingAdapter(testSettings(), runner)

	res, err := a.Invoke(context.Background(), Request{
		ProjectDir: dir,
		LogsDir:    filepath.Join(dir, "logs"),
	})
	require.NoError(t, err)
	assert.Equal(t, DockRCSuccess, res.ReturnCode)
	assert.Len(t, runner.calls, 2)
}

func TestDockingAdapter_SoftStopFinishesBatch(t *testing.T) {
	dir := dockingProject(t, "mol-001", "mol-002")
	stop := &cancel.Token{}
	runner := &fakeRunner{handler: func(inv Invocation) (ProcessResult, error) {
		stop.Request()
		return writePoseOnOut(validPose)(inv)
	}}
	settings := testSettings()
	settings.BatchSize = 1
	a := NewDockingAdapter(settings, runner)

	res, err := a.Invoke(context.Background(), Request{
		ProjectDir: dir,
		LogsDir:    filepath.Join(dir, "logs"),
		OnlyIDs:    []string{"mol-001", "mol-002"},
		Stop:       stop,
	})
	require.NoError(t, err)

	// The first one-entity batch completed and was checkpointed; the
	// second never started, and the result says so.
	assert.True(t, res.Interrupted)
	assert.Len(t, runner.calls, 1)
	byID := manifest.ByID(mustLoad(t, dir))
	assert.Equal(t, manifest.StatusDone, byID["mol-001"].DockStatus)
	assert.Empty(t, byID["mol-002"].DockStatus)
}

func TestDockingAdapter_UninterruptedResultIsClean(t *testing.T) {
	dir := dockingProject(t, "mol-001")
	runner := &fakeRunner{handler: writePoseOnOut(validPose)}
	a := NewDockingAdapter(testSettings(), runner)

	res, err := a.Invoke(context.Background(), Request{
		ProjectDir: dir,
		LogsDir:    filepath.Join(dir, "logs"),
		OnlyIDs:    []string{"mol-001"},
	})
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
}

func TestDockingAdapter_NoWork(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, manifest.Save(artifacts.ManifestPath(dir), nil))
	runner := &fakeRunner{}
	a := NewDockingAdapter(testSettings(), runner)

	res, err := a.Invoke(context.Background(), Request{
		ProjectDir: dir,
		LogsDir:    filepath.Join(dir, "logs"),
	})
	require.NoError(t, err)
	assert.Equal(t, DockRCSuccess, res.ReturnCode)
	assert.Empty(t, runner.calls)
}

func mustLoad(t *testing.T, dir string) []manifest.Record {
	t.Helper()
	records, err := manifest.Load(artifacts.ManifestPath(dir))
	require.NoError(t, err)
	return records
}
