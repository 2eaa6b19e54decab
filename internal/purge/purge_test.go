package purge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moldock/moldockpipe/internal/artifacts"
	"github.com/moldock/moldockpipe/internal/manifest"
)

func seedProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	write := func(rel, content string) {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("input/input.csv", "id,smiles\nmol-001,CCO\n")
	write("config/run.yml", "docking_mode: cpu\n")
	write("receptor/receptor.pdbqt", "ATOM\n")
	write("3D_Structures/mol-001.sdf", "sdf\n")
	write("prepared_ligands/mol-001.pdbqt", "lig\n")
	write("results/mol-001_out.pdbqt", "pose\n")
	write("results/mol-001_vina.log", "log\n")
	write("results/leaderboard.csv", "rank,id\n")
	write("logs/engine/docking.stdout.log", "out\n")
	write("state/run_status.json", "{}")
	write("state/runs/run_1/run_status.json", "{}")
	require.NoError(t, manifest.Save(artifacts.ManifestPath(dir), []manifest.Record{{ID: "mol-001"}}))
	return dir
}

func TestPurge(t *testing.T) {
	dir := seedProject(t)

	res, err := Purge(dir)
	require.NoError(t, err)
	assert.True(t, res.ClearedState)
	assert.GreaterOrEqual(t, res.RemovedFiles, 5)

	// Generated outputs gone.
	assert.NoFileExists(t, filepath.Join(dir, "3D_Structures", "mol-001.sdf"))
	assert.NoFileExists(t, filepath.Join(dir, "prepared_ligands", "mol-001.pdbqt"))
	assert.NoFileExists(t, artifacts.DockingPosePath(dir, "mol-001"))
	assert.NoFileExists(t, filepath.Join(dir, "state", "run_status.json"))
	assert.NoDirExists(t, filepath.Join(dir, "state", "runs"))

	// Inputs, config, and receptor survive.
	assert.FileExists(t, artifacts.InputPath(dir))
	assert.FileExists(t, filepath.Join(dir, "config", "run.yml"))
	assert.FileExists(t, filepath.Join(dir, "receptor", "receptor.pdbqt"))

	// Manifest truncated to its header.
	records, err := manifest.Load(artifacts.ManifestPath(dir))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPurge_RefusesNonProject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "precious.txt"), []byte("keep me"), 0o644))

	_, err := Purge(dir)
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "precious.txt"))
}

func TestLooksLikeProject(t *testing.T) {
	assert.False(t, LooksLikeProject(t.TempDir()))
	assert.True(t, LooksLikeProject(seedProject(t)))
}
