package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "cpu", cfg.DockingMode)
	assert.Equal(t, 8, cfg.Docking.Exhaustiveness)
	assert.Equal(t, 9, cfg.Docking.NumModes)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, 20.0, cfg.Docking.Box.SizeX)
}

func TestLoadProjectFile_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	content := `docking_mode: gpu
receptor_path: receptor/target.pdbqt
docking:
  box:
    center_x: 12.5
    center_y: -3.0
    center_z: 0.5
    size_x: 22
    size_y: 24
    size_z: 18
  exhaustiveness: 16
batch_size: 32
`
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "run.yml"), []byte(content), 0o644))

	cfg, err := LoadProjectFile(dir)
	require.NoError(t, err)

	assert.Equal(t, "gpu", cfg.DockingMode)
	assert.Equal(t, "receptor/target.pdbqt", cfg.ReceptorPath)
	assert.Equal(t, 12.5, cfg.Docking.Box.CenterX)
	assert.Equal(t, 16, cfg.Docking.Exhaustiveness)
	assert.Equal(t, 32, cfg.BatchSize)
}

func TestLoadProjectFile_Missing(t *testing.T) {
	cfg, err := LoadProjectFile(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoadProjectFile_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "run.yml"), []byte("docking_mode: [unclosed"), 0o644))

	_, err := LoadProjectFile(dir)
	assert.Error(t, err)
}

func TestMerge_Precedence(t *testing.T) {
	defaults := Defaults()
	file := Config{DockingMode: "gpu", BatchSize: 128}
	overrides := Config{BatchSize: 16}

	out := Merge(overrides, file, defaults)

	// File beats defaults, overrides beat file.
	assert.Equal(t, "gpu", out.DockingMode)
	assert.Equal(t, 16, out.BatchSize)
	// Untouched values come from defaults.
	assert.Equal(t, 8, out.Docking.Exhaustiveness)
}

func TestMerge_ZeroMeansUnset(t *testing.T) {
	out := Merge(Config{}, Config{}, Defaults())
	assert.Equal(t, Defaults(), out)
}

func TestMerge_BoxFieldsMergeIndividually(t *testing.T) {
	file := Config{Docking: Docking{Box: Box{CenterX: 12.5, CenterY: -3, CenterZ: 7.25}}}

	out := Merge(Config{}, file, Defaults())

	assert.Equal(t, 12.5, out.Docking.Box.CenterX)
	assert.Equal(t, -3.0, out.Docking.Box.CenterY)
	assert.Equal(t, 7.25, out.Docking.Box.CenterZ)
	// Sizes the file leaves unset keep their defaults.
	assert.Equal(t, 20.0, out.Docking.Box.SizeX)
	assert.Equal(t, 20.0, out.Docking.Box.SizeY)
	assert.Equal(t, 20.0, out.Docking.Box.SizeZ)
	assert.NoError(t, out.Validate())
}

func TestValidate_RejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.DockingMode = "quantum"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidate_RejectsNonPositiveBox(t *testing.T) {
	cfg := Defaults()
	cfg.Docking.Box.SizeY = 0

	assert.Error(t, cfg.Validate())
}

func TestHash_Stable(t *testing.T) {
	a := Defaults()
	b := Defaults()
	assert.Equal(t, a.Hash(), b.Hash())

	b.Docking.Exhaustiveness = 32
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestHash_LayerIndependent(t *testing.T) {
	// The same effective config hashes identically no matter which layer
	// supplied the values.
	fromFile := Merge(Config{}, Config{DockingMode: "cpu"}, Defaults())
	fromOverride := Merge(Config{DockingMode: "cpu"}, Config{}, Defaults())

	assert.Equal(t, fromFile.Hash(), fromOverride.Hash())
}
