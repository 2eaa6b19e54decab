package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moldock/moldockpipe/internal/stage"
)

func sample() []Record {
	return []Record{
		{
			ID:           "mol-002",
			ScreenStatus: ScreenFail,
			ScreenReason: "mw_too_high",
		},
		{
			ID:           "mol-001",
			SMILES:       "CCO",
			InChIKey:     "LFQSCWFLJHTTHZ-UHFFFAOYSA-N",
			ScreenStatus: ScreenPass,
			StructStatus: StatusDone,
			StructPath:   "3D_Structures/mol-001.sdf",
			StructFP:     "fp-struct-1",
			DockScore:    "-7.20",
			CreatedAt:    "2026-01-01T00:00:00Z",
			Extra:        map[string]string{"legacy_note": "kept"},
		},
	}
}

func TestSave_Golden(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.csv")
	require.NoError(t, Save(path, sample()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "manifest", raw)
}

func TestLoadSave_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.csv")
	require.NoError(t, Save(path, sample()))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Save sorts by id.
	assert.Equal(t, "mol-001", records[0].ID)
	assert.Equal(t, "mol-002", records[1].ID)
	assert.Equal(t, "CCO", records[0].SMILES)
	assert.Equal(t, "fp-struct-1", records[0].StructFP)
	assert.Equal(t, "kept", records[0].Extra["legacy_note"])
	assert.Equal(t, "mw_too_high", records[1].ScreenReason)
}

func TestLoad_MissingFile(t *testing.T) {
	records, err := Load(filepath.Join(t.TempDir(), "absent.csv"))
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestLoad_NormalizesSentinels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.csv")
	csv := "id,smiles,dock_score,dock_reason\nmol-001,CCO,nan,None\nmol-002,CCN,-,null\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Empty(t, records[0].DockScore)
	assert.Empty(t, records[0].DockReason)
	assert.Empty(t, records[1].DockScore)
	assert.Empty(t, records[1].DockReason)
}

func TestLoad_SkipsRowsWithoutID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.csv")
	csv := "id,smiles\nmol-001,CCO\n,orphan\nnan,sentinel\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "mol-001", records[0].ID)
}

func TestLoad_UnknownColumnsPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.csv")
	csv := "id,future_col\nmol-001,surprise\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "surprise", records[0].Extra["future_col"])

	// Survives a rewrite.
	require.NoError(t, Save(path, records))
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "surprise", again[0].Extra["future_col"])
}

func TestTerminal(t *testing.T) {
	rec := Record{ScreenStatus: "pass", StructStatus: "RUNNING", PrepStatus: StatusFailed}

	// Status comparison is case-insensitive.
	assert.True(t, rec.Terminal(stage.Screening))
	assert.False(t, rec.Terminal(stage.StructureBuild))
	assert.True(t, rec.Terminal(stage.Preparation))
	assert.False(t, rec.Terminal(stage.Docking))
}

func TestByID_LastOccurrenceWins(t *testing.T) {
	records := []Record{
		{ID: "mol-001", SMILES: "old"},
		{ID: "mol-001", SMILES: "new"},
	}
	assert.Equal(t, "new", ByID(records)["mol-001"].SMILES)
}
