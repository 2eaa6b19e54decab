package engine

import (
	"encoding/csv"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moldock/moldockpipe/internal/manifest"
	"github.com/moldock/moldockpipe/internal/planner"
)

func TestExportReport(t *testing.T) {
	dir := t.TempDir()
	records := []manifest.Record{
		{ID: "mol-002", ScreenStatus: manifest.ScreenFail},
		{ID: "mol-001", ScreenStatus: manifest.ScreenPass, DockStatus: manifest.StatusDone, DockScore: "-8.10"},
	}

	path, err := ExportReport(dir, records)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "id", rows[0][0])
	// Sorted by id.
	assert.Equal(t, "mol-001", rows[1][0])
	assert.Equal(t, "-8.10", rows[1][5])
	assert.Equal(t, "mol-002", rows[2][0])
}

func TestBuildSummary(t *testing.T) {
	inputs := []planner.InputRow{{ID: "mol-001"}, {ID: "mol-002"}, {ID: "mol-003"}}
	records := []manifest.Record{
		{ID: "mol-001", ScreenStatus: manifest.ScreenPass, StructStatus: manifest.StatusDone,
			PrepStatus: manifest.StatusDone, DockStatus: manifest.StatusDone},
		{ID: "mol-002", ScreenStatus: manifest.ScreenPass, StructStatus: manifest.StatusDone,
			PrepStatus: manifest.StatusDone, DockStatus: manifest.StatusFailed},
		{ID: "mol-003", ScreenStatus: manifest.ScreenFail},
	}

	sum := buildSummary("/p", inputs, records)

	assert.Equal(t, 3, sum.InputRows)
	assert.Equal(t, 2, sum.ScreenedPass)
	assert.Equal(t, 1, sum.ScreenedFail)
	assert.Equal(t, 2, sum.StructuresDone)
	assert.Equal(t, 2, sum.PreparedDone)
	assert.Equal(t, 1, sum.DockedDone)
	assert.Equal(t, 1, sum.DockedFailed)
	assert.Equal(t, "docked 1/2", sum.Result)
}
