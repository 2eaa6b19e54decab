package planner

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// InputRow is one entity from the project's input table.
type InputRow struct {
	ID     string
	SMILES string
}

// ReadInputs loads input/input.csv rows. Rows missing an id or a
// structure notation are ignored; a missing file is an empty input set.
func ReadInputs(path string) ([]InputRow, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read input table %s: %w", path, err)
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse input table %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idCol, smilesCol := -1, -1
	for i, col := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "id":
			idCol = i
		case "smiles":
			smilesCol = i
		}
	}
	if idCol < 0 || smilesCol < 0 {
		return nil, fmt.Errorf("input table %s: missing id or smiles column", path)
	}

	var out []InputRow
	for _, row := range rows[1:] {
		if idCol >= len(row) || smilesCol >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[idCol])
		smiles := strings.TrimSpace(row[smilesCol])
		if id == "" || smiles == "" {
			continue
		}
		out = append(out, InputRow{ID: id, SMILES: smiles})
	}
	return out, nil
}
