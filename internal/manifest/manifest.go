// Package manifest is the durable per-entity record table. One row per
// chemical entity, keyed by id, persisted sorted by id as CSV under
// state/manifest.csv. Reads are permissive (unknown columns carried
// through, sentinel values normalized); writes always emit the full
// canonical column set and replace the file atomically.
package manifest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/moldock/moldockpipe/internal/atomicfile"
	"github.com/moldock/moldockpipe/internal/stage"
)

// Stage status values. Screening uses PASS/FAIL, the later stages
// DONE/FAILED; the empty string means the stage has not run.
const (
	ScreenPass   = "PASS"
	ScreenFail   = "FAIL"
	StatusDone   = "DONE"
	StatusFailed = "FAILED"
)

// Columns is the canonical column set, in fixed write order.
var Columns = []string{
	"id",
	"smiles",
	"inchikey",
	"screen_status",
	"screen_reason",
	"struct_status",
	"struct_path",
	"struct_reason",
	"struct_fp",
	"struct_tool_version",
	"prep_status",
	"prep_path",
	"prep_reason",
	"prep_fp",
	"prep_tool_version",
	"dock_status",
	"dock_score",
	"dock_pose",
	"dock_reason",
	"dock_fp",
	"dock_tool_sha1",
	"receptor_sha1",
	"config_hash",
	"created_at",
	"updated_at",
}

// Record is one entity's row. Later stages populate only their own
// field group; a record is created when screening first sees the id.
type Record struct {
	ID       string
	SMILES   string
	InChIKey string

	ScreenStatus string
	ScreenReason string

	StructStatus      string
	StructPath        string
	StructReason      string
	StructFP          string
	StructToolVersion string

	PrepStatus      string
	PrepPath        string
	PrepReason      string
	PrepFP          string
	PrepToolVersion string

	DockStatus   string
	DockScore    string
	DockPose     string
	DockReason   string
	DockFP       string
	DockToolSHA1 string

	ReceptorSHA1 string
	ConfigHash   string

	CreatedAt string
	UpdatedAt string

	// Extra holds columns from future or past schema versions. They are
	// preserved verbatim across a load/save cycle.
	Extra map[string]string
}

// StageStatus returns the record's status field for a stage.
func (r *Record) StageStatus(s stage.Stage) string {
	switch s {
	case stage.Screening:
		return r.ScreenStatus
	case stage.StructureBuild:
		return r.StructStatus
	case stage.Preparation:
		return r.PrepStatus
	case stage.Docking:
		return r.DockStatus
	}
	return ""
}

// Terminal reports whether the record has reached a terminal status for
// the stage (PASS/FAIL for screening, DONE/FAILED otherwise).
func (r *Record) Terminal(s stage.Stage) bool {
	st := strings.ToUpper(strings.TrimSpace(r.StageStatus(s)))
	if s == stage.Screening {
		return st == ScreenPass || st == ScreenFail
	}
	return st == StatusDone || st == StatusFailed
}

func (r *Record) get(col string) string {
	switch col {
	case "id":
		return r.ID
	case "smiles":
		return r.SMILES
	case "inchikey":
		return r.InChIKey
	case "screen_status":
		return r.ScreenStatus
	case "screen_reason":
		return r.ScreenReason
	case "struct_status":
		return r.StructStatus
	case "struct_path":
		return r.StructPath
	case "struct_reason":
		return r.StructReason
	case "struct_fp":
		return r.StructFP
	case "struct_tool_version":
		return r.StructToolVersion
	case "prep_status":
		return r.PrepStatus
	case "prep_path":
		return r.PrepPath
	case "prep_reason":
		return r.PrepReason
	case "prep_fp":
		return r.PrepFP
	case "prep_tool_version":
		return r.PrepToolVersion
	case "dock_status":
		return r.DockStatus
	case "dock_score":
		return r.DockScore
	case "dock_pose":
		return r.DockPose
	case "dock_reason":
		return r.DockReason
	case "dock_fp":
		return r.DockFP
	case "dock_tool_sha1":
		return r.DockToolSHA1
	case "receptor_sha1":
		return r.ReceptorSHA1
	case "config_hash":
		return r.ConfigHash
	case "created_at":
		return r.CreatedAt
	case "updated_at":
		return r.UpdatedAt
	}
	return r.Extra[col]
}

func (r *Record) set(col, value string) {
	switch col {
	case "id":
		r.ID = value
	case "smiles":
		r.SMILES = value
	case "inchikey":
		r.InChIKey = value
	case "screen_status":
		r.ScreenStatus = value
	case "screen_reason":
		r.ScreenReason = value
	case "struct_status":
		r.StructStatus = value
	case "struct_path":
		r.StructPath = value
	case "struct_reason":
		r.StructReason = value
	case "struct_fp":
		r.StructFP = value
	case "struct_tool_version":
		r.StructToolVersion = value
	case "prep_status":
		r.PrepStatus = value
	case "prep_path":
		r.PrepPath = value
	case "prep_reason":
		r.PrepReason = value
	case "prep_fp":
		r.PrepFP = value
	case "prep_tool_version":
		r.PrepToolVersion = value
	case "dock_status":
		r.DockStatus = value
	case "dock_score":
		r.DockScore = value
	case "dock_pose":
		r.DockPose = value
	case "dock_reason":
		r.DockReason = value
	case "dock_fp":
		r.DockFP = value
	case "dock_tool_sha1":
		r.DockToolSHA1 = value
	case "receptor_sha1":
		r.ReceptorSHA1 = value
	case "config_hash":
		r.ConfigHash = value
	case "created_at":
		r.CreatedAt = value
	case "updated_at":
		r.UpdatedAt = value
	default:
		if r.Extra == nil {
			r.Extra = map[string]string{}
		}
		r.Extra[col] = value
	}
}

// normalizeCell maps sentinel spellings of "no value" to the empty string.
func normalizeCell(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "nan", "none", "null", "-":
		return ""
	}
	return strings.TrimSpace(v)
}

var canonical = func() map[string]bool {
	m := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		m[c] = true
	}
	return m
}()

// Load reads the manifest at path. A missing file is an empty manifest,
// not an error. Unknown columns land in Record.Extra; missing columns
// default to empty.
func Load(path string) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		var rec Record
		for i, col := range header {
			if i >= len(row) {
				break
			}
			rec.set(col, normalizeCell(row[i]))
		}
		if rec.ID == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Save writes the full record set to path, sorted by id, replacing the
// file atomically. Extra columns from legacy schemas are appended after
// the canonical set in sorted order.
func Save(path string, records []Record) error {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	extraSet := map[string]bool{}
	for _, rec := range sorted {
		for col := range rec.Extra {
			if !canonical[col] {
				extraSet[col] = true
			}
		}
	}
	extras := make([]string, 0, len(extraSet))
	for col := range extraSet {
		extras = append(extras, col)
	}
	sort.Strings(extras)

	header := append(append([]string{}, Columns...), extras...)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("encode manifest header: %w", err)
	}
	row := make([]string, len(header))
	for i := range sorted {
		for j, col := range header {
			row[j] = sorted[i].get(col)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("encode manifest row %s: %w", sorted[i].ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	return atomicfile.WriteFile(path, buf.Bytes(), 0o644)
}

// ByID indexes records by entity id. Rows with duplicate ids keep the
// last occurrence, matching full-rewrite semantics.
func ByID(records []Record) map[string]*Record {
	out := make(map[string]*Record, len(records))
	for i := range records {
		out[records[i].ID] = &records[i]
	}
	return out
}
