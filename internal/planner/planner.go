// Package planner decides, per stage, which entities must (re)run and
// why. It combines the manifest, artifact existence checks, and the
// resolved tool/config context into a WorkPlan; given unchanged inputs
// it always produces the identical plan.
package planner

import (
	"os"
	"sort"
	"strings"

	"github.com/moldock/moldockpipe/internal/artifacts"
	"github.com/moldock/moldockpipe/internal/fingerprint"
	"github.com/moldock/moldockpipe/internal/manifest"
	"github.com/moldock/moldockpipe/internal/stage"
)

// Reason explains why an entity was scheduled for a stage.
type Reason string

const (
	ReasonStatusNotDone Reason = "status_not_done"
	ReasonMissingFile   Reason = "missing_file"
	ReasonFailed        Reason = "failed"
	ReasonStale         Reason = "fp_mismatch_stale"
	ReasonBackfilled    Reason = "fp_missing_backfilled"
)

// ToolContext is the resolved tool/version/config identity the
// fingerprints depend on. Produced by engine validation.
type ToolContext struct {
	GeneratorVersion string
	PrepToolVersion  string
	DockToolSHA1     string
	ReceptorSHA1     string
	ConfigHash       string
	DockingParams    any
}

// Backfill records a fingerprint column to fill in for an already-valid
// artifact, without forcing recomputation.
type Backfill struct {
	ID          string
	Stage       stage.Stage
	Fingerprint string
}

// Stats carries advisory per-stage counts and small id samples for
// observability; correctness never depends on it.
type Stats struct {
	InputIDs     int                           `json:"input_ids"`
	TodoCounts   map[stage.Stage]int           `json:"todo_counts"`
	ReasonCounts map[stage.Stage]map[Reason]int `json:"reason_counts"`
	Samples      map[stage.Stage][]string      `json:"samples"`
}

// WorkPlan is the planner's output: sorted per-stage id sets, the
// reason each id was scheduled, and pending fingerprint backfills.
type WorkPlan struct {
	Screening   []string
	Structure   []string
	Preparation []string
	Docking     []string
	Reasons     map[stage.Stage]map[string]Reason
	Backfills   []Backfill
	Stats       Stats
}

// StageIDs returns the TODO set for a stage.
func (p *WorkPlan) StageIDs(s stage.Stage) []string {
	switch s {
	case stage.Screening:
		return p.Screening
	case stage.StructureBuild:
		return p.Structure
	case stage.Preparation:
		return p.Preparation
	case stage.Docking:
		return p.Docking
	}
	return nil
}

func existsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// stageFields views one record's status/artifact/fingerprint group for
// a downstream stage.
type stageFields struct {
	status   string
	artifact string
	storedFP string
}

func normStatus(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// decide applies the four-way rule for one downstream stage. Malformed
// or missing fields always land on the "needs rerun" side.
func decide(f stageFields, freshFP string) (scheduled bool, reason Reason, backfill bool) {
	f.status = normStatus(f.status)
	switch {
	case f.status == manifest.StatusFailed:
		return true, ReasonFailed, false
	case f.status != manifest.StatusDone:
		return true, ReasonStatusNotDone, false
	case !existsNonEmpty(f.artifact):
		return true, ReasonMissingFile, false
	case f.storedFP == "":
		// Legacy record: trust the artifact, record the fingerprint.
		return false, ReasonBackfilled, true
	case f.storedFP != freshFP:
		return true, ReasonStale, false
	}
	return false, "", false
}

// Compute derives the work plan for a project. Pure given the manifest
// contents, the artifact files on disk, and the tool context.
func Compute(projectDir string, records []manifest.Record, inputs []InputRow, tc ToolContext) WorkPlan {
	byID := manifest.ByID(records)

	plan := WorkPlan{
		Reasons: map[stage.Stage]map[string]Reason{
			stage.StructureBuild: {},
			stage.Preparation:    {},
			stage.Docking:        {},
		},
	}

	sortedInputs := make([]InputRow, len(inputs))
	copy(sortedInputs, inputs)
	sort.Slice(sortedInputs, func(i, j int) bool { return sortedInputs[i].ID < sortedInputs[j].ID })

	for _, in := range sortedInputs {
		rec := byID[in.ID]
		if rec == nil {
			rec = &manifest.Record{ID: in.ID}
		}

		structFP := fingerprint.Structure(in.SMILES, tc.GeneratorVersion, nil)
		prepFP := fingerprint.Preparation(structFP, tc.PrepToolVersion, nil)
		dockFP := fingerprint.Docking(prepFP, tc.DockToolSHA1, tc.ReceptorSHA1, tc.DockingParams, tc.ConfigHash)

		if !rec.Terminal(stage.Screening) {
			plan.Screening = append(plan.Screening, in.ID)
		}
		// Entities not screened PASS are excluded from stages 2-4.
		if normStatus(rec.ScreenStatus) != manifest.ScreenPass {
			continue
		}

		s2, r2, bf2 := decide(stageFields{rec.StructStatus, artifacts.StructurePath(projectDir, in.ID), rec.StructFP}, structFP)
		if s2 {
			plan.Structure = append(plan.Structure, in.ID)
			plan.Reasons[stage.StructureBuild][in.ID] = r2
		} else if bf2 {
			plan.Backfills = append(plan.Backfills, Backfill{ID: in.ID, Stage: stage.StructureBuild, Fingerprint: structFP})
		}

		// Stage 3 cascades from stage 2: once the upstream output will
		// change, the stored preparation fingerprint cannot stay valid.
		s3 := s2
		if s3 {
			plan.Reasons[stage.Preparation][in.ID] = ReasonStale
		} else {
			var r3 Reason
			var bf3 bool
			s3, r3, bf3 = decide(stageFields{rec.PrepStatus, artifacts.PreparedPath(projectDir, in.ID), rec.PrepFP}, prepFP)
			if s3 {
				plan.Reasons[stage.Preparation][in.ID] = r3
			} else if bf3 {
				plan.Backfills = append(plan.Backfills, Backfill{ID: in.ID, Stage: stage.Preparation, Fingerprint: prepFP})
			}
		}
		if s3 {
			plan.Preparation = append(plan.Preparation, in.ID)
		}

		// Stage 4 cascades from 2 or 3.
		s4 := s2 || s3
		if s4 {
			plan.Reasons[stage.Docking][in.ID] = ReasonStale
		} else {
			var r4 Reason
			var bf4 bool
			s4, r4, bf4 = decide(stageFields{rec.DockStatus, artifacts.DockingPosePath(projectDir, in.ID), rec.DockFP}, dockFP)
			if s4 {
				plan.Reasons[stage.Docking][in.ID] = r4
			} else if bf4 {
				plan.Backfills = append(plan.Backfills, Backfill{ID: in.ID, Stage: stage.Docking, Fingerprint: dockFP})
			}
		}
		if s4 {
			plan.Docking = append(plan.Docking, in.ID)
		}
	}

	plan.Stats = buildStats(len(sortedInputs), &plan)
	return plan
}

const sampleSize = 10

func buildStats(inputIDs int, plan *WorkPlan) Stats {
	stats := Stats{
		InputIDs:     inputIDs,
		TodoCounts:   map[stage.Stage]int{},
		ReasonCounts: map[stage.Stage]map[Reason]int{},
		Samples:      map[stage.Stage][]string{},
	}
	for _, s := range stage.All() {
		ids := plan.StageIDs(s)
		stats.TodoCounts[s] = len(ids)
		n := len(ids)
		if n > sampleSize {
			n = sampleSize
		}
		stats.Samples[s] = append([]string{}, ids[:n]...)
		counts := map[Reason]int{}
		for _, reason := range plan.Reasons[s] {
			counts[reason]++
		}
		stats.ReasonCounts[s] = counts
	}
	return stats
}
