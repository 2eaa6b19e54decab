// Package stage defines the pipeline stage identifiers and their fixed
// execution order.
package stage

// Stage names one of the four pipeline phases.
type Stage string

const (
	Screening      Stage = "screening"
	StructureBuild Stage = "structure_build"
	Preparation    Stage = "preparation"
	Docking        Stage = "docking"
)

// All returns the stages in pipeline order.
func All() []Stage {
	return []Stage{Screening, StructureBuild, Preparation, Docking}
}

// Valid reports whether s is a known stage name.
func Valid(s Stage) bool {
	switch s {
	case Screening, StructureBuild, Preparation, Docking:
		return true
	}
	return false
}
