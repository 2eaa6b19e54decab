// Package config provides the typed run configuration: built-in
// defaults, the project's config/run.yml, and explicit call overrides,
// merged once with a documented precedence (overrides > project file >
// defaults).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/moldock/moldockpipe/internal/fingerprint"
)

// ProjectFile is the project-relative location of the config file.
const ProjectFile = "config/run.yml"

// Box is the docking search box: three center coordinates and three
// positive edge sizes, in angstroms.
type Box struct {
	CenterX float64 `yaml:"center_x" json:"center_x"`
	CenterY float64 `yaml:"center_y" json:"center_y"`
	CenterZ float64 `yaml:"center_z" json:"center_z"`
	SizeX   float64 `yaml:"size_x" json:"size_x" validate:"gt=0"`
	SizeY   float64 `yaml:"size_y" json:"size_y" validate:"gt=0"`
	SizeZ   float64 `yaml:"size_z" json:"size_z" validate:"gt=0"`
}

// Docking holds the docking geometry and search-effort parameters.
// These feed the docking fingerprint, so any change here marks
// previously docked entities stale.
type Docking struct {
	Box            Box     `yaml:"box" json:"box"`
	Exhaustiveness int     `yaml:"exhaustiveness" json:"exhaustiveness" validate:"gte=1"`
	NumModes       int     `yaml:"num_modes" json:"num_modes" validate:"gte=1"`
	EnergyRange    float64 `yaml:"energy_range" json:"energy_range" validate:"gte=0"`
	Seed           int     `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// Tools holds external tool locations. Empty values fall back to the
// resolution order implemented in engine validation.
type Tools struct {
	ScreeningCmd   string `yaml:"screening_cmd" json:"screening_cmd"`
	StructureCmd   string `yaml:"structure_cmd" json:"structure_cmd"`
	PreparationCmd string `yaml:"preparation_cmd" json:"preparation_cmd"`
	VinaCPUPath    string `yaml:"vina_cpu_path" json:"vina_cpu_path"`
	VinaGPUPath    string `yaml:"vina_gpu_path" json:"vina_gpu_path"`
}

// Config is the merged run configuration.
type Config struct {
	DockingMode  string  `yaml:"docking_mode" json:"docking_mode" validate:"omitempty,oneof=cpu gpu"`
	Strict       bool    `yaml:"strict" json:"strict"`
	ReceptorPath string  `yaml:"receptor_path" json:"receptor_path"`
	Tools        Tools   `yaml:"tools" json:"tools"`
	Docking      Docking `yaml:"docking" json:"docking"`
	BatchSize    int     `yaml:"batch_size" json:"batch_size" validate:"gte=0"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DockingMode: "cpu",
		Docking: Docking{
			Box: Box{
				SizeX: 20,
				SizeY: 20,
				SizeZ: 20,
			},
			Exhaustiveness: 8,
			NumModes:       9,
			EnergyRange:    3,
		},
		BatchSize: 64,
	}
}

// LoadProjectFile reads config/run.yml under projectDir. A missing file
// yields a zero Config and no error; every field then comes from
// overrides or defaults.
func LoadProjectFile(projectDir string) (Config, error) {
	path := filepath.Join(projectDir, filepath.FromSlash(ProjectFile))
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Merge applies the precedence overrides > file > defaults in a single
// pass. Zero values mean "unset" for strings and numerics; booleans
// cannot distinguish unset from false, so a true in any layer sticks.
func Merge(overrides, file, defaults Config) Config {
	out := defaults
	for _, layer := range []Config{file, overrides} {
		if layer.DockingMode != "" {
			out.DockingMode = layer.DockingMode
		}
		if layer.Strict {
			out.Strict = true
		}
		if layer.ReceptorPath != "" {
			out.ReceptorPath = layer.ReceptorPath
		}
		if layer.Tools.ScreeningCmd != "" {
			out.Tools.ScreeningCmd = layer.Tools.ScreeningCmd
		}
		if layer.Tools.StructureCmd != "" {
			out.Tools.StructureCmd = layer.Tools.StructureCmd
		}
		if layer.Tools.PreparationCmd != "" {
			out.Tools.PreparationCmd = layer.Tools.PreparationCmd
		}
		if layer.Tools.VinaCPUPath != "" {
			out.Tools.VinaCPUPath = layer.Tools.VinaCPUPath
		}
		if layer.Tools.VinaGPUPath != "" {
			out.Tools.VinaGPUPath = layer.Tools.VinaGPUPath
		}
		if layer.Docking.Box.CenterX != 0 {
			out.Docking.Box.CenterX = layer.Docking.Box.CenterX
		}
		if layer.Docking.Box.CenterY != 0 {
			out.Docking.Box.CenterY = layer.Docking.Box.CenterY
		}
		if layer.Docking.Box.CenterZ != 0 {
			out.Docking.Box.CenterZ = layer.Docking.Box.CenterZ
		}
		if layer.Docking.Box.SizeX != 0 {
			out.Docking.Box.SizeX = layer.Docking.Box.SizeX
		}
		if layer.Docking.Box.SizeY != 0 {
			out.Docking.Box.SizeY = layer.Docking.Box.SizeY
		}
		if layer.Docking.Box.SizeZ != 0 {
			out.Docking.Box.SizeZ = layer.Docking.Box.SizeZ
		}
		if layer.Docking.Exhaustiveness != 0 {
			out.Docking.Exhaustiveness = layer.Docking.Exhaustiveness
		}
		if layer.Docking.NumModes != 0 {
			out.Docking.NumModes = layer.Docking.NumModes
		}
		if layer.Docking.EnergyRange != 0 {
			out.Docking.EnergyRange = layer.Docking.EnergyRange
		}
		if layer.Docking.Seed != 0 {
			out.Docking.Seed = layer.Docking.Seed
		}
		if layer.BatchSize != 0 {
			out.BatchSize = layer.BatchSize
		}
	}
	return out
}

// Load merges overrides with the project file and built-in defaults.
func Load(projectDir string, overrides Config) (Config, error) {
	file, err := LoadProjectFile(projectDir)
	if err != nil {
		return Config{}, err
	}
	return Merge(overrides, file, Defaults()), nil
}

var validate = validator.New()

// Validate checks structural constraints (positive box sizes, known
// docking mode, sane search parameters).
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("config: field %s failed %q validation", e.Namespace(), e.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Hash returns the configuration's stable content hash. Two configs
// that merge to the same effective values hash identically regardless
// of which layer supplied them.
func (c Config) Hash() string {
	return fingerprint.StableHash(c)
}
