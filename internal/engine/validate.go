package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/moldock/moldockpipe/internal/adapters"
	"github.com/moldock/moldockpipe/internal/config"
	"github.com/moldock/moldockpipe/internal/fingerprint"
	"github.com/moldock/moldockpipe/internal/planner"
	"github.com/moldock/moldockpipe/internal/stage"
)

// defaultReceptor is the project-relative receptor location used when
// the configuration names none.
const defaultReceptor = "receptor/receptor.pdbqt"

// vinaCandidates are well-known binary names probed under the project's
// and the engine executable's tools/ directory, per docking mode.
var vinaCandidates = map[string][]string{
	"cpu": {"vina", "vina_1.2.5_linux_x86_64"},
	"gpu": {"vina-gpu", "AutoDock-Vina-GPU-2-1"},
}

// Report is the preflight outcome: the resolved tool identities the
// fingerprints depend on, plus every issue found. Errors block the run;
// warnings block it only under strict mode.
type Report struct {
	Config       config.Config
	ConfigHash   string
	ReceptorPath string
	ReceptorSHA1 string
	VinaPath     string
	VinaSHA1     string
	ToolVersions map[string]string
	Errors       []string
	Warnings     []string
}

// OK reports whether the run may proceed.
func (r *Report) OK() bool {
	return len(r.Errors) == 0
}

// ToolContext converts the resolved identities into the planner's
// fingerprint context.
func (r *Report) ToolContext() planner.ToolContext {
	return planner.ToolContext{
		GeneratorVersion: r.ToolVersions[string(stage.StructureBuild)],
		PrepToolVersion:  r.ToolVersions[string(stage.Preparation)],
		DockToolSHA1:     r.VinaSHA1,
		ReceptorSHA1:     r.ReceptorSHA1,
		ConfigHash:       r.ConfigHash,
		DockingParams:    r.Config.Docking,
	}
}

// Validate runs preflight against a merged configuration: geometry
// constraints, receptor and docking tool resolution and hashing, stage
// tool presence, and best-effort version probes. It never mutates
// project state.
func Validate(ctx context.Context, projectDir string, cfg config.Config, runner adapters.ProcessRunner) Report {
	rep := Report{
		Config:       cfg,
		ConfigHash:   cfg.Hash(),
		ToolVersions: map[string]string{},
	}

	if err := cfg.Validate(); err != nil {
		rep.Errors = append(rep.Errors, err.Error())
	}

	rep.resolveReceptor(projectDir, cfg)
	rep.resolveVina(projectDir, cfg)

	stageCmds := map[stage.Stage]string{
		stage.Screening:      cfg.Tools.ScreeningCmd,
		stage.StructureBuild: cfg.Tools.StructureCmd,
		stage.Preparation:    cfg.Tools.PreparationCmd,
	}
	for _, s := range stage.All() {
		if s == stage.Docking {
			continue
		}
		cmd := stageCmds[s]
		if cmd == "" {
			rep.Warnings = append(rep.Warnings,
				fmt.Sprintf("no tool configured for stage %s; the stage will fail if scheduled", s))
			// Keep the fingerprint context deterministic even unconfigured.
			rep.ToolVersions[string(s)] = "unconfigured"
			continue
		}
		rep.ToolVersions[string(s)] = probeVersion(ctx, runner, cmd)
	}

	// Strict mode promotes warnings.
	if cfg.Strict && len(rep.Warnings) > 0 {
		rep.Errors = append(rep.Errors, rep.Warnings...)
		rep.Warnings = nil
	}
	return rep
}

func (r *Report) resolveReceptor(projectDir string, cfg config.Config) {
	path := cfg.ReceptorPath
	if path == "" {
		path = filepath.FromSlash(defaultReceptor)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, path)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("receptor file missing or empty: %s", path))
		return
	}
	sha, err := fingerprint.SHA1File(path)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("hash receptor %s: %v", path, err))
		return
	}
	r.ReceptorPath = path
	r.ReceptorSHA1 = sha
}

// resolveVina finds the docking binary: the configured path first, then
// tools/ under the project, then tools/ beside the engine executable,
// then PATH.
func (r *Report) resolveVina(projectDir string, cfg config.Config) {
	configured := cfg.Tools.VinaCPUPath
	if cfg.DockingMode == "gpu" {
		configured = cfg.Tools.VinaGPUPath
	}

	var candidates []string
	if configured != "" {
		p := configured
		if !filepath.IsAbs(p) {
			p = filepath.Join(projectDir, p)
		}
		candidates = append(candidates, p, configured)
	}
	names := vinaCandidates[cfg.DockingMode]
	for _, name := range names {
		candidates = append(candidates, filepath.Join(projectDir, "tools", name))
	}
	if exe, err := os.Executable(); err == nil {
		for _, name := range names {
			candidates = append(candidates, filepath.Join(filepath.Dir(exe), "tools", name))
		}
	}

	path := ""
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			path = c
			break
		}
	}
	if path == "" {
		for _, name := range names {
			if found, err := exec.LookPath(name); err == nil {
				path = found
				break
			}
		}
	}
	if path == "" {
		r.Errors = append(r.Errors, fmt.Sprintf("docking tool not found for mode %q; set tools.vina_%s_path", cfg.DockingMode, cfg.DockingMode))
		return
	}
	sha, err := fingerprint.SHA1File(path)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("hash docking tool %s: %v", path, err))
		return
	}
	r.VinaPath = path
	r.VinaSHA1 = sha
	r.ToolVersions[string(stage.Docking)] = "sha1:" + sha
}

// probeVersion asks a stage tool for its version, best effort. On any
// failure the command string itself becomes the version token so the
// fingerprint context stays deterministic across runs.
func probeVersion(ctx context.Context, runner adapters.ProcessRunner, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 || runner == nil {
		return command
	}
	inv := adapters.Invocation{
		Executable: fields[0],
		Args:       append(append([]string{}, fields[1:]...), "--version"),
	}
	res, err := runner.Run(ctx, inv)
	if err != nil || res.ReturnCode != 0 {
		return command
	}
	line := strings.TrimSpace(res.Stdout)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return command
	}
	return line
}
