// Package purge resets a project to its pre-run state: generated
// artifacts removed, the manifest truncated to its header, run state
// cleared. Inputs, configuration, and the receptor are never touched.
package purge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/moldock/moldockpipe/internal/artifacts"
	"github.com/moldock/moldockpipe/internal/manifest"
)

// artifactDirs maps generated-output directories to the file extensions
// purged from each. Anything else in them is left alone.
var artifactDirs = map[string][]string{
	"3D_Structures":    {".sdf"},
	"prepared_ligands": {".pdbqt"},
	"results":          {".pdbqt", ".log", ".csv", ".tmp"},
}

// Result reports what a purge removed.
type Result struct {
	RemovedFiles  int
	TruncatedCSVs []string
	ClearedState  bool
}

// LooksLikeProject reports whether dir carries any of the markers of a
// pipeline project. Purge refuses to run anywhere else, as the only
// guard against wiping an arbitrary directory.
func LooksLikeProject(dir string) bool {
	markers := []string{
		artifacts.ManifestPath(dir),
		filepath.Join(dir, "config", "run.yml"),
		artifacts.InputPath(dir),
	}
	for _, m := range markers {
		if _, err := os.Stat(m); err == nil {
			return true
		}
	}
	return false
}

// Purge removes generated artifacts and resets durable state under
// projectDir. The caller is responsible for confirmation.
func Purge(projectDir string) (Result, error) {
	if !LooksLikeProject(projectDir) {
		return Result{}, fmt.Errorf("%s does not look like a pipeline project (no manifest, config, or input found); refusing to purge", projectDir)
	}

	var res Result
	for dir, exts := range artifactDirs {
		n, err := removeByExtension(filepath.Join(projectDir, dir), exts)
		if err != nil {
			return res, err
		}
		res.RemovedFiles += n
	}
	n, err := removeByExtension(artifacts.EngineLogsDir(projectDir), []string{".log"})
	if err != nil {
		return res, err
	}
	res.RemovedFiles += n

	manifestPath := artifacts.ManifestPath(projectDir)
	if _, err := os.Stat(manifestPath); err == nil {
		if err := manifest.Save(manifestPath, nil); err != nil {
			return res, fmt.Errorf("truncate manifest: %w", err)
		}
		res.TruncatedCSVs = append(res.TruncatedCSVs, manifestPath)
	}

	stateDir := artifacts.StateDir(projectDir)
	for _, p := range []string{
		filepath.Join(stateDir, "run_status.json"),
		filepath.Join(stateDir, ".lock"),
	} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return res, fmt.Errorf("clear state: %w", err)
		}
	}
	if err := os.RemoveAll(filepath.Join(stateDir, "runs")); err != nil {
		return res, fmt.Errorf("clear run archives: %w", err)
	}
	res.ClearedState = true

	slog.Info("project purged", "dir", projectDir, "removed_files", res.RemovedFiles)
	return res, nil
}

func removeByExtension(dir string, exts []string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, ext := range exts {
			if strings.HasSuffix(name, ext) {
				if err := os.Remove(filepath.Join(dir, name)); err != nil {
					return removed, fmt.Errorf("remove %s: %w", name, err)
				}
				removed++
				break
			}
		}
	}
	return removed, nil
}
