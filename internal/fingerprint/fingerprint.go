// Package fingerprint computes stable content hashes for pipeline stages.
//
// A fingerprint is a sha256 over a canonical JSON encoding of the inputs
// that determine a stage's output: keys sorted, floats rounded to a fixed
// precision so representation noise never changes the hash. Each stage
// folds the upstream stage's fingerprint into its own, giving a
// Merkle-style lineage from raw structure notation down to docking.
package fingerprint

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

// floatPrecision is the number of decimal places floats are rounded to
// before hashing.
const floatPrecision = 6

// normalize rewrites a value tree so its JSON encoding is canonical:
// floats rounded, maps key-typed to string. encoding/json already sorts
// map keys, which gives us the key-sorted property for free.
func normalize(v any) any {
	switch x := v.(type) {
	case float64:
		shift := math.Pow10(floatPrecision)
		return math.Round(x*shift) / shift
	case float32:
		return normalize(float64(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// StableHash returns the sha256 hex digest of the canonical encoding of v.
// Structs are passed through a JSON round trip so their fields hash the
// same as an equivalent map. Panics on unhashable input; that is a
// programmer error, not a runtime condition.
func StableHash(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("fingerprint: unhashable value: %v", err))
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		panic(fmt.Sprintf("fingerprint: canonicalize: %v", err))
	}
	canonical, err := json.Marshal(normalize(tree))
	if err != nil {
		panic(fmt.Sprintf("fingerprint: encode canonical form: %v", err))
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// SHA1File returns the sha1 hex digest of a file's contents.
// Used for tool-binary and receptor identity.
func SHA1File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Structure fingerprints the structure-build stage: raw structure
// notation, generator tool version, and stage parameters.
func Structure(smiles, generatorVersion string, params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	return StableHash(map[string]any{
		"stage":     "structure_build",
		"smiles":    smiles,
		"generator": generatorVersion,
		"params":    params,
	})
}

// Preparation fingerprints the ligand-preparation stage, chained from
// the structure-build fingerprint.
func Preparation(upstreamFP, toolVersion string, params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	return StableHash(map[string]any{
		"stage":       "preparation",
		"upstream_fp": upstreamFP,
		"tool":        toolVersion,
		"params":      params,
	})
}

// Docking fingerprints the docking stage. It folds in the preparation
// fingerprint, the docking tool binary identity, the receptor content
// hash, the docking geometry/search parameters, and the overall config
// hash, so a pure configuration change is enough to go stale.
func Docking(upstreamFP, toolSHA1, receptorSHA1 string, docking any, configHash string) string {
	return StableHash(map[string]any{
		"stage":         "docking",
		"upstream_fp":   upstreamFP,
		"tool_sha1":     toolSHA1,
		"receptor_sha1": receptorSHA1,
		"docking":       docking,
		"config_hash":   configHash,
	})
}
