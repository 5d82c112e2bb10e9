// Package bump increments the patch version recorded in a component's
// manifest files ahead of a stage release.
package bump

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/arc-components/arcci/internal/logfields"
)

// manifestFiles are bumped in order; the version written to the first
// present file wins for the pipeline's catalog upsert.
var manifestFiles = []string{"bower.json", "package.json"}

// Component patch-bumps the version field of every manifest present in
// dir. A missing manifest is skipped, not an error. Returns the new
// version string and the files that were rewritten; version is empty when
// no manifest carried one.
func Component(dir string) (version string, bumped []string, err error) {
	for _, name := range manifestFiles {
		path := filepath.Join(dir, name)
		v, ok, err := bumpFile(path)
		if err != nil {
			return "", bumped, fmt.Errorf("bump %s: %w", name, err)
		}
		if !ok {
			slog.Debug("Manifest not present, skipping", logfields.Path(path))
			continue
		}
		bumped = append(bumped, name)
		if version == "" {
			version = v
		}
	}
	return version, bumped, nil
}

// bumpFile rewrites the version field of one manifest. Unknown fields are
// preserved; the file is re-serialized with two-space indentation and
// deterministic key order. Returns ok=false when the file does not exist.
func bumpFile(path string) (newVersion string, ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var manifest map[string]json.RawMessage
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", false, fmt.Errorf("decode manifest: %w", err)
	}

	var current string
	if raw, present := manifest["version"]; present {
		if err := json.Unmarshal(raw, &current); err != nil {
			return "", false, fmt.Errorf("version field is not a string: %w", err)
		}
	}
	if current == "" {
		return "", false, fmt.Errorf("manifest has no version field")
	}

	next, err := incPatch(current)
	if err != nil {
		return "", false, err
	}

	encoded, err := json.Marshal(next)
	if err != nil {
		return "", false, err
	}
	manifest["version"] = encoded

	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", false, err
	}
	out = append(out, '\n')

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", false, err
	}

	slog.Info("Bumped manifest version", logfields.Path(path),
		slog.String("from", current), slog.String("to", next))
	return next, true, nil
}

func incPatch(current string) (string, error) {
	v, err := semver.NewVersion(current)
	if err != nil {
		return "", fmt.Errorf("parse version %q: %w", current, err)
	}
	next := v.IncPatch()
	return next.String(), nil
}
