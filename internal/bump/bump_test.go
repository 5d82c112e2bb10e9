package bump

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func readManifest(t *testing.T, dir, name string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestComponentBumpsBothManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bower.json", `{"name":"api-button","version":"1.2.3"}`)
	writeManifest(t, dir, "package.json", `{"name":"api-button","version":"1.2.3","private":true}`)

	version, bumped, err := Component(dir)
	require.NoError(t, err)
	require.Equal(t, "1.2.4", version)
	require.Equal(t, []string{"bower.json", "package.json"}, bumped)

	require.Equal(t, "1.2.4", readManifest(t, dir, "bower.json")["version"])
	require.Equal(t, "1.2.4", readManifest(t, dir, "package.json")["version"])
}

func TestComponentSkipsMissingManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "package.json", `{"name":"api-button","version":"0.9.0"}`)

	version, bumped, err := Component(dir)
	require.NoError(t, err)
	require.Equal(t, "0.9.1", version)
	require.Equal(t, []string{"package.json"}, bumped)
}

func TestComponentNoManifests(t *testing.T) {
	version, bumped, err := Component(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, version)
	require.Empty(t, bumped)
}

func TestBumpPreservesUnknownFields(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "package.json", `{
		"name": "api-button",
		"version": "1.0.0",
		"dependencies": {"left-pad": "^1.0.0"},
		"scripts": {"test": "true"},
		"customField": [1, 2, 3]
	}`)

	_, _, err := Component(dir)
	require.NoError(t, err)

	m := readManifest(t, dir, "package.json")
	require.Equal(t, "1.0.1", m["version"])
	require.Equal(t, "api-button", m["name"])
	require.Contains(t, m, "dependencies")
	require.Contains(t, m, "scripts")
	require.Contains(t, m, "customField")
}

func TestBumpRejectsManifestWithoutVersion(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "package.json", `{"name":"api-button"}`)

	_, _, err := Component(dir)
	require.Error(t, err)
}

func TestBumpRejectsUnparsableVersion(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "package.json", `{"name":"api-button","version":"not-semver"}`)

	_, _, err := Component(dir)
	require.Error(t, err)
}

func TestBumpFirstManifestVersionWins(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bower.json", `{"version":"2.0.0"}`)
	writeManifest(t, dir, "package.json", `{"version":"5.0.0"}`)

	version, _, err := Component(dir)
	require.NoError(t, err)
	require.Equal(t, "2.0.1", version)
}
