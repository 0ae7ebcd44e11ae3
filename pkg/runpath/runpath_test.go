package runpath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunPathLayoutWithHashSuffixes(t *testing.T) {
	m := &Manager{RootDir: "/runs"}
	p := m.RunPath("mydesign", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "ghdl_synth", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", false)
	require.Equal(t, filepath.Join("/runs", "mydesign_aaaaaaaaaaaaaaaa", "ghdl_synth_bbbbbbbbbbbbbbbb"), p)
}

func TestRunPathIncrementalOmitsSuffix(t *testing.T) {
	m := &Manager{RootDir: "/runs"}
	p := m.RunPath("mydesign", "aaaa", "ghdl_synth", "bbbb", true)
	require.Equal(t, filepath.Join("/runs", "mydesign", "ghdl_synth"), p)
}

func TestRunPathUniquenessAcrossHashes(t *testing.T) {
	// §8 invariant 3: distinct (design_hash, flow_hash) pairs map to
	// distinct run paths.
	m := &Manager{RootDir: "/runs"}
	p1 := m.RunPath("d", "hash1aaaaaaaaaaaa", "f", "hash2aaaaaaaaaaaa", false)
	p2 := m.RunPath("d", "hash1bbbbbbbbbbbb", "f", "hash2aaaaaaaaaaaa", false)
	require.NotEqual(t, p1, p2)
}

func TestCacheHitRequiresMatchingIdentifiersAndSuccess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWriteJSON(filepath.Join(dir, "settings.json"), map[string]interface{}{
		"flow_name": "ghdl_synth", "design_hash": "dh", "flow_hash": "fh",
	}))
	require.NoError(t, AtomicWriteJSON(filepath.Join(dir, "results.json"), map[string]interface{}{"success": true}))

	require.True(t, CacheHit(dir, "ghdl_synth", "dh", "fh"))
	require.False(t, CacheHit(dir, "ghdl_synth", "dh", "other-fh"))
}

func TestCacheHitFalseWithoutFiles(t *testing.T) {
	dir := t.TempDir()
	require.False(t, CacheHit(dir, "f", "dh", "fh"))
}

func TestCacheHitFalseWhenResultsFailed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWriteJSON(filepath.Join(dir, "settings.json"), map[string]interface{}{
		"flow_name": "f", "design_hash": "dh", "flow_hash": "fh",
	}))
	require.NoError(t, AtomicWriteJSON(filepath.Join(dir, "results.json"), map[string]interface{}{"success": false}))

	require.False(t, CacheHit(dir, "f", "dh", "fh"))
}

func TestPrepareBacksUpExistingDirectory(t *testing.T) {
	root := t.TempDir()
	run := filepath.Join(root, "run")
	require.NoError(t, os.MkdirAll(run, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(run, "stale.txt"), []byte("x"), 0o644))

	require.NoError(t, Prepare(run, true, false))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var sawBackup, sawFresh bool
	for _, e := range entries {
		if e.Name() == "run" {
			sawFresh = true
		} else {
			sawBackup = true
		}
	}
	require.True(t, sawFresh)
	require.True(t, sawBackup)
}

func TestPrepareIncrementalKeepsExisting(t *testing.T) {
	root := t.TempDir()
	run := filepath.Join(root, "run")
	require.NoError(t, os.MkdirAll(run, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(run, "keep.txt"), []byte("x"), 0o644))

	require.NoError(t, Prepare(run, true, true))

	_, err := os.Stat(filepath.Join(run, "keep.txt"))
	require.NoError(t, err)
}

func TestPostCleanupKeepsSettingsResultsAndArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "results.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "netlist.v"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scratch"), 0o755))

	require.NoError(t, PostCleanup(dir, false, []string{filepath.Join(dir, "netlist.v")}))

	_, err := os.Stat(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "netlist.v"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "scratch"))
	require.True(t, os.IsNotExist(err))
}

func TestPostCleanupPurgeRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{}"), 0o644))

	require.NoError(t, PostCleanup(dir, true, nil))

	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestScrubOldRunsMatchesHashSuffixPattern(t *testing.T) {
	designDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(designDir, "ghdl_synth_aaaaaaaaaaaaaaaa"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(designDir, "ghdl_synth_bbbbbbbbbbbbbbbb"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(designDir, "other_flow_cccccccccccccccc"), 0o755))

	var seen []string
	require.NoError(t, ScrubOldRuns(designDir, "ghdl_synth", func(candidates []string) bool {
		seen = candidates
		return true
	}))

	require.Len(t, seen, 2)
	_, err := os.Stat(filepath.Join(designDir, "other_flow_cccccccccccccccc"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(designDir, "ghdl_synth_aaaaaaaaaaaaaaaa"))
	require.True(t, os.IsNotExist(err))
}

func TestScrubOldRunsDeclinedConfirmationKeepsDirs(t *testing.T) {
	designDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(designDir, "f_aaaaaaaaaaaaaaaa"), 0o755))

	require.NoError(t, ScrubOldRuns(designDir, "f", func([]string) bool { return false }))

	_, err := os.Stat(filepath.Join(designDir, "f_aaaaaaaaaaaaaaaa"))
	require.NoError(t, err)
}

func TestAtomicWriteJSONThenReadBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "settings.json")
	require.NoError(t, AtomicWriteJSON(path, map[string]string{"a": "b"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"a": "b"`)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}
