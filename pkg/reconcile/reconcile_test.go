package reconcile

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "/mirror"

func set(paths ...string) map[string]struct{} {
	s := map[string]struct{}{}
	for _, p := range paths {
		s[p] = struct{}{}
	}
	return s
}

func makeMirror(t *testing.T, paths ...string) afero.Fs {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(root, 0755))
	for _, p := range paths {
		require.NoError(t, afero.WriteFile(fs, root+"/"+p, []byte(p), 0644))
	}
	return fs
}

func TestFindExcess(t *testing.T) {
	tests := []struct {
		name     string
		present  []string
		expected map[string]struct{}
		exp      []string
	}{
		{
			name:     "nothing extra",
			present:  []string{".url", "repodata/repomd.xml", "pkgs/a.rpm"},
			expected: set(".url", "repodata/repomd.xml", "pkgs/a.rpm"),
		},
		{
			name:     "expected but missing",
			present:  []string{"repodata/repomd.xml"},
			expected: set(".url", "repodata/repomd.xml", "pkgs/a.rpm"),
		},
		{
			name:     "excess is sorted",
			present:  []string{"repodata/repomd.xml", "z.rpm", "pkgs/old/b.rpm", "a.txt"},
			expected: set("repodata/repomd.xml"),
			exp:      []string{"a.txt", "pkgs/old/b.rpm", "z.rpm"},
		},
		{
			name:     "names starting with dots",
			present:  []string{"repodata/repomd.xml", "..stray", "..data/x.rpm", "stray"},
			expected: set("repodata/repomd.xml"),
			exp:      []string{"..data/x.rpm", "..stray", "stray"},
		},
		{
			name:     "empty mirror",
			expected: set(".url"),
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs := makeMirror(t, test.present...)
			excess, err := FindExcess(fs, root, test.expected)
			assert.NoError(t, err)
			assert.Equal(t, test.exp, excess)
		})
	}
}

func TestFindExcessMissingRoot(t *testing.T) {
	_, err := FindExcess(afero.NewMemMapFs(), root, nil)
	assert.Error(t, err)
}

func TestPrune(t *testing.T) {
	expected := set(".url", "repodata/repomd.xml", "repodata/list.xml", "pkgs/a.rpm")
	fs := makeMirror(t, ".url", "repodata/repomd.xml", "repodata/list.xml",
		"pkgs/a.rpm", "pkgs/b.rpm", "old/deep/c.rpm", "stray.txt")
	require.NoError(t, fs.MkdirAll(root+"/untouched/empty", 0755))

	excess, err := FindExcess(fs, root, expected)
	require.NoError(t, err)
	assert.Equal(t, []string{"old/deep/c.rpm", "pkgs/b.rpm", "stray.txt"}, excess)

	removed, err := Prune(fs, root, excess)
	assert.NoError(t, err)
	assert.Equal(t, excess, removed)

	// Only the expected files remain.
	present, err := Snapshot(fs, root)
	assert.NoError(t, err)
	assert.Equal(t, expected, present)

	// Directories emptied by the prune are gone, but others are left alone.
	for path, exists := range map[string]bool{
		root:                      true,
		root + "/pkgs":            true,
		root + "/old":             false,
		root + "/old/deep":        false,
		root + "/untouched/empty": true,
	} {
		ok, err := afero.DirExists(fs, path)
		assert.NoError(t, err)
		assert.Equal(t, exists, ok, path)
	}
}

func TestPruneKeepsRoot(t *testing.T) {
	fs := makeMirror(t, "only.txt")
	removed, err := Prune(fs, root, []string{"only.txt"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"only.txt"}, removed)

	ok, err := afero.DirExists(fs, root)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestPruneContinuesAfterFailure(t *testing.T) {
	fs := makeMirror(t, "a.txt", "b.txt")
	readOnly := afero.NewReadOnlyFs(fs)

	removed, err := Prune(readOnly, root, []string{"a.txt", "b.txt"})
	assert.Error(t, err)
	assert.Empty(t, removed)

	// Files that are already gone don't count as failures.
	removed, err = Prune(fs, root, []string{"a.txt", "missing.txt"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "missing.txt"}, removed)
	_, err = fs.Stat(root + "/a.txt")
	assert.True(t, os.IsNotExist(err))
}

func TestIsUnder(t *testing.T) {
	assert.True(t, isUnder("/mirror", "/mirror/pkgs"))
	assert.False(t, isUnder("/mirror", "/mirror"))
	assert.False(t, isUnder("/mirror", "/"))
	assert.False(t, isUnder("/mirror", "/mirror2"))
	assert.False(t, isUnder("/mirror", "/other/mirror"))
}
