package source

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tree creates files (with parent directories) below a temp dir.
func tree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(f), 0o644))
	}
	return root
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestResolve_FilesVerbatim(t *testing.T) {
	sel := Files("z.metal", "a.txt", "z.metal", "/abs/b.metal")
	got, err := sel.Resolve("/does/not/matter", "metal")
	require.NoError(t, err)
	assert.Equal(t, []string{"z.metal", "a.txt", "z.metal", "/abs/b.metal"}, got)
}

func TestResolve_SearchFiltersByExtension(t *testing.T) {
	root := tree(t,
		"src/main.c",
		"src/main.h",
		"src/lib/util.c",
		"src/lib/deep/more.c",
		"src/zz.c",
		"src/README",
		"src/.c",
		"src/upper.C",
		"src/archive.tar.c",
	)

	got, err := Search("src").Resolve(root, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"src/archive.tar.c",
		"src/lib/deep/more.c",
		"src/lib/util.c",
		"src/main.c",
		"src/zz.c",
	}, rel(t, root, got))
}

func TestResolve_SearchAcceptsDottedExtension(t *testing.T) {
	root := tree(t, "src/a.metal")
	got, err := Search("src").Resolve(root, ".metal")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.metal"}, rel(t, root, got))
}

func TestResolve_SearchMultipleRootsKeepRootOrder(t *testing.T) {
	root := tree(t, "b/one.c", "a/two.c")
	got, err := Search("b", filepath.Join(root, "a")).Resolve(root, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"b/one.c", "a/two.c"}, rel(t, root, got))
}

func TestResolve_SearchIsStable(t *testing.T) {
	root := tree(t, "src/q.c", "src/a/b.c", "src/m.c", "src/a/c/d.c", "src/z/y.c")
	first, err := Search("src").Resolve(root, "c")
	require.NoError(t, err)
	for range 5 {
		again, err := Search("src").Resolve(root, "c")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestResolve_SearchNoMatches(t *testing.T) {
	root := tree(t, "src/a.h", "src/sub/b.txt")
	got, err := Search("src").Resolve(root, "c")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolve_SearchUnreadableRoot(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "nope")

	_, err := Search("src", "nope").Resolve(root, "c")
	require.ErrorIs(t, err, ErrDirectoryUnreadable)
	require.ErrorIs(t, err, os.ErrNotExist)

	var dirErr *DirectoryError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, filepath.Join(root, "src"), dirErr.Path)

	_, err = Search(missing).Resolve("", "c")
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, missing, dirErr.Path)
}

func TestResolve_SearchFollowsFileSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := tree(t, "elsewhere/real.c", "src/plain.c")
	require.NoError(t, os.Symlink(filepath.Join(root, "elsewhere/real.c"), filepath.Join(root, "src/link.c")))
	require.NoError(t, os.Symlink(filepath.Join(root, "elsewhere"), filepath.Join(root, "src/dirlink")))

	got, err := Search("src").Resolve(root, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/link.c", "src/plain.c"}, rel(t, root, got))
}

func TestResolve_Glob(t *testing.T) {
	root := tree(t, "src/a.c", "src/sub/b.c", "src/sub/b.h", "other/c.c")

	got, err := Glob("src/**/*.c").Resolve(root, "ignored")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"src/a.c", "src/sub/b.c"}, rel(t, root, got))

	again, err := Glob("src/**/*.c").Resolve(root, "ignored")
	require.NoError(t, err)
	assert.Equal(t, got, again)

	got, err = Glob(filepath.Join(root, "other", "*.c")).Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "other", "c.c")}, got)
}

func TestResolve_GlobBadPattern(t *testing.T) {
	_, err := Glob("src/[").Resolve(t.TempDir(), "c")
	require.ErrorIs(t, err, ErrBadPattern)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "c", Extension("dir.d/file.c"))
	assert.Equal(t, "gz", Extension("a.tar.gz"))
	assert.Equal(t, "", Extension(".profile"))
	assert.Equal(t, "", Extension("Makefile"))
	assert.Equal(t, "", Extension("trailing."))
}

func TestSelectionIsImmutable(t *testing.T) {
	paths := []string{"a.c"}
	sel := Files(paths...)
	paths[0] = "changed.c"
	assert.Equal(t, []string{"a.c"}, sel.Items())
	assert.Equal(t, KindFiles, sel.Kind())
	assert.Equal(t, "files(a.c)", sel.String())
}
