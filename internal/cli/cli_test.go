package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/qobs-build/buildkit"
	"github.com/qobs-build/buildkit/internal/config"
	"github.com/qobs-build/buildkit/internal/fingerprint"
	"github.com/qobs-build/buildkit/internal/msg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := msg.Output
	msg.Output = &buf
	t.Cleanup(func() { msg.Output = prev })
	return &buf
}

func TestEnumValue(t *testing.T) {
	e := NewEnumValue("debug", map[string]string{"debug": "d", "release": ""})
	assert.Equal(t, "debug", e.String())
	assert.Equal(t, "[debug, release]", e.HelpString())

	require.NoError(t, e.Set("release"))
	assert.Equal(t, "release", e.Value())
	require.ErrorContains(t, e.Set("fast"), "must be one of: debug, release")

	items, _ := e.CompletionFunc()(nil, nil, "")
	assert.Equal(t, []string{"debug\td", "release"}, items)

	assert.Panics(t, func() { NewEnumValue("x", map[string]string{"y": ""}) })
}

func TestDepsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.d")
	require.NoError(t, os.WriteFile(path, []byte("main.o: main.c inc/a\\ b.h \\\n  inc/c.h\n"), 0o644))

	run := func(args ...string) string {
		var out bytes.Buffer
		root := NewRootCommand()
		root.SetArgs(args)
		root.SetOut(&out)
		require.NoError(t, root.Execute())
		return out.String()
	}

	assert.Equal(t, "main.c\ninc/a b.h\ninc/c.h\n", run("deps", path))
	assert.Equal(t, "cargo:rerun-if-changed='main.c'\ncargo:rerun-if-changed='inc/a b.h'\ncargo:rerun-if-changed='inc/c.h'\n",
		run("deps", "--directives", path))
}

func TestDepsCommand_InvalidEscape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.d")
	require.NoError(t, os.WriteFile(path, []byte(`x: a\q`), 0o644))

	root := NewRootCommand()
	root.SetArgs([]string{"deps", path})
	root.SetOut(&bytes.Buffer{})
	require.ErrorIs(t, root.Execute(), buildkit.ErrInvalidEscape)
}

func TestInitScaffold(t *testing.T) {
	for _, lib := range []bool{false, true} {
		t.Run(fmt.Sprintf("lib=%v", lib), func(t *testing.T) {
			dir := t.TempDir()
			var out bytes.Buffer
			s := scaffold{lib: lib, out: &out}
			require.NoError(t, s.initIn(dir, "demo"))

			assert.FileExists(t, filepath.Join(dir, ".gitignore"))
			assert.DirExists(t, filepath.Join(dir, ".git"))
			if lib {
				assert.FileExists(t, filepath.Join(dir, "src", "hello_world.h"))
			} else {
				assert.FileExists(t, filepath.Join(dir, "src", "main.c"))
			}
			assert.Contains(t, out.String(), "Initialized")

			cfg, err := config.ParseConfigFromFile(filepath.Join(dir, config.Filename), config.NewConfigEnv(dir, buildkit.Release))
			require.NoError(t, err)
			assert.Equal(t, "demo", cfg.Package.Name)
			assert.True(t, cfg.Link.Enabled())
			if lib {
				assert.Equal(t, config.PresetAr, cfg.Link.Preset)
			}

			// a second run keeps existing files and the repository
			require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("custom\n"), 0o644))
			out.Reset()
			require.NoError(t, s.initIn(dir, "demo"))
			data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
			require.NoError(t, err)
			assert.Equal(t, "custom\n", string(data))
			assert.NotContains(t, out.String(), "Created")
		})
	}
}

func TestInitRepository_Existing(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	s := scaffold{out: &out}
	require.NoError(t, s.initRepository(dir))
	assert.Contains(t, out.String(), "Initialized")

	out.Reset()
	require.NoError(t, s.initRepository(dir))
	assert.Empty(t, out.String())
	assert.DirExists(t, filepath.Join(dir, ".git"))
}

func TestInitScaffold_NoGit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, scaffold{noGit: true, out: &bytes.Buffer{}}.initIn(dir, "demo"))
	assert.NoDirExists(t, filepath.Join(dir, ".git"))
}

// writeProject creates a project whose "compiler" copies each .txt source
// and lists a shared header as its only dependency.
func writeProject(t *testing.T) (dir, header string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir = t.TempDir()
	header = filepath.Join(dir, "inc", "common.h")
	require.NoError(t, os.MkdirAll(filepath.Dir(header), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(header, []byte("v1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.txt"), []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "b.txt"), []byte("B"), 0o644))

	project := `
[package]
name = "demo"

[compile]
source-ext = "txt"
artifact-ext = "out"
command = ["sh", "-c", 'printf "x: %s\n" "$3" > "$1"; cp "$2" "$4"', "sh", "{{ depfile }}", "{{ source }}", "` + header + `", "{{ output }}"]

[link]
command = ["sh", "-c", 'out="$1"; shift; cat "$@" > "$out"', "sh", "{{ output }}", "{{ objects }}"]
product = "{{ name }}.bin"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.Filename), []byte(project), 0o644))
	return dir, header
}

func TestRunBuild(t *testing.T) {
	dir, header := writeProject(t)
	quiet(t)
	ctx := context.Background()
	opts := buildOptions{env: buildkit.EnvironmentFromMap(nil), jobs: 2}
	h := fingerprint.NewHasher()
	directive := buildkit.Directive(header)

	var stdout bytes.Buffer
	res, err := runBuild(ctx, dir, opts, &stdout, h)
	require.NoError(t, err)
	assert.False(t, res.skipped)
	assert.Equal(t, strings.Repeat(directive+"\n", 2), stdout.String())
	assert.Equal(t, []string{filepath.Join(dir, "src", "a.txt"), filepath.Join(dir, "src", "b.txt")}, res.sources)

	product := filepath.Join(dir, "build", "demo.bin")
	data, err := os.ReadFile(product)
	require.NoError(t, err)
	assert.Equal(t, "AB", string(data))
	assert.Equal(t, product, res.state.Product)
	assert.ElementsMatch(t, []string{header, filepath.Join(dir, config.Filename)}, res.state.Watched())
	assert.FileExists(t, fingerprint.Path(filepath.Join(dir, "build", "obj")))

	stdout.Reset()
	res, err = runBuild(ctx, dir, opts, &stdout, h)
	require.NoError(t, err)
	assert.True(t, res.skipped)
	assert.Equal(t, directive+"\n", stdout.String(), "same directives as the build, without the project file")

	require.NoError(t, os.WriteFile(header, []byte("version 2\n"), 0o644))
	res, err = runBuild(ctx, dir, opts, &bytes.Buffer{}, h)
	require.NoError(t, err)
	assert.False(t, res.skipped)

	forced := opts
	forced.force = true
	res, err = runBuild(ctx, dir, forced, &bytes.Buffer{}, h)
	require.NoError(t, err)
	assert.False(t, res.skipped)

	release := opts
	release.profile = "release"
	res, err = runBuild(ctx, dir, release, &bytes.Buffer{}, h)
	require.NoError(t, err)
	assert.False(t, res.skipped, "configuration changed")
	assert.Equal(t, buildkit.Release, res.state.Configuration)
}

func TestRunBuild_CompileOnly(t *testing.T) {
	dir, _ := writeProject(t)
	quiet(t)
	projectFile := filepath.Join(dir, config.Filename)
	data, err := os.ReadFile(projectFile)
	require.NoError(t, err)
	compileOnly, _, _ := strings.Cut(string(data), "[link]")
	require.NoError(t, os.WriteFile(projectFile, []byte(compileOnly), 0o644))

	ctx := context.Background()
	opts := buildOptions{env: buildkit.EnvironmentFromMap(nil)}
	h := fingerprint.NewHasher()

	res, err := runBuild(ctx, dir, opts, &bytes.Buffer{}, h)
	require.NoError(t, err)
	assert.Empty(t, res.state.Product)
	require.Len(t, res.state.Artifacts, 2)

	res, err = runBuild(ctx, dir, opts, &bytes.Buffer{}, h)
	require.NoError(t, err)
	assert.True(t, res.skipped)

	require.NoError(t, os.Remove(res.state.Artifacts[1]))
	res, err = runBuild(ctx, dir, opts, &bytes.Buffer{}, h)
	require.NoError(t, err)
	assert.False(t, res.skipped, "deleted artifact is rebuilt")
	assert.FileExists(t, res.state.Artifacts[1])
}

func TestRunBuild_ConfigurationFromEnvironment(t *testing.T) {
	dir, _ := writeProject(t)
	quiet(t)
	opts := buildOptions{env: buildkit.EnvironmentFromMap(map[string]string{buildkit.EnvDebug: "false"})}
	res, err := runBuild(context.Background(), dir, opts, &bytes.Buffer{}, fingerprint.NewHasher())
	require.NoError(t, err)
	assert.Equal(t, buildkit.Release, res.state.Configuration)
}

func TestRunBuild_Errors(t *testing.T) {
	quiet(t)
	_, err := runBuild(context.Background(), t.TempDir(), buildOptions{env: buildkit.EnvironmentFromMap(nil)}, &bytes.Buffer{}, fingerprint.NewHasher())
	require.ErrorIs(t, err, os.ErrNotExist)

	dir, _ := writeProject(t)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "src")))
	_, err = runBuild(context.Background(), dir, buildOptions{env: buildkit.EnvironmentFromMap(nil)}, &bytes.Buffer{}, fingerprint.NewHasher())
	require.ErrorIs(t, err, buildkit.ErrDirectoryUnreadable)
}

func TestWatcherRelevant(t *testing.T) {
	w := &watcher{ignore: []string{filepath.FromSlash("/p/build/obj"), filepath.FromSlash("/p/build"), ""}}

	assert.True(t, w.relevant(fsnotify.Event{Name: filepath.FromSlash("/p/src/a.c"), Op: fsnotify.Write}))
	assert.True(t, w.relevant(fsnotify.Event{Name: filepath.FromSlash("/p/buildkit.h"), Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: filepath.FromSlash("/p/src/a.c"), Op: fsnotify.Chmod}))
	assert.False(t, w.relevant(fsnotify.Event{Name: filepath.FromSlash("/p/build"), Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: filepath.FromSlash("/p/build/obj/a.out"), Op: fsnotify.Write}))
}
