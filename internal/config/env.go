package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/qobs-build/buildkit"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// ConfigEnv is what conditions, {{...}} strings and build scripts can see.
type ConfigEnv struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
	Profile    string            `expr:"profile"`
	basedir    string
}

func NewConfigEnv(basedir string, conf buildkit.Configuration) ConfigEnv {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}

	return ConfigEnv{
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
		Profile:    conf.String(),
		basedir:    basedir,
	}
}

func (env ConfigEnv) path(path string) (string, error) {
	fullPath := filepath.Join(env.basedir, path)
	rel, err := filepath.Rel(env.basedir, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside of project directory %q", path, env.basedir)
	}
	return fullPath, nil
}

// Patch applies a diff-match-patch text patch to a file in the project. It
// reports whether any hunk applied.
func (env ConfigEnv) Patch(path, patchText string) (bool, error) {
	fullPath, err := env.path(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return false, err
	}
	origText := string(data)

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return false, err
	}
	patchedText, results := dmp.PatchApply(patches, origText)
	for _, ok := range results {
		if ok {
			goto applied
		}
	}
	return false, nil // nothing was applied, nothing to write

applied:
	if err := os.WriteFile(fullPath, []byte(patchedText), 0644); err != nil {
		return false, err
	}

	return true, nil
}

func (env ConfigEnv) ReadFile(path string) (string, error) {
	fullPath, err := env.path(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// Exists reports whether a file exists in the project.
func (env ConfigEnv) Exists(path string) bool {
	fullPath, err := env.path(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// LoadDotEnv loads <dir>/.env into the process environment, if present.
// Variables already set are kept.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: loading %s: %w", buildkit.ErrConfiguration, path, err)
	}
	return nil
}
