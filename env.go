package buildkit

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/qobs-build/buildkit/source"
)

// Variables read by the settings resolution. They are the ones cargo sets for
// build scripts.
const (
	EnvOutDir      = "OUT_DIR"
	EnvDebug       = "DEBUG"
	EnvManifestDir = "CARGO_MANIFEST_DIR"
	EnvPackageName = "CARGO_PKG_NAME"
)

// DefaultSourceDir is searched when no sources are given.
const DefaultSourceDir = "src"

// Environment looks up a variable, like os.LookupEnv.
type Environment func(key string) (string, bool)

func EnvironmentFromOS() Environment { return os.LookupEnv }

// EnvironmentFromMap is handy in tests.
func EnvironmentFromMap(m map[string]string) Environment {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func (env Environment) require(key, hint string) (string, error) {
	if env != nil {
		if v, ok := env(key); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: must set %s environment variable, or %s", ErrConfiguration, key, hint)
}

// ProductPath says where the final product goes.
type ProductPath struct {
	path        string
	exeRelative bool
}

// ExeRelative places the product relative to the directory the host build tool
// puts executables in, derived from OUT_DIR (three levels up).
// For OUT_DIR=target/debug/build/pkg-hash/out and rel "assets", the product
// goes in target/debug/assets.
func ExeRelative(rel string) ProductPath { return ProductPath{path: rel, exeRelative: true} }

// Exact places the product exactly at path.
func Exact(path string) ProductPath { return ProductPath{path: path} }

func (p ProductPath) resolve(env Environment) (string, error) {
	if !p.exeRelative {
		return p.path, nil
	}
	outDir, err := env.require(EnvOutDir, "set an exact product path")
	if err != nil {
		return "", err
	}
	// out, <pkg>-<hash>, build
	base := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Clean(outDir))))
	return filepath.Join(base, p.path), nil
}

// Options are the explicitly chosen settings. Anything left zero is taken from
// the environment or a default.
type Options struct {
	ProjectRoot     string
	Sources         *source.Selection
	IntermediateDir string
	// Product defaults to ExeRelative("").
	Product       *ProductPath
	Configuration *Configuration
	ProductName   string
	Flags         []string
	Jobs          int
}

// ResolveCompileSettings resolves settings for a compile-only build. Without an
// explicit intermediate directory the artifacts are the products, so they go
// to the exe-relative product location.
func ResolveCompileSettings(opts Options, env Environment) (CompileSettings, error) {
	return resolveCompile(opts, env, false)
}

// ResolveBuildSettings resolves settings for a compile and link build. Without
// an explicit intermediate directory OUT_DIR is used.
func ResolveBuildSettings(opts Options, env Environment) (BuildSettings, error) {
	cs, err := resolveCompile(opts, env, true)
	if err != nil {
		return BuildSettings{}, err
	}

	product := ExeRelative("")
	if opts.Product != nil {
		product = *opts.Product
	}
	productDir, err := product.resolve(env)
	if err != nil {
		return BuildSettings{}, err
	}

	name := opts.ProductName
	if name == "" {
		if name, err = env.require(EnvPackageName, "set a product name"); err != nil {
			return BuildSettings{}, err
		}
	}

	return BuildSettings{Compile: cs, ProductDir: productDir, ProductName: name}, nil
}

func resolveCompile(opts Options, env Environment, withLink bool) (CompileSettings, error) {
	root := opts.ProjectRoot
	if root == "" {
		var err error
		if root, err = env.require(EnvManifestDir, "set a project root"); err != nil {
			return CompileSettings{}, err
		}
	}

	sources := source.Search(DefaultSourceDir)
	if opts.Sources != nil {
		sources = *opts.Sources
	}

	intermediate := opts.IntermediateDir
	if intermediate == "" {
		var err error
		if withLink {
			intermediate, err = env.require(EnvOutDir, "set an intermediate directory")
		} else {
			intermediate, err = ExeRelative("").resolve(env)
		}
		if err != nil {
			return CompileSettings{}, err
		}
	}

	var config Configuration
	if opts.Configuration != nil {
		config = *opts.Configuration
	} else {
		v, err := env.require(EnvDebug, "set a configuration")
		if err != nil {
			return CompileSettings{}, err
		}
		config = configurationFromDebug(v)
	}

	if opts.Jobs < 0 {
		return CompileSettings{}, fmt.Errorf("%w: jobs must not be negative, got %d", ErrConfiguration, opts.Jobs)
	}

	return CompileSettings{
		ProjectRoot:     root,
		Sources:         sources,
		IntermediateDir: intermediate,
		Configuration:   config,
		Flags:           slices.Clone(opts.Flags),
		Jobs:            opts.Jobs,
	}, nil
}

func lookup(env Environment, key string) (string, bool) {
	if env == nil {
		return "", false
	}
	v, ok := env(key)
	return v, ok && v != ""
}

// ConfigurationFromEnvironment reads the configuration from DEBUG, if set.
func ConfigurationFromEnvironment(env Environment) (Configuration, bool) {
	v, ok := lookup(env, EnvDebug)
	if !ok {
		return Debug, false
	}
	return configurationFromDebug(v), true
}

// configurationFromDebug maps the DEBUG variable: "1" or "true" is a debug
// build, anything else release.
func configurationFromDebug(v string) Configuration {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true":
		return Debug
	default:
		return Release
	}
}
