package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
	"github.com/qobs-build/buildkit"
	"github.com/qobs-build/buildkit/source"
)

// Filename is the project file looked up in a project directory.
const Filename = "Buildkit.toml"

const (
	PresetCC = "cc"
	PresetAr = "ar"
)

var defaultProfiles = map[string]ProfileSection{
	"release": {
		OptLevel: 3,
	},
	"debug": {
		OptLevel: "", // no -O
		Flags:    []string{"-g"},
	},
}

type Config struct {
	Package PackageSection            `toml:"package"`
	Sources SourcesSection            `toml:"sources"`
	Compile CompileSection            `toml:"compile"`
	Link    LinkSection               `toml:"link"`
	Profile map[string]ProfileSection `toml:"profile"`
}

func (c Config) Profiles() []string {
	profiles := make([]string, 0, len(c.Profile))
	for k := range c.Profile {
		profiles = append(profiles, k)
	}
	slices.Sort(profiles)
	return profiles
}

// optLevel renders an opt-level value, which may be an integer or a string
// such as "s".
func optLevel(v any) string {
	switch v := v.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	default:
		return ""
	}
}

// ProfileSection defines the [profile.*] section. OptLevel only applies to
// the cc preset; Flags are added to every compile.
type ProfileSection struct {
	OptLevel any      `toml:"opt-level"`
	Flags    []string `toml:"flags"`
}

// PackageSection defines the [package] section
type PackageSection struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Authors     []string `toml:"authors"`
	Build       string   `toml:"build"`
}

// SourcesSection defines the [sources] section. At most one of the three may
// be set; without any, "src" is searched.
type SourcesSection struct {
	Files  []string `toml:"files"`
	Search []string `toml:"search"`
	Glob   []string `toml:"glob"`
}

// CompileSection defines the [compile(.*)] section
type CompileSection struct {
	Preset      string   `toml:"preset"`
	Command     []string `toml:"command"`
	SourceExt   string   `toml:"source-ext"`
	ArtifactExt string   `toml:"artifact-ext"`
	Flags       []string `toml:"flags"`
	Jobs        int      `toml:"jobs"`
}

// LinkSection defines the [link(.*)] section
type LinkSection struct {
	Preset  string   `toml:"preset"`
	Command []string `toml:"command"`
	// Product is the file name of the product, "{{ name }}" if empty.
	Product string `toml:"product"`
}

// Enabled reports whether the project links its artifacts.
func (l LinkSection) Enabled() bool { return l.Preset != "" || len(l.Command) > 0 }

// deferredKeys hold templates that are evaluated per compile or link call by
// the toolchain, not when the file is read.
var deferredKeys = map[string]bool{"command": true, "product": true}

// mergeStructs merges the fields of the src struct into the dst struct
func mergeStructs(dst, src any) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Pointer || dstVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("dst must be a pointer to a struct")
	}

	dstElem := dstVal.Elem()
	srcVal := reflect.ValueOf(src)

	if srcVal.Kind() == reflect.Pointer {
		srcVal = srcVal.Elem()
	}

	if srcVal.Kind() != reflect.Struct {
		return fmt.Errorf("src must be a struct or a pointer to a struct")
	}

	if dstElem.Type() != srcVal.Type() {
		return fmt.Errorf("dst and src must be of the same struct type")
	}

	for i := range srcVal.NumField() {
		srcField := srcVal.Field(i)
		dstField := dstElem.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Slice:
			if !srcField.IsNil() {
				dstField.Set(reflect.AppendSlice(dstField, srcField))
			}
		case reflect.Map:
			if !srcField.IsNil() {
				if dstField.IsNil() {
					dstField.Set(reflect.MakeMap(dstField.Type()))
				}
				for _, key := range srcField.MapKeys() {
					dstField.SetMapIndex(key, srcField.MapIndex(key))
				}
			}
		case reflect.Bool:
			dstField.SetBool(dstField.Bool() || srcField.Bool())
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}

	return nil
}

func mustMarshal(v any) string {
	b, err := toml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// unmarshalSection is a helper to parse sections without conditional logic
func unmarshalSection(rawCfg map[string]any, name string, dst any) error {
	if data, ok := rawCfg[name]; ok {
		if err := toml.Unmarshal([]byte(mustMarshal(data)), dst); err != nil {
			return fmt.Errorf("failed to parse [%s] section: %w", name, err)
		}
	}
	return nil
}

// unmarshalConditionalSection is a helper to parse, evaluate and merge multiple sections with conditional logic
func unmarshalConditionalSection[T any](rawCfg map[string]any, name string, dst *T, env ConfigEnv) error {
	sectionData, ok := rawCfg[name]
	if !ok {
		return nil
	}

	sectionMap, ok := sectionData.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	baseFields := make(map[string]any)
	conditionalFields := make(map[string]map[string]any)

	for key, val := range sectionMap {
		if subMap, ok := val.(map[string]any); ok {
			_, err := expr.Compile(key, expr.Env(env))
			if err == nil {
				conditionalFields[key] = subMap
			} else {
				baseFields[key] = val
			}
		} else {
			baseFields[key] = val
		}
	}

	if len(baseFields) > 0 {
		if err := toml.Unmarshal([]byte(mustMarshal(baseFields)), dst); err != nil {
			return fmt.Errorf("failed to parse base [%s] section: %w", name, err)
		}
	}

	// sorted so that later conditions override earlier ones the same way every run
	expressions := make([]string, 0, len(conditionalFields))
	for expression := range conditionalFields {
		expressions = append(expressions, expression)
	}
	slices.Sort(expressions)

	for _, expression := range expressions {
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return fmt.Errorf("failed to compile expression for [%s.%q]: %w", name, expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return fmt.Errorf("failed to run expression for [%s.%q]: %w", name, expression, err)
		}

		// merge sections if the result is true
		if matched, ok := result.(bool); !ok || !matched {
			continue
		}

		var condSection T
		if err := toml.Unmarshal([]byte(mustMarshal(conditionalFields[expression])), &condSection); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, expression, err)
		}
		if err := mergeStructs(dst, condSection); err != nil {
			return fmt.Errorf("failed to merge conditional section [%s.%q]: %w", name, expression, err)
		}
	}

	return nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// EvaluateString finds and evaluates all {{...}} expressions in s against env,
// which may be a struct or a map.
func EvaluateString(s string, env any) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, matchIndexes := range matches {
		fullMatchStart := matchIndexes[0]
		fullMatchEnd := matchIndexes[1]
		expressionStart := matchIndexes[2]
		expressionEnd := matchIndexes[3]

		builder.WriteString(s[lastIndex:fullMatchStart])

		result, err := Eval(strings.TrimSpace(s[expressionStart:expressionEnd]), env)
		if err != nil {
			return "", err
		}

		builder.WriteString(fmt.Sprintf("%v", result))
		lastIndex = fullMatchEnd
	}

	builder.WriteString(s[lastIndex:])

	return builder.String(), nil
}

// Eval compiles and runs a single expression.
func Eval(expression string, env any) (any, error) {
	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("failed to run expression %q: %w", expression, err)
	}
	return result, nil
}

// SplitTemplate returns the expression of s if s is exactly one {{...}}.
func SplitTemplate(s string) (string, bool) {
	m := exprRegex.FindStringSubmatchIndex(s)
	if m == nil || m[0] != 0 || m[1] != len(s) {
		return "", false
	}
	return strings.TrimSpace(s[m[2]:m[3]]), true
}

// processExpressions recursively walks the parsed TOML data and evaluates expressions in strings
func processExpressions(data any, env ConfigEnv) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			if deferredKeys[key] {
				continue
			}
			processedVal, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			v[key] = processedVal
		}
		return v, nil
	case []any:
		for i, item := range v {
			processedItem, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			v[i] = processedItem
		}
		return v, nil
	case string:
		return EvaluateString(v, env)
	default:
		return data, nil
	}
}

func ParseConfig(rdr io.Reader, env ConfigEnv) (*Config, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		if derr, ok := err.(*toml.DecodeError); ok {
			return nil, fmt.Errorf("%w: %s", buildkit.ErrConfiguration, derr.String())
		}
		return nil, err
	}
	if rawConfig == nil {
		rawConfig = map[string]any{}
	}

	processedConfig, err := processExpressions(rawConfig, env)
	if err != nil {
		return nil, fmt.Errorf("error processing expressions in config: %w", err)
	}
	rawConfig = processedConfig.(map[string]any)

	cfg := new(Config)
	cfg.Profile = make(map[string]ProfileSection, len(defaultProfiles))
	for k, v := range defaultProfiles {
		v.Flags = slices.Clone(v.Flags)
		cfg.Profile[k] = v
	}

	if err := unmarshalSection(rawConfig, "package", &cfg.Package); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "sources", &cfg.Sources, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "compile", &cfg.Compile, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "link", &cfg.Link, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "profile", &cfg.Profile, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", buildkit.ErrConfiguration, err)
	}
	return cfg, nil
}

// ParseConfigFromFile parses and validates a config file from a filepath
func ParseConfigFromFile(path string, env ConfigEnv) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ParseConfig(bufio.NewReader(f), env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Package.Name == "" {
		return errors.New("package.name is required")
	}

	set := 0
	for _, l := range [][]string{cfg.Sources.Files, cfg.Sources.Search, cfg.Sources.Glob} {
		if len(l) > 0 {
			set++
		}
	}
	if set > 1 {
		return errors.New("only one of sources.files, sources.search and sources.glob may be set")
	}

	switch cfg.Compile.Preset {
	case "":
		if len(cfg.Compile.Command) == 0 {
			return errors.New("compile.command is required without a compile.preset")
		}
		if cfg.Compile.SourceExt == "" && len(cfg.Sources.Files) == 0 && len(cfg.Sources.Glob) == 0 {
			return errors.New("compile.source-ext is required to search for sources")
		}
	case PresetCC:
	default:
		return fmt.Errorf("unknown compile.preset %q, expected %q", cfg.Compile.Preset, PresetCC)
	}

	switch cfg.Link.Preset {
	case "", PresetCC, PresetAr:
	default:
		return fmt.Errorf("unknown link.preset %q, expected %q or %q", cfg.Link.Preset, PresetCC, PresetAr)
	}

	if cfg.Compile.Jobs < 0 {
		return fmt.Errorf("compile.jobs must not be negative, got %d", cfg.Compile.Jobs)
	}
	return nil
}

// Selection returns the configured sources, or nil for the default.
func (cfg Config) Selection() *source.Selection {
	var sel source.Selection
	switch {
	case len(cfg.Sources.Files) > 0:
		sel = source.Files(cfg.Sources.Files...)
	case len(cfg.Sources.Search) > 0:
		sel = source.Search(cfg.Sources.Search...)
	case len(cfg.Sources.Glob) > 0:
		sel = source.Glob(cfg.Sources.Glob...)
	default:
		return nil
	}
	return &sel
}

// Flags returns the compile flags for a configuration: the opt-level (cc
// preset only), then the profile's flags, then compile.flags.
func (cfg Config) Flags(conf buildkit.Configuration) ([]string, error) {
	prof, ok := cfg.Profile[conf.String()]
	if !ok {
		return nil, fmt.Errorf("%w: unknown profile %q, known profiles: %s", buildkit.ErrConfiguration, conf, strings.Join(cfg.Profiles(), ", "))
	}

	var flags []string
	if cfg.Compile.Preset == PresetCC {
		if level := optLevel(prof.OptLevel); level != "" {
			flags = append(flags, "-O"+level)
		}
	}
	flags = append(flags, prof.Flags...)
	flags = append(flags, cfg.Compile.Flags...)
	return flags, nil
}

// Options turns the file into settings for the build pipeline. Values the
// file leaves unset are resolved from the environment later.
func (cfg Config) Options(projectDir string, conf buildkit.Configuration) (buildkit.Options, error) {
	flags, err := cfg.Flags(conf)
	if err != nil {
		return buildkit.Options{}, err
	}
	sel := cfg.Selection()
	if sel != nil && sel.Kind() == source.KindFiles {
		// listed files are relative to the project file, not the working directory
		files := sel.Items()
		for i, f := range files {
			if !filepath.IsAbs(f) {
				files[i] = filepath.Join(projectDir, f)
			}
		}
		joined := source.Files(files...)
		sel = &joined
	}
	return buildkit.Options{
		ProjectRoot:   projectDir,
		Sources:       sel,
		Configuration: &conf,
		ProductName:   cfg.Package.Name,
		Flags:         flags,
		Jobs:          cfg.Compile.Jobs,
	}, nil
}

//
// expr-lang helpers
//

func (cfg Config) RunBuildScript(env ConfigEnv) error {
	if cfg.Package.Build == "" {
		return nil
	}

	program, err := expr.Compile(cfg.Package.Build, expr.Env(env))
	if err != nil {
		return fmt.Errorf("failed to compile build script for package %q: %w", cfg.Package.Name, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("failed to run build script for package %q: %w", cfg.Package.Name, err)
	}

	if result, ok := result.(bool); !ok || !result {
		return fmt.Errorf("build script for package %q returned false\n%s", cfg.Package.Name, cfg.Package.Build)
	}

	return nil
}
