// Package toolchain runs external compilers and linkers described by command
// lines with {{ expr }} argument templates.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/qobs-build/buildkit"
	"github.com/qobs-build/buildkit/internal/config"
	"github.com/qobs-build/buildkit/internal/msg"
)

const toolIndent = "    "

// CommandCompiler compiles each source with one run of Command. Arguments may
// use source, output, depfile, intermediate_dir, flags and configuration. An
// argument that is exactly one template expanding to a list, like
// "{{ flags }}", becomes one argument per element.
type CommandCompiler struct {
	SourceExt   string
	ArtifactExt string
	Command     []string
	// Output receives the tool's stdout and stderr. Defaults to msg.Output.
	Output io.Writer
}

var _ buildkit.CompileStep = (*CommandCompiler)(nil)

func (c *CommandCompiler) SourceExtension() string { return c.SourceExt }

func (c *CommandCompiler) CompileOne(ctx context.Context, req buildkit.CompileRequest) (string, error) {
	output := buildkit.SuggestIntermediateFile(req.Source, req.IntermediateDir, c.ArtifactExt)
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	argv, err := Render(c.Command, map[string]any{
		"source":           req.Source,
		"output":           output,
		"depfile":          req.DependencyPath,
		"intermediate_dir": req.IntermediateDir,
		"flags":            req.Flags,
		"configuration":    req.Configuration.String(),
	})
	if err != nil {
		return "", err
	}
	if err := run(ctx, argv, c.Output); err != nil {
		return "", err
	}
	return output, nil
}

// CommandLinker links every artifact with one run of Command. Arguments may
// use objects, output, out_dir, name and configuration. Product names the
// output file inside the output directory and may use name and
// configuration; it defaults to "{{ name }}".
type CommandLinker struct {
	Command []string
	Product string
	Output  io.Writer
}

var _ buildkit.LinkStep = (*CommandLinker)(nil)

func (l *CommandLinker) LinkAll(ctx context.Context, req buildkit.LinkRequest) (string, error) {
	product := l.Product
	if product == "" {
		product = "{{ name }}"
	}
	name, err := config.EvaluateString(product, map[string]any{
		"name":          req.ProductName,
		"configuration": req.Configuration.String(),
	})
	if err != nil {
		return "", err
	}
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid product file name %q", name)
	}

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	output := filepath.Join(req.OutputDir, name)

	argv, err := Render(l.Command, map[string]any{
		"objects":       req.Artifacts,
		"output":        output,
		"out_dir":       req.OutputDir,
		"name":          req.ProductName,
		"configuration": req.Configuration.String(),
	})
	if err != nil {
		return "", err
	}
	if err := run(ctx, argv, l.Output); err != nil {
		return "", err
	}
	return output, nil
}

// Render expands the templates of a command line against vars.
func Render(command []string, vars map[string]any) ([]string, error) {
	argv := make([]string, 0, len(command))
	for _, arg := range command {
		if expression, ok := config.SplitTemplate(arg); ok {
			v, err := config.Eval(expression, vars)
			if err != nil {
				return nil, err
			}
			argv = appendValue(argv, v)
			continue
		}
		s, err := config.EvaluateString(arg, vars)
		if err != nil {
			return nil, err
		}
		argv = append(argv, s)
	}
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("empty command line")
	}
	return argv, nil
}

func appendValue(argv []string, v any) []string {
	switch v := v.(type) {
	case nil:
		return argv
	case string:
		return append(argv, v)
	case []string:
		return append(argv, v...)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := range rv.Len() {
			argv = append(argv, fmt.Sprint(rv.Index(i).Interface()))
		}
		return argv
	}
	return append(argv, fmt.Sprint(v))
}

func run(ctx context.Context, argv []string, w io.Writer) error {
	if w == nil {
		w = msg.Output
	}
	msg.Debug("running %s", strings.Join(argv, " "))

	out := &msg.IndentWriter{Indent: toolIndent, W: w}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = out // stdout is reserved for directives
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// FromConfig builds the steps a project file describes. The link step is nil
// when the project does not link. getenv is consulted for CC and CXX.
func FromConfig(cfg *config.Config, getenv func(string) string) (buildkit.CompileStep, buildkit.LinkStep, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	compiler := &CommandCompiler{
		SourceExt:   cfg.Compile.SourceExt,
		ArtifactExt: cfg.Compile.ArtifactExt,
		Command:     cfg.Compile.Command,
	}

	var cc string
	if cfg.Compile.Preset == config.PresetCC || cfg.Link.Preset == config.PresetCC {
		ext := cfg.Compile.SourceExt
		if ext == "" {
			ext = "c"
		}
		cc = findCompiler(isCxx(ext), getenv, defaultLookPath)
		if cc == "" {
			return nil, nil, errors.New("no C/C++ compiler found, set CC or CXX")
		}
	}

	if cfg.Compile.Preset == config.PresetCC {
		if compiler.SourceExt == "" {
			compiler.SourceExt = "c"
		}
		if compiler.ArtifactExt == "" {
			compiler.ArtifactExt = "o"
		}
		if len(compiler.Command) == 0 {
			compiler.Command = ccCompileCommand(cc)
		}
	}
	if compiler.ArtifactExt == "" {
		compiler.ArtifactExt = "out"
	}

	if !cfg.Link.Enabled() {
		return compiler, nil, nil
	}

	linker := &CommandLinker{Command: cfg.Link.Command, Product: cfg.Link.Product}
	switch cfg.Link.Preset {
	case config.PresetCC:
		if len(linker.Command) == 0 {
			linker.Command = ccLinkCommand(cc)
		}
	case config.PresetAr:
		if len(linker.Command) == 0 {
			linker.Command = arLinkCommand()
		}
		if linker.Product == "" {
			linker.Product = "lib{{ name }}.a"
		}
	}
	return compiler, linker, nil
}
