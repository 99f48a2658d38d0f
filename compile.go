package buildkit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/qobs-build/buildkit/depfile"
	"github.com/qobs-build/buildkit/internal/msg"
	"golang.org/x/sync/errgroup"
)

// DependencyFile is the name of the dependency file inside the intermediate
// directory. It is rewritten for every source file.
const DependencyFile = "dependency"

// Option configures a CompileSystem or BuildSystem.
type Option func(*options)

type options struct {
	reporter Reporter
	progress func(done, total int, source string)
}

// WithReporter replaces the default reporter, which prints directives to
// standard output.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithProgress calls fn after each file is compiled.
func WithProgress(fn func(done, total int, source string)) Option {
	return func(o *options) { o.progress = fn }
}

func newOptions(opts []Option) options {
	o := options{reporter: Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CompileSystem compiles every source file with one CompileStep. It can be
// used on its own when each source file is its own product, or as the first
// half of a BuildSystem.
type CompileSystem struct {
	step CompileStep
	opts options
}

func NewCompileSystem(step CompileStep, opts ...Option) *CompileSystem {
	return &CompileSystem{step: step, opts: newOptions(opts)}
}

// compiled is the outcome of one compile, before it is reported.
type compiled struct {
	artifact string
	deps     []string
}

// Run resolves the sources, compiles each one and returns the artifacts in
// source order. The dependencies found for a file are reported before the next
// file is compiled. Any failure stops the run; artifacts already written are
// left in place.
func (cs *CompileSystem) Run(ctx context.Context, settings CompileSettings) ([]string, error) {
	settings = settings.clone()

	sources, err := settings.Sources.Resolve(settings.ProjectRoot, cs.step.SourceExtension())
	if err != nil {
		return nil, fmt.Errorf("resolving sources: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no .%s files in %s", ErrNoSourceFiles, cs.step.SourceExtension(), settings.Sources)
	}
	msg.Debug("resolved %d source files from %s", len(sources), settings.Sources)

	if err := os.MkdirAll(settings.IntermediateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create intermediate directory: %w", err)
	}

	if settings.Jobs > 1 && len(sources) > 1 {
		return cs.runParallel(ctx, settings, sources)
	}

	depPath := filepath.Join(settings.IntermediateDir, DependencyFile)
	artifacts := make([]string, 0, len(sources))
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := cs.compileOne(ctx, settings, src, depPath)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, res.artifact)
		if err := cs.report(src, res.deps); err != nil {
			return nil, err
		}
		if cs.opts.progress != nil {
			cs.opts.progress(i+1, len(sources), src)
		}
	}
	return artifacts, nil
}

// runParallel gives each file its own dependency file, keeps the results by
// index and reports them in source order once every compile has succeeded.
func (cs *CompileSystem) runParallel(ctx context.Context, settings CompileSettings, sources []string) ([]string, error) {
	results := make([]compiled, len(sources))
	done := make(chan string)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		n := 0
		for src := range done {
			n++
			if cs.opts.progress != nil {
				cs.opts.progress(n, len(sources), src)
			}
		}
	}()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(settings.Jobs)
	for i, src := range sources {
		depPath := filepath.Join(settings.IntermediateDir, DependencyFile+"."+strconv.Itoa(i))
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			res, err := cs.compileOne(egCtx, settings, src, depPath)
			if err != nil {
				return err
			}
			results[i] = res
			done <- src
			return nil
		})
	}
	err := eg.Wait()
	close(done)
	<-finished
	if err != nil {
		return nil, err
	}

	artifacts := make([]string, len(sources))
	for i, res := range results {
		artifacts[i] = res.artifact
		if err := cs.report(sources[i], res.deps); err != nil {
			return nil, err
		}
	}
	return artifacts, nil
}

func (cs *CompileSystem) compileOne(ctx context.Context, settings CompileSettings, src, depPath string) (compiled, error) {
	// a stale file from the previous source must not be reported again
	if err := os.Remove(depPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return compiled{}, fmt.Errorf("removing stale dependency file: %w", err)
	}

	msg.Debug("compiling %s", src)
	artifact, err := cs.step.CompileOne(ctx, CompileRequest{
		Source:          src,
		IntermediateDir: settings.IntermediateDir,
		Configuration:   settings.Configuration,
		DependencyPath:  depPath,
		Flags:           settings.Flags,
	})
	if err != nil {
		return compiled{}, fmt.Errorf("%w: %s: %w", ErrCompileFailed, src, err)
	}

	deps, err := depfile.ParseFile(depPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		msg.Debug("%s: no dependency file written", src)
		deps = nil
	case err != nil:
		return compiled{}, fmt.Errorf("dependencies of %s: %w", src, err)
	}
	// "target:" with nothing after it parses as one empty path
	deps = slices.DeleteFunc(deps, func(d string) bool { return d == "" })
	return compiled{artifact: artifact, deps: deps}, nil
}

func (cs *CompileSystem) report(src string, deps []string) error {
	if len(deps) == 0 {
		return nil
	}
	if err := cs.opts.reporter.Report(src, deps); err != nil {
		return fmt.Errorf("reporting dependencies of %s: %w", src, err)
	}
	return nil
}
