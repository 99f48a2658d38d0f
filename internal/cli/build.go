// buildkit [dir], buildkit build [dir]
package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/qobs-build/buildkit"
	"github.com/qobs-build/buildkit/internal/config"
	"github.com/qobs-build/buildkit/internal/fingerprint"
	"github.com/qobs-build/buildkit/internal/msg"
	"github.com/qobs-build/buildkit/internal/toolchain"
	"github.com/spf13/cobra"
)

type buildFlags struct {
	profile EnumValue
	jobs    int
	force   bool
}

func newBuildFlags() *buildFlags {
	return &buildFlags{
		profile: NewEnumValue("debug", map[string]string{
			"debug":   "Unoptimized build with debug info (default)",
			"release": "Optimized build",
		}),
	}
}

func (f *buildFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().VarP(&f.profile, "profile", "p", "Build with the given profile, one of "+f.profile.HelpString()+"; defaults to DEBUG when set")
	cmd.RegisterFlagCompletionFunc("profile", f.profile.CompletionFunc())
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "Number of files compiled at once (default: compile.jobs, or the number of CPUs)")
	cmd.Flags().BoolVar(&f.force, "force", false, "Build even if nothing changed")
}

func (f *buildFlags) options(cmd *cobra.Command) buildOptions {
	opts := buildOptions{jobs: f.jobs, force: f.force}
	if cmd.Flags().Changed("profile") {
		opts.profile = f.profile.Value()
	}
	return opts
}

type buildCommand struct {
	*cobra.Command
	*buildFlags
}

func newBuildCommand() *buildCommand {
	b := &buildCommand{buildFlags: newBuildFlags()}
	b.Command = &cobra.Command{
		Use:   "build [project dir]",
		Short: "Build the project",
		Long:  `Build the project described by ` + config.Filename + `. If no directory is given, uses "."`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runBuild(cmd.Context(), targetDir(args), b.options(cmd), cmd.OutOrStdout(), fingerprint.NewHasher())
			return err
		},
	}
	b.addFlags(b.Command)
	return b
}

type buildOptions struct {
	profile string // "" picks DEBUG from the environment, else debug
	jobs    int
	force   bool
	env     buildkit.Environment
}

type buildResult struct {
	state           *fingerprint.State
	sources         []string
	intermediateDir string
	productDir      string
	skipped         bool
}

// runBuild builds the project in dir unless its fingerprint is fresh.
// Directives go to stdout.
func runBuild(ctx context.Context, dir string, opts buildOptions, stdout io.Writer, hasher *fingerprint.Hasher) (*buildResult, error) {
	start := time.Now()

	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := config.LoadDotEnv(dir); err != nil {
		return nil, err
	}
	env := opts.env
	if env == nil {
		env = buildkit.EnvironmentFromOS()
	}

	conf := buildkit.Debug
	if opts.profile != "" {
		if conf, err = buildkit.ParseConfiguration(opts.profile); err != nil {
			return nil, err
		}
	} else if c, ok := buildkit.ConfigurationFromEnvironment(env); ok {
		conf = c
	}

	cenv := config.NewConfigEnv(dir, conf)
	projectFile := filepath.Join(dir, config.Filename)
	cfg, err := config.ParseConfigFromFile(projectFile, cenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.RunBuildScript(cenv); err != nil {
		return nil, err
	}

	o, err := cfg.Options(dir, conf)
	if err != nil {
		return nil, err
	}
	if opts.jobs > 0 {
		o.Jobs = opts.jobs
	} else if o.Jobs == 0 {
		o.Jobs = runtime.NumCPU()
	}
	if v, ok := env(buildkit.EnvOutDir); !ok || v == "" {
		// not run from a build script, keep everything in the project
		o.IntermediateDir = filepath.Join(dir, "build", "obj")
		product := buildkit.Exact(filepath.Join(dir, "build"))
		o.Product = &product
	}

	compile, link, err := toolchain.FromConfig(cfg, nil)
	if err != nil {
		return nil, err
	}

	var settings buildkit.BuildSettings
	if link != nil {
		settings, err = buildkit.ResolveBuildSettings(o, env)
	} else {
		settings.Compile, err = buildkit.ResolveCompileSettings(o, env)
	}
	if err != nil {
		return nil, err
	}
	cs := settings.Compile

	sources, err := cs.Sources.Resolve(cs.ProjectRoot, compile.SourceExtension())
	if err != nil {
		return nil, fmt.Errorf("resolving sources: %w", err)
	}

	res := &buildResult{
		sources:         sources,
		intermediateDir: cs.IntermediateDir,
		productDir:      settings.ProductDir,
	}
	in := fingerprint.Inputs{Configuration: cs.Configuration, Flags: cs.Flags, Sources: sources}
	statePath := fingerprint.Path(cs.IntermediateDir)

	if !opts.force {
		prev, err := fingerprint.Load(statePath)
		if err != nil {
			msg.Warn("%v, rebuilding", err)
		}
		stale, reason, err := hasher.Stale(prev, in)
		if err != nil {
			return nil, err
		}
		if !stale {
			// the host only keeps the directives of the latest run
			deps := slices.DeleteFunc(prev.Watched(), func(f string) bool { return f == projectFile })
			if err := (buildkit.DirectiveWriter{W: stdout}).Report(projectFile, deps); err != nil {
				return nil, err
			}
			msg.Status("Fresh", "%s (%s), no work to do", cfg.Package.Name, conf)
			res.state = prev
			res.skipped = true
			return res, nil
		}
		msg.Debug("rebuilding %s: %s", cfg.Package.Name, reason)
	}

	msg.Status("Building", "%s (%s)", cfg.Package.Name, conf)

	recorder := &buildkit.RecordingReporter{}
	var bar *msg.ProgressBar
	buildOpts := []buildkit.Option{
		buildkit.WithReporter(buildkit.Reporters(buildkit.DirectiveWriter{W: stdout}, recorder)),
		buildkit.WithProgress(func(done, total int, src string) {
			if bar == nil {
				bar = msg.NewProgressBar(total, 4, msg.Output)
			}
			bar.Step(filepath.Base(src))
		}),
	}

	var product string
	var artifacts []string
	if link != nil {
		product, err = buildkit.NewBuildSystem(compile, link, buildOpts...).Run(ctx, settings)
	} else {
		artifacts, err = buildkit.NewCompileSystem(compile, buildOpts...).Run(ctx, cs)
	}
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, err
	}

	state, err := hasher.Record(in, product, artifacts, append(recorder.Deps(), projectFile))
	if err != nil {
		return nil, err
	}
	if err := fingerprint.Save(statePath, state); err != nil {
		msg.Warn("failed to save fingerprint: %v", err)
	}

	msg.Status("Finished", "%s in %s", cfg.Package.Name, time.Since(start).Round(time.Millisecond))
	res.state = state
	return res, nil
}
