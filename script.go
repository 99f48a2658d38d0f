package buildkit

import "context"

// BuildScript compiles the sources of the crate running the build script, with
// every setting taken from the environment. The artifacts are the products:
// they go to the directory exeRel names relative to the executables, see
// [ExeRelative].
func (cs *CompileSystem) BuildScript(ctx context.Context, exeRel string) ([]string, error) {
	return cs.buildScript(ctx, exeRel, EnvironmentFromOS())
}

func (cs *CompileSystem) buildScript(ctx context.Context, exeRel string, env Environment) ([]string, error) {
	dir, err := ExeRelative(exeRel).resolve(env)
	if err != nil {
		return nil, err
	}
	settings, err := ResolveCompileSettings(Options{IntermediateDir: dir}, env)
	if err != nil {
		return nil, err
	}
	return cs.Run(ctx, settings)
}

// BuildScript builds the crate running the build script, with every setting
// taken from the environment, and links the product into the directory exeRel
// names relative to the executables.
func (bs *BuildSystem) BuildScript(ctx context.Context, exeRel string) (string, error) {
	return bs.buildScript(ctx, exeRel, EnvironmentFromOS())
}

func (bs *BuildSystem) buildScript(ctx context.Context, exeRel string, env Environment) (string, error) {
	product := ExeRelative(exeRel)
	settings, err := ResolveBuildSettings(Options{Product: &product}, env)
	if err != nil {
		return "", err
	}
	return bs.Run(ctx, settings)
}
