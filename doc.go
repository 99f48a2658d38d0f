// Package buildkit is a small, pluggable build pipeline for build scripts.
//
// You supply the compiler and, optionally, the linker by implementing
// [CompileStep] and [LinkStep]; buildkit finds the source files, runs the
// compile step over each of them in a stable order, hands the artifacts to the
// link step and tells the host build tool which files the result depends on:
//
//	type shaderc struct{}
//
//	func (shaderc) SourceExtension() string { return "glsl" }
//
//	func (shaderc) CompileOne(ctx context.Context, req buildkit.CompileRequest) (string, error) {
//		out := buildkit.SuggestIntermediateFile(req.Source, req.IntermediateDir, "spv")
//		cmd := exec.CommandContext(ctx, "glslc", req.Source, "-o", out, "-MD", "-MF", req.DependencyPath)
//		return out, cmd.Run()
//	}
//
//	settings, err := buildkit.ResolveCompileSettings(buildkit.Options{}, buildkit.EnvironmentFromOS())
//	...
//	artifacts, err := buildkit.NewCompileSystem(shaderc{}).Run(ctx, settings)
//
// From a build script that takes every setting from cargo, the last two steps
// are one call:
//
//	artifacts, err := buildkit.NewCompileSystem(shaderc{}).BuildScript(ctx, "shaders")
//
// Every dependency file a compile step writes is reported on standard output as
// cargo:rerun-if-changed='<path>' lines. buildkit itself never skips work; the
// host decides whether to run it again.
package buildkit
