package buildkit

import (
	"context"
	"path/filepath"
	"strings"
)

// CompileRequest is the input of a single compile.
type CompileRequest struct {
	Source          string
	IntermediateDir string
	Configuration   Configuration
	// DependencyPath is where the step should write a Makefile-style list of
	// the files it read (headers, includes...), if it can tell. See
	// https://www.gnu.org/software/make/manual/html_node/Automatic-Prerequisites.html
	DependencyPath string
	Flags          []string
}

// CompileStep compiles one source file into one artifact placed under the
// intermediate directory, and returns the artifact's path. It must be
// deterministic for identical inputs.
type CompileStep interface {
	// SourceExtension is the extension searched for when sources are given
	// as search roots, e.g. "metal".
	SourceExtension() string
	CompileOne(ctx context.Context, req CompileRequest) (string, error)
}

// LinkRequest is the input of the link step. Artifacts are in source order.
type LinkRequest struct {
	Artifacts     []string
	OutputDir     string
	ProductName   string
	Configuration Configuration
}

// LinkStep combines all artifacts into one product under OutputDir and
// returns its path.
type LinkStep interface {
	LinkAll(ctx context.Context, req LinkRequest) (string, error)
}

// LinkFunc adapts a function to LinkStep.
type LinkFunc func(ctx context.Context, req LinkRequest) (string, error)

func (f LinkFunc) LinkAll(ctx context.Context, req LinkRequest) (string, error) {
	return f(ctx, req)
}

// SuggestIntermediateFile names the artifact for input: its base name with the
// extension replaced by ext, inside intermediateDir.
//
// Two sources with the same stem in different directories get the same name.
func SuggestIntermediateFile(input, intermediateDir, ext string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(intermediateDir, stem+"."+strings.TrimPrefix(ext, "."))
}
