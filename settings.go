package buildkit

import (
	"slices"

	"github.com/qobs-build/buildkit/source"
)

// CompileSettings is everything a [CompileSystem] needs for one run. Build it
// once, directly or with [ResolveCompileSettings], and treat it as read-only.
type CompileSettings struct {
	// ProjectRoot anchors relative search roots and glob patterns.
	ProjectRoot string
	Sources     source.Selection
	// IntermediateDir receives artifacts and the dependency file.
	IntermediateDir string
	Configuration   Configuration
	// Flags are passed to every compile call unchanged, duplicates included.
	Flags []string
	// Jobs > 1 compiles up to that many files at once.
	Jobs int
}

// BuildSettings adds the link step's inputs to a CompileSettings.
type BuildSettings struct {
	Compile     CompileSettings
	ProductDir  string
	ProductName string
}

func (s CompileSettings) clone() CompileSettings {
	s.Flags = slices.Clone(s.Flags)
	return s
}
