package buildkit

import (
	"context"
	"fmt"

	"github.com/qobs-build/buildkit/internal/msg"
)

// BuildSystem compiles with one CompileStep and links the artifacts with one
// LinkStep.
type BuildSystem struct {
	compile *CompileSystem
	link    LinkStep
}

func NewBuildSystem(compile CompileStep, link LinkStep, opts ...Option) *BuildSystem {
	return &BuildSystem{compile: NewCompileSystem(compile, opts...), link: link}
}

// Run compiles every source and links the artifacts, in source order, into a
// single product. It returns the product's path.
func (bs *BuildSystem) Run(ctx context.Context, settings BuildSettings) (string, error) {
	artifacts, err := bs.compile.Run(ctx, settings.Compile)
	if err != nil {
		return "", err
	}

	msg.Debug("linking %d artifacts into %s", len(artifacts), settings.ProductName)
	product, err := bs.link.LinkAll(ctx, LinkRequest{
		Artifacts:     artifacts,
		OutputDir:     settings.ProductDir,
		ProductName:   settings.ProductName,
		Configuration: settings.Compile.Configuration,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrLinkFailed, settings.ProductName, err)
	}
	return product, nil
}
