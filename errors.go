package buildkit

import (
	"errors"

	"github.com/qobs-build/buildkit/depfile"
	"github.com/qobs-build/buildkit/source"
)

// Every failure of the pipeline wraps one of these; none of them is retried.
var (
	// ErrConfiguration: a required setting is missing or malformed.
	ErrConfiguration = errors.New("configuration error")
	// ErrDirectoryUnreadable: a source search root could not be listed.
	ErrDirectoryUnreadable = source.ErrDirectoryUnreadable
	// ErrNoSourceFiles: the source selection resolved to nothing.
	ErrNoSourceFiles = errors.New("nothing to compile")
	ErrCompileFailed = errors.New("compile failed")
	ErrLinkFailed    = errors.New("link failed")
	// ErrInvalidEscape: a dependency file used an unsupported escape.
	ErrInvalidEscape = depfile.ErrInvalidEscape
)
