package buildkit

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Reporter receives the dependencies discovered while compiling source, in
// the order they were listed.
type Reporter interface {
	Report(source string, deps []string) error
}

// DirectiveWriter prints one cargo:rerun-if-changed line per dependency.
type DirectiveWriter struct {
	W io.Writer
}

// Stdout is the reporter used when none is configured.
var Stdout = DirectiveWriter{W: os.Stdout}

func Directive(path string) string {
	return fmt.Sprintf("cargo:rerun-if-changed='%s'", path)
}

func (d DirectiveWriter) Report(_ string, deps []string) error {
	for _, dep := range deps {
		if _, err := fmt.Fprintln(d.W, Directive(dep)); err != nil {
			return err
		}
	}
	return nil
}

// RecordingReporter keeps every reported dependency. Safe for concurrent use.
type RecordingReporter struct {
	mu   sync.Mutex
	deps []string
	by   map[string][]string
}

func (r *RecordingReporter) Report(source string, deps []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.by == nil {
		r.by = make(map[string][]string)
	}
	r.deps = append(r.deps, deps...)
	r.by[source] = append(r.by[source], deps...)
	return nil
}

// Deps returns all dependencies in report order, duplicates included.
func (r *RecordingReporter) Deps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deps...)
}

// For returns the dependencies reported for one source file.
func (r *RecordingReporter) For(source string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.by[source]...)
}

type multiReporter []Reporter

func (m multiReporter) Report(source string, deps []string) error {
	for _, r := range m {
		if err := r.Report(source, deps); err != nil {
			return err
		}
	}
	return nil
}

// Reporters sends every report to each of rs in turn.
func Reporters(rs ...Reporter) Reporter {
	return multiReporter(rs)
}
