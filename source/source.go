// Package source turns a declared source selection into an ordered list of
// files. The order is stable for an unchanged tree: it becomes the order in
// which files are compiled and linked.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrDirectoryUnreadable = errors.New("directory unreadable")
	ErrBadPattern          = errors.New("bad glob pattern")
)

// DirectoryError reports a search root (or a directory below it) that could
// not be listed.
type DirectoryError struct {
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrDirectoryUnreadable, e.Path, e.Err)
}

func (e *DirectoryError) Unwrap() []error { return []error{ErrDirectoryUnreadable, e.Err} }

type Kind int

const (
	KindFiles  Kind = iota // explicit list
	KindSearch             // recursive search roots
	KindGlob               // doublestar patterns
)

func (k Kind) String() string {
	switch k {
	case KindFiles:
		return "files"
	case KindSearch:
		return "search"
	case KindGlob:
		return "glob"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Selection describes which files are compile inputs. The zero value is an
// empty explicit list.
type Selection struct {
	kind  Kind
	items []string
}

// Files selects exactly the given paths, in order.
func Files(paths ...string) Selection {
	return Selection{kind: KindFiles, items: slices.Clone(paths)}
}

// Search selects every file with the compile step's extension below each
// root. Relative roots are taken from the project root.
func Search(roots ...string) Selection {
	return Selection{kind: KindSearch, items: slices.Clone(roots)}
}

// Glob selects files matching doublestar patterns such as "src/**/*.c".
func Glob(patterns ...string) Selection {
	return Selection{kind: KindGlob, items: slices.Clone(patterns)}
}

func (s Selection) Kind() Kind { return s.kind }

// Items returns the paths, roots or patterns the selection was built from.
func (s Selection) Items() []string { return slices.Clone(s.items) }

func (s Selection) String() string {
	return s.kind.String() + "(" + strings.Join(s.items, ", ") + ")"
}

// Resolve expands the selection. ext is the source extension of the compile
// step, with or without its leading dot; it only applies to search roots.
func (s Selection) Resolve(projectRoot, ext string) ([]string, error) {
	switch s.kind {
	case KindFiles:
		return slices.Clone(s.items), nil
	case KindSearch:
		var out []string
		for _, root := range s.items {
			found, err := walk(rooted(projectRoot, root), strings.TrimPrefix(ext, "."))
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		}
		return out, nil
	case KindGlob:
		var out []string
		for _, pat := range s.items {
			found, err := glob(projectRoot, pat)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown source selection kind %v", s.kind)
	}
}

func rooted(projectRoot, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectRoot, path)
}

// Extension returns the extension of a file name without its dot. Names whose
// only dot is the leading one (".profile") have no extension.
func Extension(name string) string {
	name = filepath.Base(name)
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return name[i+1:]
}

// walk visits base depth-first with an explicit stack, in the same order a
// recursive walk would: each directory is expanded where it appears among its
// siblings. os.ReadDir returns entries sorted by name, which keeps the order
// stable between runs.
func walk(base, ext string) ([]string, error) {
	type item struct {
		path string
		dir  bool
	}

	var out []string
	stack := []item{{path: base, dir: true}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !it.dir {
			if Extension(it.path) == ext {
				out = append(out, it.path)
			}
			continue
		}

		entries, err := os.ReadDir(it.path)
		if err != nil {
			return nil, &DirectoryError{Path: it.path, Err: err}
		}
		for i := len(entries) - 1; i >= 0; i-- {
			path := filepath.Join(it.path, entries[i].Name())
			mode := entries[i].Type()
			if mode&fs.ModeSymlink != 0 {
				// follow links to files, never into directories
				info, err := os.Stat(path)
				if err != nil || info.IsDir() {
					continue
				}
				mode = info.Mode().Type()
			}
			switch {
			case mode.IsDir():
				stack = append(stack, item{path: path, dir: true})
			case mode.IsRegular():
				stack = append(stack, item{path: path})
			}
		}
	}
	return out, nil
}

// glob matches pattern against the project root, or against the static
// prefix of an absolute pattern, returning files only.
func glob(projectRoot, pattern string) ([]string, error) {
	base, pat := projectRoot, filepath.ToSlash(pattern)
	if filepath.IsAbs(pattern) {
		base, pat = doublestar.SplitPattern(pat)
		base = filepath.FromSlash(base)
	}
	if !doublestar.ValidatePattern(pat) {
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(base), pat, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, &DirectoryError{Path: filepath.Join(base, filepath.FromSlash(pathErr.Path)), Err: pathErr.Err}
		}
		return nil, fmt.Errorf("while globbing %s: %w", pattern, err)
	}

	out := make([]string, len(matches))
	for i, match := range matches {
		out[i] = filepath.Join(base, filepath.FromSlash(match))
	}
	return out, nil
}
