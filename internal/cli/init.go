// buildkit init [name], buildkit new [path]
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-git/go-git/v6"
	"github.com/qobs-build/buildkit/internal/config"
	"github.com/spf13/cobra"
)

type scaffold struct {
	lib   bool
	noGit bool
	out   io.Writer
}

func (s scaffold) writefile(content string, elem ...string) error {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("create file %s: %w", path, err)
		}
		fmt.Fprintf(s.out, "%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
	return nil
}

func mkdir(elem ...string) error {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

func projectFile(name string, lib bool) string {
	linkPreset := config.PresetCC
	if lib {
		linkPreset = config.PresetAr
	}
	return `[package]
name = "` + name + `"
description = "This is where I make a project."

[sources]
search = ["src"]

[compile]
preset = "cc"
flags = ["-Wall"]

[compile.'target_os == "windows"']
flags = ["-D_CRT_SECURE_NO_WARNINGS"]

[link]
preset = "` + linkPreset + `"

[profile.release]
opt-level = 3
`
}

// initIn initializes a project in an existing directory
func (s scaffold) initIn(dir, name string) error {
	if err := s.writefile(projectFile(name, s.lib), dir, config.Filename); err != nil {
		return err
	}

	if err := mkdir(dir, "src"); err != nil {
		return err
	}

	if s.lib {
		if err := s.writefile(`#include <stdio.h>
#include "hello_world.h"

void hello_world(void) {
    puts("Hello, World!");
}
`, dir, "src", "hello_world.c"); err != nil {
			return err
		}

		if err := s.writefile(`#ifndef HELLOWORLD_H
#define HELLOWORLD_H

#ifdef __cplusplus
extern "C" {
#endif

void hello_world(void);

#ifdef __cplusplus
} // extern "C"
#endif

#endif
`, dir, "src", "hello_world.h"); err != nil {
			return err
		}
	} else {
		if err := s.writefile(`#include <stdio.h>

int main(void) {
    puts("Hello, World!");
    return 0;
}
`, dir, "src", "main.c"); err != nil {
			return err
		}
	}

	if err := s.writefile("build/\n.env\n", dir, ".gitignore"); err != nil {
		return err
	}

	if !s.noGit {
		if err := s.initRepository(dir); err != nil {
			return err
		}
	}

	programName := getProgramName()
	fmt.Fprintf(s.out, "You can now do %s to build, or %s to rebuild on every change.\n",
		color.HiCyanString(programName+" "+dir), color.HiCyanString(programName+" watch "+dir))
	return nil
}

// initRepository creates a git repository in dir unless it has one.
func (s scaffold) initRepository(dir string) error {
	_, err := git.PlainInit(dir, false)
	if errors.Is(err, git.ErrTargetDirNotEmpty) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("git init %s: %w", dir, err)
	}
	fmt.Fprintf(s.out, "%s git repository: %s\n", color.HiGreenString("Initialized"), filepath.ToSlash(dir))
	return nil
}

func addScaffoldFlags(cmd *cobra.Command, s *scaffold) {
	cmd.Flags().BoolVarP(&s.lib, "lib", "l", false, "Create a static library project")
	cmd.Flags().BoolVar(&s.noGit, "no-git", false, "Do not initialize a git repository")
}

func newInitCommand() *cobra.Command {
	s := &scaffold{}
	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Create a new project in the current directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.out = cmd.OutOrStdout()
			return s.initIn(".", args[0])
		},
	}
	addScaffoldFlags(cmd, s)
	return cmd
}

func newNewCommand() *cobra.Command {
	s := &scaffold{}
	cmd := &cobra.Command{
		Use:   "new [path]",
		Short: "Create a new project in a new directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.out = cmd.OutOrStdout()
			if err := mkdir(args[0]); err != nil {
				return err
			}
			return s.initIn(args[0], filepath.Base(args[0]))
		},
	}
	addScaffoldFlags(cmd, s)
	return cmd
}
