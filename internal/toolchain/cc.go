package toolchain

import (
	"os/exec"
	"strings"
)

// Only compilers that understand -c/-o/-MMD/-MF are listed.
var (
	commonCCompilers   = []string{"clang", "gcc", "icx", "icc", "tcc"}
	commonCxxCompilers = []string{"clang++", "g++", "clang", "gcc", "icpx", "icx", "icpc", "icc"}
)

var cxxExtensions = map[string]bool{"cc": true, "cpp": true, "cxx": true, "c++": true, "mm": true}

// isCxx reports whether files with extension ext need a C++ compiler.
func isCxx(ext string) bool {
	return cxxExtensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// findCompiler attempts to find a suitable C or C++ compiler on the system
func findCompiler(needCxx bool, getenv func(string) string, lookPath func(string) (string, error)) string {
	cc := getenv("CC")
	cxx := getenv("CXX")

	if needCxx && cxx != "" {
		return cxx
	}
	if !needCxx && cc != "" {
		return cc
	}

	if cxx != "" {
		return cxx
	}
	if cc != "" {
		return cc
	}

	var compilersToTry []string
	if needCxx {
		compilersToTry = commonCxxCompilers
	} else {
		compilersToTry = commonCCompilers
	}

	for _, compiler := range compilersToTry {
		path, err := lookPath(compiler)
		if err == nil {
			return path
		}
	}

	return ""
}

// ccCompileCommand is the cc preset's compile command line.
func ccCompileCommand(cc string) []string {
	return []string{cc, "{{ flags }}", "-c", "{{ source }}", "-o", "{{ output }}", "-MMD", "-MF", "{{ depfile }}"}
}

func ccLinkCommand(cc string) []string {
	return []string{cc, "-o", "{{ output }}", "{{ objects }}"}
}

func arLinkCommand() []string {
	return []string{"ar", "rcs", "{{ output }}", "{{ objects }}"}
}

var defaultLookPath = exec.LookPath
