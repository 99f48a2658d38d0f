package msg

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	// Output receives every message. Standard output is left to rebuild
	// directives, which the host build tool reads line by line.
	Output io.Writer = os.Stderr
	// Verbose enables Debug messages.
	Verbose bool

	exit = os.Exit
)

func emit(prefix, format string, a ...any) {
	fmt.Fprint(Output, prefix)
	fmt.Fprint(Output, ": ")
	fmt.Fprintf(Output, format, a...)
	fmt.Fprint(Output, "\n")
}

func Error(format string, a ...any) {
	emit(color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	emit(color.YellowString("warn"), format, a...)
}

func Fatal(format string, a ...any) {
	emit(color.RedString("fatal"), format, a...)
	exit(1)
}

func Info(format string, a ...any) {
	emit(color.HiGreenString("info"), format, a...)
}

func Debug(format string, a ...any) {
	if !Verbose {
		return
	}
	emit(color.HiBlackString("debug"), format, a...)
}

// Status prints a right-aligned coloured verb followed by a message, e.g.
// "   Compiling src/main.c".
func Status(verb, format string, a ...any) {
	fmt.Fprintf(Output, "%12s ", color.HiGreenString(verb))
	fmt.Fprintf(Output, format, a...)
	fmt.Fprint(Output, "\n")
}

type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		if !w.didIndent {
			if _, err := io.WriteString(w.W, w.Indent); err != nil {
				return n, err
			}
			w.didIndent = true
		}
		line := p
		if i := bytes.IndexAny(p, "\n\r"); i >= 0 {
			line = p[:i+1]
			w.didIndent = false
		}
		written, err := w.W.Write(line)
		n += written
		if err != nil {
			return n, err
		}
		p = p[len(line):]
	}
	return n, nil
}
