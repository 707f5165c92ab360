// Package debug sets up the console logger the CLI runs with. Library code
// only ever pulls a logger out of the context; the writer configured here is
// the one that ends up there.
package debug

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// NewConsoleLogger builds a zerolog logger writing human-readable lines to
// out, with callers formatted as pkg:file:line.
func NewConsoleLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05.000",
		FormatCaller: func(i any) string {
			caller, ok := i.(string)
			if !ok {
				return ""
			}
			return FormatCaller(caller, color.NoColor == false)
		},
	}
	return zerolog.New(cw).Level(level).With().Timestamp().Caller().Logger()
}

// FormatCaller compresses a full caller path down to file:line, optionally
// colorized for terminals.
func FormatCaller(caller string, colorize bool) string {
	path, line, ok := strings.Cut(caller, ":")
	file := FileNameOfPath(path)
	if !ok {
		return file
	}
	if colorize {
		sep := color.New(color.Faint).Sprint(":")
		return fmt.Sprintf("%s%s%s", color.New(color.Bold).Sprint(file), sep, color.New(color.FgHiRed).Sprint(line))
	}
	return fmt.Sprintf("%s:%s", file, line)
}

// FileNameOfPath returns the last element of a slash-separated path.
func FileNameOfPath(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
