// Package output renders the interactive status line.
package output

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

const defaultWidth = 80

// Width returns the width of the terminal on fd, or a default width when fd
// is not a terminal.
func Width(fd int) int {
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// IsTerminal reports whether fd is a terminal.
func IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// PrintRight rewrites the current line of w with text aligned to the
// right edge of a line of width columns.
func PrintRight(w io.Writer, width int, text string) {
	padding := width - len([]rune(text))
	if padding < 0 {
		padding = 0
	}

	fmt.Fprintf(w, "\r%s%s", strings.Repeat(" ", padding), text)
}

// ProgressBar returns a bar of width cells filled by percent, clamped to
// [0, 100].
func ProgressBar(percent int, width int) string {
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	filled := (percent * width) / 100

	return strings.Repeat("█", filled) + strings.Repeat(" ", width-filled)
}
