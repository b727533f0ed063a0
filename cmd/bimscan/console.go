package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true)
)

// console prints user-facing status lines. Styling is only applied when
// writing to a terminal.
type console struct {
	out   io.Writer
	color bool
}

func newConsole() *console {
	return &console{
		out:   os.Stdout,
		color: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (c *console) print(style lipgloss.Style, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if c.color {
		line = style.Render(line)
	}
	fmt.Fprintln(c.out, line)
}

func (c *console) Heading(format string, args ...any) { c.print(headingStyle, format, args...) }
func (c *console) Success(format string, args ...any) { c.print(successStyle, format, args...) }
func (c *console) Warn(format string, args ...any)    { c.print(warnStyle, format, args...) }
func (c *console) Error(format string, args ...any)   { c.print(errorStyle, format, args...) }

// Line prints text as-is.
func (c *console) Line(text string) {
	fmt.Fprintln(c.out, text)
}

// waitForKey blocks until a key is pressed. It returns immediately when
// stdin is not a terminal.
func waitForKey(c *console) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	fmt.Fprint(c.out, "\nPress any key to exit...")
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return
	}
	defer term.Restore(fd, oldState)

	var b [1]byte
	os.Stdin.Read(b[:])
	fmt.Fprint(c.out, "\r\n")
}
