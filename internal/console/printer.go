// ABOUTME: Colored operator output shared by the spawner, dispatcher and REPL.
// ABOUTME: Writes are serialized so lines from concurrent sources never interleave.

package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Printer writes operator-facing lines.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	green  *color.Color
	yellow *color.Color
	red    *color.Color
	cyan   *color.Color
	gray   *color.Color
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{
		out:    out,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		cyan:   color.New(color.FgCyan),
		gray:   color.New(color.FgHiBlack),
	}
}

// Info prints a plain line.
func (p *Printer) Info(format string, args ...any) {
	p.line(nil, format, args...)
}

// Success prints a green line.
func (p *Printer) Success(format string, args ...any) {
	p.line(p.green, format, args...)
}

// Warn prints a yellow line.
func (p *Printer) Warn(format string, args ...any) {
	p.line(p.yellow, format, args...)
}

// Error prints a red line.
func (p *Printer) Error(format string, args ...any) {
	p.line(p.red, format, args...)
}

func (p *Printer) line(c *color.Color, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c == nil {
		fmt.Fprint(p.out, msg)
		return
	}
	c.Fprint(p.out, msg)
}

// Prompt prints s without a trailing newline.
func (p *Printer) Prompt(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, s)
}

// Banner prints the startup banner and version.
func (p *Printer) Banner(art, version string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cyan.Fprint(p.out, art)
	p.gray.Fprintf(p.out, "    version: %s\n\n", version)
}

// Detail prints an indented "▶ label value" startup line.
func (p *Printer) Detail(label, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.green.Fprint(p.out, "    ▶ ")
	fmt.Fprintf(p.out, "%-10s %s\n", label+":", value)
}

// Section prints a "--- title ---" heading preceded by a blank line.
func (p *Printer) Section(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n--- %s ---\n", title)
}
