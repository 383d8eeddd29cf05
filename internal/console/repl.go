// ABOUTME: Line-oriented command REPL for the operator console.
// ABOUTME: Reads lines off the control path and hands each to an executor in order.

package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// DefaultPrompt is printed before every command line.
const DefaultPrompt = "Command> "

// Executor runs one console line. It should return only when the line has
// been dispatched, so commands keep their read order.
type Executor func(ctx context.Context, line string) error

// REPL reads commands and passes them to an Executor.
type REPL struct {
	reader  *bufio.Reader
	printer *Printer
	exec    Executor
	prompt  string
	logger  *slog.Logger
}

// NewREPL creates a REPL.
func NewREPL(reader *bufio.Reader, printer *Printer, exec Executor, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.Default()
	}
	return &REPL{
		reader:  reader,
		printer: printer,
		exec:    exec,
		prompt:  DefaultPrompt,
		logger:  logger.With("component", "console"),
	}
}

// Run prompts and executes lines until input ends or ctx is cancelled. EOF
// is not an error. An executor error means commands can no longer be run
// and ends the REPL.
func (r *REPL) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go r.read(ctx, lines, readErr)

	for {
		r.printer.Prompt(r.prompt)

		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				r.printer.Prompt("\n")
				r.logger.Info("console input closed")
				return nil
			}
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := r.exec(ctx, line); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("executing command", "line", line, "error", err)
				return err
			}
		}
	}
}

// read forwards lines until the reader fails. The goroutine is abandoned on
// cancellation since a blocked read cannot be interrupted.
func (r *REPL) read(ctx context.Context, lines chan<- string, readErr chan<- error) {
	for {
		line, err := r.reader.ReadString('\n')
		if line != "" {
			select {
			case lines <- strings.TrimRight(line, "\r\n"):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			readErr <- err
			return
		}
	}
}
