// ABOUTME: Interactive startup questions with defaults.
// ABOUTME: Blank answers and EOF take the default; bad numbers fall back with a warning.

package console

import (
	"bufio"
	"strconv"
	"strings"
)

// Prompter asks the operator questions on the console.
type Prompter struct {
	reader  *bufio.Reader
	printer *Printer
}

// NewPrompter creates a Prompter. Share reader with the REPL so buffered
// input is not lost between the two.
func NewPrompter(reader *bufio.Reader, printer *Printer) *Prompter {
	return &Prompter{reader: reader, printer: printer}
}

// Ask prints "question [default]: " and returns the trimmed answer, or
// defaultVal when the answer is blank or input has ended.
func (p *Prompter) Ask(question, defaultVal string) string {
	if defaultVal != "" {
		p.printer.Prompt(question + " [" + defaultVal + "]: ")
	} else {
		p.printer.Prompt(question + ": ")
	}

	input, err := p.reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		p.printer.Prompt("\n")
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// AskInt asks for an integer of at least min.
func (p *Prompter) AskInt(question string, defaultVal, min int) int {
	answer := p.Ask(question, strconv.Itoa(defaultVal))
	n, err := strconv.Atoi(answer)
	if err != nil || n < min {
		p.printer.Warn("Invalid number %q, using %d.", answer, defaultVal)
		return defaultVal
	}
	return n
}

// Confirm asks a yes/no question; only "y" or "yes" count as yes.
func (p *Prompter) Confirm(question string, defaultYes bool) bool {
	def := "no"
	if defaultYes {
		def = "yes"
	}
	answer := strings.ToLower(p.Ask(question, def))
	return answer == "yes" || answer == "y"
}
