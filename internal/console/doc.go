// Package console is the operator's terminal: colored output, the startup
// questions and the command REPL.
//
// Printer is safe for concurrent use and implements the Reporter
// interfaces of the fleet and dispatch packages. Prompter and REPL must share
// one *bufio.Reader over stdin.
package console
