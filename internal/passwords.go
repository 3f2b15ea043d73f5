package internal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// ErrNoTerminal is returned by PromptPassword when standard input is not a
// terminal.
var ErrNoTerminal = errors.New("standard input is not a terminal")

// ReadPassword returns the first line of r with its line ending removed.
// Other whitespace is part of the password.
func ReadPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// LoadPasswordFromFile reads a password from the first line of a file.
func LoadPasswordFromFile(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", fmt.Errorf("loading password from file: %w", err)
	}
	defer file.Close()
	return ReadPassword(file)
}

// PromptPassword asks for a password on the terminal without echoing it.
// The prompt is written to stderr so stdout stays clean for output.
func PromptPassword(prompt string) (string, error) {
	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return "", ErrNoTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(fd))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}
