package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"dedupe-go/internal/dedup"
)

// ConfirmToken must be typed exactly before a live run deletes anything.
const ConfirmToken = "DELETE"

// Confirmer gates live deletion behind an explicit human action.
type Confirmer interface {
	ConfirmLive(summary string) error
}

// TerminalConfirmer asks on the controlling terminal. Input that is not a
// terminal is refused, so live mode cannot be piped or scripted.
type TerminalConfirmer struct {
	in  *os.File
	out io.Writer
}

// NewTerminalConfirmer reads from stdin and prompts on stderr.
func NewTerminalConfirmer() *TerminalConfirmer {
	return &TerminalConfirmer{in: os.Stdin, out: os.Stderr}
}

func (c *TerminalConfirmer) ConfirmLive(summary string) error {
	if !term.IsTerminal(int(c.in.Fd())) {
		return fmt.Errorf("%w: stdin is not a terminal", dedup.ErrConfirmationRequired)
	}
	return confirmToken(c.in, c.out, summary)
}

func confirmToken(r io.Reader, w io.Writer, summary string) error {
	fmt.Fprintln(w, summary)
	fmt.Fprintf(w, "Files inside the scope will be permanently deleted. Type %s to continue: ", ConfirmToken)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading confirmation: %w", err)
	}
	if strings.TrimSpace(line) != ConfirmToken {
		return fmt.Errorf("%w: confirmation token not entered", dedup.ErrConfirmationRequired)
	}
	return nil
}

// ReadPassphrase prompts on stderr and reads a passphrase without echo.
// When stdin is not a terminal one line is read from it instead.
func ReadPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}
