package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// promptToken reads an API token without echoing it. Falls back to the
// TYPESET_TOKEN environment variable when stdin is not a terminal.
func promptToken(out io.Writer) (string, error) {
	if tok := os.Getenv("TYPESET_TOKEN"); tok != "" {
		return tok, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no token: pass --token or set TYPESET_TOKEN")
	}
	fmt.Fprint(out, "API token: ")
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return string(data), nil
}
