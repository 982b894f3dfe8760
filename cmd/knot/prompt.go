package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/forest6511/knot/pkg/crypto"
	"github.com/forest6511/knot/pkg/vault"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var stdinReader = bufio.NewReader(os.Stdin)

// readPassword reads a secret without echo. Piped input is read one line at a time.
func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return b, nil
	}

	line, err := readLine()
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

// readLine reads a single line from stdin, trimming the trailing newline
func readLine() (string, error) {
	line, err := stdinReader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if err != nil && line == "" {
		return "", errors.New("unexpected end of input")
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// readNewPassword prompts twice and reports strength.
func readNewPassword(prompt string) ([]byte, error) {
	first, err := readPassword(prompt)
	if err != nil {
		return nil, err
	}
	second, err := readPassword("Confirm password: ")
	defer wipe(second)
	if err != nil {
		wipe(first)
		return nil, err
	}
	if string(first) != string(second) {
		wipe(first)
		return nil, errors.New("passwords do not match")
	}

	result := vault.ValidateMasterPassword(string(first))
	if !result.Valid {
		wipe(first)
		return nil, fmt.Errorf("password validation failed: %s", result.Warnings[0])
	}
	fmt.Printf("Password strength: %s\n", result.Strength)
	for _, warning := range result.Warnings {
		color.Yellow("Warning: %s", warning)
	}
	return first, nil
}

func wipe(b []byte) {
	crypto.SecureWipe(b)
}
