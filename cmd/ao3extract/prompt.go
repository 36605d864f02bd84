package main

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

var errNotInteractive = errors.New("stdin is not a terminal")

// prompter asks the user for input on the controlling terminal.
type prompter struct {
	in     *os.File
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(in *os.File, out io.Writer) *prompter {
	return &prompter{in: in, out: out, reader: bufio.NewReader(in)}
}

func (p *prompter) interactive() bool {
	fd := p.in.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *prompter) line(label string) (string, error) {
	if !p.interactive() {
		return "", errNotInteractive
	}

	fmt.Fprint(p.out, label)

	input, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}

	return strings.TrimSpace(input), nil
}

func (p *prompter) password(label string) (string, error) {
	if !p.interactive() {
		return "", errNotInteractive
	}

	fmt.Fprint(p.out, label)

	password, err := term.ReadPassword(int(p.in.Fd()))
	fmt.Fprintln(p.out)

	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	return string(password), nil
}

func (p *prompter) confirm(question string) (bool, error) {
	answer, err := p.line(question + " [y/N]: ")
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// credentials are resolved flag first, then environment, then prompt.
type credentials struct {
	username string
	password string
}

func resolveCredentials(p *prompter, username, password string) (credentials, error) {
	creds := credentials{
		username: firstNonEmpty(username, os.Getenv("AO3_USERNAME")),
		password: firstNonEmpty(password, os.Getenv("AO3_PASSWORD")),
	}

	if creds.username == "" && p.interactive() {
		fmt.Fprintln(p.out, "🔐 AO3 Login (optional for restricted/private works, leave blank to skip):")

		name, err := p.line("AO3 Username: ")
		if err != nil {
			return creds, err
		}

		creds.username = name
	}

	if creds.username != "" && creds.password == "" {
		pass, err := p.password("AO3 Password: ")
		if err != nil {
			return creds, fmt.Errorf("password for %s: %w", creds.username, err)
		}

		creds.password = pass
	}

	return creds, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
