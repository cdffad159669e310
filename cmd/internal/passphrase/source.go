package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrMismatch is returned when a confirmed prompt gets two different answers.
var ErrMismatch = errors.New("passphrases do not match")

// Source resolves a keystore passphrase from an environment variable, falling
// back to a terminal prompt. The first successful answer is cached.
type Source struct {
	envVar  string
	label   string
	confirm bool

	// overridable in tests
	isTerminal func() bool
	read       func() ([]byte, error)
	prompt     io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource reads envVar before prompting for the keystore named by label.
func NewSource(envVar, label string) *Source {
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		label:      strings.TrimSpace(label),
		isTerminal: func() bool { return term.IsTerminal(fd) },
		read:       func() ([]byte, error) { return term.ReadPassword(fd) },
		prompt:     os.Stderr,
	}
}

// Confirming makes interactive prompts ask twice. Used when creating keystores.
func (s *Source) Confirming() *Source {
	s.confirm = true
	return s
}

// Get returns the cached passphrase or resolves it on first use. Blank
// passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.isTerminal() {
		if s.envVar != "" {
			return "", fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
		}
		return "", fmt.Errorf("%s passphrase required and no terminal available", s.label)
	}

	first, err := s.ask(fmt.Sprintf("Enter %s passphrase: ", s.label))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(first) == "" {
		return "", fmt.Errorf("%s passphrase cannot be empty", s.label)
	}
	if s.confirm {
		second, err := s.ask("Repeat passphrase: ")
		if err != nil {
			return "", err
		}
		if second != first {
			return "", ErrMismatch
		}
	}
	return first, nil
}

func (s *Source) ask(prompt string) (string, error) {
	fmt.Fprint(s.prompt, prompt)
	raw, err := s.read()
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(raw), nil
}
