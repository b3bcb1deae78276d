package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from stdin
func NewWizard() *Wizard {
	return NewWizardIO(os.Stdin, os.Stdout)
}

// NewWizardIO creates a wizard over arbitrary streams
func NewWizardIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for the values most users change and starts from base, or the
// defaults when base is nil.
func (w *Wizard) Run(base *Config) (*Config, error) {
	fmt.Fprintln(w.out, "=== hwdesk Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	validator := NewValidator()

	baseURL, err := w.ask("Backend base URL", cfg.API.BaseURL, validator.ValidateBaseURL, true)
	if err != nil {
		return nil, err
	}
	cfg.API.BaseURL = strings.TrimRight(baseURL, "/")

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Login identity options:")
	fmt.Fprintln(w.out, "  username  - log in with the account name")
	fmt.Fprintln(w.out, "  studentId - log in with the student number")
	if cfg.API.AuthField, err = w.ask("Login field", cfg.API.AuthField, validator.ValidateAuthField, true); err != nil {
		return nil, err
	}

	fmt.Fprintln(w.out)
	if cfg.Store.Backend, err = w.ask("Session store (file/sqlite/redis/memory)", cfg.Store.Backend, validator.ValidateBackend, true); err != nil {
		return nil, err
	}
	if cfg.Store.Backend == "redis" {
		if cfg.Store.Redis.Addr, err = w.ask("Redis address", cfg.Store.Redis.Addr, nil, true); err != nil {
			return nil, err
		}
	}

	fmt.Fprintln(w.out)
	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level, validator.ValidateLogLevel, false)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Level = level

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

// ask prompts until the answer validates. Strict prompts repeat on invalid
// input; lenient ones warn and keep the default.
func (w *Wizard) ask(prompt, def string, validate func(string) error, strict bool) (string, error) {
	for {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, def)
		answer, err := w.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			answer = def
		}
		if validate == nil {
			return answer, nil
		}
		if err := validate(answer); err != nil {
			if !strict {
				fmt.Fprintf(w.out, "Warning: %v, using default (%s)\n", err, def)
				return def, nil
			}
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		return answer, nil
	}
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
