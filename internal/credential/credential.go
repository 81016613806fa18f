// Package credential resolves API keys from the process environment with a
// fallback to a dotenv-style file in the user's home directory.
package credential

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// ErrNotFound is returned when a credential is neither set in the environment
// nor present in the fallback dotfile.
var ErrNotFound = errors.New("credential not found")

// NotFoundError names the missing credential. It matches ErrNotFound.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return e.Name + " not found. Set it in env or in ~/.env."
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Option configures a Lookup.
type Option func(*lookup)

type lookup struct {
	getenv  func(string) string
	dotfile string
}

// WithDotfile overrides the fallback file. The default is ~/.env.
func WithDotfile(path string) Option {
	return func(l *lookup) { l.dotfile = path }
}

// WithGetenv replaces os.Getenv as the environment source.
func WithGetenv(fn func(string) string) Option {
	return func(l *lookup) { l.getenv = fn }
}

// DefaultDotfile returns ~/.env, or "" if the home directory is unknown.
func DefaultDotfile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".env")
}

// Lookup returns the value of the environment variable name if it is
// non-empty. Otherwise it scans the dotfile for the first non-empty entry
// named name, with surrounding quotes removed. A missing or unreadable dotfile
// is treated the same as an absent entry.
func Lookup(name string, opts ...Option) (string, error) {
	l := lookup{getenv: os.Getenv}
	for _, o := range opts {
		o(&l)
	}
	if l.dotfile == "" {
		l.dotfile = DefaultDotfile()
	}

	if v := l.getenv(name); v != "" {
		return v, nil
	}

	if l.dotfile != "" {
		if data, err := os.ReadFile(l.dotfile); err == nil {
			if v, ok := scanDotfile(data, name); ok {
				return v, nil
			}
		}
	}

	return "", &NotFoundError{Name: name}
}

// scanDotfile parses data one line at a time so a single malformed line does
// not hide the rest of the file. Blank lines, comments and lines without '='
// are skipped.
func scanDotfile(data []byte, name string) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "=") {
			continue
		}
		env, err := godotenv.Unmarshal(line)
		if err != nil {
			continue
		}
		v, ok := env[name]
		if !ok {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `'"`)
		if v != "" {
			return v, true
		}
	}
	return "", false
}
