// Package security loads the plain-text allowlist of additionally permitted
// command names consumed by the session command guard.
package security

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Allowlist is a set of command names a build is permitted to execute in
// addition to the built-in defaults.
type Allowlist struct {
	commands map[string]bool
}

// LoadAllowlist reads a newline-delimited allowlist file: one command name
// per line, #-prefixed lines and blank lines ignored. A missing file yields
// an empty allowlist, since the file only ever adds permissions.
func LoadAllowlist(path string) (*Allowlist, error) {
	a := &Allowlist{commands: make(map[string]bool)}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening allowlist %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a.commands[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading allowlist %s: %w", path, err)
	}
	return a, nil
}

// Permits reports whether the command name is on the allowlist.
func (a *Allowlist) Permits(command string) bool {
	return a.commands[command]
}

// Len returns the number of allowed commands.
func (a *Allowlist) Len() int {
	return len(a.commands)
}
