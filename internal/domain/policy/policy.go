// Package policy decides which commands a terminal session may run and how a
// command name is spelled on the host platform.
//
// The allow-list is checked against the first whitespace-delimited token of a
// command line only. Arguments are never inspected, so shell metacharacters
// inside an allowed command pass through untouched. Filesystem confinement in
// the session layer is the second line of defense.
package policy

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"unicode"
)

// ErrNotAllowed is returned when a command name is not on the allow-list
var ErrNotAllowed = errors.New("command not allowed")

// Platform selects a translation table and shell dialect
type Platform string

const (
	PlatformPOSIX   Platform = "posix"
	PlatformWindows Platform = "windows"
)

// Detect returns the platform of the running process
func Detect() Platform {
	if runtime.GOOS == "windows" {
		return PlatformWindows
	}
	return PlatformPOSIX
}

// DefaultAllowed is the built-in allow-list
var DefaultAllowed = []string{
	// listing and navigation
	"ls", "dir", "pwd", "cd",
	// text and file utilities
	"echo", "cat", "type", "mkdir", "touch", "rm", "del", "cp", "copy", "mv", "move",
	// runtimes, package managers, version control
	"node", "npm", "yarn", "git", "python", "pip",
	// screen
	"clear", "cls",
}

// DefaultTranslations maps POSIX command names to their Windows equivalents
var DefaultTranslations = map[Platform]map[string]string{
	PlatformWindows: {
		"ls":    "dir",
		"pwd":   "cd",
		"cat":   "type",
		"rm":    "del",
		"cp":    "copy",
		"mv":    "move",
		"touch": "type nul >",
		"clear": "cls",
	},
}

// Policy is an immutable allow-list plus per-platform name translations
type Policy struct {
	allowed      map[string]struct{}
	translations map[Platform]map[string]string
}

// New builds a policy from command names and translation tables. Names are
// matched case-insensitively.
func New(allowed []string, translations map[Platform]map[string]string) *Policy {
	p := &Policy{
		allowed:      make(map[string]struct{}, len(allowed)),
		translations: make(map[Platform]map[string]string, len(translations)),
	}
	for _, name := range allowed {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			p.allowed[name] = struct{}{}
		}
	}
	for platform, table := range translations {
		copied := make(map[string]string, len(table))
		for from, to := range table {
			copied[strings.ToLower(from)] = to
		}
		p.translations[platform] = copied
	}
	return p
}

// Default returns the built-in policy
func Default() *Policy {
	return New(DefaultAllowed, DefaultTranslations)
}

// IsAllowed reports whether the command name is on the allow-list
func (p *Policy) IsAllowed(name string) bool {
	_, ok := p.allowed[strings.ToLower(name)]
	return ok
}

// Check returns ErrNotAllowed wrapped with the command name when denied
func (p *Policy) Check(name string) error {
	if p.IsAllowed(name) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotAllowed, name)
}

// Allowed returns the sorted allow-list
func (p *Policy) Allowed() []string {
	names := make([]string, 0, len(p.allowed))
	for name := range p.allowed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Translator returns the translator for a platform. Sessions resolve it once
// at initialization.
func (p *Policy) Translator(platform Platform) Translator {
	return Translator{platform: platform, table: p.translations[platform]}
}

// Translator rewrites the command token of a line for one platform
type Translator struct {
	platform Platform
	table    map[string]string
}

// Platform returns the platform this translator targets
func (t Translator) Platform() Platform {
	return t.platform
}

// Translate replaces the command name with its platform equivalent. The
// argument remainder, including any redirection, is preserved byte for byte.
func (t Translator) Translate(line string) string {
	if len(t.table) == 0 {
		return line
	}
	name, rest := Split(line)
	mapped, ok := t.table[strings.ToLower(name)]
	if !ok {
		return line
	}
	if rest == "" {
		return mapped
	}
	return mapped + " " + rest
}

// Split separates a command line into its command name and argument remainder
// at the first run of whitespace. Leading and trailing whitespace is dropped.
func Split(line string) (name, rest string) {
	line = strings.TrimSpace(line)
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimLeftFunc(line[idx:], unicode.IsSpace)
}
