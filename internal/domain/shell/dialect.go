package shell

import (
	"os"
	"strings"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/policy"
)

// Dialect describes how to drive the shell of one platform. It is resolved
// once when a session initializes.
type Dialect struct {
	Platform policy.Platform
	// Shell and Args start the interactive strategy
	Shell string
	Args  []string
	// OneShot is the argv prefix for single command execution; the command
	// line is appended as the final argument
	OneShot []string
	Env     []string
	Newline string
}

// DialectFor returns the dialect for a platform. An empty shell selects
// $SHELL and then /bin/sh on POSIX, or %ComSpec% and then cmd.exe on Windows.
func DialectFor(platform policy.Platform, shell string) Dialect {
	if platform == policy.PlatformWindows {
		comspec := firstNonEmpty(shell, os.Getenv("ComSpec"), "cmd.exe")
		return Dialect{
			Platform: platform,
			Shell:    comspec,
			Args:     []string{"/Q"},
			OneShot:  []string{comspec, "/C"},
			Env:      os.Environ(),
			Newline:  "\r\n",
		}
	}

	return Dialect{
		Platform: platform,
		Shell:    firstNonEmpty(shell, os.Getenv("SHELL"), "/bin/sh"),
		Args:     []string{"-i"},
		OneShot:  []string{"/bin/sh", "-c"},
		Env:      append(os.Environ(), `PS1=\w$ `, "TERM=xterm-256color"),
		Newline:  "\n",
	}
}

// Line terminates a command line for the shell's input stream
func (d Dialect) Line(command string) []byte {
	return []byte(command + d.Newline)
}

// ChangeDir returns the shell instruction that moves the live shell to dir
func (d Dialect) ChangeDir(dir string) string {
	if d.Platform == policy.PlatformWindows {
		return `cd /d "` + dir + `"`
	}
	return "cd '" + strings.ReplaceAll(dir, "'", `'\''`) + "'"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
