package service

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/stackup-dev/stackup/internal/logger"
)

// PrepareSteps are the blocking one-time setup commands run in the service's
// working directory before its server process is spawned. Empty commands are
// skipped. Seed runs at most once: after a successful run the SeedSentinel
// marker file is created, and a present marker suppresses later runs.
type PrepareSteps struct {
	Install      string `toml:"install" mapstructure:"install"`
	Migrate      string `toml:"migrate" mapstructure:"migrate"`
	Seed         string `toml:"seed" mapstructure:"seed"`
	SeedSentinel string `toml:"seed_sentinel" mapstructure:"seed_sentinel"`
}

// EnvFile declares an environment file the service expects in its working
// directory. When the file is absent at launch time it is created with the
// Defaults lines; an existing file is never touched.
type EnvFile struct {
	Path     string   `toml:"path" mapstructure:"path"`
	Defaults []string `toml:"defaults" mapstructure:"defaults"`
}

// Spec describes a service to be orchestrated.
type Spec struct {
	Name     string        `json:"name" toml:"name" mapstructure:"name"`
	Command  string        `json:"command" toml:"command" mapstructure:"command"` // long-running server command (shell)
	WorkDir  string        `json:"work_dir" toml:"workdir" mapstructure:"workdir"`
	Env      []string      `json:"env" toml:"env" mapstructure:"env"` // optional extra env
	Port     int           `json:"port" toml:"port" mapstructure:"port"`
	ProbeURL string        `json:"probe_url" toml:"probe" mapstructure:"probe"`
	PIDFile  string        `json:"pid_file" toml:"pidfile" mapstructure:"pidfile"`
	Prepare  PrepareSteps  `json:"prepare" toml:"prepare" mapstructure:"prepare"`
	EnvFile  EnvFile       `json:"env_file" toml:"env_file" mapstructure:"env_file"`
	Log      logger.Config `json:"log" toml:"log" mapstructure:"log"`
}

// Validate checks the fields every launch depends on.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("service requires name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("service %s requires command", s.Name)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("service %s requires a listen port in (0,65535], got %d", s.Name, s.Port)
	}
	if strings.TrimSpace(s.ProbeURL) == "" {
		return fmt.Errorf("service %s requires a readiness probe URL", s.Name)
	}
	if strings.TrimSpace(s.PIDFile) == "" {
		return fmt.Errorf("service %s requires pidfile path", s.Name)
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec's server command.
// It avoids invoking a shell when not necessary, and it respects an explicit
// shell invocation already present in the command string (e.g. "sh -c '...'"),
// avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	return BuildShellAware(s.Command)
}

// BuildShellAware builds an *exec.Cmd for an arbitrary command string using
// the same shell heuristics as BuildCommand. Prepare steps use it too.
func BuildShellAware(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the beginning of cmdStr. It preserves the substring after "-c " verbatim
// to avoid breaking quoting, stripping one outer quote pair if present.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}

// Executable returns the program the command would resolve, for PATH
// prerequisite checks. Shell-wrapped commands resolve to the shell itself.
func (s *Spec) Executable() string {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return ""
	}
	if _, ok := parseExplicitShell(cmdStr); ok {
		return "/bin/sh"
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return "/bin/sh"
	}
	return strings.Fields(cmdStr)[0]
}
