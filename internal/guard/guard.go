// Package guard screens configured command lines before the orchestrator
// executes them.
//
// Init scripts and tool server commands come from a project-local config
// file that the coding agent itself can edit, so they are checked against
// a blocklist of destructive, publishing, and credential-leaking patterns
// before every execution, not just at config load.
package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// Violation describes why a command was rejected.
type Violation struct {
	Command string
	Reason  string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("command blocked (%s): %s", v.Reason, v.Command)
}

// blockedSubstrings is the fast path: plain substring matches.
// Each entry is (pattern, reason).
var blockedSubstrings = []struct{ pattern, reason string }{
	// Destructive system commands
	{"mkfs.", "filesystem format"},
	{":(){:|:&};:", "fork bomb"},
	{"dd if=/dev/", "raw disk write"},
	{"> /dev/sd", "raw device write"},

	// Git operations visible to others or hard to reverse
	{"git push", "push to remote"},
	{"git reset --hard", "destructive history reset"},
	{"git clean -f", "force-delete untracked files"},
	{"git checkout .", "discard all working tree changes"},
	{"git restore .", "discard all working tree changes"},
	{"git branch -D", "force-delete branch"},
	{"git rebase", "rebase in automated context"},
	{"git stash drop", "drop stash entry"},
	{"git stash clear", "drop all stash entries"},

	// Package publishing
	{"npm publish", "publish package"},
	{"yarn publish", "publish package"},
	{"pnpm publish", "publish package"},
	{"twine upload", "publish package"},
	{"cargo publish", "publish package"},
	{"gem push", "publish package"},

	// System administration
	{"shutdown", "system shutdown"},
	{"reboot", "system reboot"},
	{"systemctl stop", "stop system service"},
	{"systemctl disable", "disable system service"},

	// Credential exposure
	{"--password", "password in command line"},
	{"--token", "token in command line"},
}

// blockedPatterns catches shapes substrings cannot.
var blockedPatterns = []struct {
	pattern *regexp.Regexp
	reason  string
}{
	{regexp.MustCompile(`\bcurl\b.*\|\s*(sh|bash|zsh|python|node)\b`), "piping curl output to interpreter"},
	{regexp.MustCompile(`\bwget\b.*\|\s*(sh|bash|zsh|python|node)\b`), "piping wget output to interpreter"},
	{regexp.MustCompile(`\beval\b.*\$\(\s*(curl|wget)\b`), "eval of downloaded content"},
	{regexp.MustCompile(`\bsudo\b`), "privilege escalation"},
	{regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\b\s+/`), "recursive force delete outside the project"},
}

// Check returns a Violation if the command line matches a blocked
// pattern, nil otherwise.
func Check(command string) error {
	lowered := strings.ToLower(command)

	for _, b := range blockedSubstrings {
		if strings.Contains(lowered, b.pattern) {
			return &Violation{Command: command, Reason: b.reason}
		}
	}
	for _, b := range blockedPatterns {
		if b.pattern.MatchString(lowered) {
			return &Violation{Command: command, Reason: b.reason}
		}
	}

	return nil
}

// CheckArgv screens a command plus its argument vector as one line.
func CheckArgv(command string, args []string) error {
	parts := append([]string{command}, args...)
	return Check(strings.Join(parts, " "))
}
