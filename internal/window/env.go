package window

import (
	"fmt"
	"strings"
)

// Shells EnvSnippet knows how to write for.
const (
	ShellBash = "bash"
	ShellZsh  = "zsh"
)

// Snippet markers let installers find and replace an existing block.
const (
	SnippetBegin = "# BEGIN LIQUID MAIL WINDOW ENV"
	SnippetEnd   = "# END LIQUID MAIL WINDOW ENV"
)

// EnvSnippet returns the rc-file block that assigns a random window id to
// each new shell that does not already have one.
func EnvSnippet(shell string) (string, error) {
	switch shell {
	case ShellBash, ShellZsh:
	default:
		return "", fmt.Errorf("unsupported shell %q (want bash or zsh)", shell)
	}
	lines := []string{
		fmt.Sprintf("# Liquid Mail window env (%s)", shell),
		SnippetBegin,
		`if [ -z "${` + EnvVar + `:-}" ]; then`,
		`  export ` + EnvVar + `="lm$(printf '%04x%04x%04x' $RANDOM $RANDOM $RANDOM)"`,
		"fi",
		SnippetEnd,
	}
	return strings.Join(lines, "\n"), nil
}
