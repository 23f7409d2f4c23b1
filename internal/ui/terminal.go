package ui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows NO_COLOR, CLICOLOR and CLICOLOR_FORCE, then
// whether stdout is a color-capable terminal.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if v := os.Getenv("CLICOLOR_FORCE"); v != "" && v != "0" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if !IsTerminal() {
		return false
	}
	return termenv.NewOutput(os.Stdout).Profile != termenv.Ascii
}

// IsAgentMode reports whether liquid-mail runs under an agent harness,
// where output should stay plain.
func IsAgentMode() bool {
	for _, k := range []string{"LIQUID_MAIL_AGENT", "CLAUDECODE", "CODEX_SANDBOX"} {
		if v := os.Getenv(k); v != "" && v != "0" {
			return true
		}
	}
	return false
}

// Output modes.
const (
	ModeAuto = "auto"
	ModeJSON = "json"
	ModeText = "text"
)

// ResolveMode turns auto into json or text: JSON when stdout is not a
// terminal or an agent harness is detected.
func ResolveMode(mode string) string {
	switch mode {
	case ModeJSON, ModeText:
		return mode
	}
	if !IsTerminal() || IsAgentMode() {
		return ModeJSON
	}
	return ModeText
}
