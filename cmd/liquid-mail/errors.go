package main

import (
	"encoding/json"
	"fmt"

	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/ui"
)

// WarnError writes a warning message to stderr and returns.
// Use this for best-effort steps (pinning, indexing, notifications) whose
// failure must not fail the command.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(stderr, "Warning: "+format+"\n", args...)
}

// reportError prints err in the active output mode and returns the process
// exit code. JSON mode writes the error envelope to stdout so agents can
// parse it; text mode writes to stderr.
func reportError(err error) int {
	e := lmerr.From(err)
	if outputMode() == ui.ModeJSON {
		data, mErr := json.MarshalIndent(e.ToEnvelope(), "", "  ")
		if mErr != nil {
			fmt.Fprintf(stderr, "Error: %s\n", e.Message)
			return e.ExitCode
		}
		fmt.Fprintf(stdout, "%s\n", data)
		return e.ExitCode
	}

	fmt.Fprintf(stderr, "%s %s\n", ui.RenderFail("Error:"), e.Error())
	for _, s := range e.Suggestions {
		fmt.Fprintf(stderr, "Hint: %s\n", s)
	}
	return e.ExitCode
}
