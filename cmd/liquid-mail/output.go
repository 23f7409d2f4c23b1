package main

import (
	"encoding/json"
	"fmt"

	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/ui"
)

// okEnvelope is the {ok:true,data} document every command writes in JSON mode.
type okEnvelope struct {
	OK   bool `json:"ok"`
	Data any  `json:"data"`
}

// outputMode resolves --json/--text, then output.mode from the config,
// then the terminal.
func outputMode() string {
	switch {
	case jsonFlag:
		return ui.ModeJSON
	case textFlag:
		return ui.ModeText
	}
	mode := ui.ModeAuto
	if cfg, err := loadConfig(); err == nil {
		mode = cfg.Output.Mode
	}
	return ui.ResolveMode(mode)
}

func isJSON() bool { return outputMode() == ui.ModeJSON }

// outputJSON writes v pretty-printed to stdout.
func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	_, err = fmt.Fprintf(stdout, "%s\n", data)
	return err
}

// emit writes data as an ok envelope in JSON mode, or calls text otherwise.
func emit(data any, text func()) error {
	if isJSON() {
		return outputJSON(okEnvelope{OK: true, Data: data})
	}
	text()
	return nil
}

// printf writes to stdout unless --quiet.
func printf(format string, args ...any) {
	if debug.IsQuiet() {
		return
	}
	fmt.Fprintf(stdout, format, args...)
}
