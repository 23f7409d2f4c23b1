package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Formats accepted by Render.
const (
	FormatJSON = "json"
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// Render encodes cfg in the requested format. Callers should pass a
// Redacted copy when the output is shown to a user.
func Render(cfg *Config, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return nil, err
		}
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return nil, err
		}
		_ = enc.Close()
	default:
		return nil, fmt.Errorf("unknown format %q (want json, toml or yaml)", format)
	}
	return buf.Bytes(), nil
}

// Starter holds the values written by `liquid-mail config init`.
type Starter struct {
	BaseURL     string
	APIKey      string
	WorkspaceID string
}

type starterFile struct {
	Honcho struct {
		BaseURL     string `toml:"base_url"`
		APIKey      string `toml:"api_key"`
		WorkspaceID string `toml:"workspace_id"`
	} `toml:"honcho"`
	Topics struct {
		AutoCreate          bool    `toml:"auto_create"`
		AutoAssignThreshold float64 `toml:"auto_assign_threshold"`
	} `toml:"topics"`
}

// WriteStarter writes a minimal config file at path. It refuses to replace an
// existing file unless force is set.
func WriteStarter(path string, s Starter, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	var f starterFile
	f.Honcho.BaseURL = s.BaseURL
	if f.Honcho.BaseURL == "" {
		f.Honcho.BaseURL = DefaultBaseURL
	}
	f.Honcho.APIKey = s.APIKey
	if f.Honcho.APIKey == "" {
		f.Honcho.APIKey = "hc_your_api_key"
	}
	f.Honcho.WorkspaceID = s.WorkspaceID
	if f.Honcho.WorkspaceID == "" {
		f.Honcho.WorkspaceID = "ws_your_workspace_id"
	}
	f.Topics.AutoCreate = true
	f.Topics.AutoAssignThreshold = 0.8

	var buf bytes.Buffer
	buf.WriteString("# liquid-mail configuration\n")
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}
