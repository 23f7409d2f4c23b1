// Package config loads liquid-mail settings from TOML files and the
// environment.
//
// Resolution order for the config file:
//
//  1. --config flag
//  2. LIQUID_MAIL_CONFIG
//  3. nearest .liquid-mail.toml walking up from the working directory
//  4. ~/.liquid-mail.toml
//
// Honcho credentials in the environment override the file. Keys may be
// written snake_case (base_url) or camelCase (baseUrl).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/liquidmail/liquid-mail/internal/lmerr"
)

// FileName is the project/user config file name.
const FileName = ".liquid-mail.toml"

// Config keys
const (
	KeyHonchoBaseURL     = "honcho.base_url"
	KeyHonchoAPIKey      = "honcho.api_key"
	KeyHonchoWorkspaceID = "honcho.workspace_id"
	KeyHonchoMaxRetries  = "honcho.max_retries"
	KeyHonchoTimeout     = "honcho.timeout"

	KeyTopicsDetectionEnabled      = "topics.detection_enabled"
	KeyTopicsAutoCreate            = "topics.auto_create"
	KeyTopicsAutoAssignThreshold   = "topics.auto_assign_threshold"
	KeyTopicsAutoAssignK           = "topics.auto_assign_k"
	KeyTopicsAutoAssignMinHits     = "topics.auto_assign_min_hits"
	KeyTopicsMaxActive             = "topics.max_active"
	KeyTopicsConsolidationStrategy = "topics.consolidation_strategy"

	KeyConflictsEnabled             = "conflicts.enabled"
	KeyConflictsDecisionsOnly       = "conflicts.decisions_only"
	KeyConflictsConfidenceThreshold = "conflicts.confidence_threshold"

	KeyDecisionsEnabled      = "decisions.enabled"
	KeyDecisionsSystemPeerID = "decisions.system_peer_id"

	KeySummariesEnabled = "summaries.enabled"
	KeyOutputMode       = "output.mode"

	KeyChatProvider        = "chat.provider"
	KeyChatModel           = "chat.model"
	KeyChatAnthropicAPIKey = "chat.anthropic_api_key"
)

// Defaults
const (
	DefaultBaseURL      = "https://api.honcho.dev"
	DefaultSystemPeerID = "liquid-mail"
	DefaultChatModel    = "claude-3-5-haiku-20241022"
)

// Consolidation strategies.
const (
	StrategyMerge     = "merge"
	StrategyArchive   = "archive"
	StrategySummarize = "summarize"
)

// Output modes.
const (
	OutputAuto = "auto"
	OutputJSON = "json"
	OutputText = "text"
)

// Chat providers.
const (
	ChatHoncho    = "honcho"
	ChatAnthropic = "anthropic"
)

type Honcho struct {
	BaseURL     string        `json:"base_url" toml:"base_url" yaml:"base_url"`
	APIKey      string        `json:"api_key,omitempty" toml:"api_key,omitempty" yaml:"api_key,omitempty"`
	WorkspaceID string        `json:"workspace_id,omitempty" toml:"workspace_id,omitempty" yaml:"workspace_id,omitempty"`
	MaxRetries  int           `json:"max_retries" toml:"max_retries" yaml:"max_retries"`
	Timeout     time.Duration `json:"timeout" toml:"timeout" yaml:"timeout"`
}

type Topics struct {
	DetectionEnabled      bool    `json:"detection_enabled" toml:"detection_enabled" yaml:"detection_enabled"`
	AutoCreate            bool    `json:"auto_create" toml:"auto_create" yaml:"auto_create"`
	AutoAssignThreshold   float64 `json:"auto_assign_threshold" toml:"auto_assign_threshold" yaml:"auto_assign_threshold"`
	AutoAssignK           int     `json:"auto_assign_k" toml:"auto_assign_k" yaml:"auto_assign_k"`
	AutoAssignMinHits     int     `json:"auto_assign_min_hits" toml:"auto_assign_min_hits" yaml:"auto_assign_min_hits"`
	MaxActive             *int    `json:"max_active,omitempty" toml:"max_active,omitempty" yaml:"max_active,omitempty"`
	ConsolidationStrategy string  `json:"consolidation_strategy" toml:"consolidation_strategy" yaml:"consolidation_strategy"`
}

type Conflicts struct {
	Enabled             bool    `json:"enabled" toml:"enabled" yaml:"enabled"`
	DecisionsOnly       bool    `json:"decisions_only" toml:"decisions_only" yaml:"decisions_only"`
	ConfidenceThreshold float64 `json:"confidence_threshold" toml:"confidence_threshold" yaml:"confidence_threshold"`
}

type Decisions struct {
	Enabled      bool   `json:"enabled" toml:"enabled" yaml:"enabled"`
	SystemPeerID string `json:"system_peer_id" toml:"system_peer_id" yaml:"system_peer_id"`
}

type Summaries struct {
	Enabled bool `json:"enabled" toml:"enabled" yaml:"enabled"`
}

type Output struct {
	Mode string `json:"mode" toml:"mode" yaml:"mode"`
}

type Chat struct {
	Provider        string `json:"provider" toml:"provider" yaml:"provider"`
	Model           string `json:"model,omitempty" toml:"model,omitempty" yaml:"model,omitempty"`
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty" toml:"anthropic_api_key,omitempty" yaml:"anthropic_api_key,omitempty"`
}

// Config is the fully resolved configuration.
type Config struct {
	Honcho    Honcho    `json:"honcho" toml:"honcho" yaml:"honcho"`
	Topics    Topics    `json:"topics" toml:"topics" yaml:"topics"`
	Conflicts Conflicts `json:"conflicts" toml:"conflicts" yaml:"conflicts"`
	Decisions Decisions `json:"decisions" toml:"decisions" yaml:"decisions"`
	Summaries Summaries `json:"summaries" toml:"summaries" yaml:"summaries"`
	Output    Output    `json:"output" toml:"output" yaml:"output"`
	Chat      Chat      `json:"chat" toml:"chat" yaml:"chat"`

	// Path is the config file that was consulted (it may not exist).
	Path string `json:"-" toml:"-" yaml:"-"`
}

// RegisterDefaults installs every default on v.
func RegisterDefaults(v *viper.Viper) {
	v.SetDefault(KeyHonchoBaseURL, DefaultBaseURL)
	v.SetDefault(KeyHonchoMaxRetries, 2)
	v.SetDefault(KeyHonchoTimeout, 30*time.Second)

	v.SetDefault(KeyTopicsDetectionEnabled, true)
	v.SetDefault(KeyTopicsAutoCreate, true)
	v.SetDefault(KeyTopicsAutoAssignThreshold, 0.8)
	v.SetDefault(KeyTopicsAutoAssignK, 10)
	v.SetDefault(KeyTopicsAutoAssignMinHits, 2)
	v.SetDefault(KeyTopicsConsolidationStrategy, StrategyMerge)

	v.SetDefault(KeyConflictsEnabled, true)
	v.SetDefault(KeyConflictsDecisionsOnly, true)
	v.SetDefault(KeyConflictsConfidenceThreshold, 0.7)

	v.SetDefault(KeyDecisionsEnabled, true)
	v.SetDefault(KeyDecisionsSystemPeerID, DefaultSystemPeerID)

	v.SetDefault(KeySummariesEnabled, true)
	v.SetDefault(KeyOutputMode, OutputAuto)

	v.SetDefault(KeyChatProvider, ChatHoncho)
	v.SetDefault(KeyChatModel, DefaultChatModel)
}

// envBindings lists the environment variables consulted for each key, in
// priority order.
var envBindings = map[string][]string{
	KeyHonchoBaseURL:       {"LIQUID_MAIL_HONCHO_BASE_URL", "HONCHO_URL"},
	KeyHonchoAPIKey:        {"LIQUID_MAIL_HONCHO_API_KEY", "HONCHO_API_KEY"},
	KeyHonchoWorkspaceID:   {"LIQUID_MAIL_HONCHO_WORKSPACE_ID", "HONCHO_WORKSPACE_ID"},
	KeyChatAnthropicAPIKey: {"ANTHROPIC_API_KEY"},
}

// ResolvePath picks the config file path. explicit is the --config flag.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return expandHome(explicit)
	}
	if env := os.Getenv("LIQUID_MAIL_CONFIG"); env != "" {
		return expandHome(env)
	}
	if cwd, err := os.Getwd(); err == nil {
		if found, ok := findNearest(cwd); ok {
			return found
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(home, FileName)
}

func findNearest(start string) (string, bool) {
	dir := start
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// Load reads the config file selected by ResolvePath(explicit). A missing
// file yields defaults plus environment overrides.
func Load(explicit string) (*Config, error) {
	path := ResolvePath(explicit)

	v := viper.New()
	v.SetConfigType("toml")
	RegisterDefaults(v)
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
			return nil, lmerr.InvalidInput("invalid config file %s: %v", path, err).
				WithDetail("path", path)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := fromViper(v)
	cfg.Path = path
	return cfg, nil
}

// camel returns the lowercased camelCase spelling viper stores for a
// snake_case key ("honcho.base_url" -> "honcho.baseurl").
func camel(key string) string {
	return strings.ReplaceAll(key, "_", "")
}

// lookup returns the first of key or its camelCase spelling that was set by
// env or file, falling back to the registered default.
func lookup(v *viper.Viper, key string) any {
	if v.InConfig(key) || isEnvSet(key) {
		return v.Get(key)
	}
	if alt := camel(key); alt != key && v.InConfig(alt) {
		return v.Get(alt)
	}
	return v.Get(key)
}

func isEnvSet(key string) bool {
	for _, env := range envBindings[key] {
		if os.Getenv(env) != "" {
			return true
		}
	}
	return false
}

func fromViper(v *viper.Viper) *Config {
	str := func(key string) string { return toString(lookup(v, key)) }
	boolean := func(key string) bool { return toBool(lookup(v, key), v.GetBool(key)) }
	integer := func(key string) int { return toInt(lookup(v, key), v.GetInt(key)) }
	float := func(key string) float64 { return toFloat(lookup(v, key), v.GetFloat64(key)) }

	cfg := &Config{
		Honcho: Honcho{
			BaseURL:     strings.TrimRight(str(KeyHonchoBaseURL), "/"),
			APIKey:      str(KeyHonchoAPIKey),
			WorkspaceID: str(KeyHonchoWorkspaceID),
			MaxRetries:  integer(KeyHonchoMaxRetries),
			Timeout:     v.GetDuration(KeyHonchoTimeout),
		},
		Topics: Topics{
			DetectionEnabled:      boolean(KeyTopicsDetectionEnabled),
			AutoCreate:            boolean(KeyTopicsAutoCreate),
			AutoAssignThreshold:   float(KeyTopicsAutoAssignThreshold),
			AutoAssignK:           integer(KeyTopicsAutoAssignK),
			AutoAssignMinHits:     integer(KeyTopicsAutoAssignMinHits),
			ConsolidationStrategy: StrategyMerge,
		},
		Conflicts: Conflicts{
			Enabled:             boolean(KeyConflictsEnabled),
			DecisionsOnly:       boolean(KeyConflictsDecisionsOnly),
			ConfidenceThreshold: float(KeyConflictsConfidenceThreshold),
		},
		Decisions: Decisions{
			Enabled:      boolean(KeyDecisionsEnabled),
			SystemPeerID: str(KeyDecisionsSystemPeerID),
		},
		Summaries: Summaries{Enabled: boolean(KeySummariesEnabled)},
		Output:    Output{Mode: OutputAuto},
		Chat: Chat{
			Provider:        ChatHoncho,
			Model:           str(KeyChatModel),
			AnthropicAPIKey: str(KeyChatAnthropicAPIKey),
		},
	}

	if cfg.Honcho.BaseURL == "" {
		cfg.Honcho.BaseURL = DefaultBaseURL
	}
	if cfg.Decisions.SystemPeerID == "" {
		cfg.Decisions.SystemPeerID = DefaultSystemPeerID
	}
	if v.InConfig(KeyTopicsMaxActive) || v.InConfig(camel(KeyTopicsMaxActive)) {
		n := integer(KeyTopicsMaxActive)
		cfg.Topics.MaxActive = &n
	}
	switch s := str(KeyTopicsConsolidationStrategy); s {
	case StrategyMerge, StrategyArchive, StrategySummarize:
		cfg.Topics.ConsolidationStrategy = s
	}
	switch m := str(KeyOutputMode); m {
	case OutputAuto, OutputJSON, OutputText:
		cfg.Output.Mode = m
	}
	switch p := str(KeyChatProvider); p {
	case ChatHoncho, ChatAnthropic:
		cfg.Chat.Provider = p
	}
	return cfg
}

// HonchoAuth is the validated subset of Honcho settings needed for requests.
type HonchoAuth struct {
	BaseURL     string
	APIKey      string
	WorkspaceID string
}

// RequireHonchoAuth returns the credentials or MISSING_CONFIG when either is
// absent or still a template placeholder.
func (c *Config) RequireHonchoAuth() (HonchoAuth, error) {
	h := c.Honcho
	if looksLikePlaceholder(h.APIKey) || looksLikePlaceholder(h.WorkspaceID) {
		return HonchoAuth{}, lmerr.MissingConfig("Missing Honcho configuration (api_key/workspace_id).",
			"Set LIQUID_MAIL_HONCHO_API_KEY and LIQUID_MAIL_HONCHO_WORKSPACE_ID",
			"Or set HONCHO_API_KEY and HONCHO_WORKSPACE_ID",
			"Or create ./.liquid-mail.toml (project) or ~/.liquid-mail.toml (user) with [honcho] api_key=..., workspace_id=...",
			"Or set LIQUID_MAIL_CONFIG to point to a project config file",
		).WithDetail("base_url", h.BaseURL)
	}
	return HonchoAuth{BaseURL: h.BaseURL, APIKey: h.APIKey, WorkspaceID: h.WorkspaceID}, nil
}

func looksLikePlaceholder(value string) bool {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return true
	case strings.Contains(v, "..."):
		return true
	case v == "hc_your_api_key", v == "ws_your_workspace_id":
		return true
	}
	return false
}

// Redacted returns a copy safe to print: secrets are replaced with "***".
func (c *Config) Redacted() *Config {
	out := *c
	if out.Honcho.APIKey != "" {
		out.Honcho.APIKey = "***"
	}
	if out.Chat.AnthropicAPIKey != "" {
		out.Chat.AnthropicAPIKey = "***"
	}
	if c.Topics.MaxActive != nil {
		n := *c.Topics.MaxActive
		out.Topics.MaxActive = &n
	}
	return &out
}

func toString(v any) string { return cast.ToString(v) }

func toBool(v any, fallback bool) bool {
	b, err := cast.ToBoolE(v)
	if err != nil {
		return fallback
	}
	return b
}

func toInt(v any, fallback int) int {
	n, err := cast.ToIntE(v)
	if err != nil {
		return fallback
	}
	return n
}

func toFloat(v any, fallback float64) float64 {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fallback
	}
	return f
}
