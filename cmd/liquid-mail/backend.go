package main

import (
	"net/http"
	"os"
	"sync"

	"github.com/liquidmail/liquid-mail/internal/config"
	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/llm"
	"github.com/liquidmail/liquid-mail/internal/state"
	"github.com/liquidmail/liquid-mail/internal/structured"
	"github.com/liquidmail/liquid-mail/internal/window"
)

var (
	cfgOnce   sync.Once
	cfgLoaded *config.Config
	cfgErr    error
)

// loadConfig loads the config once per process.
func loadConfig() (*config.Config, error) {
	cfgOnce.Do(func() {
		cfgLoaded, cfgErr = config.Load(configPath)
		if cfgErr == nil {
			debug.Logf("config: %s", cfgLoaded.Path)
		}
	})
	return cfgLoaded, cfgErr
}

// newClient returns a Honcho client, or MISSING_CONFIG.
func newClient(cfg *config.Config) (*honcho.Client, error) {
	auth, err := cfg.RequireHonchoAuth()
	if err != nil {
		return nil, err
	}
	c := honcho.NewClient(auth).WithMaxRetries(cfg.Honcho.MaxRetries)
	if cfg.Honcho.Timeout > 0 {
		c = c.WithHTTPClient(&http.Client{Timeout: cfg.Honcho.Timeout})
	}
	return c, nil
}

// setup loads the config and builds a client in one step.
func setup() (*config.Config, *honcho.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

// newChatter picks the structured chat provider named by chat.provider.
func newChatter(cfg *config.Config, client *honcho.Client) (structured.Chatter, error) {
	if cfg.Chat.Provider != config.ChatAnthropic {
		return client, nil
	}
	return llm.NewAnthropic(llm.Options{
		APIKey:     cfg.Chat.AnthropicAPIKey,
		Model:      cfg.Chat.Model,
		MaxRetries: cfg.Honcho.MaxRetries,
	})
}

// openStore returns the state store for the working directory.
func openStore() *state.Store {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return state.ForDir(cwd)
}

func windowID() string { return window.ResolveID(windowFlag) }
