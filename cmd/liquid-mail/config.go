package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/liquidmail/liquid-mail/internal/config"
	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Show or create the liquid-mail config",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config with secrets redacted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		redacted := cfg.Redacted()
		if isJSON() {
			return outputJSON(okEnvelope{OK: true, Data: map[string]any{"config": redacted, "config_path": cfg.Path}})
		}
		data, err := config.Render(redacted, format)
		if err != nil {
			return lmerr.InvalidInput("%v", err)
		}
		printf("%s %s\n", ui.RenderMuted("# config:"), cfg.Path)
		_, err = stdout.Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .liquid-mail.toml in the current directory",
	Long: `Write a starter config. On a terminal the values are asked for interactively;
otherwise they come from the flags and the HONCHO_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		noInput, _ := cmd.Flags().GetBool("no-input")
		s := config.Starter{}
		s.BaseURL, _ = cmd.Flags().GetString("base-url")
		s.APIKey, _ = cmd.Flags().GetString("api-key")
		s.WorkspaceID, _ = cmd.Flags().GetString("workspace")

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		fillStarterFromEnv(&s, cwd)

		path := configPath
		if path == "" {
			path = filepath.Join(cwd, config.FileName)
		}

		if !noInput && !isJSON() && term.IsTerminal(int(os.Stdin.Fd())) {
			if err := starterForm(&s).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					printf("Config init cancelled.\n")
					return nil
				}
				return fmt.Errorf("form error: %w", err)
			}
		}

		if err := config.WriteStarter(path, s, force); err != nil {
			return lmerr.InvalidInput("%v", err)
		}
		return emit(map[string]any{"config_path": path, "workspace_id": s.WorkspaceID}, func() {
			printf("%s Wrote %s\n", ui.RenderPassIcon(), path)
			if s.APIKey == "" {
				printf("  %s set honcho.api_key or HONCHO_API_KEY before posting\n", ui.RenderWarnIcon())
			}
		})
	},
}

// fillStarterFromEnv fills empty starter fields from the environment and
// derives the workspace from the repository.
func fillStarterFromEnv(s *config.Starter, cwd string) {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return ""
	}
	if s.BaseURL == "" {
		s.BaseURL = first("LIQUID_MAIL_HONCHO_BASE_URL", "HONCHO_URL")
	}
	if s.BaseURL == "" {
		s.BaseURL = config.DefaultBaseURL
	}
	if s.APIKey == "" {
		s.APIKey = first("LIQUID_MAIL_HONCHO_API_KEY", "HONCHO_API_KEY")
	}
	if s.WorkspaceID == "" {
		s.WorkspaceID = first("LIQUID_MAIL_HONCHO_WORKSPACE_ID", "HONCHO_WORKSPACE_ID")
	}
	if s.WorkspaceID == "" {
		s.WorkspaceID = honcho.DefaultWorkspaceID(cwd)
	}
}

func starterForm(s *config.Starter) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Honcho base URL").
				Value(&s.BaseURL).
				Validate(func(v string) error {
					if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
						return fmt.Errorf("base URL must start with http:// or https://")
					}
					return nil
				}),

			huh.NewInput().
				Title("Honcho API key").
				Description("Leave empty to use HONCHO_API_KEY at runtime").
				EchoMode(huh.EchoModePassword).
				Value(&s.APIKey),

			huh.NewInput().
				Title("Workspace").
				Description("Shared by every agent working in this repository").
				Value(&s.WorkspaceID).
				Validate(func(v string) error {
					if honcho.SlugWorkspaceID(v) != v || v == "" {
						return fmt.Errorf("use lowercase letters, digits, '-' and '_'")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeDracula())
}

func init() {
	configShowCmd.Flags().String("format", config.FormatJSON, "Text output format: json, toml or yaml")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	configInitCmd.Flags().Bool("no-input", false, "Never prompt")
	configInitCmd.Flags().String("base-url", "", "Honcho base URL")
	configInitCmd.Flags().String("api-key", "", "Honcho API key")
	configInitCmd.Flags().String("workspace", "", "Honcho workspace id (default: derived from the repository name)")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
