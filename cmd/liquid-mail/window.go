package main

import (
	"github.com/spf13/cobra"

	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/ui"
	"github.com/liquidmail/liquid-mail/internal/window"
)

var windowCmd = &cobra.Command{
	Use:     "window",
	GroupID: "setup",
	Short:   "Window identity helpers",
}

var windowNameCmd = &cobra.Command{
	Use:   "name [id]",
	Short: "Print the stable human name for a window id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := windowID()
		if len(args) == 1 {
			id = window.ResolveID(args[0])
		}
		if id == "" {
			_, err := requireWindow()
			return err
		}
		name := window.NameFromID(id)
		store := openStore()
		pinned, _ := store.PinnedTopic(id)
		return emit(map[string]string{"window_id": id, "name": name, "pinned_topic": pinned}, func() {
			printf("%s\n", name)
			if pinned != "" {
				printf("  %s %s\n", ui.RenderMuted("pinned:"), ui.RenderTopic(pinned))
			}
		})
	},
}

var windowEnvCmd = &cobra.Command{
	Use:     "env",
	Short:   "Print a shell snippet that gives each terminal its own window id",
	Example: `  liquid-mail window env --shell zsh >> ~/.zshrc`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shell, _ := cmd.Flags().GetString("shell")
		snippet, err := window.EnvSnippet(shell)
		if err != nil {
			return lmerr.InvalidInput("%v", err)
		}
		return emit(map[string]string{"shell": shell, "snippet": snippet}, func() {
			printf("%s\n", snippet)
		})
	},
}

func init() {
	windowEnvCmd.Flags().String("shell", window.ShellBash, "Shell to print for: bash or zsh")
	windowCmd.AddCommand(windowNameCmd, windowEnvCmd)
	rootCmd.AddCommand(windowCmd)
}
