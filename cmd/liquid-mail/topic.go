package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/state"
	"github.com/liquidmail/liquid-mail/internal/topics"
	"github.com/liquidmail/liquid-mail/internal/ui"
)

// Metadata written by rename.
const (
	metaRenamedFrom          = "lm.renamed_from"
	metaRenamedInto          = "lm.renamed_into"
	kindTopicRenameRedirect  = "topic_rename_redirect"
	metaTitle                = "lm.title"
	defaultTopicListLimit    = 20
	defaultMergeSessionLimit = 20
)

var topicCmd = &cobra.Command{
	Use:     "topic",
	GroupID: "messages",
	Short:   "Manage topics, pins and aliases",
}

// requireWindow returns the window id or an INVALID_INPUT error.
func requireWindow() (string, error) {
	win := windowID()
	if win == "" {
		return "", lmerr.InvalidInput("no window id").
			WithSuggestions("Pass --window <id>", "Or set LIQUID_MAIL_WINDOW_ID (see: liquid-mail window env)")
	}
	return win, nil
}

// canonicalTopic resolves aliases and validates the result as a topic name.
func canonicalTopic(store *state.Store, name string) (string, error) {
	topic := store.ResolveAlias(strings.TrimSpace(name))
	if topics.LooksLikeGeneratedID(topic) {
		return topic, nil
	}
	if err := topics.ValidateName(topic); err != nil {
		return "", err
	}
	return topic, nil
}

type topicListEntry struct {
	TopicID   string   `json:"topic_id"`
	Title     string   `json:"title,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	Pinned    bool     `json:"pinned"`
	Windows   []string `json:"windows,omitempty"`
	Aliases   []string `json:"aliases,omitempty"`
}

var topicListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent topics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		_, client, err := setup()
		if err != nil {
			return err
		}
		sessions, err := client.ListSessions(cmd.Context(), limit)
		if err != nil {
			return err
		}

		store := openStore()
		win := windowID()
		pinned, _ := store.PinnedTopic(win)
		byTopic := map[string][]string{}
		for id, w := range store.Windows() {
			if w.TopicID != "" {
				byTopic[w.TopicID] = append(byTopic[w.TopicID], id)
			}
		}
		aliasesOf := map[string][]string{}
		for from, to := range store.Aliases() {
			aliasesOf[to] = append(aliasesOf[to], from)
		}

		entries := make([]topicListEntry, 0, len(sessions))
		for _, s := range sessions {
			e := topicListEntry{
				TopicID:   s.ID,
				CreatedAt: s.CreatedAt,
				Pinned:    win != "" && s.ID == pinned,
				Windows:   byTopic[s.ID],
				Aliases:   aliasesOf[s.ID],
			}
			if title, ok := s.Metadata[metaTitle].(string); ok {
				e.Title = title
			}
			sort.Strings(e.Windows)
			sort.Strings(e.Aliases)
			entries = append(entries, e)
		}

		return emit(map[string]any{"topics": entries}, func() {
			if len(entries) == 0 {
				printf("%s No topics yet.\n", ui.RenderInfoIcon())
				return
			}
			for _, e := range entries {
				marker := " "
				if e.Pinned {
					marker = ui.RenderPass("*")
				}
				line := fmt.Sprintf("%s %s", marker, ui.RenderTopic(e.TopicID))
				if e.Title != "" {
					line += "  " + e.Title
				}
				if len(e.Aliases) > 0 {
					line += "  " + ui.RenderMuted("(was "+strings.Join(e.Aliases, ", ")+")")
				}
				printf("%s\n", line)
			}
		})
	},
}

var topicPinCmd = &cobra.Command{
	Use:   "pin <topic>",
	Short: "Pin a topic to this window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		win, err := requireWindow()
		if err != nil {
			return err
		}
		store := openStore()
		topic, err := canonicalTopic(store, args[0])
		if err != nil {
			return err
		}
		if err := store.SetPinnedTopic(win, topic); err != nil {
			return fmt.Errorf("pin %s: %w", topic, err)
		}
		debug.LogEvent("pin", topic, win, "")
		return emit(map[string]string{"window_id": win, "topic_id": topic}, func() {
			printf("%s Pinned %s\n", ui.RenderPassIcon(), ui.RenderTopic(topic))
		})
	},
}

var topicUnpinCmd = &cobra.Command{
	Use:   "unpin",
	Short: "Clear this window's pinned topic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		win, err := requireWindow()
		if err != nil {
			return err
		}
		had, err := openStore().Unpin(win)
		if err != nil {
			return fmt.Errorf("unpin: %w", err)
		}
		return emit(map[string]any{"window_id": win, "unpinned": had}, func() {
			if had {
				printf("%s Unpinned\n", ui.RenderPassIcon())
			} else {
				printf("No topic pinned\n")
			}
		})
	},
}

var topicResolveAliasCmd = &cobra.Command{
	Use:   "resolve-alias <name>",
	Short: "Print the canonical topic for a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		canonical := openStore().ResolveAlias(name)
		return emit(map[string]any{"name": name, "topic_id": canonical, "aliased": canonical != name}, func() {
			printf("%s\n", canonical)
		})
	},
}

var topicAliasCmd = &cobra.Command{
	Use:   "alias [<old> <new>]",
	Short: "List, add or remove topic aliases",
	Long: `With no arguments, list aliases. With two, record that <old> now means <new>.
With --remove <name>, delete an alias.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return lmerr.InvalidInput("alias takes zero or two arguments, got %d", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		if remove, _ := cmd.Flags().GetString("remove"); remove != "" {
			had, err := store.RemoveAlias(remove)
			if err != nil {
				return fmt.Errorf("remove alias: %w", err)
			}
			return emit(map[string]any{"name": remove, "removed": had}, func() {
				printf("%s alias %s removed: %t\n", ui.RenderPassIcon(), remove, had)
			})
		}
		if len(args) == 2 {
			newName, err := canonicalTopic(store, args[1])
			if err != nil {
				return err
			}
			oldName := strings.TrimSpace(args[0])
			if err := store.SetAlias(oldName, newName); err != nil {
				return fmt.Errorf("set alias: %w", err)
			}
			debug.LogEvent("alias", newName, windowID(), "from="+oldName)
		}
		aliases := store.Aliases()
		return emit(map[string]any{"aliases": aliases}, func() {
			names := make([]string, 0, len(aliases))
			for k := range aliases {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				printf("%s -> %s\n", k, ui.RenderTopic(aliases[k]))
			}
		})
	},
}

var topicRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a topic",
	Long: `Create <new>, post a redirect into <old>, alias <old> to <new> and repin every
window that had <old>. The old topic is kept.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, client, err := setup()
		if err != nil {
			return err
		}
		store := openStore()
		oldTopic := store.ResolveAlias(strings.TrimSpace(args[0]))
		newTopic := strings.TrimSpace(args[1])
		if err := topics.ValidateName(newTopic); err != nil {
			return err
		}
		if oldTopic == newTopic {
			return lmerr.InvalidInput("topic %s is already named %s", args[0], newTopic)
		}

		if _, err := client.GetOrCreateSession(ctx, honcho.SessionRequest{
			ID:       newTopic,
			Metadata: honcho.Metadata{metaRenamedFrom: oldTopic},
		}); err != nil {
			return err
		}
		if _, err := client.CreateMessage(ctx, oldTopic, honcho.MessageCreate{
			PeerID:  cfg.Decisions.SystemPeerID,
			Content: fmt.Sprintf("Topic renamed to %s.", newTopic),
			Metadata: honcho.Metadata{
				topics.MetaKind: kindTopicRenameRedirect,
				metaRenamedInto: newTopic,
			},
		}); err != nil {
			return err
		}

		if err := store.SetAlias(oldTopic, newTopic); err != nil {
			WarnError("failed to alias %s to %s: %v", oldTopic, newTopic, err)
		}
		repinned, err := store.ReplacePinnedTopic(oldTopic, newTopic)
		if err != nil {
			WarnError("failed to repin windows: %v", err)
		}
		debug.LogEvent("topic_rename", newTopic, windowID(), "from="+oldTopic)

		return emit(map[string]any{"old_topic_id": oldTopic, "topic_id": newTopic, "repinned": repinned}, func() {
			printf("%s Renamed %s -> %s (%d window(s) repinned)\n",
				ui.RenderPassIcon(), oldTopic, ui.RenderTopic(newTopic), repinned)
		})
	},
}

var topicMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge the two most related recent topics",
	Long: `Ask the system peer to pick two of the newest topics to merge, create the
merged topic, post redirects into both and point aliases and pins at it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		cfg, client, err := setup()
		if err != nil {
			return err
		}
		chat, err := newChatter(cfg, client)
		if err != nil {
			return err
		}
		plan, err := topics.NewConsolidator(client, chat, cfg.Decisions.SystemPeerID, 0).Consolidate(cmd.Context(), limit)
		if err != nil {
			return err
		}
		applyMerge(openStore(), plan.MergedFrom, plan.MergedTopicID, windowID())
		return emit(plan, func() {
			printf("%s Merged %s + %s into %s\n", ui.RenderPassIcon(),
				plan.MergedFrom[0], plan.MergedFrom[1], ui.RenderTopic(plan.MergedTopicID))
			if plan.Reason != "" {
				printf("  %s %s\n", ui.RenderMuted("reason:"), plan.Reason)
			}
		})
	},
}

var topicValidateCmd = &cobra.Command{
	Use:   "validate <name>",
	Short: "Check a topic name against the naming rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := topics.ValidateName(args[0]); err != nil {
			return err
		}
		return emit(map[string]any{"name": args[0], "valid": true}, func() {
			printf("%s %s is a valid topic name\n", ui.RenderPassIcon(), args[0])
		})
	},
}

var topicRepoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Print the topic and workspace ids derived from this repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		topic := topics.RepoTopicID(cwd)
		workspace := honcho.DefaultWorkspaceID(cwd)
		return emit(map[string]string{"topic_id": topic, "workspace_id": workspace}, func() {
			printf("topic:     %s\nworkspace: %s\n", ui.RenderTopic(topic), workspace)
		})
	},
}

func init() {
	topicListCmd.Flags().Int("limit", defaultTopicListLimit, "Maximum topics to list")
	topicAliasCmd.Flags().String("remove", "", "Remove the alias for this name")
	topicMergeCmd.Flags().Int("limit", defaultMergeSessionLimit, "How many recent topics to consider")

	topicCmd.AddCommand(topicListCmd, topicPinCmd, topicUnpinCmd, topicResolveAliasCmd,
		topicAliasCmd, topicRenameCmd, topicMergeCmd, topicValidateCmd, topicRepoCmd)
	rootCmd.AddCommand(topicCmd)
}
