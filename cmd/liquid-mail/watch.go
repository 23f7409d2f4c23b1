package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/watch"
)

// defaultWindow keys cursors when no window id is set.
const defaultWindow = "default"

var watchCmd = &cobra.Command{
	Use:     "watch [topic]",
	GroupID: "messages",
	Short:   "Print new messages in a topic as they arrive",
	Long: `Poll a topic and print each new message once. The position is kept per
window in the state file, so a restarted watch resumes where it stopped.
Without a topic argument the window's pinned topic is watched. When the topic
is renamed or merged while watching, the watch follows it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		interval, _ := cmd.Flags().GetDuration("interval")
		once, _ := cmd.Flags().GetBool("once")
		tail, _ := cmd.Flags().GetInt("tail")
		notify, _ := cmd.Flags().GetBool("notify")

		_, client, err := setup()
		if err != nil {
			return err
		}
		store := openStore()
		win := windowID()

		topic := ""
		if len(args) == 1 {
			topic = strings.TrimSpace(args[0])
		} else if win != "" {
			topic, _ = store.PinnedTopic(win)
		}
		if topic == "" {
			return lmerr.TopicRequired("no topic given and none pinned").
				WithSuggestions("Run liquid-mail watch <topic>")
		}
		topic = store.ResolveAlias(topic)
		if win == "" {
			win = defaultWindow
		}

		opts := watch.Options{
			WindowID: win,
			TopicID:  topic,
			Interval: interval,
			Once:     once,
			Tail:     tail,
			Notify:   notify,
		}
		if !once {
			if wake, err := store.Changes(ctx); err != nil {
				debug.Logf("watch: state file notifications unavailable: %v", err)
			} else {
				opts.Wake = wake
			}
		}

		if !isJSON() && !once {
			printf("Watching %s (Ctrl-C to stop)\n", topic)
		}
		w := watch.New(client, store, watch.NewPrinter(stdout, isJSON()), opts)
		return w.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().Duration("interval", watch.DefaultInterval, "Time between polls")
	watchCmd.Flags().Bool("once", false, "Poll once and exit")
	watchCmd.Flags().Int("tail", 0, "Show the last N messages first")
	watchCmd.Flags().Bool("notify", false, "Show a desktop notification per message")
	rootCmd.AddCommand(watchCmd)
}
