package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/notify"
	"github.com/liquidmail/liquid-mail/internal/timeparsing"
	"github.com/liquidmail/liquid-mail/internal/ui"
)

var notifyCmd = &cobra.Command{
	Use:     "notify",
	GroupID: "views",
	Short:   "Show what needs this agent's attention",
	Long: `Gather recent decisions, ISSUE/FEEDBACK/START/FINISH events, mentions of the
agent and short topic summaries, ranked by how likely each is to matter.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, _ := cmd.Flags().GetString("agent")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")

		opts := notify.Options{AgentID: strings.TrimSpace(agent)}
		if opts.AgentID == "" {
			opts.AgentID = peerID("", windowID())
		}
		if since = strings.TrimSpace(since); since != "" {
			t, err := timeparsing.ParseSince(since, time.Now())
			if err != nil {
				return lmerr.InvalidInput("invalid --since %q: %v", since, err)
			}
			opts.Since = honcho.FormatTime(t)
		}

		_, client, err := setup()
		if err != nil {
			return err
		}
		items, err := notify.Feed(cmd.Context(), client, opts)
		if err != nil {
			return err
		}
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
		if items == nil {
			items = []notify.Item{}
		}
		return emit(map[string]any{"agent_id": opts.AgentID, "items": items}, func() {
			if len(items) == 0 {
				printf("%s Nothing new for %s\n", ui.RenderPassIcon(), opts.AgentID)
				return
			}
			for _, it := range items {
				printf("%.2f %s %s %s\n", it.Confidence, ui.RenderCategory(string(it.Reason)), ui.RenderTopic(it.TopicID), it.Excerpt)
			}
		})
	},
}

func init() {
	notifyCmd.Flags().String("agent", "", "Agent id to look for mentions of (default: $LIQUID_MAIL_AGENT_ID, then the window name)")
	notifyCmd.Flags().String("since", "", "Only items after this time (2h, 3d, 2026-02-01, yesterday)")
	notifyCmd.Flags().IntP("limit", "n", 20, "Maximum items to show")
	rootCmd.AddCommand(notifyCmd)
}
