package main

import (
	"github.com/spf13/cobra"

	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/ui"
)

var summarizeCmd = &cobra.Command{
	Use:     "summarize [topic]",
	GroupID: "views",
	Short:   "Show a topic's summaries",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var topicFlag string
		if len(args) == 1 {
			topicFlag = args[0]
		}
		cfg, client, err := setup()
		if err != nil {
			return err
		}
		topic, err := topicArgOrPinned(topicFlag)
		if err != nil {
			return err
		}
		if !cfg.Summaries.Enabled {
			WarnError("summaries are disabled in config; Honcho may not have generated any")
		}
		sums, err := client.Summaries(cmd.Context(), topic)
		if err != nil {
			return err
		}
		if sums == nil {
			sums = []honcho.Summary{}
		}
		return emit(map[string]any{"topic_id": topic, "summaries": sums}, func() {
			if len(sums) == 0 {
				printf("No summaries for %s yet.\n", ui.RenderTopic(topic))
				return
			}
			for i, s := range sums {
				if i > 0 {
					printf("%s\n", ui.RenderSeparator())
				}
				printf("%s %s\n", ui.RenderCategory(s.Kind), ui.RenderTopic(topic))
				printf("%s\n", ui.RenderMarkdown(s.Content))
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}
