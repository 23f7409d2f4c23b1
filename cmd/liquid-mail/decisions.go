package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/liquidmail/liquid-mail/internal/decisions"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/ui"
)

var decisionsCmd = &cobra.Command{
	Use:     "decisions",
	GroupID: "messages",
	Short:   "Extract, check and index decisions",
}

var decisionsExtractCmd = &cobra.Command{
	Use:   "extract [message]",
	Short: "Pull decision statements out of a message",
	Long: `Print the DECISION: marker lines of a message. With --llm, or when there are no
markers, ask the system peer to extract decisions instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		useLLM, _ := cmd.Flags().GetBool("llm")
		msg, err := requireMessage(args)
		if err != nil {
			return err
		}

		found := decisions.Markers(msg)
		source := decisions.SourceMarker
		if useLLM || len(found) == 0 {
			cfg, client, err := setup()
			if err != nil {
				return err
			}
			chat, err := newChatter(cfg, client)
			if err != nil {
				return err
			}
			ex := &decisions.Extractor{Chat: chat, PeerID: cfg.Decisions.SystemPeerID}
			if found, err = ex.Extract(cmd.Context(), msg); err != nil {
				return err
			}
			source = "llm"
		}
		if found == nil {
			found = []string{}
		}
		return emit(map[string]any{"decisions": found, "source": source}, func() {
			if len(found) == 0 {
				printf("No decisions found.\n")
				return
			}
			for _, d := range found {
				printf("%s %s\n", ui.RenderCategory("DECISION"), d)
			}
		})
	},
}

var decisionsCheckCmd = &cobra.Command{
	Use:   "check [decision]",
	Short: "Check a proposed decision against a topic's prior decisions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topicFlag, _ := cmd.Flags().GetString("topic")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		proposed, err := requireMessage(args)
		if err != nil {
			return err
		}
		cfg, client, err := setup()
		if err != nil {
			return err
		}
		topic, err := topicArgOrPinned(topicFlag)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("threshold") {
			threshold = cfg.Conflicts.ConfidenceThreshold
		}
		chat, err := newChatter(cfg, client)
		if err != nil {
			return err
		}
		checker := &decisions.Checker{
			Search:    client,
			Chat:      chat,
			PeerID:    cfg.Decisions.SystemPeerID,
			Threshold: threshold,
		}
		res, err := checker.Check(cmd.Context(), topic, proposed)
		if err != nil {
			return err
		}
		return emit(map[string]any{"topic_id": topic, "result": res}, func() {
			if len(res.Conflicts) == 0 {
				printf("%s No conflicts in %s\n", ui.RenderPassIcon(), ui.RenderTopic(topic))
				return
			}
			icon := ui.RenderWarnIcon()
			if res.Blocking {
				icon = ui.RenderFailIcon()
			}
			printf("%s %d conflict(s) in %s (max confidence %.2f)\n", icon, len(res.Conflicts), ui.RenderTopic(topic), res.MaxConfidence)
			for _, c := range res.Conflicts {
				printf("  %s %.2f %s\n", c.PriorDecisionID, c.Confidence, c.Rationale)
				if c.SuggestedAction != "" {
					printf("    %s %s\n", ui.RenderMuted("suggest:"), c.SuggestedAction)
				}
			}
		})
	},
}

var decisionsIndexCmd = &cobra.Command{
	Use:   "index <message-id> [message]",
	Short: "Index the decisions of an existing message",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		topicFlag, _ := cmd.Flags().GetString("topic")
		sourceID := strings.TrimSpace(args[0])
		if sourceID == "" {
			return lmerr.InvalidInput("message id is required")
		}
		msg, err := requireMessage(args[1:])
		if err != nil {
			return err
		}
		cfg, client, err := setup()
		if err != nil {
			return err
		}
		topic, err := topicArgOrPinned(topicFlag)
		if err != nil {
			return err
		}

		found := decisions.Markers(msg)
		if len(found) == 0 {
			chat, err := newChatter(cfg, client)
			if err != nil {
				return err
			}
			ex := &decisions.Extractor{Chat: chat, PeerID: cfg.Decisions.SystemPeerID}
			if found, err = ex.Extract(cmd.Context(), msg); err != nil {
				return err
			}
		}
		ix := &decisions.Indexer{Backend: client, SystemPeerID: cfg.Decisions.SystemPeerID}
		res, err := ix.Index(cmd.Context(), topic, sourceID, found)
		if err != nil {
			return err
		}
		return emit(map[string]any{"topic_id": topic, "source_message_id": sourceID, "result": res}, func() {
			if res.Skipped {
				printf("Nothing to index\n")
				return
			}
			printf("%s Indexed %d decision(s) in %s\n", ui.RenderPassIcon(), len(res.CreatedIDs), ui.RenderTopic(topic))
		})
	},
}

// topicArgOrPinned returns the alias-resolved topic flag, or the window's
// pinned topic.
func topicArgOrPinned(flag string) (string, error) {
	store := openStore()
	if flag = strings.TrimSpace(flag); flag != "" {
		return store.ResolveAlias(flag), nil
	}
	if win := windowID(); win != "" {
		if pinned, ok := store.PinnedTopic(win); ok {
			return store.ResolveAlias(pinned), nil
		}
	}
	return "", lmerr.TopicRequired("no --topic and no pinned topic")
}

func init() {
	decisionsExtractCmd.Flags().Bool("llm", false, "Always ask the system peer, even when markers are present")
	decisionsCheckCmd.Flags().StringP("topic", "t", "", "Topic to check against (default: pinned topic)")
	decisionsCheckCmd.Flags().Float64("threshold", 0.8, "Confidence at which a conflict blocks")
	decisionsIndexCmd.Flags().StringP("topic", "t", "", "Topic holding the message (default: pinned topic)")

	decisionsCmd.AddCommand(decisionsExtractCmd, decisionsCheckCmd, decisionsIndexCmd)
	rootCmd.AddCommand(decisionsCmd)
}
