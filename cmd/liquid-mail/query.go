package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/push"
	"github.com/liquidmail/liquid-mail/internal/timeparsing"
	"github.com/liquidmail/liquid-mail/internal/ui"
)

var queryCmd = &cobra.Command{
	Use:     "query <text>",
	GroupID: "views",
	Short:   "Search messages across topics",
	Example: `  liquid-mail query "token refresh"
  liquid-mail query --topic auth-system --since 2d "jwt"
  liquid-mail query --since "last monday" migration`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topicFlag, _ := cmd.Flags().GetString("topic")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")
		peers, _ := cmd.Flags().GetStringSlice("peer")

		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return lmerr.InvalidInput("query text is required")
		}
		filters, err := queryFilters(topicFlag, since, peers, time.Now())
		if err != nil {
			return err
		}
		_, client, err := setup()
		if err != nil {
			return err
		}
		resp, err := client.Search(cmd.Context(), honcho.SearchRequest{Query: text, Limit: limit, Filters: filters})
		if err != nil {
			return err
		}
		return emit(resp, func() {
			if len(resp.Matches) == 0 {
				printf("No matches.\n")
				return
			}
			for _, m := range resp.Matches {
				printf("%s %s %s\n", ui.RenderTopic(m.TopicID), ui.RenderMuted(m.PeerID+":"), push.OneLine(m.Snippet, 200))
			}
		})
	},
}

// queryFilters builds search filters from the query flags. It returns nil
// when no filter applies.
func queryFilters(topic, since string, peers []string, now time.Time) (*honcho.SearchFilters, error) {
	var p honcho.FilterParams
	if topic = strings.TrimSpace(topic); topic != "" {
		p.SessionIDs = []string{openStore().ResolveAlias(topic)}
	}
	if since = strings.TrimSpace(since); since != "" {
		t, err := timeparsing.ParseSince(since, now)
		if err != nil {
			return nil, lmerr.InvalidInput("invalid --since %q: %v", since, err).
				WithSuggestions("Use a duration like 2h or 3d, a date like 2026-02-01, or text like \"yesterday\"")
		}
		p.Since = honcho.FormatTime(t)
	}
	p.PeerIDs = peers
	if len(p.SessionIDs) == 0 && p.Since == "" && len(p.PeerIDs) == 0 {
		return nil, nil
	}
	return honcho.BuildSearchFilters(p), nil
}

func init() {
	queryCmd.Flags().StringP("topic", "t", "", "Only search this topic")
	queryCmd.Flags().String("since", "", "Only messages after this time (2h, 3d, 2026-02-01, yesterday)")
	queryCmd.Flags().StringSlice("peer", nil, "Only messages from these peers")
	queryCmd.Flags().IntP("limit", "n", honcho.DefaultSearchLimit, "Maximum matches")
	rootCmd.AddCommand(queryCmd)
}
