// Package notify builds the ranked feed of things an agent should look at:
// indexed decisions, events addressed to it, mentions of it and recent topic
// summaries.
package notify

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/liquidmail/liquid-mail/internal/honcho"
)

// Reason says why an item is in the feed.
type Reason string

const (
	ReasonDecision Reason = "decision"
	ReasonEvent    Reason = "event"
	ReasonMention  Reason = "mention"
	ReasonSummary  Reason = "summary"
)

// Base confidences per reason. Events are scored by their prefix.
const (
	ConfidenceDecision = 0.9
	ConfidenceMention  = 0.7
	ConfidenceSummary  = 0.5
)

// ExcerptLen bounds item excerpts.
const ExcerptLen = 160

// Metadata keys the feed filters on.
const (
	MetaKind     = "lm.kind"
	MetaAgentID  = "lm.agent_id"
	KindEvent    = "event"
	KindDecision = "decision"
)

// Item is one feed entry.
type Item struct {
	TopicID    string  `json:"topic_id"`
	Reason     Reason  `json:"reason"`
	Excerpt    string  `json:"excerpt"`
	Confidence float64 `json:"confidence"`
}

// Backend is what the feed reads from.
type Backend interface {
	Search(ctx context.Context, req honcho.SearchRequest) (*honcho.SearchResponse, error)
	ListSessions(ctx context.Context, limit int) ([]honcho.Session, error)
	Summaries(ctx context.Context, sessionID string) ([]honcho.Summary, error)
}

// Options bounds each source. Zero limits use the defaults.
type Options struct {
	AgentID       string
	Since         string // RFC 3339; empty means no lower bound
	DecisionLimit int
	EventLimit    int
	MentionLimit  int
	SessionLimit  int
}

func (o *Options) defaults() {
	if o.DecisionLimit <= 0 {
		o.DecisionLimit = 10
	}
	if o.EventLimit <= 0 {
		o.EventLimit = 10
	}
	if o.MentionLimit <= 0 {
		o.MentionLimit = 10
	}
	if o.SessionLimit <= 0 {
		o.SessionLimit = 5
	}
}

// Feed gathers all sources concurrently and returns them ranked by
// confidence (desc), then topic id, then reason.
func Feed(ctx context.Context, b Backend, opts Options) ([]Item, error) {
	opts.defaults()

	var decisions, events, mentions, summaries []Item
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		decisions, err = search(gctx, b, honcho.SearchRequest{
			Query: "decision",
			Limit: opts.DecisionLimit,
			Filters: honcho.BuildSearchFilters(honcho.FilterParams{
				Since:    opts.Since,
				Metadata: map[string]honcho.MetadataFilter{MetaKind: honcho.MetadataEq(KindDecision)},
			}),
		}, func(m honcho.SearchMatch) Item {
			return Item{TopicID: m.TopicID, Reason: ReasonDecision, Excerpt: excerpt(m.Snippet, "Decision update"), Confidence: ConfidenceDecision}
		})
		return err
	})
	g.Go(func() (err error) {
		events, err = search(gctx, b, honcho.SearchRequest{
			Query: opts.AgentID,
			Limit: opts.EventLimit,
			Filters: honcho.BuildSearchFilters(honcho.FilterParams{
				Since: opts.Since,
				Metadata: map[string]honcho.MetadataFilter{
					MetaKind:    honcho.MetadataEq(KindEvent),
					MetaAgentID: honcho.MetadataEq(opts.AgentID),
				},
			}),
		}, func(m honcho.SearchMatch) Item {
			ex := excerpt(m.Snippet, "Event for "+opts.AgentID)
			return Item{TopicID: m.TopicID, Reason: ReasonEvent, Excerpt: ex, Confidence: ScoreEvent(ex)}
		})
		return err
	})
	g.Go(func() (err error) {
		req := honcho.SearchRequest{Query: opts.AgentID, Limit: opts.MentionLimit}
		if opts.Since != "" {
			req.Filters = honcho.BuildSearchFilters(honcho.FilterParams{Since: opts.Since})
		}
		mentions, err = search(gctx, b, req, func(m honcho.SearchMatch) Item {
			return Item{TopicID: m.TopicID, Reason: ReasonMention, Excerpt: excerpt(m.Snippet, "Mentioned "+opts.AgentID), Confidence: ConfidenceMention}
		})
		return err
	})
	g.Go(func() (err error) {
		summaries, err = summaryItems(gctx, b, opts.SessionLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(decisions)+len(events)+len(mentions)+len(summaries))
	items = append(items, decisions...)
	items = append(items, events...)
	items = append(items, mentions...)
	items = append(items, summaries...)
	Rank(items)
	return items, nil
}

func search(ctx context.Context, b Backend, req honcho.SearchRequest, toItem func(honcho.SearchMatch) Item) ([]Item, error) {
	resp, err := b.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, toItem(m))
	}
	return out, nil
}

func summaryItems(ctx context.Context, b Backend, limit int) ([]Item, error) {
	sessions, err := b.ListSessions(ctx, limit)
	if err != nil {
		return nil, err
	}
	found := make([]*Item, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, s := range sessions {
		g.Go(func() error {
			sums, err := b.Summaries(gctx, s.ID)
			if err != nil {
				return err
			}
			content, ok := pickSummary(sums)
			if !ok {
				return nil
			}
			found[i] = &Item{TopicID: s.ID, Reason: ReasonSummary, Excerpt: Truncate(content, ExcerptLen), Confidence: ConfidenceSummary}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []Item
	for _, it := range found {
		if it != nil {
			out = append(out, *it)
		}
	}
	return out, nil
}

func pickSummary(sums []honcho.Summary) (string, bool) {
	for _, s := range sums {
		if s.Kind == honcho.SummaryShort {
			return s.Content, true
		}
	}
	if len(sums) > 0 {
		return sums[0].Content, true
	}
	return "", false
}

// ScoreEvent ranks an event excerpt by its marker.
func ScoreEvent(excerpt string) float64 {
	upper := strings.ToUpper(excerpt)
	switch {
	case strings.Contains(upper, "ISSUE:"):
		return 0.95
	case strings.Contains(upper, "FEEDBACK:"):
		return 0.9
	case strings.Contains(upper, "START:"):
		return 0.6
	case strings.Contains(upper, "FINISH:"):
		return 0.75
	}
	return 0.65
}

// Rank sorts items in feed order.
func Rank(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.TopicID != b.TopicID {
			return a.TopicID < b.TopicID
		}
		return a.Reason < b.Reason
	})
}

func excerpt(snippet, fallback string) string {
	if snippet == "" {
		snippet = fallback
	}
	return Truncate(snippet, ExcerptLen)
}

// Truncate keeps at most n runes, marking a cut with "…".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:max(0, n-1)]) + "…"
}
