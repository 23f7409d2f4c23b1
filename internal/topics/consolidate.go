package topics

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/structured"
)

// Metadata written on merged topics and redirects.
const (
	MetaKind       = "lm.kind"
	MetaMergedFrom = "lm.merged_from"
	MetaMergedInto = "lm.merged_into"

	KindTopicMerge         = "topic_merge"
	KindTopicMergeRedirect = "topic_merge_redirect"

	MergeSchemaName = "topic_merge_v1"
	MergedTitle     = "Merged topic"
)

// MergeSchema constrains the merge planner's answer.
var MergeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"merge": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"from":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 2, "maxItems": 2},
				"reason": map[string]any{"type": "string"},
			},
			"required":             []string{"from"},
			"additionalProperties": false,
		},
	},
	"required":             []string{"merge"},
	"additionalProperties": false,
}

const mergePrompt = "You are selecting two topics to merge to reduce topic sprawl. " +
	"Choose the single best pair based only on short summaries. " +
	`Return strict JSON: { "merge": { "from": [id1, id2], "reason": "..." } }.`

// MergePlan is the result of a consolidation.
type MergePlan struct {
	MergedTopicID string    `json:"merged_topic_id"`
	MergedFrom    [2]string `json:"merged_from"`
	Reason        string    `json:"reason,omitempty"`
}

// ConsolidationBackend is what a Consolidator needs from the remote store.
type ConsolidationBackend interface {
	structured.Chatter
	ListSessions(ctx context.Context, limit int) ([]honcho.Session, error)
	Summaries(ctx context.Context, sessionID string) ([]honcho.Summary, error)
	GetOrCreateSession(ctx context.Context, req honcho.SessionRequest) (*honcho.Session, error)
	CreateMessage(ctx context.Context, sessionID string, msg honcho.MessageCreate) (*honcho.Message, error)
}

// Consolidator asks the system peer which two topics to merge, creates the
// merged topic and posts redirects into both sources. Source topics are
// never deleted.
type Consolidator struct {
	backend      ConsolidationBackend
	chat         structured.Chatter
	systemPeerID string
	maxRetries   int
}

// NewConsolidator builds a consolidator. chat overrides the backend's chat
// capability when non-nil.
func NewConsolidator(backend ConsolidationBackend, chat structured.Chatter, systemPeerID string, maxRetries int) *Consolidator {
	if chat == nil {
		chat = backend
	}
	return &Consolidator{backend: backend, chat: chat, systemPeerID: systemPeerID, maxRetries: maxRetries}
}

type topicSummary struct {
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
}

type mergeAnswer struct {
	Merge *struct {
		From   *[]string `json:"from"`
		Reason string    `json:"reason,omitempty"`
	} `json:"merge"`
}

// Consolidate merges two of the newest sessionLimit topics.
func (c *Consolidator) Consolidate(ctx context.Context, sessionLimit int) (*MergePlan, error) {
	sessions, err := c.backend.ListSessions(ctx, sessionLimit)
	if err != nil {
		return nil, err
	}
	if len(sessions) < 2 {
		return nil, lmerr.ConsolidationFailed(false, "Not enough topics to consolidate.").
			WithDetail("active_count", len(sessions))
	}

	summaries, err := c.collectSummaries(ctx, sessions)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		known[s.ID] = true
	}

	answer, err := structured.Ask(ctx, c.chat, structured.Request{
		PeerID:     c.systemPeerID,
		System:     mergePrompt,
		Input:      map[string]any{"topics": summaries},
		SchemaName: MergeSchemaName,
		Schema:     MergeSchema,
		MaxRetries: c.maxRetries,
	}, func(a *mergeAnswer) error {
		if a.Merge == nil || a.Merge.From == nil {
			return errors.New("missing merge.from")
		}
		from := *a.Merge.From
		if len(from) != 2 {
			return fmt.Errorf("merge.from must name exactly 2 topics, got %d", len(from))
		}
		if from[0] == from[1] {
			return fmt.Errorf("merge.from names %q twice", from[0])
		}
		for _, id := range from {
			if !known[id] {
				return fmt.Errorf("merge.from names unknown topic %q", id)
			}
		}
		return nil
	})
	if err != nil {
		if lmerr.IsCode(err, lmerr.CodeChatInvalid) {
			e := lmerr.ConsolidationFailed(true, "Failed to consolidate topics.")
			e.Details = lmerr.From(err).Details
			return nil, lmerr.Wrap(e, err)
		}
		return nil, err
	}

	from := [2]string{(*answer.Merge.From)[0], (*answer.Merge.From)[1]}
	merged, err := c.backend.GetOrCreateSession(ctx, honcho.SessionRequest{
		Title: MergedTitle,
		Metadata: honcho.Metadata{
			MetaKind:       KindTopicMerge,
			MetaMergedFrom: from[:],
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create merged topic: %w", err)
	}

	for _, src := range from {
		_, err := c.backend.CreateMessage(ctx, src, honcho.MessageCreate{
			PeerID:  c.systemPeerID,
			Content: fmt.Sprintf("Topic merged into %s.", merged.ID),
			Metadata: honcho.Metadata{
				MetaKind:       KindTopicMergeRedirect,
				MetaMergedInto: merged.ID,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("post merge redirect into %s: %w", src, err)
		}
	}
	debug.Logf("merged topics %s + %s into %s", from[0], from[1], merged.ID)

	return &MergePlan{MergedTopicID: merged.ID, MergedFrom: from, Reason: answer.Merge.Reason}, nil
}

// collectSummaries fetches each topic's short summary (or its first summary)
// concurrently, preserving session order.
func (c *Consolidator) collectSummaries(ctx context.Context, sessions []honcho.Session) ([]topicSummary, error) {
	out := make([]topicSummary, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, s := range sessions {
		g.Go(func() error {
			sums, err := c.backend.Summaries(gctx, s.ID)
			if err != nil {
				return err
			}
			out[i] = topicSummary{SessionID: s.ID, Summary: PickSummary(sums)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// PickSummary returns the short summary's content, else the first summary's,
// else "".
func PickSummary(sums []honcho.Summary) string {
	for _, s := range sums {
		if s.Kind == honcho.SummaryShort {
			return s.Content
		}
	}
	if len(sums) > 0 {
		return sums[0].Content
	}
	return ""
}
