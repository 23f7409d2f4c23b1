package decisions

import (
	"context"
	"errors"
	"fmt"

	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/structured"
)

// ConflictSchemaName names the classification response schema.
const ConflictSchemaName = "conflict_classify_v1"

// DefaultShortlistLimit is how many prior decisions are compared.
const DefaultShortlistLimit = 5

// ConflictSchema constrains the classifier's answer.
var ConflictSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"conflicts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prior_decision_id": map[string]any{"type": "string"},
					"confidence":        map[string]any{"type": "number"},
					"rationale":         map[string]any{"type": "string"},
					"suggested_action":  map[string]any{"type": "string"},
				},
				"required":             []string{"prior_decision_id", "confidence"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"conflicts"},
	"additionalProperties": false,
}

const conflictPrompt = "You are checking if a proposed decision conflicts with prior decisions. " +
	`Return strict JSON with shape: { "conflicts": [{ prior_decision_id, confidence, rationale?, suggested_action? }] }. ` +
	"Confidence is 0-1. Return an empty array if no conflicts."

// Conflict is one prior decision the classifier thinks is contradicted.
type Conflict struct {
	PriorDecisionID string  `json:"prior_decision_id"`
	Confidence      float64 `json:"confidence"`
	Rationale       string  `json:"rationale,omitempty"`
	SuggestedAction string  `json:"suggested_action,omitempty"`
}

// ConflictResult is the outcome of a conflict check. Blocking is true when
// any conflict reaches the threshold.
type ConflictResult struct {
	Conflicts     []Conflict `json:"conflicts"`
	Blocking      bool       `json:"blocking"`
	MaxConfidence float64    `json:"max_confidence"`
}

type shortlistItem struct {
	PriorDecisionID string  `json:"prior_decision_id"`
	Snippet         string  `json:"snippet"`
	Score           float64 `json:"score"`
}

type conflictAnswer struct {
	Conflicts *[]struct {
		PriorDecisionID *string  `json:"prior_decision_id"`
		Confidence      *float64 `json:"confidence"`
		Rationale       string   `json:"rationale,omitempty"`
		SuggestedAction string   `json:"suggested_action,omitempty"`
	} `json:"conflicts"`
}

// Searcher is the search capability used to shortlist prior decisions.
type Searcher interface {
	Search(ctx context.Context, req honcho.SearchRequest) (*honcho.SearchResponse, error)
}

// Checker classifies a proposed decision against prior decisions in the
// same topic.
type Checker struct {
	Search         Searcher
	Chat           structured.Chatter
	PeerID         string
	ShortlistLimit int
	Threshold      float64
	MaxRetries     int
}

// Check shortlists prior decisions in topicID similar to proposed and asks
// the classifier which ones it contradicts. With no prior decisions it
// returns an empty, non-blocking result without calling the classifier.
func (c *Checker) Check(ctx context.Context, topicID, proposed string) (*ConflictResult, error) {
	limit := c.ShortlistLimit
	if limit <= 0 {
		limit = DefaultShortlistLimit
	}
	found, err := c.Search.Search(ctx, honcho.SearchRequest{
		Query: proposed,
		Limit: limit,
		Filters: honcho.BuildSearchFilters(honcho.FilterParams{
			SessionIDs: []string{topicID},
			Metadata:   map[string]honcho.MetadataFilter{MetaKind: honcho.MetadataEq(KindDecision)},
		}),
	})
	if err != nil {
		return nil, err
	}
	if len(found.Matches) == 0 {
		return &ConflictResult{Conflicts: []Conflict{}}, nil
	}

	shortlist := make([]shortlistItem, 0, len(found.Matches))
	for _, m := range found.Matches {
		id := m.MessageID
		if id == "" {
			id = m.TopicID
		}
		shortlist = append(shortlist, shortlistItem{PriorDecisionID: id, Snippet: m.Snippet, Score: m.Score})
	}

	answer, err := structured.Ask(ctx, c.Chat, structured.Request{
		PeerID:     c.PeerID,
		System:     conflictPrompt,
		Input:      map[string]any{"proposed_decision": proposed, "prior_decisions": shortlist},
		SchemaName: ConflictSchemaName,
		Schema:     ConflictSchema,
		MaxRetries: c.MaxRetries,
	}, func(a *conflictAnswer) error {
		if a.Conflicts == nil {
			return errors.New("missing conflicts")
		}
		for i, item := range *a.Conflicts {
			if item.PriorDecisionID == nil {
				return fmt.Errorf("conflicts[%d]: missing prior_decision_id", i)
			}
			if item.Confidence == nil {
				return fmt.Errorf("conflicts[%d]: missing confidence", i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &ConflictResult{Conflicts: make([]Conflict, 0, len(*answer.Conflicts))}
	for _, item := range *answer.Conflicts {
		conf := *item.Confidence
		res.Conflicts = append(res.Conflicts, Conflict{
			PriorDecisionID: *item.PriorDecisionID,
			Confidence:      conf,
			Rationale:       item.Rationale,
			SuggestedAction: item.SuggestedAction,
		})
		res.MaxConfidence = max(res.MaxConfidence, conf)
		if conf >= c.Threshold {
			res.Blocking = true
		}
	}
	return res, nil
}
