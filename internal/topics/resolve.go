package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/liquidmail/liquid-mail/internal/config"
	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/telemetry"
)

// Action names the kind of outcome a resolution produced.
type Action string

const (
	ActionAssigned      Action = "assigned"
	ActionCreated       Action = "created"
	ActionMerged        Action = "merged"
	ActionRequiresTopic Action = "requires_topic"
	ActionDisabled      Action = "disabled"
	ActionBlocked       Action = "blocked"
)

// Reasons attached to outcomes.
const (
	ReasonDetectionDisabled  = "detection_disabled"
	ReasonAutoCreateDisabled = "auto_create_disabled"
	ReasonMaxActiveReached   = "max_active_reached"
	ReasonMergedMaxActive    = "merged_due_to_max_active"
)

// MaxTitleLen bounds the title hint stored on auto-created topics.
const MaxTitleLen = 80

// Outcome is one of Assigned, Created, Merged, RequiresTopic, Disabled or
// Blocked. Only the fields meaningful for that action exist on each type.
type Outcome interface {
	Action() Action
	outcome()
}

// Assigned: the vote picked an existing topic.
type Assigned struct{ TopicID string }

// Created: a new topic was created for the message.
type Created struct{ TopicID string }

// Merged: the workspace was full, two topics were merged and the message
// goes to the merged topic.
type Merged struct {
	TopicID     string
	From        [2]string
	Reason      string
	MaxActive   int
	ActiveCount int
}

// RequiresTopic: the caller must name a topic.
type RequiresTopic struct{ Reason string }

// Disabled: detection is turned off.
type Disabled struct{ Reason string }

// Blocked: the workspace is full and merging is not possible.
type Blocked struct {
	Reason      string
	MaxActive   int
	ActiveCount int
}

func (Assigned) Action() Action      { return ActionAssigned }
func (Created) Action() Action       { return ActionCreated }
func (Merged) Action() Action        { return ActionMerged }
func (RequiresTopic) Action() Action { return ActionRequiresTopic }
func (Disabled) Action() Action      { return ActionDisabled }
func (Blocked) Action() Action       { return ActionBlocked }

func (Assigned) outcome()      {}
func (Created) outcome()       {}
func (Merged) outcome()        {}
func (RequiresTopic) outcome() {}
func (Disabled) outcome()      {}
func (Blocked) outcome()       {}

// Decision is a resolution: vote statistics, ranked candidates and the
// outcome.
type Decision struct {
	Outcome    Outcome
	Vote       Choice
	Candidates []Candidate
}

// TopicID returns the topic the message should be posted to, if any.
func (d *Decision) TopicID() (string, bool) {
	switch o := d.Outcome.(type) {
	case Assigned:
		return o.TopicID, true
	case Created:
		return o.TopicID, true
	case Merged:
		return o.TopicID, true
	}
	return "", false
}

// MarshalJSON renders the flat wire shape agents consume.
func (d *Decision) MarshalJSON() ([]byte, error) {
	type wire struct {
		Action         Action      `json:"action"`
		ChosenTopicID  string      `json:"chosen_topic_id,omitempty"`
		CreatedTopicID string      `json:"created_topic_id,omitempty"`
		MergedFrom     []string    `json:"merged_from,omitempty"`
		Dominance      float64     `json:"dominance"`
		BestTopicID    string      `json:"best_topic_id,omitempty"`
		BestCount      int         `json:"best_count"`
		TotalMatches   int         `json:"total_matches"`
		Candidates     []Candidate `json:"candidates"`
		Reason         string      `json:"reason,omitempty"`
		MaxActive      *int        `json:"max_active,omitempty"`
		ActiveCount    *int        `json:"active_count,omitempty"`
	}
	w := wire{
		Action:        d.Outcome.Action(),
		ChosenTopicID: d.Vote.ChosenTopicID,
		Dominance:     d.Vote.Dominance,
		BestTopicID:   d.Vote.BestTopicID,
		BestCount:     d.Vote.BestCount,
		TotalMatches:  d.Vote.TotalMatches,
		Candidates:    d.Candidates,
	}
	if w.Candidates == nil {
		w.Candidates = []Candidate{}
	}
	switch o := d.Outcome.(type) {
	case Assigned:
		w.ChosenTopicID = o.TopicID
	case Created:
		w.CreatedTopicID = o.TopicID
	case Merged:
		w.CreatedTopicID = o.TopicID
		w.MergedFrom = o.From[:]
		w.Reason = o.Reason
		w.MaxActive, w.ActiveCount = &o.MaxActive, &o.ActiveCount
	case RequiresTopic:
		w.Reason = o.Reason
	case Disabled:
		w.Reason = o.Reason
	case Blocked:
		w.Reason = o.Reason
		w.MaxActive, w.ActiveCount = &o.MaxActive, &o.ActiveCount
	}
	return json.Marshal(w)
}

// Backend is the slice of the remote store the resolver needs.
type Backend interface {
	Search(ctx context.Context, req honcho.SearchRequest) (*honcho.SearchResponse, error)
	ListSessions(ctx context.Context, limit int) ([]honcho.Session, error)
	GetOrCreateSession(ctx context.Context, req honcho.SessionRequest) (*honcho.Session, error)
}

// Merger consolidates topics when the workspace is full.
type Merger interface {
	Consolidate(ctx context.Context, sessionLimit int) (*MergePlan, error)
}

// Resolver maps a message to a topic. It never writes local state.
type Resolver struct {
	backend      Backend
	merger       Merger
	cfg          config.Topics
	systemPeerID string
	ops          *telemetry.Ops
}

// NewResolver builds a resolver. merger may be nil, in which case a full
// workspace always blocks.
func NewResolver(backend Backend, merger Merger, cfg config.Topics, systemPeerID string) *Resolver {
	return &Resolver{
		backend:      backend,
		merger:       merger,
		cfg:          cfg,
		systemPeerID: systemPeerID,
		ops:          telemetry.NewOps("topics"),
	}
}

// Resolve decides where message belongs. titleHint names a topic created on
// the message's behalf.
func (r *Resolver) Resolve(ctx context.Context, message, titleHint string) (*Decision, error) {
	ctx, done := r.ops.Start(ctx, "resolve")
	d, err := r.resolve(ctx, message, titleHint)
	done(err)
	if err == nil {
		r.ops.Count(ctx, "outcomes", 1, attribute.String("action", string(d.Outcome.Action())))
		debug.Logf("topic resolution: %s (dominance %.2f over %d matches)",
			d.Outcome.Action(), d.Vote.Dominance, d.Vote.TotalMatches)
	}
	return d, err
}

func (r *Resolver) resolve(ctx context.Context, message, titleHint string) (*Decision, error) {
	if !r.cfg.DetectionEnabled {
		return &Decision{
			Outcome: Disabled{Reason: ReasonDetectionDisabled},
			Vote:    Choice{Counts: map[string]int{}},
		}, nil
	}

	resp, err := r.backend.Search(ctx, honcho.SearchRequest{Query: message, Limit: r.cfg.AutoAssignK})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.TopicID != "" {
			ids = append(ids, m.TopicID)
		}
	}
	vote := ChooseTopic(ids, r.cfg.AutoAssignThreshold, r.cfg.AutoAssignMinHits)
	d := &Decision{
		Vote:       vote,
		Candidates: Candidates(vote.Counts, vote.TotalMatches, r.cfg.AutoAssignK),
	}

	if vote.Chosen() {
		d.Outcome = Assigned{TopicID: vote.ChosenTopicID}
		return d, nil
	}
	if !r.cfg.AutoCreate {
		d.Outcome = RequiresTopic{Reason: ReasonAutoCreateDisabled}
		return d, nil
	}

	if r.cfg.MaxActive != nil {
		maxActive := *r.cfg.MaxActive
		sessions, err := r.backend.ListSessions(ctx, maxActive+1)
		if err != nil {
			return nil, err
		}
		active := len(sessions)
		if active >= maxActive {
			if r.cfg.ConsolidationStrategy == config.StrategyMerge && r.systemPeerID != "" && r.merger != nil {
				plan, err := r.merger.Consolidate(ctx, maxActive)
				if err != nil {
					return nil, err
				}
				reason := plan.Reason
				if reason == "" {
					reason = ReasonMergedMaxActive
				}
				d.Outcome = Merged{
					TopicID:     plan.MergedTopicID,
					From:        plan.MergedFrom,
					Reason:      reason,
					MaxActive:   maxActive,
					ActiveCount: active,
				}
				return d, nil
			}
			d.Outcome = Blocked{Reason: ReasonMaxActiveReached, MaxActive: maxActive, ActiveCount: active}
			return d, nil
		}
	}

	created, err := r.backend.GetOrCreateSession(ctx, honcho.SessionRequest{Title: TitleFromHint(titleHint)})
	if err != nil {
		return nil, fmt.Errorf("create topic: %w", err)
	}
	d.Outcome = Created{TopicID: created.ID}
	return d, nil
}

// TitleFromHint reduces hint to its first non-empty line, truncated to
// MaxTitleLen runes.
func TitleFromHint(hint string) string {
	for _, line := range strings.Split(hint, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > MaxTitleLen {
			runes := []rune(line)
			line = strings.TrimSpace(string(runes[:MaxTitleLen-1])) + "…"
		}
		return line
	}
	return ""
}
