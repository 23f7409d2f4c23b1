package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidmail/liquid-mail/internal/honcho"
)

type fakeBackend struct {
	mu        sync.Mutex
	requests  []honcho.SearchRequest
	byKind    map[string][]honcho.SearchMatch // keyed by lm.kind filter, "" for mentions
	sessions  []honcho.Session
	summaries map[string][]honcho.Summary
	searchErr error
}

func (f *fakeBackend) Search(_ context.Context, req honcho.SearchRequest) (*honcho.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	kind := ""
	if req.Filters != nil {
		if mf, ok := req.Filters.Metadata[MetaKind]; ok {
			kind = mf.Value.(string)
		}
	}
	return &honcho.SearchResponse{Matches: f.byKind[kind]}, nil
}

func (f *fakeBackend) ListSessions(_ context.Context, limit int) ([]honcho.Session, error) {
	if len(f.sessions) > limit {
		return f.sessions[:limit], nil
	}
	return f.sessions, nil
}

func (f *fakeBackend) Summaries(_ context.Context, id string) ([]honcho.Summary, error) {
	return f.summaries[id], nil
}

func TestFeedRanksAllSources(t *testing.T) {
	b := &fakeBackend{
		byKind: map[string][]honcho.SearchMatch{
			KindDecision: {{TopicID: "auth", Snippet: "DECISION: use JWT"}},
			KindEvent: {
				{TopicID: "build", Snippet: "ISSUE: flaky test"},
				{TopicID: "build", Snippet: "START: refactor"},
			},
			"": {{TopicID: "auth", Snippet: ""}},
		},
		sessions: []honcho.Session{{ID: "auth"}, {ID: "empty"}},
		summaries: map[string][]honcho.Summary{
			"auth": {{Kind: honcho.SummaryLong, Content: "long"}, {Kind: honcho.SummaryShort, Content: "short"}},
		},
	}

	items, err := Feed(context.Background(), b, Options{AgentID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, []Item{
		{TopicID: "build", Reason: ReasonEvent, Excerpt: "ISSUE: flaky test", Confidence: 0.95},
		{TopicID: "auth", Reason: ReasonDecision, Excerpt: "DECISION: use JWT", Confidence: 0.9},
		{TopicID: "auth", Reason: ReasonMention, Excerpt: "Mentioned alice", Confidence: 0.7},
		{TopicID: "build", Reason: ReasonEvent, Excerpt: "START: refactor", Confidence: 0.6},
		{TopicID: "auth", Reason: ReasonSummary, Excerpt: "short", Confidence: 0.5},
	}, items)
}

func TestFeedFiltersAndLimits(t *testing.T) {
	b := &fakeBackend{}
	_, err := Feed(context.Background(), b, Options{AgentID: "alice", Since: "2026-02-01T00:00:00Z", EventLimit: 3})
	require.NoError(t, err)
	require.Len(t, b.requests, 3)

	var event *honcho.SearchRequest
	for i, r := range b.requests {
		assert.Equal(t, "2026-02-01T00:00:00Z", r.Filters.Since)
		if mf, ok := r.Filters.Metadata[MetaKind]; ok && mf.Value == KindEvent {
			event = &b.requests[i]
		}
	}
	require.NotNil(t, event)
	assert.Equal(t, 3, event.Limit)
	assert.Equal(t, "alice", event.Query)
	assert.Equal(t, honcho.MetadataEq("alice"), event.Filters.Metadata[MetaAgentID])
}

func TestFeedPropagatesErrors(t *testing.T) {
	b := &fakeBackend{searchErr: errors.New("down")}
	_, err := Feed(context.Background(), b, Options{AgentID: "alice"})
	assert.EqualError(t, err, "down")
}

func TestScoreEvent(t *testing.T) {
	assert.Equal(t, 0.95, ScoreEvent("issue: x"))
	assert.Equal(t, 0.9, ScoreEvent("Feedback: y"))
	assert.Equal(t, 0.6, ScoreEvent("START: z"))
	assert.Equal(t, 0.75, ScoreEvent("FINISH: z"))
	assert.Equal(t, 0.65, ScoreEvent("hello"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", ExcerptLen))
	got := Truncate(strings.Repeat("x", 200), ExcerptLen)
	assert.Equal(t, ExcerptLen, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
