package topics

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidmail/liquid-mail/internal/config"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
)

func intPtr(n int) *int { return &n }

func baseTopics() config.Topics {
	return config.Topics{
		DetectionEnabled:      true,
		AutoCreate:            true,
		AutoAssignThreshold:   0.6,
		AutoAssignK:           10,
		AutoAssignMinHits:     2,
		ConsolidationStrategy: config.StrategyMerge,
	}
}

func TestResolveDisabled(t *testing.T) {
	cfg := baseTopics()
	cfg.DetectionEnabled = false
	r := NewResolver(&fakeBackend{}, nil, cfg, "liquid-mail")

	d, err := r.Resolve(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, Disabled{Reason: ReasonDetectionDisabled}, d.Outcome)
	_, ok := d.TopicID()
	assert.False(t, ok)
}

func TestResolveAssigned(t *testing.T) {
	fb := &fakeBackend{matches: matchesFor("auth", "auth", "auth", "db")}
	r := NewResolver(fb, nil, baseTopics(), "liquid-mail")

	d, err := r.Resolve(context.Background(), "token refresh", "")
	require.NoError(t, err)
	assert.Equal(t, Assigned{TopicID: "auth"}, d.Outcome)
	id, ok := d.TopicID()
	assert.True(t, ok)
	assert.Equal(t, "auth", id)
	require.Len(t, d.Candidates, 2)
	assert.Equal(t, "auth", d.Candidates[0].TopicID)
	assert.Empty(t, fb.created)
}

func TestResolveRequiresTopicWhenAutoCreateOff(t *testing.T) {
	cfg := baseTopics()
	cfg.AutoCreate = false
	r := NewResolver(&fakeBackend{matches: matchesFor("a", "b")}, nil, cfg, "liquid-mail")

	d, err := r.Resolve(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, RequiresTopic{Reason: ReasonAutoCreateDisabled}, d.Outcome)
}

func TestResolveCreatesWithTitle(t *testing.T) {
	fb := &fakeBackend{}
	r := NewResolver(fb, nil, baseTopics(), "liquid-mail")

	d, err := r.Resolve(context.Background(), "something new", "\n  Investigate flaky CI  \nmore")
	require.NoError(t, err)
	assert.Equal(t, Created{TopicID: "new-1"}, d.Outcome)
	require.Len(t, fb.created, 1)
	assert.Equal(t, "Investigate flaky CI", fb.created[0].Title)
}

func TestResolveBlockedAtCapacity(t *testing.T) {
	cfg := baseTopics()
	cfg.MaxActive = intPtr(2)
	cfg.ConsolidationStrategy = config.StrategyArchive
	fb := &fakeBackend{sessions: sessionsNamed("a", "b", "c")}
	r := NewResolver(fb, nil, cfg, "liquid-mail")

	d, err := r.Resolve(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, Blocked{Reason: ReasonMaxActiveReached, MaxActive: 2, ActiveCount: 3}, d.Outcome)
	assert.Empty(t, fb.created)
}

func TestResolveCreatesBelowCapacity(t *testing.T) {
	cfg := baseTopics()
	cfg.MaxActive = intPtr(3)
	fb := &fakeBackend{sessions: sessionsNamed("a", "b")}
	r := NewResolver(fb, nil, cfg, "liquid-mail")

	d, err := r.Resolve(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, d.Outcome.Action())
}

func TestResolveMergesAtCapacity(t *testing.T) {
	cfg := baseTopics()
	cfg.MaxActive = intPtr(2)
	fb := &fakeBackend{
		sessions: sessionsNamed("a", "b"),
		answers:  []string{`{"merge":{"from":["a","b"]}}`},
	}
	r := NewResolver(fb, NewConsolidator(fb, nil, "liquid-mail", 0), cfg, "liquid-mail")

	d, err := r.Resolve(context.Background(), "x", "")
	require.NoError(t, err)
	merged, ok := d.Outcome.(Merged)
	require.True(t, ok, "outcome %T", d.Outcome)
	assert.Equal(t, [2]string{"a", "b"}, merged.From)
	assert.Equal(t, ReasonMergedMaxActive, merged.Reason)
	assert.Equal(t, 2, merged.ActiveCount)
	id, ok := d.TopicID()
	assert.True(t, ok)
	assert.Equal(t, merged.TopicID, id)
}

func TestResolveMergeFailurePropagates(t *testing.T) {
	cfg := baseTopics()
	cfg.MaxActive = intPtr(2)
	fb := &fakeBackend{sessions: sessionsNamed("a", "b"), answers: []string{`{}`, `{}`, `{}`}}
	r := NewResolver(fb, NewConsolidator(fb, nil, "liquid-mail", 0), cfg, "liquid-mail")

	_, err := r.Resolve(context.Background(), "x", "")
	require.Error(t, err)
	assert.True(t, lmerr.IsCode(err, lmerr.CodeTopicConsolidationFailed))
}

func TestDecisionJSON(t *testing.T) {
	d := &Decision{
		Outcome: Blocked{Reason: ReasonMaxActiveReached, MaxActive: 5, ActiveCount: 6},
		Vote:    ChooseTopic([]string{"a", "b"}, 0.9, 2),
	}
	data, err := json.Marshal(d)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "blocked", got["action"])
	assert.Equal(t, "max_active_reached", got["reason"])
	assert.EqualValues(t, 5, got["max_active"])
	assert.EqualValues(t, 6, got["active_count"])
	assert.Equal(t, []any{}, got["candidates"])
	assert.NotContains(t, got, "created_topic_id")
}

func TestTitleFromHint(t *testing.T) {
	assert.Equal(t, "", TitleFromHint("  \n \n"))
	long := strings.Repeat("é", 100)
	got := TitleFromHint(long)
	assert.Equal(t, MaxTitleLen, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
