package topics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
)

func TestConsolidateMergesAndRedirects(t *testing.T) {
	fb := &fakeBackend{
		sessions: sessionsNamed("auth", "login", "db"),
		summaries: map[string][]honcho.Summary{
			"auth":  {{Kind: honcho.SummaryLong, Content: "long"}, {Kind: honcho.SummaryShort, Content: "auth tokens"}},
			"login": {{Kind: honcho.SummaryLong, Content: "login page"}},
		},
		answers: []string{`{"merge":{"from":["auth","login"],"reason":"same feature"}}`},
	}
	c := NewConsolidator(fb, nil, "liquid-mail", 0)

	plan, err := c.Consolidate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, &MergePlan{MergedTopicID: "new-1", MergedFrom: [2]string{"auth", "login"}, Reason: "same feature"}, plan)

	require.Len(t, fb.created, 1)
	assert.Equal(t, MergedTitle, fb.created[0].Title)
	assert.Equal(t, KindTopicMerge, fb.created[0].Metadata[MetaKind])
	assert.Equal(t, []string{"auth", "login"}, fb.created[0].Metadata[MetaMergedFrom])

	require.Len(t, fb.posted, 2)
	for i, src := range []string{"auth", "login"} {
		p := fb.posted[i]
		assert.Equal(t, src, p.SessionID)
		assert.Equal(t, "Topic merged into new-1.", p.Msg.Content)
		assert.Equal(t, "liquid-mail", p.Msg.PeerID)
		assert.Equal(t, KindTopicMergeRedirect, p.Msg.Metadata[MetaKind])
		assert.Equal(t, "new-1", p.Msg.Metadata[MetaMergedInto])
	}
}

func TestConsolidateNeedsTwoTopics(t *testing.T) {
	fb := &fakeBackend{sessions: sessionsNamed("only")}
	_, err := NewConsolidator(fb, nil, "liquid-mail", 0).Consolidate(context.Background(), 5)
	require.Error(t, err)
	e := lmerr.From(err)
	assert.Equal(t, lmerr.CodeTopicConsolidationFailed, e.Code)
	assert.False(t, e.Retryable)
	assert.Zero(t, fb.chatCalls)
}

func TestConsolidateRetriesInvalidPlans(t *testing.T) {
	fb := &fakeBackend{
		sessions: sessionsNamed("a", "b"),
		answers: []string{
			`{"merge":{"from":["a","a"]}}`,
			`{"merge":{"from":["a","zzz"]}}`,
			`{"merge":{"from":["b","a"]}}`,
		},
	}
	plan, err := NewConsolidator(fb, nil, "liquid-mail", 0).Consolidate(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"b", "a"}, plan.MergedFrom)
	assert.Equal(t, 3, fb.chatCalls)
}

func TestConsolidateExhaustionIsRetryable(t *testing.T) {
	fb := &fakeBackend{
		sessions: sessionsNamed("a", "b"),
		answers:  []string{`{"merge":{"from":["a"]}}`, `{"merge":{}}`, `not json`},
	}
	_, err := NewConsolidator(fb, nil, "liquid-mail", 0).Consolidate(context.Background(), 2)
	require.Error(t, err)
	e := lmerr.From(err)
	assert.Equal(t, lmerr.CodeTopicConsolidationFailed, e.Code)
	assert.True(t, e.Retryable)
	assert.Equal(t, 6, e.ExitCode)
	assert.Empty(t, fb.created, "no side effects without a valid plan")
	assert.Empty(t, fb.posted)
}

func TestConsolidateTransportErrorNotRetried(t *testing.T) {
	boom := errors.New("boom")
	fb := &fakeBackend{sessions: sessionsNamed("a", "b"), chatErr: boom}
	_, err := NewConsolidator(fb, nil, "liquid-mail", 0).Consolidate(context.Background(), 2)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fb.chatCalls)
}

func TestPickSummary(t *testing.T) {
	assert.Equal(t, "", PickSummary(nil))
	assert.Equal(t, "first", PickSummary([]honcho.Summary{{Kind: "long", Content: "first"}}))
}
