package structured

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
)

type scriptedChat struct {
	responses []*honcho.ChatResponse
	err       error
	calls     int
	last      honcho.ChatRequest
}

func (s *scriptedChat) Chat(_ context.Context, _ string, req honcho.ChatRequest) (*honcho.ChatResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	i := min(s.calls, len(s.responses)-1)
	s.calls++
	return s.responses[i], nil
}

type answer struct {
	Items *[]string `json:"items"`
}

func requireItems(a *answer) error {
	if a.Items == nil {
		return errors.New("missing items")
	}
	return nil
}

func text(s string) *honcho.ChatResponse {
	return &honcho.ChatResponse{OutputText: s}
}

func TestPayloadPreference(t *testing.T) {
	got, err := Payload(&honcho.ChatResponse{
		OutputJSON: json.RawMessage(`{"a":1}`),
		OutputText: `{"b":2}`,
		Message:    honcho.ChatMessage{Content: `{"c":3}`},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	got, err = Payload(&honcho.ChatResponse{OutputJSON: json.RawMessage("null"), Message: honcho.ChatMessage{Content: `{"c":3}`}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":3}`, string(got))

	_, err = Payload(&honcho.ChatResponse{})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestDecodeStrict(t *testing.T) {
	var a answer
	assert.NoError(t, DecodeStrict([]byte(`{"items":["x"]}`), &a))
	assert.Error(t, DecodeStrict([]byte(`{"items":["x"],"extra":1}`), &a))
	assert.Error(t, DecodeStrict([]byte(`{"items":["x"]} {"items":[]}`), &a))
	assert.Error(t, DecodeStrict([]byte(`{"items":"x"}`), &a))
	assert.Error(t, DecodeStrict([]byte(`not json`), &a))
}

func TestAskRetriesThenSucceeds(t *testing.T) {
	chat := &scriptedChat{responses: []*honcho.ChatResponse{
		text("garbage"),
		text(`{"other":true}`),
		text(`{"items":["use postgres"]}`),
	}}
	out, err := Ask(context.Background(), chat, Request{
		PeerID: "liquid-mail", System: "extract", Input: map[string]string{"message": "m"},
		SchemaName: "decision_extract_v1", Schema: map[string]any{"type": "object"},
	}, requireItems)
	require.NoError(t, err)
	assert.Equal(t, []string{"use postgres"}, *out.Items)
	assert.Equal(t, 3, chat.calls)

	require.Len(t, chat.last.Messages, 2)
	assert.Equal(t, "system", chat.last.Messages[0].Role)
	assert.JSONEq(t, `{"message":"m"}`, chat.last.Messages[1].Content)
	require.NotNil(t, chat.last.Temperature)
	assert.Zero(t, *chat.last.Temperature)
	assert.Equal(t, "decision_extract_v1", chat.last.ResponseFormat.JSONSchema.Name)
}

func TestAskExhaustion(t *testing.T) {
	chat := &scriptedChat{responses: []*honcho.ChatResponse{text(`{}`)}}
	_, err := Ask(context.Background(), chat, Request{SchemaName: "conflict_classify_v1"}, requireItems)
	require.Error(t, err)
	e := lmerr.From(err)
	assert.Equal(t, lmerr.CodeChatInvalid, e.Code)
	assert.True(t, e.Retryable)
	assert.Equal(t, lmerr.ExitRemoteFailed, e.ExitCode)
	assert.Equal(t, "missing items", e.Details["last_error"])
	assert.Equal(t, 3, chat.calls)
}

func TestAskNoRetries(t *testing.T) {
	chat := &scriptedChat{responses: []*honcho.ChatResponse{text(`{}`)}}
	_, err := Ask(context.Background(), chat, Request{SchemaName: "s", MaxRetries: -1}, requireItems)
	require.Error(t, err)
	assert.Equal(t, 1, chat.calls)
}

func TestAskTransportErrorIsNotRetried(t *testing.T) {
	boom := lmerr.HTTPStatus(401, "POST", "/chat", "")
	chat := &scriptedChat{err: boom}
	_, err := Ask(context.Background(), chat, Request{SchemaName: "s"}, requireItems)
	assert.True(t, lmerr.IsCode(err, lmerr.CodeAuthFailed))
}
