// Package structured asks a chat peer for schema-constrained JSON and
// validates the answer strictly, retrying a bounded number of times when the
// answer has the wrong shape.
package structured

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
)

// DefaultMaxRetries is the number of extra attempts after the first.
const DefaultMaxRetries = 2

// Chatter is the chat capability of the backend (or an alternate provider).
type Chatter interface {
	Chat(ctx context.Context, peerID string, req honcho.ChatRequest) (*honcho.ChatResponse, error)
}

// Request describes one structured question.
type Request struct {
	PeerID     string
	System     string
	Input      any // marshalled to JSON as the user turn
	SchemaName string
	Schema     any
	MaxRetries int // < 0 means no retries; 0 means DefaultMaxRetries
}

// ErrEmpty is returned by Payload when a response carries no content.
var ErrEmpty = errors.New("empty response")

// Payload picks the JSON document out of a chat response: output_json first,
// then output_text, then the message content.
func Payload(resp *honcho.ChatResponse) ([]byte, error) {
	if resp == nil {
		return nil, ErrEmpty
	}
	if raw := bytes.TrimSpace(resp.OutputJSON); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		return raw, nil
	}
	text := resp.OutputText
	if text == "" {
		text = resp.Message.Content
	}
	if len(bytes.TrimSpace([]byte(text))) == 0 {
		return nil, ErrEmpty
	}
	return []byte(text), nil
}

// DecodeStrict unmarshals data into out, rejecting unknown fields and
// trailing content.
func DecodeStrict(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON shape: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON shape: trailing data after document")
	}
	return nil
}

// Ask sends req and decodes the answer into T. validate checks semantic
// constraints the decoder cannot (required fields, ranges). Shape and
// validation failures are retried; transport errors are returned at once.
// Exhausting the budget yields HONCHO_CHAT_INVALID carrying the last failure.
func Ask[T any](ctx context.Context, c Chatter, req Request, validate func(*T) error) (*T, error) {
	input, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("marshal %s input: %w", req.SchemaName, err)
	}
	retries := req.MaxRetries
	switch {
	case retries == 0:
		retries = DefaultMaxRetries
	case retries < 0:
		retries = 0
	}

	zero := 0.0
	chatReq := honcho.ChatRequest{
		Messages: []honcho.ChatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: string(input)},
		},
		Temperature:    &zero,
		ResponseFormat: honcho.SchemaFormat(req.SchemaName, req.Schema),
	}

	var lastErr error
	attempts := retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := c.Chat(ctx, req.PeerID, chatReq)
		if err != nil {
			return nil, err
		}
		out, err := decode(resp, validate)
		if err == nil {
			return out, nil
		}
		lastErr = err
		debug.Logf("%s attempt %d/%d invalid: %v", req.SchemaName, attempt, attempts, err)
	}
	return nil, lmerr.ChatInvalid(req.SchemaName, attempts, lastErr)
}

func decode[T any](resp *honcho.ChatResponse, validate func(*T) error) (*T, error) {
	data, err := Payload(resp)
	if err != nil {
		return nil, err
	}
	var out T
	if err := DecodeStrict(data, &out); err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(&out); err != nil {
			return nil, err
		}
	}
	return &out, nil
}
