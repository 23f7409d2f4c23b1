package decisions

import (
	"context"
	"errors"
	"strings"

	"github.com/liquidmail/liquid-mail/internal/structured"
)

// ExtractSchemaName names the extraction response schema.
const ExtractSchemaName = "decision_extract_v1"

// ExtractSchema constrains the extractor's answer.
var ExtractSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"decisions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required":             []string{"decisions"},
	"additionalProperties": false,
}

const extractPrompt = "You are extracting decision statements. " +
	`Return strict JSON with shape: { "decisions": string[] }. ` +
	`If no decisions are present, return { "decisions": [] }.`

type extraction struct {
	Decisions *[]string `json:"decisions"`
}

// Extractor asks a chat peer to pull decision statements out of free text.
type Extractor struct {
	Chat       structured.Chatter
	PeerID     string
	MaxRetries int
}

// Extract returns the decisions found in message (possibly none). An answer
// that never matches the schema fails with HONCHO_CHAT_INVALID.
func (e *Extractor) Extract(ctx context.Context, message string) ([]string, error) {
	out, err := structured.Ask(ctx, e.Chat, structured.Request{
		PeerID:     e.PeerID,
		System:     extractPrompt,
		Input:      message,
		SchemaName: ExtractSchemaName,
		Schema:     ExtractSchema,
		MaxRetries: e.MaxRetries,
	}, func(x *extraction) error {
		if x.Decisions == nil {
			return errors.New("missing decisions")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	decisions := make([]string, 0, len(*out.Decisions))
	for _, d := range *out.Decisions {
		if d = strings.TrimSpace(d); d != "" {
			decisions = append(decisions, d)
		}
	}
	return decisions, nil
}
