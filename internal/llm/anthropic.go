// Package llm provides an Anthropic-backed alternative to the Honcho peer
// chat endpoint for structured requests (decision extraction, conflict
// classification, merge planning).
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/telemetry"
)

const (
	defaultMaxTokens  = 1024
	defaultMaxRetries = 2
)

// Anthropic answers chat requests with the Messages API. The peer id is
// ignored; the schema is passed in the system prompt.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
	ops    *telemetry.Ops
}

// Options configures NewAnthropic.
type Options struct {
	APIKey     string // ANTHROPIC_API_KEY takes precedence when set
	Model      string
	BaseURL    string
	MaxRetries int
}

// NewAnthropic builds a chat provider. It fails with MISSING_CONFIG when no
// API key is available.
func NewAnthropic(opts Options) (*Anthropic, error) {
	key := opts.APIKey
	if env := os.Getenv("ANTHROPIC_API_KEY"); env != "" {
		key = env
	}
	if key == "" {
		return nil, lmerr.MissingConfig("chat.provider is anthropic but no API key is configured.",
			"Set ANTHROPIC_API_KEY", "Or set chat.anthropic_api_key in .liquid-mail.toml")
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(retries)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	tokenMetricsOnce.Do(initTokenMetrics)
	return &Anthropic{
		client: anthropic.NewClient(reqOpts...),
		model:  anthropic.Model(model),
		ops:    telemetry.NewOps("llm"),
	}, nil
}

var tokenMetrics struct {
	input  metric.Int64Counter
	output metric.Int64Counter
}

var tokenMetricsOnce sync.Once

func initTokenMetrics() {
	m := telemetry.Meter("github.com/liquidmail/liquid-mail/llm")
	tokenMetrics.input, _ = m.Int64Counter("liquid_mail.llm.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	tokenMetrics.output, _ = m.Int64Counter("liquid_mail.llm.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
}

// Chat implements structured.Chatter.
func (a *Anthropic) Chat(ctx context.Context, peerID string, req honcho.ChatRequest) (_ *honcho.ChatResponse, err error) {
	ctx, done := a.ops.Start(ctx, "messages.new", attribute.String("model", string(a.model)))
	defer func() { done(err) }()

	params, err := a.params(req)
	if err != nil {
		return nil, err
	}
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	modelAttr := metric.WithAttributes(attribute.String("model", string(a.model)))
	if tokenMetrics.input != nil {
		tokenMetrics.input.Add(ctx, msg.Usage.InputTokens, modelAttr)
		tokenMetrics.output.Add(ctx, msg.Usage.OutputTokens, modelAttr)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := StripFences(text.String())
	return &honcho.ChatResponse{
		Message:    honcho.ChatMessage{Role: "assistant", Content: out},
		OutputText: out,
	}, nil
}

func (a *Anthropic) params(req honcho.ChatRequest) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if rf := req.ResponseFormat; rf != nil && rf.JSONSchema.Schema != nil {
		schema, err := json.Marshal(rf.JSONSchema.Schema)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("marshal response schema: %w", err)
		}
		system = append(system, anthropic.TextBlockParam{Text: fmt.Sprintf(
			"Respond with a single JSON document and nothing else. It must validate against the JSON schema %q: %s",
			rf.JSONSchema.Name, schema)})
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, errors.New("chat request has no user message")
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: defaultMaxTokens,
		System:    system,
		Messages:  messages,
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params, nil
}

// classify maps SDK failures onto the error taxonomy.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		var e *lmerr.Error
		switch {
		case status == 401 || status == 403:
			e = lmerr.New(lmerr.CodeAuthFailed, lmerr.ExitAuth, false, "Anthropic rejected the API key (HTTP %d)", status)
		case status == 429:
			e = lmerr.New(lmerr.CodeRateLimited, lmerr.ExitRateLimited, true, "Anthropic rate limit exceeded (HTTP 429)")
		case status >= 500:
			e = lmerr.New(lmerr.CodeUnavailable, lmerr.ExitUnavailable, true, "Anthropic is unavailable (HTTP %d)", status)
		default:
			e = lmerr.New(lmerr.CodeRequestFailed, lmerr.ExitRemoteFailed, false, "Anthropic request failed (HTTP %d)", status)
		}
		return lmerr.Wrap(e.WithDetail("status", status), err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return lmerr.Wrap(lmerr.New(lmerr.CodeRequestFailed, lmerr.ExitRemoteFailed, true, "Anthropic request failed"), err)
}

// StripFences removes a surrounding ```json ... ``` code fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
