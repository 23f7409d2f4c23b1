// Package honcho is a client for the Honcho v3 REST API, the shared
// session/message store that backs liquid-mail topics.
//
// A Honcho session is a liquid-mail topic; a peer is an agent or the system
// peer that writes decision and redirect messages.
package honcho

import (
	"encoding/json"
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is how many times a 429/5xx/network failure is retried.
	DefaultMaxRetries = 2

	// DefaultSearchLimit is used when a search request has no limit.
	DefaultSearchLimit = 10

	// DefaultListLimit and MaxListLimit bound message listing page sizes.
	DefaultListLimit = 50
	MaxListLimit     = 200

	// DefaultSessionListLimit is the page size for session listing.
	DefaultSessionListLimit = 20
)

// Client provides methods to interact with the Honcho REST API.
type Client struct {
	BaseURL     string       // API base URL (default: https://api.honcho.dev)
	APIKey      string       // Bearer token
	WorkspaceID string       // Workspace that scopes every request
	MaxRetries  int          // Retries for retryable failures
	HTTPClient  *http.Client // Optional custom HTTP client
}

// Metadata is the free-form key/value map Honcho stores on sessions and messages.
type Metadata map[string]any

// MetadataFilter is an operator filter on one metadata key.
type MetadataFilter struct {
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// SearchFilters narrows a workspace search. SessionID is a string for one
// session or a []string for several.
type SearchFilters struct {
	SessionID any                       `json:"session_id,omitempty"`
	PeerIDs   []string                  `json:"peer_ids,omitempty"`
	Metadata  map[string]MetadataFilter `json:"metadata,omitempty"`
	Since     string                    `json:"since,omitempty"`
	Until     string                    `json:"until,omitempty"`
}

// SearchRequest is a fuzzy workspace search.
type SearchRequest struct {
	Query   string         `json:"query"`
	Limit   int            `json:"limit,omitempty"`
	Filters *SearchFilters `json:"filters,omitempty"`
}

// SearchMatch is one search hit; TopicID is the session it belongs to.
type SearchMatch struct {
	TopicID   string  `json:"session_id"`
	MessageID string  `json:"message_id,omitempty"`
	PeerID    string  `json:"peer_id,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Snippet   string  `json:"snippet,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// SearchResponse holds search hits in backend order.
type SearchResponse struct {
	Matches []SearchMatch `json:"matches"`
}

// Session is a Honcho session (a liquid-mail topic).
type Session struct {
	ID        string   `json:"id"`
	CreatedAt string   `json:"created_at,omitempty"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// SessionRequest creates a session, or fetches it when ID already exists.
// An empty ID asks the client to generate one.
type SessionRequest struct {
	ID       string
	Title    string
	Metadata Metadata
}

// Message is one entry in a session log.
type Message struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	PeerID    string   `json:"peer_id"`
	Content   string   `json:"content"`
	CreatedAt string   `json:"created_at,omitempty"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// Time parses CreatedAt. ok is false when the message has no usable timestamp.
func (m Message) Time() (time.Time, bool) {
	return ParseTime(m.CreatedAt)
}

// MessageCreate is the body for posting one message.
type MessageCreate struct {
	PeerID   string   `json:"peer_id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// ListMessagesOptions bounds a message listing.
type ListMessagesOptions struct {
	Since   string
	Until   string
	Limit   int
	Reverse bool // newest first
}

// Summary kinds.
const (
	SummaryShort = "short"
	SummaryLong  = "long"
)

// Summary is a backend-generated session summary.
type Summary struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind,omitempty"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ChatMessage is one turn in a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// JSONSchema names a schema for structured chat output.
type JSONSchema struct {
	Name   string `json:"name,omitempty"`
	Schema any    `json:"schema"`
}

// ResponseFormat requests schema-constrained JSON output.
type ResponseFormat struct {
	Type       string     `json:"type"`
	JSONSchema JSONSchema `json:"json_schema"`
}

// ChatRequest asks a peer a question.
type ChatRequest struct {
	Messages       []ChatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatResponse carries the answer in up to three places; structured callers
// prefer OutputJSON, then OutputText, then Message.Content.
type ChatResponse struct {
	Message    ChatMessage     `json:"message"`
	OutputText string          `json:"output_text,omitempty"`
	OutputJSON json.RawMessage `json:"output_json,omitempty"`
}

// SchemaFormat builds a json_schema response format.
func SchemaFormat(name string, schema any) *ResponseFormat {
	return &ResponseFormat{Type: "json_schema", JSONSchema: JSONSchema{Name: name, Schema: schema}}
}

// page is the paginated envelope of list endpoints.
type page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}
