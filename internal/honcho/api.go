package honcho

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
)

func pageParams(size int) url.Values {
	return url.Values{"page": {"1"}, "size": {strconv.Itoa(size)}}
}

// Search runs a fuzzy search across the workspace.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultSearchLimit
	}
	var messages []Message
	if err := c.doJSON(ctx, http.MethodPost, c.workspacePath("/search"), nil, req, &messages); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := &SearchResponse{Matches: make([]SearchMatch, 0, len(messages))}
	for _, m := range messages {
		out.Matches = append(out.Matches, SearchMatch{
			TopicID:   m.SessionID,
			MessageID: m.ID,
			PeerID:    m.PeerID,
			Snippet:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

// GetOrCreateSession returns the session with req.ID, creating it (with
// req.Metadata) when missing. An empty ID creates a fresh generated id.
func (c *Client) GetOrCreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	id := req.ID
	if id == "" {
		id = NewSessionID()
	}
	meta := Metadata{}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.Title != "" {
		meta["lm.title"] = req.Title
	}
	body := map[string]any{"id": id, "metadata": meta}
	var s Session
	if err := c.doJSON(ctx, http.MethodPost, c.workspacePath("/sessions"), nil, body, &s); err != nil {
		return nil, fmt.Errorf("get or create session %s: %w", id, err)
	}
	if s.ID == "" {
		s.ID = id
	}
	return &s, nil
}

// ListSessions returns up to limit sessions, newest first (created_at desc,
// then id desc).
func (c *Client) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultSessionListLimit
	}
	var p page[Session]
	body := map[string]any{"filters": nil}
	if err := c.doJSON(ctx, http.MethodPost, c.workspacePath("/sessions/list"), pageParams(limit), body, &p); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := SortSessionsNewestFirst(p.Items)
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// SortSessionsNewestFirst orders sessions by created_at desc then id desc.
func SortSessionsNewestFirst(in []Session) []Session {
	out := append([]Session(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// SessionExists reports whether a session with id exists, without creating it.
func (c *Client) SessionExists(ctx context.Context, id string) (bool, error) {
	var p page[Session]
	body := map[string]any{"filters": map[string]any{"session_ids": []string{id}}}
	if err := c.doJSON(ctx, http.MethodPost, c.workspacePath("/sessions/list"), pageParams(1), body, &p); err != nil {
		return false, fmt.Errorf("session exists %s: %w", id, err)
	}
	for _, s := range p.Items {
		if s.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// GetOrCreatePeer ensures a peer exists.
func (c *Client) GetOrCreatePeer(ctx context.Context, id string) error {
	body := map[string]any{"id": id}
	if err := c.doJSON(ctx, http.MethodPost, c.workspacePath("/peers"), nil, body, nil); err != nil {
		return fmt.Errorf("get or create peer %s: %w", id, err)
	}
	return nil
}

// CreateMessage appends one message to a session, creating the session and
// peer on first use. The append itself is retried only on HTTP 429.
func (c *Client) CreateMessage(ctx context.Context, sessionID string, msg MessageCreate) (*Message, error) {
	if _, err := c.GetOrCreateSession(ctx, SessionRequest{ID: sessionID}); err != nil {
		return nil, err
	}
	if err := c.GetOrCreatePeer(ctx, msg.PeerID); err != nil {
		return nil, err
	}
	body := map[string]any{"messages": []MessageCreate{msg}}
	var created []Message
	path := c.workspacePath("/sessions/%s/messages", sessionID)
	if err := c.doJSONNoReplay(ctx, http.MethodPost, path, nil, body, &created); err != nil {
		return nil, fmt.Errorf("create message in %s: %w", sessionID, err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("create message in %s: backend returned no messages", sessionID)
	}
	m := created[0]
	if m.SessionID == "" {
		m.SessionID = sessionID
	}
	return &m, nil
}

// ListMessages lists messages in a session. Limit is clamped to
// [1, MaxListLimit] (default DefaultListLimit).
func (c *Client) ListMessages(ctx context.Context, sessionID string, opts ListMessagesOptions) ([]Message, error) {
	size := opts.Limit
	if size == 0 {
		size = DefaultListLimit
	}
	size = min(max(size, 1), MaxListLimit)

	params := pageParams(size)
	if opts.Reverse {
		params.Set("reverse", "true")
	}
	body := map[string]any{"filters": nil}
	if opts.Since != "" || opts.Until != "" {
		f := map[string]string{}
		if opts.Since != "" {
			f["since"] = opts.Since
		}
		if opts.Until != "" {
			f["until"] = opts.Until
		}
		body["filters"] = f
	}

	var p page[Message]
	path := c.workspacePath("/sessions/%s/messages/list", sessionID)
	if err := c.doJSON(ctx, http.MethodPost, path, params, body, &p); err != nil {
		return nil, fmt.Errorf("list messages in %s: %w", sessionID, err)
	}
	for i := range p.Items {
		if p.Items[i].SessionID == "" {
			p.Items[i].SessionID = sessionID
		}
	}
	return p.Items, nil
}

type summaryBody struct {
	Content     string `json:"content"`
	SummaryType string `json:"summary_type"`
	CreatedAt   string `json:"created_at"`
}

// Summaries returns the short and long summaries that exist for a session,
// short first.
func (c *Client) Summaries(ctx context.Context, sessionID string) ([]Summary, error) {
	var resp struct {
		ShortSummary *summaryBody `json:"short_summary"`
		LongSummary  *summaryBody `json:"long_summary"`
	}
	path := c.workspacePath("/sessions/%s/summaries", sessionID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("summaries for %s: %w", sessionID, err)
	}
	var out []Summary
	for _, s := range []*summaryBody{resp.ShortSummary, resp.LongSummary} {
		if s == nil {
			continue
		}
		out = append(out, Summary{SessionID: sessionID, Kind: s.SummaryType, Content: s.Content, CreatedAt: s.CreatedAt})
	}
	return out, nil
}

// Chat sends a chat request to a peer.
func (c *Client) Chat(ctx context.Context, peerID string, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, c.workspacePath("/peers/%s/chat", peerID), nil, req, &resp); err != nil {
		return nil, fmt.Errorf("chat with %s: %w", peerID, err)
	}
	return &resp, nil
}
