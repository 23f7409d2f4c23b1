package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/liquidmail/liquid-mail/internal/honcho"
)

type postedMessage struct {
	SessionID string
	Msg       honcho.MessageCreate
}

// fakeBackend records calls and serves canned results.
type fakeBackend struct {
	mu sync.Mutex

	matches   []honcho.SearchMatch
	sessions  []honcho.Session
	summaries map[string][]honcho.Summary
	answers   []string // chat payloads, consumed in order
	chatErr   error

	created   []honcho.SessionRequest
	posted    []postedMessage
	chatCalls int
	nextID    int
}

func (f *fakeBackend) Search(ctx context.Context, req honcho.SearchRequest) (*honcho.SearchResponse, error) {
	return &honcho.SearchResponse{Matches: f.matches}, nil
}

func (f *fakeBackend) ListSessions(ctx context.Context, limit int) ([]honcho.Session, error) {
	if len(f.sessions) > limit {
		return f.sessions[:limit], nil
	}
	return f.sessions, nil
}

func (f *fakeBackend) GetOrCreateSession(ctx context.Context, req honcho.SessionRequest) (*honcho.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	f.nextID++
	return &honcho.Session{ID: fmt.Sprintf("new-%d", f.nextID)}, nil
}

func (f *fakeBackend) Summaries(ctx context.Context, sessionID string) ([]honcho.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaries[sessionID], nil
}

func (f *fakeBackend) CreateMessage(ctx context.Context, sessionID string, msg honcho.MessageCreate) (*honcho.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, postedMessage{SessionID: sessionID, Msg: msg})
	return &honcho.Message{ID: "m", SessionID: sessionID, PeerID: msg.PeerID, Content: msg.Content}, nil
}

func (f *fakeBackend) Chat(ctx context.Context, peerID string, req honcho.ChatRequest) (*honcho.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	if len(f.answers) == 0 {
		return &honcho.ChatResponse{}, nil
	}
	a := f.answers[0]
	f.answers = f.answers[1:]
	return &honcho.ChatResponse{OutputJSON: json.RawMessage(a)}, nil
}

func sessionsNamed(ids ...string) []honcho.Session {
	out := make([]honcho.Session, len(ids))
	for i, id := range ids {
		out[i] = honcho.Session{ID: id}
	}
	return out
}

func matchesFor(ids ...string) []honcho.SearchMatch {
	out := make([]honcho.SearchMatch, len(ids))
	for i, id := range ids {
		out[i] = honcho.SearchMatch{TopicID: id}
	}
	return out
}
