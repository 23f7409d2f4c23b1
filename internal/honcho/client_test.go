package honcho

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liquidmail/liquid-mail/internal/config"
	"github.com/liquidmail/liquid-mail/internal/lmerr"
)

func init() {
	RetryDelay = time.Millisecond
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.HonchoAuth{BaseURL: srv.URL, APIKey: "hc_test", WorkspaceID: "ws-test"})
}

func TestListSessionsSortsNewestFirst(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/workspaces/ws-test/sessions/list", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("size"))
		assert.Equal(t, "Bearer hc_test", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"items":[
			{"id":"s1","created_at":"2026-01-01T00:00:00.000Z"},
			{"id":"s2","created_at":"2026-02-01T00:00:00.000Z"},
			{"id":"s3","created_at":"2025-12-31T00:00:00.000Z"}
		],"page":1,"size":2,"total":3,"pages":2}`)
	})

	sessions, err := client.ListSessions(context.Background(), 2)
	require.NoError(t, err)
	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.Equal(t, []string{"s2", "s1"}, ids)
}

func TestSearchMapsMessagesToMatches(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/workspaces/ws-test/search", r.URL.Path)
		var req SearchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "token refresh", req.Query)
		assert.Equal(t, DefaultSearchLimit, req.Limit)
		_, _ = io.WriteString(w, `[{"id":"m1","session_id":"auth-system","peer_id":"alice","content":"refresh tokens"}]`)
	})

	resp, err := client.Search(context.Background(), SearchRequest{Query: "token refresh"})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, SearchMatch{TopicID: "auth-system", MessageID: "m1", PeerID: "alice", Snippet: "refresh tokens"}, resp.Matches[0])
}

func TestSessionExists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"session_ids":["auth-system"]`)
		_, _ = io.WriteString(w, `{"items":[{"id":"auth-system"}],"page":1,"size":1,"total":1,"pages":1}`)
	})
	ok, err := client.SessionExists(context.Background(), "auth-system")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateMessageEnsuresSessionAndPeer(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch {
		case strings.HasSuffix(r.URL.Path, "/sessions"):
			_, _ = io.WriteString(w, `{"id":"auth-system"}`)
		case strings.HasSuffix(r.URL.Path, "/peers"):
			_, _ = io.WriteString(w, `{"id":"alice"}`)
		default:
			_, _ = io.WriteString(w, `[{"id":"m9","session_id":"auth-system","peer_id":"alice","content":"hi","created_at":"2026-02-04T00:00:00Z"}]`)
		}
	})

	msg, err := client.CreateMessage(context.Background(), "auth-system", MessageCreate{PeerID: "alice", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)
	assert.Equal(t, []string{
		"/v3/workspaces/ws-test/sessions",
		"/v3/workspaces/ws-test/peers",
		"/v3/workspaces/ws-test/sessions/auth-system/messages",
	}, paths)
}

func TestCreateMessageIsNotReplayed(t *testing.T) {
	var appends atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			_, _ = io.WriteString(w, `{"id":"x"}`)
			return
		}
		appends.Add(1)
		hj, ok := w.(http.Hijacker)
		if !assert.True(t, ok) {
			return
		}
		conn, _, err := hj.Hijack()
		if assert.NoError(t, err) {
			_ = conn.Close()
		}
	})

	_, err := client.CreateMessage(context.Background(), "auth-system", MessageCreate{PeerID: "alice", Content: "hi"})
	require.Error(t, err)
	assert.Equal(t, lmerr.CodeRequestFailed, lmerr.From(err).Code)
	assert.Equal(t, int32(1), appends.Load(), "lost response must not be re-sent")
}

func TestCreateMessageRetriesRateLimit(t *testing.T) {
	var appends atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			_, _ = io.WriteString(w, `{"id":"x"}`)
			return
		}
		switch appends.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = io.WriteString(w, `[{"id":"m1"}]`)
		}
	})

	_, err := client.CreateMessage(context.Background(), "auth-system", MessageCreate{PeerID: "alice", Content: "hi"})
	require.Error(t, err)
	assert.Equal(t, lmerr.CodeUnavailable, lmerr.From(err).Code)
	assert.Equal(t, int32(2), appends.Load())
}

func TestListMessagesClampsAndFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "200", r.URL.Query().Get("size"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"since":"2026-02-04T00:00:00Z"`)
		_, _ = io.WriteString(w, `{"items":[{"id":"m1","peer_id":"a","content":"x"}],"page":1,"size":200,"total":1,"pages":1}`)
	})
	msgs, err := client.ListMessages(context.Background(), "auth-system", ListMessagesOptions{Since: "2026-02-04T00:00:00Z", Limit: 5000})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "auth-system", msgs[0].SessionID)
}

func TestSummaries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{"short_summary":{"content":"short one","summary_type":"short"},"long_summary":null}`)
	})
	sums, err := client.Summaries(context.Background(), "auth-system")
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, SummaryShort, sums[0].Kind)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		code      lmerr.Code
		exit      int
		retryable bool
		calls     int32
	}{
		{http.StatusUnauthorized, lmerr.CodeAuthFailed, 3, false, 1},
		{http.StatusForbidden, lmerr.CodeAuthFailed, 3, false, 1},
		{http.StatusTooManyRequests, lmerr.CodeRateLimited, 4, true, 3},
		{http.StatusBadGateway, lmerr.CodeUnavailable, 5, true, 3},
		{http.StatusNotFound, lmerr.CodeRequestFailed, 6, false, 1},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"detail":"nope"}`)
			})
			_, err := client.ListSessions(context.Background(), 5)
			require.Error(t, err)
			e := lmerr.From(err)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.exit, e.ExitCode)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.Equal(t, tt.calls, calls.Load(), "attempts")
		})
	}
}

func TestRetryThenSucceed(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"items":[],"page":1,"size":5,"total":0,"pages":0}`)
	})
	sessions, err := client.ListSessions(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNetworkFailure(t *testing.T) {
	client := NewClient(config.HonchoAuth{BaseURL: "http://127.0.0.1:1", APIKey: "k", WorkspaceID: "w"}).WithMaxRetries(0)
	_, err := client.ListSessions(context.Background(), 1)
	require.Error(t, err)
	e := lmerr.From(err)
	assert.Equal(t, lmerr.CodeRequestFailed, e.Code)
	assert.True(t, e.Retryable)
}

func TestChatDecodesOutputJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/workspaces/ws-test/peers/liquid-mail/chat", r.URL.Path)
		var req ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.NotNil(t, req.ResponseFormat) {
			assert.Equal(t, "json_schema", req.ResponseFormat.Type)
		}
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":""},"output_json":{"decisions":["use postgres"]}}`)
	})
	zero := 0.0
	resp, err := client.Chat(context.Background(), "liquid-mail", ChatRequest{
		Messages:       []ChatMessage{{Role: "user", Content: "extract"}},
		Temperature:    &zero,
		ResponseFormat: SchemaFormat("decision_extract_v1", map[string]any{"type": "object"}),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"decisions":["use postgres"]}`, string(resp.OutputJSON))
}
