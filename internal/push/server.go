// Package push runs a small HTTP endpoint that external tools (CI, git
// hooks, schedulers) can POST to. Each hook is echoed to the terminal,
// optionally raised as a desktop notification and optionally forwarded into
// a topic.
package push

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/telemetry"
)

// SecretHeader carries the shared secret when one is configured.
const SecretHeader = "x-liquid-mail-secret"

// Metadata written on forwarded messages.
const (
	MetaKind  = "lm.kind"
	MetaEvent = "lm.event"
	KindPush  = "push"
)

const (
	maxBodyBytes = 1 << 20
	lineLimit    = 200
)

// Poster forwards hooks into a topic.
type Poster interface {
	CreateMessage(ctx context.Context, sessionID string, msg honcho.MessageCreate) (*honcho.Message, error)
}

// Notifier raises desktop notifications.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Server handles hook requests.
type Server struct {
	secret   string
	topicID  string
	peerID   string
	poster   Poster
	notifier Notifier

	outMu sync.Mutex
	out   io.Writer
	json  bool

	mux        *http.ServeMux
	httpServer *http.Server
	ops        *telemetry.Ops
}

// ServerConfig holds configuration for the push server.
type ServerConfig struct {
	Secret   string   // required in SecretHeader when non-empty
	TopicID  string   // forward target; empty disables forwarding
	PeerID   string   // author of forwarded messages
	Poster   Poster   // required when TopicID is set
	Notifier Notifier // nil disables desktop notifications
	Out      io.Writer
	JSON     bool
}

// NewServer creates a push server.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		secret:   cfg.Secret,
		topicID:  cfg.TopicID,
		peerID:   cfg.PeerID,
		poster:   cfg.Poster,
		notifier: cfg.Notifier,
		out:      cfg.Out,
		json:     cfg.JSON,
		mux:      http.NewServeMux(),
		ops:      telemetry.NewOps("push"),
	}
	if s.out == nil {
		s.out = io.Discard
	}
	if s.peerID == "" {
		s.peerID = "liquid-mail"
	}
	s.mux.HandleFunc("/", s.route)
	return s
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Payload is the hook request body. Every field is optional.
type Payload struct {
	Event string          `json:"event,omitempty"`
	Title string          `json:"title,omitempty"`
	Body  string          `json:"body,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hook is a payload with defaults applied.
type Hook struct {
	Event   string  `json:"event"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	Payload Payload `json:"payload"`
}

// Normalize fills in the event, title and body defaults.
func Normalize(p Payload) Hook {
	h := Hook{Payload: p}
	h.Event = strings.TrimSpace(p.Event)
	if h.Event == "" {
		h.Event = "push"
	}
	h.Title = strings.TrimSpace(p.Title)
	if h.Title == "" {
		h.Title = fmt.Sprintf("Liquid Mail (%s)", h.Event)
	}
	h.Body = strings.TrimSpace(p.Body)
	if h.Body == "" {
		h.Body = compactData(p.Data)
	}
	if h.Body == "" {
		h.Body = "(no body)"
	}
	return h
}

// compactData renders data as a string if it is one, else as compact JSON.
func compactData(data json.RawMessage) string {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return string(b)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && (r.URL.Path == "/" || r.URL.Path == "/health"):
		s.handleHealth(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/hook":
		s.handleHook(w, r)
	default:
		s.writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
}

// handleHealth handles GET /health for load balancer checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]string{"status": "ok"}})
}

// handleHook handles POST /hook.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	if s.secret != "" {
		provided := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.secret)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid secret")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	defer func() { _ = r.Body.Close() }()
	var p Payload
	if err == nil {
		err = json.Unmarshal(body, &p)
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	hook := Normalize(p)
	ctx := r.Context()
	s.ops.Count(ctx, "hooks", 1, attribute.String("event", hook.Event))
	s.print(hook)

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, hook.Title, hook.Body); err != nil {
			debug.Logf("push notification failed: %v", err)
		}
	}
	s.forward(ctx, hook)

	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]bool{"received": true}})
}

// forward posts the hook into the configured topic. Failures are reported
// and otherwise ignored.
func (s *Server) forward(ctx context.Context, hook Hook) {
	if s.topicID == "" || s.poster == nil {
		return
	}
	_, err := s.poster.CreateMessage(ctx, s.topicID, honcho.MessageCreate{
		PeerID:  s.peerID,
		Content: fmt.Sprintf("[push:%s] %s\n\n%s", hook.Event, hook.Title, hook.Body),
		Metadata: honcho.Metadata{
			MetaKind:  KindPush,
			MetaEvent: hook.Event,
		},
	})
	if err != nil {
		debug.Logf("push forward to %s failed: %v", s.topicID, err)
		if !s.json {
			s.printf("[push] failed to post to %s: %v\n", s.topicID, err)
		}
		return
	}
	debug.LogEvent("push", s.topicID, "", hook.Event)
}

func (s *Server) print(hook Hook) {
	if s.json {
		data, err := json.MarshalIndent(map[string]any{"ok": true, "data": hook}, "", "  ")
		if err != nil {
			return
		}
		s.printf("%s\n", data)
		return
	}
	s.printf("[push] %s: %s - %s\n", hook.Event, hook.Title, OneLine(hook.Body, lineLimit))
}

func (s *Server) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = fmt.Fprintf(s.out, format, args...)
}

// OneLine flattens newlines and truncates to n runes, marking the cut
// with "…".
func OneLine(v string, n int) string {
	line := strings.TrimSpace(strings.ReplaceAll(v, "\n", " "))
	r := []rune(line)
	if len(r) <= n {
		return line
	}
	return string(r[:max(0, n-1)]) + "…"
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// writeError writes a JSON error envelope.
func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]any{
		"ok":    false,
		"error": map[string]any{"code": code, "message": message, "retryable": false},
	})
}
