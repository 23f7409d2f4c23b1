// Package watch follows a topic, printing each new message once.
//
// A per-window cursor (newest timestamp plus the ids seen at that instant)
// lives in the state store, so a restarted watcher resumes where it stopped.
// A fresh cursor starts at the current time; pre-existing history is only
// shown through the tail option.
package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/state"
	"github.com/liquidmail/liquid-mail/internal/telemetry"
)

const (
	// DefaultInterval is the pause between polls.
	DefaultInterval = 2 * time.Second

	// PollLimit is the page size of each poll.
	PollLimit = 100
)

// Lister lists a topic's messages.
type Lister interface {
	ListMessages(ctx context.Context, sessionID string, opts honcho.ListMessagesOptions) ([]honcho.Message, error)
}

// Store keeps cursors and aliases.
type Store interface {
	WatchCursor(window, topic string) (state.Cursor, bool)
	SetWatchCursor(window, topic string, c state.Cursor) error
	ResolveAlias(name string) string
}

// Options configures a watch.
type Options struct {
	WindowID string
	TopicID  string
	Interval time.Duration
	Once     bool // return after one poll
	Tail     int  // show this many recent messages first
	Notify   bool // desktop notification per new message

	// Wake, when set, cuts the sleep between polls short.
	Wake <-chan struct{}
}

// Watcher runs the poll loop.
type Watcher struct {
	lister   Lister
	store    Store
	sink     Sink
	notifier Notifier
	opts     Options
	now      func() time.Time
	ops      *telemetry.Ops

	topic string
}

// New builds a watcher.
func New(lister Lister, store Store, sink Sink, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Watcher{
		lister:   lister,
		store:    store,
		sink:     sink,
		notifier: Desktop{},
		opts:     opts,
		now:      time.Now,
		ops:      telemetry.NewOps("watch"),
		topic:    opts.TopicID,
	}
}

// WithNotifier replaces the desktop notifier.
func (w *Watcher) WithNotifier(n Notifier) *Watcher {
	w.notifier = n
	return w
}

// WithClock replaces the clock used to seed new cursors.
func (w *Watcher) WithClock(now func() time.Time) *Watcher {
	w.now = now
	return w
}

// Topic is the topic currently followed. It changes when the original topic
// is aliased (renamed or merged) while watching.
func (w *Watcher) Topic() string { return w.topic }

// Run polls until ctx is cancelled, or once when Options.Once is set.
// Cancellation is a clean stop.
func (w *Watcher) Run(ctx context.Context) error {
	if w.opts.Tail > 0 {
		if err := w.tail(ctx); err != nil {
			return stopped(ctx, err)
		}
	}

	cursor := w.cursor(w.topic, nil)
	for {
		cursor = w.follow(cursor)

		next, err := w.poll(ctx, cursor)
		if err != nil {
			return stopped(ctx, err)
		}
		cursor = next

		if w.opts.Once {
			return nil
		}
		if !w.sleep(ctx) {
			return nil
		}
	}
}

func stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// tail prints the most recent messages without touching the cursor.
func (w *Watcher) tail(ctx context.Context) error {
	msgs, err := w.lister.ListMessages(ctx, w.topic, honcho.ListMessagesOptions{Limit: w.opts.Tail, Reverse: true})
	if err != nil {
		return err
	}
	if len(msgs) > w.opts.Tail {
		msgs = msgs[:w.opts.Tail]
	}
	for _, m := range SortByCreated(msgs) {
		if err := w.sink.Emit(m); err != nil {
			return err
		}
	}
	return nil
}

// cursor loads topic's cursor, or creates one from seed (or now) and
// persists it.
func (w *Watcher) cursor(topic string, seed *state.Cursor) state.Cursor {
	if c, ok := w.store.WatchCursor(w.opts.WindowID, topic); ok {
		return c
	}
	c := state.Cursor{LastSeenAt: w.now().UTC(), LastSeenIDs: []string{}}
	if seed != nil {
		c = *seed
	}
	w.persist(topic, c)
	return c
}

// follow switches to the canonical topic when the followed one has been
// aliased, carrying the cursor over.
func (w *Watcher) follow(cursor state.Cursor) state.Cursor {
	canonical := w.store.ResolveAlias(w.topic)
	if canonical == w.topic || canonical == "" {
		return cursor
	}
	debug.Logf("watch: topic %s now resolves to %s; following", w.topic, canonical)
	debug.LogEvent("watch_follow", canonical, w.opts.WindowID, "from="+w.topic)
	w.topic = canonical
	return w.cursor(canonical, &cursor)
}

func (w *Watcher) poll(ctx context.Context, cursor state.Cursor) (_ state.Cursor, err error) {
	ctx, done := w.ops.Start(ctx, "poll", attribute.String("topic", w.topic))
	defer func() { done(err) }()

	batch, err := w.lister.ListMessages(ctx, w.topic, honcho.ListMessagesOptions{
		Since: honcho.FormatTime(cursor.LastSeenAt),
		Limit: PollLimit,
	})
	if err != nil {
		return cursor, err
	}

	fresh := Fresh(batch, cursor)
	for _, m := range fresh {
		if err := w.sink.Emit(m); err != nil {
			return cursor, fmt.Errorf("emit message %s: %w", m.ID, err)
		}
		if w.opts.Notify && w.notifier != nil {
			title := "Liquid Mail: " + m.SessionID
			if err := w.notifier.Notify(ctx, title, Excerpt(m.Content, ExcerptLen)); err != nil {
				debug.Logf("watch: %v", err)
			}
		}
	}
	if len(fresh) == 0 {
		return cursor, nil
	}
	w.ops.Count(ctx, "messages", int64(len(fresh)), attribute.String("topic", w.topic))

	next := Advance(cursor, fresh)
	w.persist(w.topic, next)
	return next, nil
}

func (w *Watcher) persist(topic string, c state.Cursor) {
	if err := w.store.SetWatchCursor(w.opts.WindowID, topic, c); err != nil {
		debug.Logf("watch: persist cursor for %s: %v", topic, err)
	}
}

// sleep waits one interval. It returns false when ctx is done.
func (w *Watcher) sleep(ctx context.Context) bool {
	t := time.NewTimer(w.opts.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	case <-w.opts.Wake:
		return true
	}
}
