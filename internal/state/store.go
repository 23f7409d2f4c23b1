package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/liquidmail/liquid-mail/internal/debug"
)

const (
	// DefaultLockTimeout bounds the wait for the state lock. On timeout the
	// write proceeds without it.
	DefaultLockTimeout = 2 * time.Second

	lockPollInterval = 25 * time.Millisecond
)

// Store reads and writes one state file. Every call reads the file afresh;
// mutations hold an advisory lock on <path>.lock for their read-modify-write
// and replace the file with an atomic rename.
type Store struct {
	path        string
	lockTimeout time.Duration
	now         func() time.Time
	written     *lastWrite
}

// lastWrite remembers the file this store last put in place.
type lastWrite struct {
	mu   sync.Mutex
	info os.FileInfo
}

func (l *lastWrite) set(info os.FileInfo) {
	l.mu.Lock()
	l.info = info
	l.mu.Unlock()
}

// matches reports whether info is the file recorded by set, unmodified.
func (l *lastWrite) matches(info os.FileInfo) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info != nil && os.SameFile(l.info, info) &&
		l.info.ModTime().Equal(info.ModTime()) && l.info.Size() == info.Size()
}

// New returns a store backed by path.
func New(path string) *Store {
	return &Store{path: path, lockTimeout: DefaultLockTimeout, now: time.Now, written: &lastWrite{}}
}

// ForDir returns the store used from cwd.
func ForDir(cwd string) *Store {
	return New(PathFor(cwd))
}

// Path is the state file location.
func (s *Store) Path() string { return s.path }

// WithClock returns a copy of s using now for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	cp := *s
	cp.now = now
	return &cp
}

// Load reads the state. Missing, unreadable or corrupt files yield Default();
// older schema versions are migrated in memory only.
func (s *Store) Load() *State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			debug.Logf("state: read %s: %v (using empty state)", s.path, err)
		}
		return Default()
	}
	st, ok := Decode(data)
	if !ok {
		debug.Logf("state: %s is not a valid state document (using empty state)", s.path)
	}
	return st
}

// Update runs fn on freshly loaded state under the lock and writes the result
// when fn reports a change.
func (s *Store) Update(fn func(st *State) (changed bool, err error)) error {
	unlock := s.lock()
	defer unlock()

	st := s.Load()
	changed, err := fn(st)
	if err != nil || !changed {
		return err
	}
	st.Version = CurrentVersion
	return s.write(st)
}

// lock takes the advisory lock, giving up after lockTimeout.
func (s *Store) lock() func() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		debug.Logf("state: create %s: %v", filepath.Dir(s.path), err)
		return func() {}
	}
	fl := flock.New(s.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, lockPollInterval)
	if err != nil || !locked {
		debug.Logf("state: lock %s not acquired (%v); writing unlocked", fl.Path(), err)
		return func() {}
	}
	return func() { _ = fl.Unlock() }
}

func (s *Store) write(st *State) error {
	data, err := Encode(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp state file: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.written.set(info)
	}
	return nil
}

// ownWrite reports whether the file on disk is the one this store last wrote.
func (s *Store) ownWrite() bool {
	info, err := os.Stat(s.path)
	return err == nil && s.written.matches(info)
}

// PinnedTopic returns the topic pinned to window.
func (s *Store) PinnedTopic(window string) (string, bool) {
	w := s.Load().Windows[window]
	if w == nil || w.TopicID == "" {
		return "", false
	}
	return w.TopicID, true
}

// SetPinnedTopic pins topic to window. Nothing is written when the pin is
// unchanged.
func (s *Store) SetPinnedTopic(window, topic string) error {
	if current, ok := s.PinnedTopic(window); ok && current == topic {
		return nil
	}
	return s.Update(func(st *State) (bool, error) {
		w := st.window(window)
		if w.TopicID == topic {
			return false, nil
		}
		w.TopicID = topic
		w.UpdatedAt = s.now().UTC()
		return true, nil
	})
}

// Unpin clears window's pin, reporting whether one existed.
func (s *Store) Unpin(window string) (bool, error) {
	var had bool
	err := s.Update(func(st *State) (bool, error) {
		w := st.Windows[window]
		if w == nil || w.TopicID == "" {
			return false, nil
		}
		had = true
		w.TopicID = ""
		w.UpdatedAt = s.now().UTC()
		return true, nil
	})
	return had, err
}

// ReplacePinnedTopic repoints every window pinned to oldTopic at newTopic and
// returns how many were changed.
func (s *Store) ReplacePinnedTopic(oldTopic, newTopic string) (int, error) {
	count := 0
	err := s.Update(func(st *State) (bool, error) {
		now := s.now().UTC()
		for _, w := range st.Windows {
			if w.TopicID == oldTopic && oldTopic != newTopic {
				w.TopicID = newTopic
				w.UpdatedAt = now
				count++
			}
		}
		return count > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Alias returns the direct alias target of name.
func (s *Store) Alias(name string) (string, bool) {
	target, ok := s.Load().Aliases[name]
	return target, ok && target != ""
}

// Aliases returns a copy of the alias map.
func (s *Store) Aliases() map[string]string {
	out := map[string]string{}
	for k, v := range s.Load().Aliases {
		out[k] = v
	}
	return out
}

// SetAlias records that oldName now means newName, then flattens every chain.
func (s *Store) SetAlias(oldName, newName string) error {
	return s.Update(func(st *State) (bool, error) {
		st.Aliases[oldName] = newName
		flattenAliases(st.Aliases)
		return true, nil
	})
}

// RemoveAlias deletes an alias, reporting whether it existed.
func (s *Store) RemoveAlias(name string) (bool, error) {
	var had bool
	err := s.Update(func(st *State) (bool, error) {
		_, had = st.Aliases[name]
		delete(st.Aliases, name)
		return had, nil
	})
	return had, err
}

// ResolveAlias returns the canonical name for name.
func (s *Store) ResolveAlias(name string) string {
	return resolveAlias(s.Load().Aliases, name)
}

// FlattenAliases rewrites the alias map to direct edges, writing only when
// something changed.
func (s *Store) FlattenAliases() error {
	return s.Update(func(st *State) (bool, error) {
		return flattenAliases(st.Aliases), nil
	})
}

// WatchCursor returns window's cursor for topic.
func (s *Store) WatchCursor(window, topic string) (Cursor, bool) {
	w := s.Load().Windows[window]
	if w == nil || w.Watch == nil {
		return Cursor{}, false
	}
	c := w.Watch.Topics[topic]
	if c == nil || c.LastSeenAt.IsZero() {
		return Cursor{}, false
	}
	return *c, true
}

// SetWatchCursor stores window's cursor for topic. LastSeenIDs is
// deduplicated and capped at MaxLastSeenIDs.
func (s *Store) SetWatchCursor(window, topic string, c Cursor) error {
	c.LastSeenIDs = CapIDs(c.LastSeenIDs)
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now().UTC()
	}
	c.LastSeenAt = c.LastSeenAt.UTC()
	return s.Update(func(st *State) (bool, error) {
		w := st.window(window)
		if w.Watch == nil {
			w.Watch = &Watch{}
		}
		if w.Watch.Topics == nil {
			w.Watch.Topics = map[string]*Cursor{}
		}
		w.Watch.Topics[topic] = &c
		return true, nil
	})
}

// Windows returns the windows in the state, keyed by id.
func (s *Store) Windows() map[string]Window {
	out := map[string]Window{}
	for id, w := range s.Load().Windows {
		out[id] = *w
	}
	return out
}

// CapIDs deduplicates ids preserving first occurrence, keeping at most
// MaxLastSeenIDs entries (the most recent ones).
func CapIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) > MaxLastSeenIDs {
		out = out[len(out)-MaxLastSeenIDs:]
	}
	return out
}
