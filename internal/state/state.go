// Package state persists liquid-mail's per-repository local state: which
// topic each window is pinned to, topic aliases left behind by renames and
// merges, and per-window watch cursors.
//
// The state file is advisory. A missing or unreadable file behaves like an
// empty one, and callers treat failed writes as non-fatal.
package state

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/git"
	"github.com/liquidmail/liquid-mail/internal/honcho"
)

// CurrentVersion is the schema version written by this package.
const CurrentVersion = 2

// MaxLastSeenIDs caps the same-instant id set kept on a cursor.
const MaxLastSeenIDs = 50

// Paths of the state file inside a repository and in the home directory.
const (
	DirName      = ".liquid-mail"
	FileName     = "state.json"
	HomeFileName = ".liquid-mail-state.json"
)

// State is the whole on-disk document.
type State struct {
	Version int                `json:"version"`
	Windows map[string]*Window `json:"windows"`
	Aliases map[string]string  `json:"aliases"`
}

// Window is one window's entry.
type Window struct {
	TopicID   string    `json:"topic_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Watch     *Watch    `json:"watch,omitempty"`
}

// Watch holds a window's cursors keyed by topic id.
type Watch struct {
	Topics map[string]*Cursor `json:"topics,omitempty"`
}

// Cursor marks what a window has already seen in a topic. LastSeenIDs holds
// the ids of messages created exactly at LastSeenAt.
type Cursor struct {
	LastSeenAt  time.Time `json:"last_seen_at,omitzero"`
	LastSeenIDs []string  `json:"last_seen_ids"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Default returns an empty current-version state.
func Default() *State {
	return &State{Version: CurrentVersion, Windows: map[string]*Window{}, Aliases: map[string]string{}}
}

// PathFor returns the state file used from cwd: <repo>/.liquid-mail/state.json
// inside a repository, else ~/.liquid-mail-state.json.
func PathFor(cwd string) string {
	if root, ok := git.FindRoot(cwd); ok {
		return filepath.Join(root, DirName, FileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, HomeFileName)
}

// Decode parses a state document, migrating older versions. ok is false when
// data is not a recognisable state document; the returned state is then
// Default().
func Decode(data []byte) (s *State, ok bool) {
	var raw struct {
		Version int             `json:"version"`
		Windows json.RawMessage `json:"windows"`
		Aliases json.RawMessage `json:"aliases"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Default(), false
	}
	if !isObject(raw.Windows) {
		return Default(), false
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw.Windows, &entries); err != nil {
		return Default(), false
	}
	out := Default()
	for id, entry := range entries {
		w := &Window{}
		if err := json.Unmarshal(entry, w); err != nil {
			debug.Logf("state: dropping unreadable window %q: %v", id, err)
			continue
		}
		out.Windows[id] = w
	}
	switch raw.Version {
	case 1:
		// v1 had no aliases.
	case 2:
		if !isObject(raw.Aliases) {
			return Default(), false
		}
		if err := json.Unmarshal(raw.Aliases, &out.Aliases); err != nil {
			return Default(), false
		}
	default:
		return Default(), false
	}
	return out, true
}

// UnmarshalJSON accepts any timestamp layout honcho.ParseTime does. A
// cursor that cannot be read is dropped rather than failing the window.
func (w *Window) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*w = Window{}
		return nil
	}
	var raw struct {
		TopicID   string          `json:"topic_id"`
		UpdatedAt json.RawMessage `json:"updated_at"`
		Watch     *struct {
			Topics map[string]json.RawMessage `json:"topics"`
		} `json:"watch"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*w = Window{TopicID: raw.TopicID, UpdatedAt: parseStamp(raw.UpdatedAt)}
	if raw.Watch == nil {
		return nil
	}
	w.Watch = &Watch{}
	for topic, entry := range raw.Watch.Topics {
		c := &Cursor{}
		if err := json.Unmarshal(entry, c); err != nil {
			debug.Logf("state: dropping unreadable cursor for %q: %v", topic, err)
			continue
		}
		if w.Watch.Topics == nil {
			w.Watch.Topics = map[string]*Cursor{}
		}
		w.Watch.Topics[topic] = c
	}
	return nil
}

// UnmarshalJSON accepts any timestamp layout honcho.ParseTime does. An
// unreadable last_seen_at leaves the cursor unset.
func (c *Cursor) UnmarshalJSON(data []byte) error {
	var raw struct {
		LastSeenAt  json.RawMessage `json:"last_seen_at"`
		LastSeenIDs []string        `json:"last_seen_ids"`
		UpdatedAt   json.RawMessage `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Cursor{
		LastSeenAt:  parseStamp(raw.LastSeenAt),
		LastSeenIDs: raw.LastSeenIDs,
		UpdatedAt:   parseStamp(raw.UpdatedAt),
	}
	return nil
}

func parseStamp(raw json.RawMessage) time.Time {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return time.Time{}
	}
	t, _ := honcho.ParseTime(s)
	return t
}

// Encode renders s as indented JSON with a trailing newline.
func Encode(s *State) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// window returns the entry for id, creating it.
func (s *State) window(id string) *Window {
	w := s.Windows[id]
	if w == nil {
		w = &Window{}
		s.Windows[id] = w
	}
	return w
}
