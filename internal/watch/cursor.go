package watch

import (
	"slices"
	"sort"
	"time"

	"github.com/liquidmail/liquid-mail/internal/debug"
	"github.com/liquidmail/liquid-mail/internal/honcho"
	"github.com/liquidmail/liquid-mail/internal/state"
)

type stamped struct {
	msg honcho.Message
	at  time.Time
}

// Fresh returns the messages in batch not yet covered by cursor, oldest
// first. Messages without a parseable created_at cannot be placed relative
// to the cursor and are skipped.
func Fresh(batch []honcho.Message, cursor state.Cursor) []honcho.Message {
	seen := make(map[string]bool, len(batch))
	var keep []stamped
	for _, m := range batch {
		at, ok := m.Time()
		if !ok {
			debug.Logf("watch: skipping message %s without a usable created_at (%q)", m.ID, m.CreatedAt)
			continue
		}
		if at.Before(cursor.LastSeenAt) {
			continue
		}
		if at.Equal(cursor.LastSeenAt) && slices.Contains(cursor.LastSeenIDs, m.ID) {
			continue
		}
		if m.ID != "" {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
		}
		keep = append(keep, stamped{msg: m, at: at})
	}
	sortStamped(keep)
	out := make([]honcho.Message, len(keep))
	for i, s := range keep {
		out[i] = s.msg
	}
	return out
}

// Advance moves cursor past batch. LastSeenAt never moves backwards; when
// the newest instant equals the old one the id sets are merged.
func Advance(cursor state.Cursor, batch []honcho.Message) state.Cursor {
	newest := cursor.LastSeenAt
	for _, m := range batch {
		if at, ok := m.Time(); ok && at.After(newest) {
			newest = at
		}
	}

	var ids []string
	if newest.Equal(cursor.LastSeenAt) {
		ids = append(ids, cursor.LastSeenIDs...)
	}
	for _, m := range batch {
		if at, ok := m.Time(); ok && at.Equal(newest) {
			ids = append(ids, m.ID)
		}
	}
	return state.Cursor{LastSeenAt: newest, LastSeenIDs: state.CapIDs(ids)}
}

// SortByCreated orders messages oldest first. Messages without a timestamp
// sort before all others; ties are broken by id.
func SortByCreated(msgs []honcho.Message) []honcho.Message {
	keep := make([]stamped, len(msgs))
	for i, m := range msgs {
		at, _ := m.Time()
		keep[i] = stamped{msg: m, at: at}
	}
	sortStamped(keep)
	out := make([]honcho.Message, len(keep))
	for i, s := range keep {
		out[i] = s.msg
	}
	return out
}

func sortStamped(s []stamped) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].at.Equal(s[j].at) {
			return s[i].at.Before(s[j].at)
		}
		return s[i].msg.ID < s[j].msg.ID
	})
}
