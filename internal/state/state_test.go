package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	return ForDir(root), root
}

func TestPathFor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	assert.Equal(t, filepath.Join(root, ".liquid-mail", "state.json"), PathFor(sub))

	home := t.TempDir()
	t.Setenv("HOME", home)
	outside := t.TempDir()
	if _, inRepo := findGit(outside); !inRepo {
		assert.Equal(t, filepath.Join(home, ".liquid-mail-state.json"), PathFor(outside))
	}
}

func findGit(dir string) (string, bool) {
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func TestLoadMissingIsDefault(t *testing.T) {
	s, _ := newRepoStore(t)
	st := s.Load()
	assert.Equal(t, Default(), st)
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err), "read must not create the file")
}

func TestMigratesV1(t *testing.T) {
	s, _ := newRepoStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	v1 := `{"version":1,"windows":{"win1":{"topic_id":"topic-123","updated_at":"2026-02-04T00:00:00.000Z"}}}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(v1), 0o644))

	st := s.Load()
	assert.Equal(t, 2, st.Version)
	assert.Equal(t, "topic-123", st.Windows["win1"].TopicID)
	assert.Equal(t, map[string]string{}, st.Aliases)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, v1, string(raw), "migration is not persisted by a read")

	require.NoError(t, s.SetPinnedTopic("win2", "other"))
	raw, err = os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version": 2`)
	assert.Contains(t, string(raw), `"aliases": {}`)
}

func TestCorruptFallsBackToDefault(t *testing.T) {
	for _, body := range []string{"not json", `{"version":3,"windows":{},"aliases":{}}`, `{"version":2,"windows":{}}`, `[]`} {
		st, ok := Decode([]byte(body))
		assert.False(t, ok, body)
		assert.Equal(t, Default(), st, body)
	}
}

func TestZonelessTimestampKeepsOtherWindows(t *testing.T) {
	s, _ := newRepoStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	body := `{"version":2,"windows":{
		"w1":{"topic_id":"auth-system","updated_at":"2026-01-01 10:00:00","watch":{"topics":{
			"auth-system":{"last_seen_at":"2026-01-01T10:00:00.123456","last_seen_ids":["m1"]},
			"broken":{"last_seen_at":"yesterday-ish","last_seen_ids":["m2"]},
			"worse":{"last_seen_ids":"m3"}}}},
		"w2":{"topic_id":"storage-layer"},
		"w3":{"topic_id":42}},
		"aliases":{"old-name":"auth-system"}}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(body), 0o644))

	c, ok := s.WatchCursor("w1", "auth-system")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 0, 0, 123456000, time.UTC), c.LastSeenAt)
	assert.Equal(t, []string{"m1"}, c.LastSeenIDs)
	_, ok = s.WatchCursor("w1", "broken")
	assert.False(t, ok)
	_, ok = s.WatchCursor("w1", "worse")
	assert.False(t, ok)

	require.NoError(t, s.SetPinnedTopic("w4", "billing"))

	pin, ok := s.PinnedTopic("w2")
	assert.True(t, ok)
	assert.Equal(t, "storage-layer", pin)
	pin, _ = s.PinnedTopic("w1")
	assert.Equal(t, "auth-system", pin)
	assert.Equal(t, "auth-system", s.ResolveAlias("old-name"))
	_, ok = s.PinnedTopic("w3")
	assert.False(t, ok)

	c, ok = s.WatchCursor("w1", "auth-system")
	require.True(t, ok)
	assert.Equal(t, []string{"m1"}, c.LastSeenIDs)
}

func TestWriteFormat(t *testing.T) {
	s, _ := newRepoStore(t)
	s = s.WithClock(func() time.Time { return time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC) })
	require.NoError(t, s.SetPinnedTopic("win1", "auth-system"))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	want := `{
  "version": 2,
  "windows": {
    "win1": {
      "topic_id": "auth-system",
      "updated_at": "2026-02-04T00:00:00Z"
    }
  },
  "aliases": {}
}
`
	assert.Equal(t, want, string(raw))
}

func TestSetPinnedTopicSkipsUnchanged(t *testing.T) {
	s, _ := newRepoStore(t)
	require.NoError(t, s.SetPinnedTopic("win1", "auth-system"))
	info, err := os.Stat(s.Path())
	require.NoError(t, err)

	past := info.ModTime().Add(-time.Hour)
	require.NoError(t, os.Chtimes(s.Path(), past, past))
	require.NoError(t, s.SetPinnedTopic("win1", "auth-system"))
	info, err = os.Stat(s.Path())
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "unchanged pin must not rewrite the file")

	got, ok := s.PinnedTopic("win1")
	assert.True(t, ok)
	assert.Equal(t, "auth-system", got)
}

func TestUnpin(t *testing.T) {
	s, _ := newRepoStore(t)
	had, err := s.Unpin("win1")
	require.NoError(t, err)
	assert.False(t, had)

	require.NoError(t, s.SetPinnedTopic("win1", "auth-system"))
	had, err = s.Unpin("win1")
	require.NoError(t, err)
	assert.True(t, had)
	_, ok := s.PinnedTopic("win1")
	assert.False(t, ok)
}

func TestAliasChainsFlatten(t *testing.T) {
	s, _ := newRepoStore(t)
	require.NoError(t, s.SetAlias("b", "a"))
	require.NoError(t, s.SetAlias("a", "c"))

	assert.Equal(t, map[string]string{"a": "c", "b": "c"}, s.Aliases())
	assert.Equal(t, "c", s.ResolveAlias("b"))
	assert.Equal(t, "c", s.ResolveAlias("c"))
	assert.Equal(t, "unknown", s.ResolveAlias("unknown"))
}

func TestAliasCycleIsDropped(t *testing.T) {
	s, _ := newRepoStore(t)
	require.NoError(t, s.SetAlias("a", "b"))
	require.NoError(t, s.SetAlias("b", "a"))

	assert.Empty(t, s.Aliases())
	assert.Equal(t, "a", s.ResolveAlias("a"))
}

func TestResolveAliasTerminatesOnCycle(t *testing.T) {
	aliases := map[string]string{"a": "b", "b": "c", "c": "a"}
	got := resolveAlias(aliases, "a")
	assert.Contains(t, []string{"a", "b", "c"}, got)
}

func TestFlattenLeavesDepthOne(t *testing.T) {
	aliases := map[string]string{}
	for i := range 20 {
		aliases[fmt.Sprintf("t%02d", i)] = fmt.Sprintf("t%02d", i+1)
	}
	flattenAliases(aliases)
	for k, v := range aliases {
		assert.Equal(t, "t20", v, k)
		_, chained := aliases[v]
		assert.False(t, chained)
	}
	assert.False(t, flattenAliases(aliases), "second flatten is a no-op")
}

func TestRemoveAlias(t *testing.T) {
	s, _ := newRepoStore(t)
	require.NoError(t, s.SetAlias("old", "new"))
	had, err := s.RemoveAlias("old")
	require.NoError(t, err)
	assert.True(t, had)
	_, ok := s.Alias("old")
	assert.False(t, ok)
}

func TestReplacePinnedTopic(t *testing.T) {
	s, _ := newRepoStore(t)
	require.NoError(t, s.SetPinnedTopic("win1", "old-topic"))
	require.NoError(t, s.SetPinnedTopic("win2", "keep-topic"))

	n, err := s.ReplacePinnedTopic("old-topic", "new-topic")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	w := s.Windows()
	assert.Equal(t, "new-topic", w["win1"].TopicID)
	assert.Equal(t, "keep-topic", w["win2"].TopicID)
}

func TestWatchCursorRoundTrip(t *testing.T) {
	s, _ := newRepoStore(t)
	_, ok := s.WatchCursor("win1", "auth")
	assert.False(t, ok)

	at := time.Date(2026, 2, 4, 12, 0, 0, 123000000, time.UTC)
	require.NoError(t, s.SetWatchCursor("win1", "auth", Cursor{LastSeenAt: at, LastSeenIDs: []string{"m1", "m1", "m2"}}))

	c, ok := s.WatchCursor("win1", "auth")
	require.True(t, ok)
	assert.True(t, c.LastSeenAt.Equal(at))
	assert.Equal(t, []string{"m1", "m2"}, c.LastSeenIDs)
	assert.False(t, c.UpdatedAt.IsZero())

	require.NoError(t, s.SetPinnedTopic("win1", "auth"))
	c, ok = s.WatchCursor("win1", "auth")
	require.True(t, ok, "pinning keeps the cursor")
	assert.Equal(t, []string{"m1", "m2"}, c.LastSeenIDs)
}

func TestCapIDs(t *testing.T) {
	ids := make([]string, 0, 60)
	for i := range 60 {
		ids = append(ids, fmt.Sprintf("m%02d", i))
	}
	got := CapIDs(append(ids, "m00"))
	assert.Len(t, got, MaxLastSeenIDs)
	assert.Equal(t, "m10", got[0])
	assert.Equal(t, "m59", got[len(got)-1])
}

func TestConcurrentUpdatesKeepBothWindows(t *testing.T) {
	s, _ := newRepoStore(t)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.SetPinnedTopic(fmt.Sprintf("win%d", i), "topic"))
		}()
	}
	wg.Wait()
	assert.Len(t, s.Windows(), 8)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestChangesSignalsOnWrite(t *testing.T) {
	s, _ := newRepoStore(t)
	require.NoError(t, s.SetPinnedTopic("win1", "a"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := s.Changes(ctx)
	require.NoError(t, err)

	other := New(s.Path())
	require.NoError(t, other.SetPinnedTopic("win1", "b"))
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestChangesIgnoresOwnWrites(t *testing.T) {
	s, _ := newRepoStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := s.Changes(ctx)
	require.NoError(t, err, "directory is created on demand")
	assert.DirExists(t, filepath.Dir(s.Path()))

	require.NoError(t, s.SetWatchCursor("win1", "auth", Cursor{LastSeenAt: time.Now(), LastSeenIDs: []string{"m1"}}))
	select {
	case <-ch:
		t.Fatal("own write signalled a change")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, New(s.Path()).SetAlias("auth", "auth-v2"))
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification for another writer")
	}
}
