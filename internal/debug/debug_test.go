package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stderr
	stderr = &buf
	t.Cleanup(func() { stderr = old })
	return &buf
}

func TestLogf(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		verbose bool
		want    string
	}{
		{"env enabled", true, false, "[liquid-mail] poll topic-a\n"},
		{"verbose flag", false, true, "[liquid-mail] poll topic-a\n"},
		{"disabled", false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldEnabled, oldVerbose := enabled, verboseMode
			defer func() { enabled, verboseMode = oldEnabled, oldVerbose }()
			enabled, verboseMode = tt.enabled, tt.verbose

			buf := captureStderr(t)
			Logf("poll %s", "topic-a")
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestQuiet(t *testing.T) {
	defer SetQuiet(false)
	assert.False(t, IsQuiet())
	SetQuiet(true)
	assert.True(t, IsQuiet())
}

func TestLogEvent(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))
	t.Chdir(repo)

	LogEvent("post", "auth-refactor", "", "message lm123")

	data, err := os.ReadFile(filepath.Join(repo, ".liquid-mail", "events.log"))
	require.NoError(t, err)
	fields := strings.Split(strings.TrimSpace(string(data)), "|")
	require.Len(t, fields, 5)
	assert.Equal(t, "post", fields[1])
	assert.Equal(t, "auth-refactor", fields[2])
	assert.Equal(t, "none", fields[3])
	assert.Equal(t, "message lm123", fields[4])
}
