package window

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*-[a-z0-9]+(?:-[a-z0-9]+)*-[a-z2-7]{4}$`)

func TestNameFromIDIsDeterministic(t *testing.T) {
	assert.Equal(t, NameFromID("lm-test-123"), NameFromID("lm-test-123"))
}

func TestNameFromIDFormat(t *testing.T) {
	for _, id := range []string{"lm-test-456", "", "lm0a1b2c3d4e5f", "ünïcødé"} {
		name := NameFromID(id)
		assert.Regexp(t, namePattern, name, "id %q", id)
	}
}

func TestNameFromIDDiffers(t *testing.T) {
	assert.NotEqual(t, NameFromID("lm-a"), NameFromID("lm-b"))
}

func TestNameFromIDUsesWordLists(t *testing.T) {
	parts := strings.Split(NameFromID("lm-words"), "-")
	require.Len(t, parts, 3)
	assert.Contains(t, adjectives, parts[0])
	assert.Contains(t, nouns, parts[1])
}

func TestSuffix(t *testing.T) {
	assert.Equal(t, "aaaa", suffix(0, 4))
	assert.Equal(t, "aaab", suffix(1, 4))
	assert.Equal(t, "7777", suffix(0xFFFFFFFF, 4))
	// Bits above the low 20 are ignored.
	assert.Equal(t, "aaab", suffix(1<<20|1, 4))
}

func TestResolveID(t *testing.T) {
	t.Setenv(EnvVar, "lm-env")
	assert.Equal(t, "lm-flag", ResolveID(" lm-flag "))
	assert.Equal(t, "lm-env", ResolveID(""))

	t.Setenv(EnvVar, "")
	assert.Empty(t, ResolveID(""))
}

func TestEnvSnippet(t *testing.T) {
	got, err := EnvSnippet(ShellZsh)
	require.NoError(t, err)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "# Liquid Mail window env (zsh)", lines[0])
	assert.Equal(t, SnippetBegin, lines[1])
	assert.Equal(t, `if [ -z "${LIQUID_MAIL_WINDOW_ID:-}" ]; then`, lines[2])
	assert.Equal(t, `  export LIQUID_MAIL_WINDOW_ID="lm$(printf '%04x%04x%04x' $RANDOM $RANDOM $RANDOM)"`, lines[3])
	assert.Equal(t, SnippetEnd, lines[5])

	_, err = EnvSnippet("fish")
	assert.Error(t, err)
}
