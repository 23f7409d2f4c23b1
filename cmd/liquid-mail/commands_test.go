package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/liquidmail/liquid-mail/internal/lmerr"
	"github.com/liquidmail/liquid-mail/internal/state"
	"github.com/liquidmail/liquid-mail/internal/window"
)

func TestTopicDemo(t *testing.T) {
	out, _, err := runCLI(t, "--text", "topic-demo", "A", "A", "A", "A", "B")
	require.NoError(t, err)
	assert.Equal(t, "chosen=A dominance=0.8\n", out)

	out, _, err = runCLI(t, "--text", "topic-demo", "--min-hits", "5", "A", "A", "A", "A", "B")
	require.NoError(t, err)
	assert.Equal(t, "chosen=(none) dominance=0.8\n", out)

	out, _, err = runCLI(t, "--json", "topic-demo", "A", "B")
	require.NoError(t, err)
	var env struct {
		OK   bool `json:"ok"`
		Data struct {
			ChosenTopicID string         `json:"chosen_topic_id"`
			Dominance     float64        `json:"dominance"`
			Counts        map[string]int `json:"counts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.True(t, env.OK)
	assert.Empty(t, env.Data.ChosenTopicID)
	assert.Equal(t, 0.5, env.Data.Dominance)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, env.Data.Counts)
}

func TestSchemaFormats(t *testing.T) {
	out, _, err := runCLI(t, "--text", "schema")
	require.NoError(t, err)
	var s struct {
		Prompts map[string]any `json:"prompts"`
		Outputs map[string]any `json:"outputs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Contains(t, s.Prompts, "decision_extract_v1")
	assert.Contains(t, s.Prompts, "conflict_classify_v1")
	assert.Contains(t, s.Prompts, "topic_merge_v1")
	assert.Contains(t, s.Outputs, "ok_v1")
	assert.Contains(t, s.Outputs, "error_v1")

	out, _, err = runCLI(t, "--text", "schema", "--format", "yaml")
	require.NoError(t, err)
	var y map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &y))
	assert.Contains(t, y, "prompts")

	_, _, err = runCLI(t, "--text", "schema", "--format", "xml")
	assert.True(t, lmerr.IsCode(err, lmerr.CodeInvalidInput))
}

func TestWindowCommands(t *testing.T) {
	out, _, err := runCLI(t, "--text", "window", "env", "--shell", "zsh")
	require.NoError(t, err)
	assert.Contains(t, out, "# Liquid Mail window env (zsh)")
	assert.Contains(t, out, window.EnvVar)

	_, _, err = runCLI(t, "--text", "window", "env", "--shell", "fish")
	assert.True(t, lmerr.IsCode(err, lmerr.CodeInvalidInput))

	inTempRepo(t)
	out, _, err = runCLI(t, "--text", "window", "name", "lmabc")
	require.NoError(t, err)
	assert.Equal(t, window.NameFromID("lmabc")+"\n", out)
}

func TestTopicPinAliasFlow(t *testing.T) {
	root := inTempRepo(t)
	t.Setenv(window.EnvVar, "")

	_, _, err := runCLI(t, "--text", "topic", "pin", "auth-system")
	require.Error(t, err)
	assert.True(t, lmerr.IsCode(err, lmerr.CodeInvalidInput), "pin needs a window")

	_, _, err = runCLI(t, "--text", "--window", "w1", "topic", "pin", "auth-system")
	require.NoError(t, err)

	_, _, err = runCLI(t, "--text", "topic", "alias", "auth-system", "identity-service")
	require.NoError(t, err)

	out, _, err := runCLI(t, "--text", "topic", "resolve-alias", "auth-system")
	require.NoError(t, err)
	assert.Equal(t, "identity-service\n", out)

	store := state.ForDir(root)
	pinned, ok := store.PinnedTopic("w1")
	require.True(t, ok)
	assert.Equal(t, "auth-system", pinned, "aliasing does not repin")

	_, _, err = runCLI(t, "--text", "--window", "w2", "topic", "pin", "auth-system")
	require.NoError(t, err)
	pinned, _ = store.PinnedTopic("w2")
	assert.Equal(t, "identity-service", pinned, "pin follows aliases")

	_, _, err = runCLI(t, "--text", "topic", "alias", "--remove", "auth-system")
	require.NoError(t, err)
	assert.Equal(t, "auth-system", store.ResolveAlias("auth-system"))

	out, _, err = runCLI(t, "--json", "--window", "w1", "topic", "unpin")
	require.NoError(t, err)
	assert.Contains(t, out, `"unpinned": true`)
	_, ok = store.PinnedTopic("w1")
	assert.False(t, ok)
}

func TestTopicValidate(t *testing.T) {
	_, _, err := runCLI(t, "--text", "topic", "validate", "auth-system")
	require.NoError(t, err)

	_, _, err = runCLI(t, "--text", "topic", "validate", "merge")
	assert.True(t, lmerr.IsCode(err, lmerr.CodeReservedTopicName))

	_, _, err = runCLI(t, "--text", "topic", "validate", "No_Caps")
	assert.True(t, lmerr.IsCode(err, lmerr.CodeInvalidTopicName))
}

func TestTopicAliasArgCount(t *testing.T) {
	_, _, err := runCLI(t, "--text", "topic", "alias", "only-one")
	assert.True(t, lmerr.IsCode(err, lmerr.CodeInvalidInput))
}

func TestQueryFilters(t *testing.T) {
	inTempRepo(t)
	f, err := queryFilters("", "", nil, fixedNow)
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = queryFilters("auth-system", "2h", []string{"alice"}, fixedNow)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "auth-system", f.SessionID)
	assert.Equal(t, []string{"alice"}, f.PeerIDs)
	assert.Equal(t, "2026-02-04T10:00:00Z", f.Since)

	_, err = queryFilters("", "zzzz qqqq", nil, fixedNow)
	assert.True(t, lmerr.IsCode(err, lmerr.CodeInvalidInput))
}

var fixedNow = mustTime("2026-02-04T12:00:00Z")

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
