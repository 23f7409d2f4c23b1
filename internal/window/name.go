// Package window derives stable, human-friendly names for agent windows and
// the shell snippet that gives each terminal its own window id.
package window

import (
	"crypto/sha256"
	"encoding/binary"
	"os"
	"strings"

	"github.com/liquidmail/liquid-mail/internal/git"
)

// EnvVar holds the current window id.
const EnvVar = "LIQUID_MAIL_WINDOW_ID"

const base32Alphabet = "abcdefghijklmnopqrstuvwxyz234567"

// ResolveID returns explicit when set, else $LIQUID_MAIL_WINDOW_ID.
func ResolveID(explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	return strings.TrimSpace(os.Getenv(EnvVar))
}

// NameFromID maps a window id to "adjective-noun-xxxx". The same id always
// yields the same name.
func NameFromID(id string) string {
	sum := sha256.Sum256([]byte(id))

	hi := binary.BigEndian.Uint64(sum[0:8])
	na, nn := uint64(len(adjectives)), uint64(len(nouns))
	adjective := slugToken(adjectives[hi%na], "window")
	noun := slugToken(nouns[(hi/na)%nn], "id")

	return adjective + "-" + noun + "-" + suffix(binary.BigEndian.Uint32(sum[8:12]), 4)
}

// suffix encodes the low 5*n bits of v, most significant group first.
func suffix(v uint32, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		shift := uint((n - 1 - i) * 5)
		b.WriteByte(base32Alphabet[(v>>shift)&31])
	}
	return b.String()
}

func slugToken(token, fallback string) string {
	if s := git.Slug(token); s != "" {
		return s
	}
	return fallback
}
