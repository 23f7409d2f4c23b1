package topics

import (
	"regexp"

	"github.com/liquidmail/liquid-mail/internal/lmerr"
)

var (
	topicNameRe = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)
	lmHexIDRe   = regexp.MustCompile(`(?i)^lm[0-9a-f]{32}$`)
	uuidRe      = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

var reservedNames = map[string]bool{
	"all":    true,
	"new":    true,
	"help":   true,
	"merge":  true,
	"rename": true,
	"list":   true,
}

// IsReservedName reports whether name collides with a command word.
func IsReservedName(name string) bool { return reservedNames[name] }

// LooksLikeGeneratedID reports whether name is a generated id (lm + 32 hex)
// or a UUID.
func LooksLikeGeneratedID(name string) bool {
	return lmHexIDRe.MatchString(name) || uuidRe.MatchString(name)
}

// ValidateName checks a user-chosen topic name. Failures are
// INVALID_TOPIC_NAME or RESERVED_TOPIC_NAME errors.
func ValidateName(name string) error {
	if len(name) < 4 || len(name) > 50 {
		return lmerr.InvalidTopicName(name, "topic name must be 4-50 characters")
	}
	if IsReservedName(name) {
		return lmerr.ReservedTopicName(name)
	}
	if LooksLikeGeneratedID(name) {
		return lmerr.InvalidTopicName(name, "topic name looks like a UUID; use a meaningful name instead")
	}
	if !topicNameRe.MatchString(name) {
		return lmerr.InvalidTopicName(name,
			"use lowercase letters and digits separated by single hyphens, starting with a letter and ending with a letter or digit")
	}
	return nil
}
