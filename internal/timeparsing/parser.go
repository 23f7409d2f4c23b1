// Package timeparsing turns user-supplied time expressions into instants for
// --since style flags.
//
// Layers are tried in order:
//  1. Compact lookback (6h, 2d, 1w, 3m, 1y), always in the past
//  2. Absolute timestamps (RFC 3339, date-only)
//  3. Natural language (yesterday, last monday, 3 hours ago)
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var compactRe = regexp.MustCompile(`^(\d+)([mhdwy]|mo)$`)

var absoluteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseLookback parses a compact lookback such as "6h" and returns now
// minus that span. Units: m minutes, h hours, d days, w weeks, mo months,
// y years.
func ParseLookback(s string, now time.Time) (time.Time, error) {
	m := compactRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", m[1])
	}
	switch m[2] {
	case "m":
		return now.Add(-time.Duration(n) * time.Minute), nil
	case "h":
		return now.Add(-time.Duration(n) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, -n), nil
	case "w":
		return now.AddDate(0, 0, -7*n), nil
	case "mo":
		return now.AddDate(0, -n, 0), nil
	default:
		return now.AddDate(-n, 0, 0), nil
	}
}

// IsLookback reports whether s is a compact lookback.
func IsLookback(s string) bool {
	return compactRe.MatchString(strings.ToLower(strings.TrimSpace(s)))
}

// ParseAbsolute parses RFC 3339 or date-only forms. Zone-less values are
// read in now's location.
func ParseAbsolute(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an absolute time: %q", s)
}

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseNaturalLanguage parses expressions like "yesterday" or "2 days ago".
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("not a recognised time expression: %q", s)
	}
	return r.Time, nil
}

// ParseSince runs every layer and returns the first match in UTC.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	if t, err := ParseLookback(s, now); err == nil {
		return t.UTC(), nil
	}
	if t, err := ParseAbsolute(s, now); err == nil {
		return t.UTC(), nil
	}
	if t, err := ParseNaturalLanguage(s, now); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q: use 6h/2d/1w, an RFC 3339 time, a date, or a phrase like \"yesterday\"", s)
}
