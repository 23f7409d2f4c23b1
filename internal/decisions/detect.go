// Package decisions finds decision statements in posts, indexes them as
// system-peer messages, and checks new decisions against prior ones.
package decisions

import (
	"regexp"
	"strings"
)

// Source says how a post was recognised as a decision.
type Source string

const (
	SourceFlag      Source = "flag"
	SourceMarker    Source = "marker"
	SourceHeuristic Source = "heuristic"
	SourceNone      Source = "none"
)

// ReasonHeuristicDeferred marks a heuristic check left to the extractor.
const ReasonHeuristicDeferred = "heuristic_deferred"

var markerRe = regexp.MustCompile(`^\s*DECISION:\s*(.+)$`)

// Detection is the result of Detect.
type Detection struct {
	IsDecision bool     `json:"is_decision"`
	Decisions  []string `json:"decisions"`
	Source     Source   `json:"source"`
	Reason     string   `json:"reason,omitempty"`
}

// DetectOptions tunes Detect.
type DetectOptions struct {
	Flag           bool // the author explicitly marked the post as a decision
	AllowHeuristic bool
}

// Detect looks for "DECISION: ..." marker lines. An explicit flag always
// wins; otherwise markers make the post a decision.
func Detect(message string, opts DetectOptions) Detection {
	markers := Markers(message)
	switch {
	case opts.Flag:
		return Detection{IsDecision: true, Decisions: markers, Source: SourceFlag}
	case len(markers) > 0:
		return Detection{IsDecision: true, Decisions: markers, Source: SourceMarker}
	case opts.AllowHeuristic:
		return Detection{Decisions: []string{}, Source: SourceHeuristic, Reason: ReasonHeuristicDeferred}
	}
	return Detection{Decisions: []string{}, Source: SourceNone}
}

// Markers returns the text after each DECISION: marker line.
func Markers(message string) []string {
	out := []string{}
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if m := markerRe.FindStringSubmatch(line); m != nil {
			if d := strings.TrimSpace(m[1]); d != "" {
				out = append(out, d)
			}
		}
	}
	return out
}
