// Package topics decides which topic a message belongs to: dominance voting
// over search hits, automatic topic creation, and merging topics when the
// workspace runs out of room.
package topics

import "sort"

// Choice is the outcome of a dominance vote.
type Choice struct {
	// ChosenTopicID is empty unless BestCount >= minHits and
	// Dominance >= threshold.
	ChosenTopicID string         `json:"chosen_topic_id,omitempty"`
	Dominance     float64        `json:"dominance"`
	BestTopicID   string         `json:"best_topic_id,omitempty"`
	BestCount     int            `json:"best_count"`
	TotalMatches  int            `json:"total_matches"`
	Counts        map[string]int `json:"counts"`
}

// Chosen reports whether the vote selected a topic.
func (c Choice) Chosen() bool { return c.ChosenTopicID != "" }

// ChooseTopic counts hits per topic and selects the plurality topic when it
// is dominant enough. Among topics tied on the highest count the
// lexicographically smallest id wins.
func ChooseTopic(matches []string, threshold float64, minHits int) Choice {
	counts := make(map[string]int, len(matches))
	for _, id := range matches {
		counts[id]++
	}

	var best string
	bestCount := 0
	for id, n := range counts {
		if n > bestCount || (n == bestCount && id < best) {
			best, bestCount = id, n
		}
	}

	total := len(matches)
	dominance := 0.0
	if total > 0 {
		dominance = float64(bestCount) / float64(total)
	}

	c := Choice{
		Dominance:    dominance,
		BestTopicID:  best,
		BestCount:    bestCount,
		TotalMatches: total,
		Counts:       counts,
	}
	if best != "" && bestCount >= minHits && dominance >= threshold {
		c.ChosenTopicID = best
	}
	return c
}

// Candidate is one topic in the ranked candidate list.
type Candidate struct {
	TopicID   string  `json:"topic_id"`
	Count     int     `json:"count"`
	Dominance float64 `json:"dominance"`
}

// Candidates ranks counts by count descending then id ascending, keeping at
// most limit entries.
func Candidates(counts map[string]int, total, limit int) []Candidate {
	out := make([]Candidate, 0, len(counts))
	for id, n := range counts {
		d := 0.0
		if total > 0 {
			d = float64(n) / float64(total)
		}
		out = append(out, Candidate{TopicID: id, Count: n, Dominance: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].TopicID < out[j].TopicID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
