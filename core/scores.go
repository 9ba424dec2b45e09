package core

import "pkt.systems/directorsync/schema"

// SummarizeScores aggregates the newest window entries of scores (oldest
// first). Recent lists the window newest first.
func SummarizeScores(scores []schema.ScoreEntry, window int) schema.ScoreSummary {
	if window <= 0 {
		window = schema.DefaultScoreWindow
	}
	start := len(scores) - window
	if start < 0 {
		start = 0
	}
	tail := scores[start:]
	summary := schema.ScoreSummary{Recent: make([]schema.ScoreEntry, 0, len(tail))}
	if len(tail) == 0 {
		return summary
	}
	summary.Count = len(tail)
	summary.Min = tail[0].Score
	summary.Max = tail[0].Score
	total := 0.0
	for i := len(tail) - 1; i >= 0; i-- {
		entry := tail[i]
		total += entry.Score
		if entry.Score < summary.Min {
			summary.Min = entry.Score
		}
		if entry.Score > summary.Max {
			summary.Max = entry.Score
		}
		summary.Recent = append(summary.Recent, entry)
	}
	summary.Mean = total / float64(len(tail))
	latest := tail[len(tail)-1]
	summary.Latest = &latest
	return summary
}
