package engine

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// similarity returns the normalized edit similarity of two paths:
// 1 - distance / max(len). Identical strings score 1.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// suggestSimilar returns up to MaxSuggestions known paths whose similarity
// to missing exceeds the threshold, ranked descending. Ties keep
// lexicographic order so suggestions are stable.
func (v *Validator) suggestSimilar(missing string, known []string) []string {
	type candidate struct {
		path  string
		score float64
	}
	var candidates []candidate
	for _, p := range known {
		if p == missing {
			continue
		}
		if score := similarity(missing, p); score > v.opts.SimilarityThreshold {
			candidates = append(candidates, candidate{path: p, score: score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].path < candidates[j].path
	})
	limit := v.opts.MaxSuggestions
	if limit <= 0 {
		return nil
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}
	out := make([]string, 0, limit)
	for _, c := range candidates[:limit] {
		out = append(out, c.path)
	}
	return out
}
