package workflow

import (
	"strings"
	"unicode/utf8"
)

// QualityThreshold is the lowest score that lets a workflow advance.
const QualityThreshold = 70

// Scorer rates a phase output. Scores outside [0,100] are clamped by the
// orchestrator.
type Scorer interface {
	Score(phase Phase, output string) int
}

// HeuristicScorer rates output by length, line structure and phase keywords.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(phase Phase, output string) int {
	score := 50

	switch n := utf8.RuneCountInString(output); {
	case n > 500:
		score += 20
	case n > 200:
		score += 10
	}

	lines := 0
	for _, l := range strings.Split(output, "\n") {
		if strings.TrimSpace(l) != "" {
			lines++
		}
	}
	if lines >= 3 {
		score += 15
	}

	if d, ok := Lookup(phase); ok {
		for _, kw := range d.Keywords {
			if strings.Contains(output, kw) {
				score += 10
				break
			}
		}
	}
	return min(score, 100)
}

func clampScore(s int) int {
	return max(0, min(s, 100))
}
