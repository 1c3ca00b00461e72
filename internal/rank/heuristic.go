package rank

import (
	"context"
	"fmt"
	"math"
	"strings"
)

type factor struct {
	name     string
	keywords []string
}

var positiveFactors = []factor{
	{"personalization", []string{"님", "귀사", "your team", "your company"}},
	{"figures", []string{"%", "억", "만원", "배", "시간", "hours", "x faster"}},
	{"case study", []string{"사례", "고객", "case", "실제로", "customers like"}},
	{"pain point", []string{"고민", "문제", "어려움", "과제", "challenge", "problem"}},
	{"call to action", []string{"통화", "미팅", "데모", "상담", "call", "meeting", "demo"}},
	{"benefit", []string{"무료", "절감", "향상", "개선", "save", "reduce", "improve"}},
}

var spamWords = []string{"대박", "확실", "100%", "클릭", "guaranteed", "click here", "act now"}

// Heuristic scores text by keyword features. It never fails.
type Heuristic struct{}

// Score implements Scorer.
func (Heuristic) Score(_ context.Context, texts []string) (Scored, error) {
	out := Scored{Scores: make([]Score, len(texts))}
	for i, t := range texts {
		out.Scores[i] = heuristicScore(t)
	}
	return out, nil
}

func heuristicScore(text string) Score {
	lower := strings.ToLower(text)
	score := 3.0
	var reasons []string

	for _, f := range positiveFactors {
		for _, kw := range f.keywords {
			if strings.Contains(lower, kw) {
				score += 0.3
				reasons = append(reasons, f.name)
				break
			}
		}
	}

	if len([]rune(text)) > 1000 {
		score -= 0.3
		reasons = append(reasons, "too long")
	}
	if strings.Count(text, "!") > 3 {
		score -= 0.3
		reasons = append(reasons, "too many exclamation marks")
	}
	for _, w := range spamWords {
		if strings.Contains(lower, w) {
			score -= 0.3
			reasons = append(reasons, "spam wording")
			break
		}
	}

	score = math.Round(math.Max(1, math.Min(5, score))*100) / 100

	rationale := "baseline"
	if len(reasons) > 0 {
		rationale = strings.Join(reasons, ", ")
	}

	return Score{
		Value:        score,
		Confidence:   0.6,
		Rationale:    rationale,
		Method:       MethodHeuristic,
		Distribution: peakedDistribution(score),
	}
}

// peakedDistribution spreads probability around score, falling off by 0.3
// per point of distance.
func peakedDistribution(score float64) map[int]float64 {
	dist := make(map[int]float64, 5)
	var total float64
	for r := 1; r <= 5; r++ {
		p := math.Max(0, 1-math.Abs(float64(r)-score)*0.3)
		dist[r] = p
		total += p
	}
	for r := range dist {
		dist[r] /= total
	}
	return dist
}

func describe(dist map[int]float64) string {
	best, bestP := 1, -1.0
	for r := 1; r <= 5; r++ {
		if dist[r] > bestP {
			best, bestP = r, dist[r]
		}
	}
	return fmt.Sprintf("closest reaction: %d/5 (%.1f%%)", best, bestP*100)
}
