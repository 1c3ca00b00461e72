// Package rank orders a company's draft variants and picks a winner.
package rank

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Method names reported in rankings.
const (
	MethodSSR       = "ssr"
	MethodHeuristic = "heuristic"
)

// Score is one scorer verdict for one text.
type Score struct {
	Value        float64
	Confidence   float64
	Rationale    string
	Method       string
	Distribution map[int]float64
}

// Scored is a Scorer's answer for a set of texts.
type Scored struct {
	Scores []Score

	// Tokens counts tokens billed by the embedding provider, if any.
	Tokens float64
}

// Scorer rates texts on a 1-5 scale. It returns one Score per text.
type Scorer interface {
	Score(ctx context.Context, texts []string) (Scored, error)
}

// Ranking is one ranked variant.
type Ranking struct {
	Key          string          `json:"key"`
	Score        float64         `json:"score"`
	Confidence   float64         `json:"confidence"`
	Rationale    string          `json:"rationale"`
	Method       string          `json:"method"`
	Distribution map[int]float64 `json:"distribution,omitempty"`
}

// Result is the total order over a set of variants.
type Result struct {
	Rankings []Ranking `json:"rankings"`
	TopPick  string    `json:"top_pick"`

	// EmbedTokens counts tokens billed by the embedding provider, if any.
	EmbedTokens float64 `json:"-"`
}

// Client ranks drafts with a Scorer.
type Client struct {
	scorer  Scorer
	timeout time.Duration
}

// New creates a ranking client.
func New(scorer Scorer, timeout time.Duration) *Client {
	return &Client{scorer: scorer, timeout: timeout}
}

// Rank scores every variant and returns them by score descending. Ties keep
// insertion order.
func (c *Client) Rank(ctx context.Context, variants model.Drafts) (Result, error) {
	if len(variants) == 0 {
		return Result{}, model.NewFailure(model.ErrValidation, model.StageRank, "no variants to rank")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	texts := make([]string, len(variants))
	for i, v := range variants {
		texts[i] = v.Subject + "\n\n" + v.Body
	}

	scored, err := c.scorer.Score(ctx, texts)
	if err != nil {
		return Result{}, model.ClassifyError(err, model.StageRank, model.ErrService)
	}
	if len(scored.Scores) != len(variants) {
		return Result{}, model.NewFailure(model.ErrService, model.StageRank, "scorer returned %d scores for %d variants", len(scored.Scores), len(variants))
	}

	res := Result{Rankings: make([]Ranking, len(variants)), EmbedTokens: scored.Tokens}
	for i, v := range variants {
		s := scored.Scores[i]
		res.Rankings[i] = Ranking{
			Key:          v.Key,
			Score:        s.Value,
			Confidence:   s.Confidence,
			Rationale:    s.Rationale,
			Method:       s.Method,
			Distribution: s.Distribution,
		}
	}
	sort.SliceStable(res.Rankings, func(i, j int) bool {
		return res.Rankings[i].Score > res.Rankings[j].Score
	})
	res.TopPick = res.Rankings[0].Key

	zap.L().Debug("rank: variants ranked",
		zap.String("top_pick", res.TopPick),
		zap.Float64("top_score", res.Rankings[0].Score),
		zap.String("method", res.Rankings[0].Method),
	)
	return res, nil
}

// Apply returns a copy of drafts annotated with res. Exactly one variant,
// the top pick, carries IsTopPick. Variants absent from res are left bare.
func Apply(drafts model.Drafts, res Result) model.Drafts {
	out := drafts.Clone()
	for _, r := range res.Rankings {
		out.Update(r.Key, func(v *model.DraftVariant) {
			score := r.Score
			v.Score = &score
			v.Ranking = &model.RankingAnnotation{
				RankScore:    r.Score,
				Confidence:   r.Confidence,
				Rationale:    r.Rationale,
				Method:       r.Method,
				IsTopPick:    r.Key == res.TopPick,
				Distribution: r.Distribution,
			}
		})
	}
	return out
}

// Order returns the variants sorted by the ranking, top pick first.
// Unranked drafts keep their order.
func Order(drafts model.Drafts) model.Drafts {
	out := drafts.Clone()
	sort.SliceStable(out, func(i, j int) bool {
		return rankScore(out[i]) > rankScore(out[j])
	})
	return out
}

func rankScore(v model.DraftVariant) float64 {
	if v.Ranking == nil {
		return -1
	}
	if v.Ranking.IsTopPick {
		return 6
	}
	return v.Ranking.RankScore
}

// NewScorer builds the scorer selected by method. SSR needs a Cohere key;
// without one the heuristic scorer is used.
func NewScorer(method, cohereKey, cohereModel string) Scorer {
	if method == MethodSSR && cohereKey != "" {
		return NewSSR(NewCohereEmbedder(cohereKey, cohereModel))
	}
	if method == MethodSSR {
		zap.L().Info("rank: no cohere key configured, using heuristic scorer")
	}
	return Heuristic{}
}
