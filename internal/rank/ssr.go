package rank

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"
)

// referenceStatements are recipient reactions anchoring each Likert point.
var referenceStatements = map[int][]string{
	1: {
		"This email is not interesting at all and I will delete it.",
		"It feels like spam and is not worth reading.",
		"I almost never open sales emails like this one.",
	},
	2: {
		"I am not very interested, though I might skim it once.",
		"The offer is generic and does not fit our company.",
		"We do not need this now, maybe we will think about it later.",
	},
	3: {
		"I am somewhat interested and it may be worth learning more.",
		"The proposal looks fine but I am not convinced yet.",
		"I might consider replying when I have time.",
	},
	4: {
		"I am very interested and will probably reply soon.",
		"They understood our pain point well, I would like a call.",
		"It is specific and relevant, so I want to set up a meeting.",
	},
	5: {
		"This is exactly the solution we were looking for and I will reply right away.",
		"The proposal is timely and needed, I want to meet as soon as possible.",
		"This email understands our current problem precisely and is very impressive.",
	},
}

// SSR scores texts by semantic similarity to Likert reference statements.
// Embedding failures fall back to the heuristic scorer for that call.
type SSR struct {
	embedder Embedder
	fallback Heuristic

	mu   sync.Mutex
	refs map[int][][]float64
}

// NewSSR creates an SSR scorer.
func NewSSR(e Embedder) *SSR {
	return &SSR{embedder: e}
}

// Score implements Scorer.
func (s *SSR) Score(ctx context.Context, texts []string) (Scored, error) {
	refs, refTokens, err := s.references(ctx)
	if err != nil {
		return s.fallbackScore(ctx, texts, err)
	}

	emb, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return s.fallbackScore(ctx, texts, err)
	}
	if len(emb.Vectors) != len(texts) {
		return s.fallbackScore(ctx, texts, errCountMismatch)
	}

	out := Scored{Scores: make([]Score, len(texts)), Tokens: refTokens + emb.Tokens}
	for i, vec := range emb.Vectors {
		out.Scores[i] = ssrScore(vec, refs)
	}
	return out, nil
}

func (s *SSR) fallbackScore(ctx context.Context, texts []string, cause error) (Scored, error) {
	if ctx.Err() != nil {
		return Scored{}, ctx.Err()
	}
	zap.L().Warn("rank: embeddings unavailable, using heuristic", zap.Error(cause))
	return s.fallback.Score(ctx, texts)
}

// references embeds the reference statements once. A failed attempt is
// retried on the next call.
func (s *SSR) references(ctx context.Context) (map[int][][]float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs != nil {
		return s.refs, 0, nil
	}

	var texts []string
	var points []int
	for r := 1; r <= 5; r++ {
		for _, st := range referenceStatements[r] {
			texts = append(texts, st)
			points = append(points, r)
		}
	}

	emb, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, 0, err
	}
	if len(emb.Vectors) != len(texts) {
		return nil, 0, errCountMismatch
	}

	refs := make(map[int][][]float64, 5)
	for i, vec := range emb.Vectors {
		refs[points[i]] = append(refs[points[i]], vec)
	}
	s.refs = refs
	return refs, emb.Tokens, nil
}

func ssrScore(vec []float64, refs map[int][][]float64) Score {
	sims := make(map[int]float64, 5)
	minSim := math.Inf(1)
	for r := 1; r <= 5; r++ {
		var sum float64
		for _, ref := range refs[r] {
			sum += cosine(vec, ref)
		}
		if n := len(refs[r]); n > 0 {
			sims[r] = sum / float64(n)
		}
		minSim = math.Min(minSim, sims[r])
	}

	dist := make(map[int]float64, 5)
	var total float64
	for r := 1; r <= 5; r++ {
		adj := math.Max(0, sims[r]-minSim)
		dist[r] = adj
		total += adj
	}
	for r := 1; r <= 5; r++ {
		if total == 0 {
			dist[r] = 0.2
		} else {
			dist[r] /= total
		}
	}

	var expected, entropy float64
	for r := 1; r <= 5; r++ {
		p := dist[r]
		expected += float64(r) * p
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	confidence := 1 - entropy/math.Log(5)

	return Score{
		Value:        math.Round(expected*100) / 100,
		Confidence:   math.Round(math.Max(0, math.Min(1, confidence))*100) / 100,
		Rationale:    describe(dist),
		Method:       MethodSSR,
		Distribution: dist,
	}
}

func cosine(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
