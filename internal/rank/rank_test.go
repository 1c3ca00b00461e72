package rank

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

// fakeEmbedder maps reference statements for point r onto basis vector r
// and other texts onto the vector named by their "@N" marker.
type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

func basis(r int) []float64 {
	v := make([]float64, 5)
	v[r-1] = 1
	return v
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) (Embeddings, error) {
	f.calls.Add(1)
	if f.err != nil {
		return Embeddings{}, f.err
	}
	out := Embeddings{Tokens: float64(len(texts))}
	for _, t := range texts {
		out.Vectors = append(out.Vectors, vectorFor(t))
	}
	return out, nil
}

func vectorFor(t string) []float64 {
	for r, sts := range referenceStatements {
		for _, st := range sts {
			if st == t {
				return basis(r)
			}
		}
	}
	for r := 1; r <= 5; r++ {
		if strings.Contains(t, "@"+string(rune('0'+r))) {
			return basis(r)
		}
	}
	return []float64{1, 1, 1, 1, 1}
}

func drafts(texts ...string) model.Drafts {
	keys := []string{"opi_professional", "opi_curiosity", "finance_professional", "finance_curiosity"}
	var d model.Drafts
	for i, t := range texts {
		d.Set(model.DraftVariant{Key: keys[i], Subject: "s", Body: t})
	}
	return d
}

func TestSSRScore(t *testing.T) {
	e := &fakeEmbedder{}
	s := NewSSR(e)

	scored, err := s.Score(context.Background(), []string{"great @5", "bad @1", "neutral"})
	require.NoError(t, err)
	require.Len(t, scored.Scores, 3)

	assert.Equal(t, 5.0, scored.Scores[0].Value)
	assert.Equal(t, 1.0, scored.Scores[0].Confidence)
	assert.Equal(t, MethodSSR, scored.Scores[0].Method)
	assert.InDelta(t, 1.0, scored.Scores[0].Distribution[5], 1e-9)

	assert.Equal(t, 1.0, scored.Scores[1].Value)

	assert.Equal(t, 3.0, scored.Scores[2].Value)
	assert.Equal(t, 0.0, scored.Scores[2].Confidence)
	assert.InDelta(t, 0.2, scored.Scores[2].Distribution[4], 1e-9)

	assert.Equal(t, float64(15+3), scored.Tokens)
	assert.Equal(t, int32(2), e.calls.Load())

	_, err = s.Score(context.Background(), []string{"again @4"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), e.calls.Load(), "reference embeddings are cached")
}

func TestSSRFallsBackToHeuristic(t *testing.T) {
	s := NewSSR(&fakeEmbedder{err: errors.New("cohere down")})
	scored, err := s.Score(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, scored.Scores, 1)
	assert.Equal(t, MethodHeuristic, scored.Scores[0].Method)
	assert.Equal(t, 0.6, scored.Scores[0].Confidence)
}

func TestSSRCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSSR(&fakeEmbedder{err: context.Canceled})
	_, err := s.Score(ctx, []string{"hello"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHeuristicScore(t *testing.T) {
	good := heuristicScore("귀사 결제 비용 30% 절감, 데모 가능")
	assert.InDelta(t, 4.2, good.Value, 1e-9)
	assert.Equal(t, MethodHeuristic, good.Method)
	assert.Contains(t, good.Rationale, "personalization")

	spam := heuristicScore("대박!!!! 100% 확실 클릭")
	assert.InDelta(t, 2.7, spam.Value, 1e-9)
	assert.Contains(t, spam.Rationale, "spam wording")

	long := heuristicScore(strings.Repeat("가", 1001))
	assert.InDelta(t, 2.7, long.Value, 1e-9)

	plain := heuristicScore("hello")
	assert.Equal(t, 3.0, plain.Value)
	assert.Equal(t, "baseline", plain.Rationale)

	var total float64
	for _, p := range plain.Distribution {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestRankOrdersAndPicksOne(t *testing.T) {
	c := New(NewSSR(&fakeEmbedder{}), 0)
	d := drafts("meh @3", "best @5", "worst @1", "also best @5")

	res, err := c.Rank(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, res.Rankings, 4)
	keys := make([]string, len(res.Rankings))
	for i, r := range res.Rankings {
		keys[i] = r.Key
	}
	assert.Equal(t, []string{"opi_curiosity", "finance_curiosity", "opi_professional", "finance_professional"}, keys)
	assert.Equal(t, "opi_curiosity", res.TopPick)

	annotated := Apply(d, res)
	top := 0
	for _, v := range annotated {
		require.NotNil(t, v.Ranking)
		require.NotNil(t, v.Score)
		if v.Ranking.IsTopPick {
			top++
			assert.Equal(t, "opi_curiosity", v.Key)
		}
	}
	assert.Equal(t, 1, top)

	for _, v := range d {
		assert.Nil(t, v.Ranking, "Apply does not mutate its input")
	}

	ordered := Order(annotated)
	assert.Equal(t, "opi_curiosity", ordered[0].Key)
	assert.Equal(t, "finance_professional", ordered[3].Key)
}

func TestRankStableOnTies(t *testing.T) {
	res, err := New(Heuristic{}, 0).Rank(context.Background(), drafts("same", "same", "same"))
	require.NoError(t, err)
	assert.Equal(t, "opi_professional", res.TopPick)
	assert.Equal(t, "opi_curiosity", res.Rankings[1].Key)
	assert.Equal(t, "finance_professional", res.Rankings[2].Key)
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, []string) (Scored, error) {
	return Scored{}, errors.New("boom")
}

type shortScorer struct{}

func (shortScorer) Score(context.Context, []string) (Scored, error) {
	return Scored{Scores: []Score{{Value: 1}}}, nil
}

func TestRankErrors(t *testing.T) {
	_, err := New(failingScorer{}, 0).Rank(context.Background(), drafts("a", "b"))
	var f *model.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, model.ErrService, f.Kind)
	assert.Equal(t, model.StageRank, f.Stage)

	_, err = New(shortScorer{}, 0).Rank(context.Background(), drafts("a", "b"))
	require.Error(t, err)

	_, err = New(Heuristic{}, 0).Rank(context.Background(), nil)
	require.ErrorAs(t, err, &f)
	assert.Equal(t, model.ErrValidation, f.Kind)
}

func TestOrderWithoutRanking(t *testing.T) {
	d := drafts("a", "b")
	assert.Equal(t, d.Keys(), Order(d).Keys())
}

func TestNewScorer(t *testing.T) {
	assert.IsType(t, Heuristic{}, NewScorer(MethodSSR, "", ""))
	assert.IsType(t, Heuristic{}, NewScorer(MethodHeuristic, "key", ""))
	assert.IsType(t, &SSR{}, NewScorer(MethodSSR, "key", ""))
}
