package rerank

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/store/milvus"
)

func matches() []milvus.SearchResult {
	return []milvus.SearchResult{
		{ID: "a", Score: 0.9, Run: 250, Verdict: model.VerdictBad},
		{ID: "b", Score: 0.8, Run: 105, Verdict: model.VerdictSuspect},
		{ID: "c", Score: 0.7, Run: 150, Verdict: model.VerdictGood},
		{ID: "d", Score: 0.5, Run: 100, Verdict: model.VerdictBad},
	}
}

func ids(results []RankedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestRerankSegments(t *testing.T) {
	r := NewReranker(SegmentConfig())
	ranked := r.Rerank(matches(), 100)
	require.Len(t, ranked, 4)

	// a: 0.9*0.4, b: 0.8*1.0, c: 0.7*0.7, d: 0.5*1.0
	assert.Equal(t, []string{"b", "d", "c", "a"}, ids(ranked))

	weights := map[string]float64{}
	for _, rr := range ranked {
		weights[rr.ID] = rr.RunWeight
		assert.Equal(t, rr.Score, rr.OriginalScore)
	}
	assert.Equal(t, 0.4, weights["a"])
	assert.Equal(t, 1.0, weights["b"])
	assert.Equal(t, 0.7, weights["c"])
	assert.Equal(t, 1.0, weights["d"])
}

func TestRerankExponential(t *testing.T) {
	r := NewReranker(DefaultRunDecayConfig())
	ranked := r.Rerank(matches(), 100)
	require.Len(t, ranked, 4)

	for _, rr := range ranked {
		distance := math.Abs(float64(rr.Run - 100))
		assert.InDelta(t, math.Exp(-0.01*distance), rr.RunWeight, 1e-12)
		assert.InDelta(t, float64(rr.Score)*rr.RunWeight, rr.FinalScore, 1e-12)
	}
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].FinalScore, ranked[i].FinalScore)
	}
	assert.Equal(t, "b", ranked[0].ID)
}

func TestRerankKeepsSearchOrderOnTies(t *testing.T) {
	results := []milvus.SearchResult{
		{ID: "first", Score: 0.5, Run: 10},
		{ID: "second", Score: 0.5, Run: 10},
		{ID: "third", Score: 0.5, Run: 10},
	}
	ranked := NewReranker(SegmentConfig()).Rerank(results, 10)
	assert.Equal(t, []string{"first", "second", "third"}, ids(ranked))
}

func TestRerankEmpty(t *testing.T) {
	assert.Empty(t, NewReranker(DefaultRunDecayConfig()).Rerank(nil, 1))
}

func TestTopN(t *testing.T) {
	r := NewReranker(SegmentConfig())
	assert.Equal(t, []string{"b", "d"}, ids(r.TopN(matches(), 100, 2)))
	assert.Len(t, r.TopN(matches(), 100, 10), 4)
}

func TestFilters(t *testing.T) {
	ranked := NewReranker(SegmentConfig()).Rerank(matches(), 100)

	assert.Equal(t, []string{"b", "d", "c"}, ids(FilterByMinScore(ranked, 0.45)))
	assert.Empty(t, FilterByMinScore(ranked, 2))

	assert.Equal(t, []string{"b", "c", "a"}, ids(ExcludeRun(ranked, 100)))

	assert.Equal(t, []string{"d", "a"}, ids(FilterByVerdict(ranked, model.VerdictBad)))
	assert.Equal(t, []string{"b", "d", "a"}, ids(FilterByVerdict(ranked, model.VerdictBad, model.VerdictSuspect)))
	assert.Empty(t, FilterByVerdict(ranked))
}
