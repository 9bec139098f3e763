package rerank

import (
	"math"
	"sort"

	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/store/milvus"
)

// RunDecayConfig holds configuration for run-distance reranking
type RunDecayConfig struct {
	Lambda float64 // exponential decay per run of distance
	// Segment weights by run distance, used if UseSegments is true
	UseSegments  bool
	NearRuns     int
	MediumRuns   int
	NearWeight   float64
	MediumWeight float64
	FarWeight    float64
}

// DefaultRunDecayConfig returns a default configuration
func DefaultRunDecayConfig() RunDecayConfig {
	return RunDecayConfig{
		Lambda:       0.01,
		NearRuns:     10,
		MediumRuns:   100,
		NearWeight:   1.0,
		MediumWeight: 0.7,
		FarWeight:    0.4,
	}
}

// SegmentConfig returns a configuration using segment-based weights
func SegmentConfig() RunDecayConfig {
	cfg := DefaultRunDecayConfig()
	cfg.UseSegments = true
	return cfg
}

// RankedResult extends SearchResult with reranked score
type RankedResult struct {
	milvus.SearchResult
	OriginalScore float32
	RunWeight     float64
	FinalScore    float64
}

// Reranker favours matches from runs close to the query run
type Reranker struct {
	config RunDecayConfig
}

// NewReranker creates a new reranker with the given configuration
func NewReranker(config RunDecayConfig) *Reranker {
	return &Reranker{config: config}
}

// Rerank reweights search results by distance from queryRun, best first.
// Ties keep the search order.
func (r *Reranker) Rerank(results []milvus.SearchResult, queryRun int) []RankedResult {
	ranked := make([]RankedResult, len(results))

	for i, result := range results {
		distance := result.Run - queryRun
		if distance < 0 {
			distance = -distance
		}

		var weight float64
		if r.config.UseSegments {
			weight = r.segmentWeight(distance)
		} else {
			weight = math.Exp(-r.config.Lambda * float64(distance))
		}

		ranked[i] = RankedResult{
			SearchResult:  result,
			OriginalScore: result.Score,
			RunWeight:     weight,
			FinalScore:    float64(result.Score) * weight,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})

	return ranked
}

func (r *Reranker) segmentWeight(distance int) float64 {
	switch {
	case distance <= r.config.NearRuns:
		return r.config.NearWeight
	case distance <= r.config.MediumRuns:
		return r.config.MediumWeight
	default:
		return r.config.FarWeight
	}
}

// TopN returns the top N results after reranking
func (r *Reranker) TopN(results []milvus.SearchResult, queryRun, n int) []RankedResult {
	ranked := r.Rerank(results, queryRun)
	if len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}

// FilterByMinScore filters results by minimum final score
func FilterByMinScore(results []RankedResult, minScore float64) []RankedResult {
	var filtered []RankedResult
	for _, r := range results {
		if r.FinalScore >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// ExcludeRun drops matches of the query run itself
func ExcludeRun(results []RankedResult, run int) []RankedResult {
	var kept []RankedResult
	for _, r := range results {
		if r.Run != run {
			kept = append(kept, r)
		}
	}
	return kept
}

// FilterByVerdict keeps matches whose stored verdict is one of verdicts
func FilterByVerdict(results []RankedResult, verdicts ...model.Verdict) []RankedResult {
	var kept []RankedResult
	for _, r := range results {
		for _, v := range verdicts {
			if r.Verdict == v {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept
}
