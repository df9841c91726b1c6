// Package score batches candidate endpoints through the judgment service
// and merges the per-batch results into one ordered collection.
package score

import (
	"context"
	"sort"

	"github.com/robbiethompson18/api-detection-engine/internal/errors"
	"github.com/robbiethompson18/api-detection-engine/internal/filter"
	"github.com/robbiethompson18/api-detection-engine/internal/judge"
	"github.com/robbiethompson18/api-detection-engine/internal/logger"
	"github.com/robbiethompson18/api-detection-engine/internal/metrics"
)

// DefaultBatchSize is the number of candidates per judgment call.
const DefaultBatchSize = 5

// BatchJudge is the judgment service surface the scorer depends on.
type BatchJudge interface {
	JudgeBatch(ctx context.Context, endpoints map[string]filter.Candidate) (judge.ParseOutcome, error)
}

// Scorer splits candidates into fixed-size batches and scores them
// sequentially. Batches are never issued concurrently: the service is
// rate-limited and result order must stay deterministic.
type Scorer struct {
	client    BatchJudge
	batchSize int
	log       *logger.Logger
	metrics   *metrics.Collector
}

// New creates a Scorer.
func New(client BatchJudge, batchSize int, log *logger.Logger, collector *metrics.Collector) *Scorer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Scorer{
		client:    client,
		batchSize: batchSize,
		log:       log.WithComponent("score"),
		metrics:   collector,
	}
}

// Score judges all candidates in filter order. A failed or malformed batch
// contributes zero results and a warning; the stage fails only when the
// service rejects auth or every batch came back unusable.
func (s *Scorer) Score(ctx context.Context, candidates []filter.Candidate) ([]judge.ScoredEndpoint, error) {
	if len(candidates) == 0 {
		return []judge.ScoredEndpoint{}, nil
	}

	scored := make([]judge.ScoredEndpoint, 0, len(candidates))
	usableBatches := 0
	totalBatches := 0

	for start := 0; start < len(candidates); start += s.batchSize {
		end := start + s.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		totalBatches++
		batchLog := s.log.WithBatch(totalBatches)

		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelledError("", "score")
		}

		endpoints := make(map[string]filter.Candidate, len(batch))
		for _, c := range batch {
			endpoints[c.URL] = c
		}

		outcome, err := s.client.JudgeBatch(ctx, endpoints)
		if err != nil {
			if errors.IsAuthError(err) {
				return nil, err
			}
			batchLog.WithError(err).Warn("Judgment batch failed")
			if s.metrics != nil {
				s.metrics.RecordBatch(false)
			}
			continue
		}

		if !outcome.Parsed() {
			batchLog.Warnf("Judgment batch response malformed (%d bytes), discarding", len(outcome.Malformed))
			if s.metrics != nil {
				s.metrics.RecordBatch(false)
			}
			continue
		}

		// Batch order is ours; intra-batch order is the service's.
		scored = append(scored, outcome.Batch.Endpoints...)
		usableBatches++
		if s.metrics != nil {
			s.metrics.RecordBatch(true)
			s.metrics.RecordScored(len(outcome.Batch.Endpoints))
		}
	}

	if usableBatches == 0 {
		return nil, errors.NewAnalysisError(errors.ServerError, "", "score",
			"no judgment batch produced usable results", nil)
	}

	s.log.Event(logger.InfoLevel).
		Int("candidates", len(candidates)).
		Int("batches", totalBatches).
		Int("scored", len(scored)).
		Msg("Scoring complete")

	return scored, nil
}

// SortByScore sorts endpoints by usefulness score descending. The sort is
// stable: ties keep their existing relative order.
func SortByScore(endpoints []judge.ScoredEndpoint) {
	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].UsefulnessScore > endpoints[j].UsefulnessScore
	})
}
