package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var spotifyBatchChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spotify_batch_chunks_total",
	Help: "Batch endpoint chunks by outcome",
}, []string{"outcome"})

// BatchFunc fetches one chunk of ids with a single attempt. The result is
// positional: element i answers ids[i], nil where the id is unknown.
type BatchFunc[T any] func(ctx context.Context, ids []string) ([]*T, error)

// BatchError reports the chunks that failed after retries.
type BatchError struct {
	FailedIDs []string
	Errs      []error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if len(e.Errs) == 0 {
		return fmt.Sprintf("%d ids failed", len(e.FailedIDs))
	}
	return fmt.Sprintf("%d ids failed in %d chunks: %v", len(e.FailedIDs), len(e.Errs), e.Errs[0])
}

// Unwrap exposes the per-chunk errors.
func (e *BatchError) Unwrap() []error {
	return e.Errs
}

// Chunk splits ids into consecutive slices of at most size elements.
// A non-positive size yields a single chunk.
func Chunk(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 || size >= len(ids) {
		return [][]string{ids}
	}

	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// Dedupe drops empty and repeated ids, keeping first occurrence order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// FetchInBatches resolves ids through a batch endpoint, batchSize ids per
// request, each request through the retrier.
//
// A chunk that still fails after retries does not stop the others: the
// mapping of every successful chunk is returned together with a *BatchError
// naming the failed ids. Cancellation stops at the next chunk boundary and
// returns the partial mapping with the context error.
func FetchInBatches[T any](ctx context.Context, retrier Retrier, ids []string, batchSize int, fetch BatchFunc[T]) (map[string]T, error) {
	start := time.Now()
	logger := log.With().Str("component", "batch-fetcher").Logger()
	unique := Dedupe(ids)
	results := make(map[string]T, len(unique))
	chunks := Chunk(unique, batchSize)

	var batchErr *BatchError
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("fetch batches: %w", err)
		}

		var items []*T
		err := retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			items, err = fetch(ctx, chunk)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return results, fmt.Errorf("fetch batches: %w", err)
			}

			spotifyBatchChunksTotal.WithLabelValues("failed").Inc()
			logger.Warn().
				Err(err).
				Int("chunk", i).
				Int("size", len(chunk)).
				Msg("Batch chunk failed")

			if batchErr == nil {
				batchErr = &BatchError{}
			}
			batchErr.FailedIDs = append(batchErr.FailedIDs, chunk...)
			batchErr.Errs = append(batchErr.Errs, err)
			continue
		}

		if len(items) != len(chunk) {
			logger.Warn().
				Int("chunk", i).
				Int("requested", len(chunk)).
				Int("returned", len(items)).
				Msg("Batch response length differs from request")
		}

		for j, item := range items {
			if j >= len(chunk) {
				break
			}
			if item == nil {
				continue
			}
			results[chunk[j]] = *item
		}
		spotifyBatchChunksTotal.WithLabelValues("ok").Inc()
	}

	logger.Debug().
		Int("ids", len(unique)).
		Int("chunks", len(chunks)).
		Int("resolved", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	if batchErr != nil {
		return results, batchErr
	}
	return results, nil
}
