// Package pagination drains cursor-paginated Web API listings and hydrates
// id lists through batch endpoints.
//
// Both helpers run every request through a Retrier, one page or one chunk
// per call, so a transient failure only repeats the request that failed.
//
// Example usage:
//
//	p := pagination.New(fetchArtistAlbums, retrier, 50)
//	for album := range p.All(ctx) {
//		...
//	}
//	if err := p.Err(); err != nil {
//		...
//	}
//
//	albums, err := pagination.FetchInBatches(ctx, retrier, ids, 20, fetchSeveralAlbums)
//
// The paginator:
//   - Fetches lazily, one page per iteration step
//   - Stops on a missing next cursor or a short page
//   - Is single use: a second All yields nothing
//   - Reports, never fails on, a mismatch between reported total and items received
//
// The batch fetcher:
//   - Deduplicates ids, keeping first occurrence order
//   - Splits them into chunks of at most the batch size
//   - Merges results positionally, omitting null slots
//   - Keeps going after a failed chunk and returns partial data with a *BatchError
package pagination
