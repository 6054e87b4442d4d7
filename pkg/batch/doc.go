// Package batch splits id lists into platform-limited batches and fetches
// them, one at a time or through a bounded worker pool.
//
// Platforms cap how many ids a multi-id lookup accepts (50 for graph
// lookups, for example). Split divides an ordered id list into chunks of at
// most that size without reordering or dropping ids:
//
//	batches, err := batch.Split(ids, 50, "comments?ids={ids}")
//	fetcher := batch.NewFetcher(batch.DefaultConfig(), logger)
//	results := fetcher.FetchAll(ctx, batches, fetchOne)
//
// The fetcher:
//   - Issues batches sequentially by default, in order
//   - Optionally fans out across MaxConcurrency workers
//   - Applies a per-batch timeout
//   - Never lets one failed batch cancel its siblings
//   - Stops launching batches once the caller's context is done
package batch
