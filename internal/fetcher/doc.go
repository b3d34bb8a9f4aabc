// Package fetcher pages through a platform catalog.
//
// A Pager is lazy: each Next call issues at most one page request, gated by
// the source pacer and circuit breaker and retried on transient failures.
// Exhausted retries or a permanent failure surface as *sources.FetchFailure
// and stop the pager; a partial catalog is never handed to the diff.
package fetcher
