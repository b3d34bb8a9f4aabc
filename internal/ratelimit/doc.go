// Package ratelimit paces, retries, and circuit-breaks calls to external
// sources.
//
// A Pacer is shared by every caller of one source: it enforces both a minimum
// spacing between requests and a ceiling on requests in flight, so adding
// enrichment workers never raises the request rate seen by the source. Retry
// wraps a call with exponential backoff for transient failures only; permanent
// failures surface on the first attempt.
package ratelimit
