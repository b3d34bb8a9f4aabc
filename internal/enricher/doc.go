// Package enricher attaches rating data to catalog records.
//
// Lookups go IMDb id first, then normalized title plus year. Every request
// passes the rating source pacer, circuit breaker, and retry policy, so the
// source-wide request rate and in-flight ceiling hold no matter how many
// workers call Enrich concurrently. Source responses cross normalizeRating
// before matching; drift in the scraped payload becomes a permanent
// *sources.RatingLookupFailure instead of a bad row.
package enricher
