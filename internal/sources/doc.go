// Package sources defines the contracts for the external catalog and rating
// sources, the typed failures they report, and the HTTP plumbing shared by
// their clients.
//
// Clients classify every failure: 429 and 5xx responses, timeouts and
// connection faults are transient; malformed payloads and other 4xx responses
// are permanent; a 404 on a lookup is a miss, not a failure.
package sources
