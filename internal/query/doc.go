// Package query serves filtered reads of matched movies.
//
// Queries only read the store. They never trigger, wait on, or observe an
// in-flight sync; a stale snapshot is still served with Result.Stale set.
package query
