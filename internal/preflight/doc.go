// Package preflight provides readiness checks for the directories and
// upstream sources reelscout depends on.
//
// The CLI "reelscout doctor" command runs RunAll and prints one line per
// check. Source checks only confirm the endpoint answers; they never
// spend a catalog page or rating lookup.
package preflight
