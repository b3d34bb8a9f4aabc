package store

import "errors"

// ErrAlreadyRunning is returned by CreateRun when the platform already has a
// non-terminal sync run.
var ErrAlreadyRunning = errors.New("sync already running for platform")

// ErrRunNotFound is returned when updating a run id that does not exist.
var ErrRunNotFound = errors.New("sync run not found")
