package syncer

import (
	"errors"
	"fmt"

	"reelscout/internal/store"
)

var (
	// ErrAlreadyRunning rejects a trigger while the platform has a
	// non-terminal run.
	ErrAlreadyRunning = store.ErrAlreadyRunning
	// ErrUnknownPlatform rejects platform keys missing from the config.
	ErrUnknownPlatform = errors.New("unknown platform")
	// ErrRunNotActive is returned when cancelling a run this process does
	// not own or that already finished.
	ErrRunNotActive = errors.New("sync run is not active")
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("sync run not found")
	// ErrCancelled is recorded when a run stops at a cancellation checkpoint.
	ErrCancelled = errors.New("sync cancelled")
)

// CacheWriteFailure reports a commit that still failed after bounded retries.
type CacheWriteFailure struct {
	RunID    string
	Attempts int
	Err      error
}

func (f *CacheWriteFailure) Error() string {
	return fmt.Sprintf("commit run %s failed after %d attempts: %v", f.RunID, f.Attempts, f.Err)
}

func (f *CacheWriteFailure) Unwrap() error { return f.Err }
