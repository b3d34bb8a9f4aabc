package daemon

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"

	"reelscout/internal/config"
)

// ErrLocked reports that another reelscout process (the daemon or an
// in-process CLI sync) holds the process lock.
var ErrLocked = errors.New("another reelscout process holds the lock")

// AcquireLock takes the process lock shared by the daemon and in-process
// syncs. Every process that writes sync runs holds it for its lifetime, so a
// process that acquires it knows any non-terminal run left in the store has
// no live owner.
func AcquireLock(cfg *config.Config) (*flock.Flock, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	lock := flock.New(cfg.LockPath())
	if err := tryLock(lock); err != nil {
		return nil, err
	}
	return lock, nil
}

func tryLock(lock *flock.Flock) error {
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, lock.Path())
	}
	return nil
}
