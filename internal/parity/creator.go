// internal/parity/creator.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// creator.go implements exactly-once parity emission per blob,
// coordinated by a named lock artifact (a directory create used as a
// test-and-set) rather than any cross-process mutex, since parity
// creation is the only place unrelated worker processes (not just
// goroutines) might race on the same blob identity across runs.
package parity

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mmp/carb/internal/blob"
	"github.com/mmp/carb/internal/config"
	"github.com/mmp/carb/internal/log"
)

const (
	pollInterval = 100 * time.Millisecond
	maxPollTries = 50
)

// Creator owns the parity directory and the at-most-once-per-BlobId
// creation protocol.
type Creator struct {
	dir string
	log *log.Logger
}

// NewCreator returns a Creator rooted at dir, creating dir if needed.
func NewCreator(dir string, l *log.Logger) (*Creator, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Creator{dir: dir, log: l}, nil
}

func (c *Creator) base(id blob.ID) string { return filepath.Join(c.dir, id.String()) }
func (c *Creator) lockPath(id blob.ID) string {
	return filepath.Join(c.dir, "lock_"+id.String())
}

// Exists reports whether a ParitySet has already been created for id.
func (c *Creator) Exists(id blob.ID) bool {
	_, err := os.Stat(metaPath(c.base(id)))
	return err == nil
}

// Ensure creates a parity set for id if one doesn't already exist. It
// never returns an error for a codec failure: absence of parity is an
// acceptable outcome and is only logged. The returned bool reports
// whether this call is the one that created the parity set (used to
// populate par2_created in the run journal).
func (c *Creator) Ensure(id blob.ID, blobPath string, cfg *config.Config) bool {
	if c.Exists(id) {
		return false
	}

	lock := c.lockPath(id)
	if err := os.Mkdir(lock, 0o700); err != nil {
		if !os.IsExist(err) {
			c.log.Error("%s: can't create parity lock: %s", id, err)
			return false
		}
		// Someone else is already working on it (this run or another
		// process); poll for completion, bounded.
		for i := 0; i < maxPollTries; i++ {
			if c.Exists(id) {
				return false
			}
			time.Sleep(pollInterval)
		}
		return false
	}
	defer os.RemoveAll(lock)

	// Re-check: the lock holder before us may have finished and released
	// between our Exists() check and Mkdir() succeeding (shouldn't
	// happen with a non-reentrant lock, but cheap to confirm).
	if c.Exists(id) {
		return false
	}

	blockSize, redundancy := Plan(int64(id.Size), cfg.Par2BlockSize, cfg.Par2Redundancy, cfg.Par2RedundancySet)
	if err := Create(blobPath, c.base(id), blockSize, redundancy); err != nil {
		c.log.Error("%s: parity creation failed: %s", id, err)
		return false
	}
	return true
}
