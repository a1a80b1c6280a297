package gitrepo

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// RWMutex is the in-process lock used to serialize access to one bare repo
// or work tree (spec §3: "no two concurrent writers share a work-tree; all
// write operations are serialized per local bare repo"). It is backed by
// go-deadlock rather than sync.RWMutex -- the teacher (go-mirror) takes the
// same dependency for exactly this purpose (process-wide repo locks held
// across long git subprocess calls, where an accidental double-lock would
// otherwise hang silently) so deadlocks are reported instead of wedging
// the whole migration run.
type RWMutex = deadlock.RWMutex

// fileLock is a cooperative, advisory lock file used to serialize mutation
// of one cached bare repo *across processes*, per spec §4.1 ("mutations to
// the cache are serialized by a file-system lock per repo"). It is
// intentionally simple: copybara invocations are batch jobs, not a
// long-running service, so a basic O_EXCL lock file (cleaned up on
// release) is enough; a full flock() implementation is unnecessary
// complexity for a single-invocation batch tool.
type fileLock struct {
	path string
	mu   sync.Mutex
	file *os.File
}

func newFileLock(dir string) *fileLock {
	return &fileLock{path: filepath.Join(dir, ".copybara-lock")}
}

// Lock acquires both the in-process mutex (fast path across goroutines in
// this process) and the advisory lock file (slow path across processes
// sharing the same cache root).
func (l *fileLock) Lock() error {
	l.mu.Lock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	for os.IsExist(err) {
		// another process holds it; poll with a short backoff. batch-job
		// lock hold times are bounded by one fetch+push, so a blocking
		// poll here is acceptable and keeps the implementation free of
		// platform-specific flock syscalls.
		time.Sleep(50 * time.Millisecond)
		f, err = os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.file = f
	return nil
}

// Unlock releases both the in-process mutex and the advisory lock file.
func (l *fileLock) Unlock() {
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		os.Remove(l.path)
		l.file = nil
	}
}
