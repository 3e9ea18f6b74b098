package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// CheckStoreLock reports whether another shelfscan process holds the record
// store. A missing lock file counts as available.
func CheckStoreLock(path string) Result {
	const name = "Record store"

	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: "not created yet"}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: "available"}
	}

	lock := flock.New(path)
	locked, err := lock.TryRLock()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("lock check failed (%v)", err)}
	}
	if !locked {
		return Result{Name: name, Detail: "in use by another shelfscan process"}
	}
	_ = lock.Unlock()
	return Result{Name: name, Passed: true, Detail: "available"}
}
