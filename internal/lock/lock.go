// Package lock serialises staging across concurrent hook processes that
// share a worktree, so they don't trip over git's index.lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"
)

const retryDelay = 50 * time.Millisecond

// ErrUnavailable means the lock file could not be opened at all. Callers
// should carry on without the lock.
var ErrUnavailable = errors.New("lock file unavailable")

// Root returns the worktree root for dir: the nearest ancestor holding a
// .git entry (directory for a main checkout, file for a linked worktree).
// Outside a repository it returns dir itself, made absolute.
func Root(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	for cur := abs; ; {
		if _, err := os.Stat(filepath.Join(cur, ".git")); err == nil {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		cur = parent
	}
}

// Path returns the lock file used for dir. Every directory inside one
// worktree maps to the same file.
func Path(dir string) (string, error) {
	root, err := Root(dir)
	if err != nil {
		return "", err
	}
	name := "git-auto-add-" + strconv.FormatUint(xxhash.Sum64String(root), 16) + ".lock"
	return filepath.Join(os.TempDir(), name), nil
}

// Acquire takes an exclusive lock for dir's worktree, retrying while another
// process holds it until ctx is done. The caller must Unlock the returned
// lock. If the lock file can't be opened the error wraps ErrUnavailable.
func Acquire(ctx context.Context, dir string) (*flock.Flock, error) {
	path, err := Path(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("timeout waiting for lock %s: %w", path, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	if !locked {
		return nil, fmt.Errorf("timeout waiting for lock %s", path)
	}
	return fl, nil
}
