package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"comicvault/internal/batch"
)

// ErrClaimed reports that another worker or process owns the source path.
// The batch coordinator defers such records to the next run.
var ErrClaimed = batch.ErrClaimed

// Claims grants exclusive ownership of source paths. Ownership is tracked
// in-process and backed by a lock file per path so separate processes
// sharing the staging directory also exclude each other.
type Claims struct {
	dir string

	mu   sync.Mutex
	held map[string]*flock.Flock
}

// NewClaims stores lock files under dir.
func NewClaims(dir string) (*Claims, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &Claims{dir: dir, held: make(map[string]*flock.Flock)}, nil
}

// Acquire claims path. The returned release func is idempotent.
func (c *Claims) Acquire(path string) (func(), error) {
	key, err := claimKey(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.held[key]; busy {
		return nil, fmt.Errorf("%w: %s", ErrClaimed, path)
	}
	lock := flock.New(filepath.Join(c.dir, key+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (held by another process)", ErrClaimed, path)
	}
	c.held[key] = lock

	var once sync.Once
	return func() {
		once.Do(func() { c.release(key) })
	}, nil
}

// Held reports whether path is currently claimed by this process.
func (c *Claims) Held(path string) bool {
	key, err := claimKey(path)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.held[key]
	return ok
}

func (c *Claims) release(key string) {
	c.mu.Lock()
	lock := c.held[key]
	delete(c.held, key)
	c.mu.Unlock()
	if lock != nil {
		_ = lock.Unlock()
	}
}

func claimKey(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve claim path %q: %w", path, err)
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:12]), nil
}
