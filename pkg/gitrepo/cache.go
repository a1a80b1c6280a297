package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Cache is the process-wide (and, via fileLock, cross-process) store of
// bare repos keyed by normalized remote URL, per spec §4.1: "a local bare
// mirror of each distinct origin/destination URL is kept under a shared
// cache root and reused across invocations; fetches are incremental."
type Cache struct {
	root string
	log  *slog.Logger

	mu    RWMutex
	repos map[string]*cachedRepo
}

type cachedRepo struct {
	repo *Repo
	lock *fileLock
}

// NewCache returns a Cache rooted at root, creating it if necessary.
func NewCache(root string, log *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root %s: %w", root, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{root: root, log: log, repos: make(map[string]*cachedRepo)}, nil
}

// Get returns the bare Repo for url, initializing an empty bare repo in the
// cache on first use; Get itself does not fetch, so a new entry holds no
// objects until a caller fetches into it. The returned unlock func must be called once the caller is
// done mutating the repo (fetch/push); it releases both the in-process
// and cross-process locks acquired to serialize access, per spec §4.1.
func (c *Cache) Get(ctx context.Context, url *RepoURL, partialFetch bool) (repo *Repo, unlock func(), err error) {
	key := url.CacheKey()

	c.mu.Lock()
	cr, ok := c.repos[key]
	if !ok {
		dir := filepath.Join(c.root, sanitizeCacheKey(key))
		cr = &cachedRepo{
			repo: New(dir+".git", c.log),
			lock: &fileLock{path: dir + ".lock"},
		}
		c.repos[key] = cr
	}
	c.mu.Unlock()

	if err := cr.lock.Lock(); err != nil {
		return nil, nil, fmt.Errorf("locking cache entry for %s: %w", url.Raw, err)
	}
	unlock = cr.lock.Unlock

	if _, statErr := os.Stat(cr.repo.GitDir); os.IsNotExist(statErr) {
		if err := cr.repo.Init(ctx, true); err != nil {
			unlock()
			return nil, nil, fmt.Errorf("initializing bare cache repo for %s: %w", url.Raw, err)
		}
		if partialFetch {
			if err := cr.repo.SetPartialFetch(ctx, "origin", true); err != nil {
				unlock()
				return nil, nil, fmt.Errorf("enabling partial fetch for %s: %w", url.Raw, err)
			}
		}
	}

	return cr.repo, unlock, nil
}

// Evict drops url's entry from the in-memory index (not the on-disk
// mirror) so the next Get re-initializes it; used when a repo is found to
// be corrupt.
func (c *Cache) Evict(url *RepoURL) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.repos, url.CacheKey())
}

// Sweep removes bare-repo directories under the cache root that are bare
// git repos but are not one of known's cache keys, best-effort: this is
// how a cache root recovers disk space after a workflow that referenced a
// remote stops being run, since an in-process Evict only drops an entry
// the current process still knows about.
func (c *Cache) Sweep(ctx context.Context, known []*RepoURL) error {
	keep := make(map[string]bool, len(known))
	for _, u := range known {
		keep[sanitizeCacheKey(u.CacheKey())+".git"] = true
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("reading cache root %s: %w", c.root, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || keep[entry.Name()] {
			continue
		}

		dir := filepath.Join(c.root, entry.Name())
		ok, err := isBareRepo(ctx, dir, c.log)
		if err != nil {
			c.log.Warn("sweep: unable to check if bare repo", "path", dir, "error", err)
			continue
		}
		if !ok {
			continue
		}

		c.log.Info("sweep: removing orphaned cache dir", "path", dir)
		if err := os.RemoveAll(dir); err != nil {
			c.log.Warn("sweep: unable to remove orphaned cache dir", "path", dir, "error", err)
		}
	}
	return nil
}

// isBareRepo reports whether dir is a bare git repository, used by Sweep to
// avoid deleting a directory that merely happens to share a cache-key-like
// name but was never one of this cache's own clones.
func isBareRepo(ctx context.Context, dir string, log *slog.Logger) (bool, error) {
	r := New(dir, log)
	out, err := r.SimpleCommand(ctx, "rev-parse", "--is-bare-repository")
	if err != nil {
		return false, nil // not a git dir at all
	}
	return out == "true\n" || out == "true", nil
}

// sanitizeCacheKey replaces path separators so the cache key can be used
// as a single directory component without nesting arbitrarily deep.
func sanitizeCacheKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch r {
		case '/', '\\', ':':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
