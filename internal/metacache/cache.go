// Package metacache stores registry descriptors on disk in front of the
// network.
//
// Entries for pinned versions never expire: the registry does not allow a
// published version to change. Entries for the "latest" alias expire after
// the cache TTL, measured from the file's modification time. Concurrent
// processes may write the same entry; the last writer wins.
package metacache

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/git-pkgs/jslib/fetch"
	"github.com/git-pkgs/jslib/internal/core"
	"github.com/git-pkgs/jslib/internal/npm"
	"github.com/git-pkgs/jslib/internal/output"
)

// DefaultTTL is how long a "latest" descriptor stays fresh.
const DefaultTTL = time.Hour

const memoSize = 512

// Cache is a descriptor cache rooted at a directory.
type Cache struct {
	fs       afero.Fs
	dir      string
	registry string
	fetcher  fetch.FetcherInterface
	ttl      time.Duration
	now      func() time.Time
	memo     *lru.Cache[string, *core.Descriptor]
	logger   *log.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the expiry of "latest" entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock replaces the clock used to age "latest" entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithRegistry sets the registry base URL.
func WithRegistry(baseURL string) Option {
	return func(c *Cache) {
		if baseURL != "" {
			c.registry = baseURL
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates a cache storing entries in dir on fs and fetching misses with f.
func New(fs afero.Fs, dir string, f fetch.FetcherInterface, opts ...Option) *Cache {
	memo, _ := lru.New[string, *core.Descriptor](memoSize)
	c := &Cache{
		fs:       fs,
		dir:      dir,
		registry: npm.DefaultURL,
		fetcher:  f,
		ttl:      DefaultTTL,
		now:      time.Now,
		memo:     memo,
		logger:   output.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Descriptor implements core.DescriptorSource.
func (c *Cache) Descriptor(ctx context.Context, name, version string) (*core.Descriptor, error) {
	return c.Get(ctx, name, version)
}

// Get returns the descriptor of name@version. An empty version or "latest"
// selects the newest release.
func (c *Cache) Get(ctx context.Context, name, version string) (*core.Descriptor, error) {
	if version == "" {
		version = npm.Latest
	}
	key := Key(name, version)
	pinned := version != npm.Latest

	if pinned {
		if desc, ok := c.memo.Get(key); ok {
			return desc, nil
		}
	}

	if desc, ok := c.load(key, pinned); ok {
		if pinned {
			c.memo.Add(key, desc)
		}
		return desc, nil
	}

	desc, err := c.fetch(ctx, name, version, key)
	if err != nil {
		return nil, &core.DescriptorError{Name: name, Version: version, Err: err}
	}
	if pinned {
		c.memo.Add(key, desc)
	}
	return desc, nil
}

// Key returns the cache file name for name@version.
func Key(name, version string) string {
	return fmt.Sprintf("%s-%s.meta.json", url.PathEscape(name), url.PathEscape(version))
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key)
}

// load returns a fresh entry. Stale, unreadable and corrupt entries are misses.
func (c *Cache) load(key string, pinned bool) (*core.Descriptor, bool) {
	p := c.path(key)
	info, err := c.fs.Stat(p)
	if err != nil {
		return nil, false
	}
	if !pinned && c.now().Sub(info.ModTime()) >= c.ttl {
		c.logger.Debug("descriptor expired", "key", key, "age", c.now().Sub(info.ModTime()))
		return nil, false
	}
	data, err := afero.ReadFile(c.fs, p)
	if err != nil {
		return nil, false
	}
	desc, err := npm.ParseDescriptor(data)
	if err != nil {
		c.logger.Warn("discarding corrupt cache entry", "key", key, "err", err)
		return nil, false
	}
	return desc, true
}

// fetch downloads a descriptor and stores it verbatim. Nothing is written
// unless the response parses.
func (c *Cache) fetch(ctx context.Context, name, version, key string) (*core.Descriptor, error) {
	u := npm.DescriptorURL(c.registry, name, version)
	c.logger.Debug("fetching descriptor", "url", u)

	data, err := fetch.ReadAll(ctx, c.fetcher, u)
	if err != nil {
		return nil, err
	}
	desc, err := npm.ParseDescriptor(data)
	if err != nil {
		return nil, err
	}

	if err := c.store(key, data); err != nil {
		c.logger.Warn("could not cache descriptor", "key", key, "err", err)
	}
	return desc, nil
}

func (c *Cache) store(key string, data []byte) error {
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	return afero.WriteFile(c.fs, c.path(key), data, 0o644)
}

// Purge removes every cached entry.
func (c *Cache) Purge() error {
	c.memo.Purge()
	entries, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := c.fs.Remove(c.path(e.Name())); err != nil {
			return err
		}
	}
	return nil
}
