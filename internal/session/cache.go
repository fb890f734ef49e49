package session

import (
	"context"
	"io"
	"sync"

	"github.com/dl-alexandre/icdl/internal/types"
	"golang.org/x/sync/singleflight"
)

// Cache is a per-run listing cache. Each container is listed at most once
// per run; concurrent requests for the same container share one call.
// Failed listings are not cached.
type Cache struct {
	inner Session

	mu       sync.RWMutex
	children map[string][]types.RemoteEntry
	roots    map[string]types.RemoteEntry
	group    singleflight.Group
}

// NewCache wraps s with a listing cache
func NewCache(s Session) *Cache {
	return &Cache{
		inner:    s,
		children: make(map[string][]types.RemoteEntry),
		roots:    make(map[string]types.RemoteEntry),
	}
}

func (c *Cache) root(ctx context.Context, key string, fetch func(context.Context) (types.RemoteEntry, error)) (types.RemoteEntry, error) {
	c.mu.RLock()
	entry, ok := c.roots[key]
	c.mu.RUnlock()
	if ok {
		return entry, nil
	}

	v, err, _ := c.group.Do("root:"+key, func() (interface{}, error) {
		e, err := fetch(ctx)
		if err != nil {
			return types.RemoteEntry{}, err
		}
		c.mu.Lock()
		c.roots[key] = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return types.RemoteEntry{}, err
	}
	return v.(types.RemoteEntry), nil
}

func (c *Cache) DriveRoot(ctx context.Context) (types.RemoteEntry, error) {
	return c.root(ctx, "drive", c.inner.DriveRoot)
}

func (c *Cache) PhotosRoot(ctx context.Context) (types.RemoteEntry, error) {
	return c.root(ctx, "photos", c.inner.PhotosRoot)
}

// ListChildren returns a copy of the cached listing so callers can never
// mutate shared state.
func (c *Cache) ListChildren(ctx context.Context, entryID string) ([]types.RemoteEntry, error) {
	c.mu.RLock()
	cached, ok := c.children[entryID]
	c.mu.RUnlock()
	if ok {
		return append([]types.RemoteEntry(nil), cached...), nil
	}

	v, err, _ := c.group.Do("list:"+entryID, func() (interface{}, error) {
		entries, err := c.inner.ListChildren(ctx, entryID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.children[entryID] = entries
		c.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]types.RemoteEntry(nil), v.([]types.RemoteEntry)...), nil
}

func (c *Cache) FetchFull(ctx context.Context, entryID string) (io.ReadCloser, error) {
	return c.inner.FetchFull(ctx, entryID)
}

func (c *Cache) FetchRange(ctx context.Context, entryID string, offset int64) (io.ReadCloser, error) {
	return c.inner.FetchRange(ctx, entryID, offset)
}

// ResolveAlbum is not cached; it is called once per ID selector.
func (c *Cache) ResolveAlbum(ctx context.Context, nameOrID string) (types.RemoteEntry, error) {
	return c.inner.ResolveAlbum(ctx, nameOrID)
}

// Len reports how many containers are cached
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.children)
}
