// Package imagecache holds the level images of one viewing session.
//
// Each cached asset gets a handle: an unguessable token and the URL under
// which the map surface can fetch the bytes while the handle is live.
// Release revokes the handle, after which the URL stops resolving.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ErrEmptyAsset is returned when a loader succeeds with no bytes.
var ErrEmptyAsset = errors.New("asset is empty")

// DefaultLoadTimeout bounds one loader call.
const DefaultLoadTimeout = 30 * time.Second

// Loader fetches the bytes and content type of an asset.
type Loader func(ctx context.Context, assetID string) (data []byte, contentType string, err error)

// Handle is a live reference to a cached asset.
type Handle struct {
	AssetID string
	Token   string
	URL     string
}

// Entry is what a handle resolves to.
type Entry struct {
	Handle      Handle
	Data        []byte
	ContentType string
}

// Cache maps asset IDs to live handles. There is at most one live handle
// per asset ID.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Cache struct {
	urlPrefix string

	mu      sync.RWMutex
	byAsset map[string]*Entry
	byToken map[string]*Entry

	// generation is bumped by Release and ReleaseAll so a load that started
	// before a release does not install a handle afterwards.
	generation map[string]uint64

	group       singleflight.Group
	loadTimeout time.Duration

	onLoad func(assetID string, err error)
}

// New creates a cache whose handle URLs are urlPrefix + "/" + token.
func New(urlPrefix string) *Cache {
	return &Cache{
		urlPrefix:   urlPrefix,
		byAsset:     make(map[string]*Entry),
		byToken:     make(map[string]*Entry),
		generation:  make(map[string]uint64),
		loadTimeout: DefaultLoadTimeout,
	}
}

// SetLoadTimeout changes the bound on one loader call.
func (c *Cache) SetLoadTimeout(d time.Duration) {
	if d > 0 {
		c.loadTimeout = d
	}
}

// SetOnLoad registers a callback invoked after every loader call.
func (c *Cache) SetOnLoad(fn func(assetID string, err error)) {
	c.onLoad = fn
}

// Acquire returns the live handle for assetID, loading it when absent.
// Concurrent acquires of the same asset share one loader call. The loader
// runs on a context no single caller owns: cancelling ctx abandons this
// caller's wait but not the load other callers are waiting on. A loader
// failure is returned as is and leaves no entry behind.
func (c *Cache) Acquire(ctx context.Context, assetID string, load Loader) (Handle, error) {
	if h, ok := c.cached(assetID); ok {
		return h, nil
	}

	ch := c.group.DoChan(assetID, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), assetID, load)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Handle{}, res.Err
		}
		return res.Val.(Handle), nil
	case <-ctx.Done():
		return Handle{}, ctx.Err()
	}
}

func (c *Cache) load(ctx context.Context, assetID string, load Loader) (Handle, error) {
	if h, ok := c.cached(assetID); ok {
		return h, nil
	}

	c.mu.RLock()
	gen := c.generation[assetID]
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	defer cancel()

	data, contentType, err := load(ctx, assetID)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("%w: %s", ErrEmptyAsset, assetID)
	}
	if c.onLoad != nil {
		c.onLoad(assetID, err)
	}
	if err != nil {
		return Handle{}, err
	}

	token := uuid.NewString()
	e := &Entry{
		Handle:      Handle{AssetID: assetID, Token: token, URL: c.urlPrefix + "/" + token},
		Data:        data,
		ContentType: contentType,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation[assetID] != gen {
		// Released while loading: hand the caller a handle that is
		// already revoked rather than resurrecting the entry.
		return e.Handle, nil
	}
	c.byAsset[assetID] = e
	c.byToken[token] = e
	return e.Handle, nil
}

func (c *Cache) cached(assetID string) (Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.byAsset[assetID]; ok {
		return e.Handle, true
	}
	return Handle{}, false
}

// Release revokes the handle of assetID. Releasing an asset that is not
// cached is a no-op.
func (c *Cache) Release(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(assetID)
}

func (c *Cache) releaseLocked(assetID string) {
	c.generation[assetID]++
	// A load still running for the released handle must not be joined by
	// the next Acquire.
	c.group.Forget(assetID)
	e, ok := c.byAsset[assetID]
	if !ok {
		return
	}
	delete(c.byAsset, assetID)
	delete(c.byToken, e.Handle.Token)
}

// ReleaseAll revokes every handle and returns how many were live.
func (c *Cache) ReleaseAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.byAsset)
	for id := range c.byAsset {
		c.releaseLocked(id)
	}
	return n
}

// Lookup resolves a live handle token.
func (c *Cache) Lookup(token string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byToken[token]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of live handles.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byAsset)
}
