package lists

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/tripcast/internal/backend"
)

// Service is the subset of the backend the cache fronts.
type Service interface {
	MyLists(ctx context.Context) ([]backend.List, error)
	CreateList(ctx context.Context, in backend.ListInput) (backend.List, error)
	UpdateList(ctx context.Context, id string, in backend.ListInput) (backend.List, error)
	DeleteList(ctx context.Context, id string) error
}

// Cache holds the signed-in user's lists. It is keyed by the bearer token
// carried in the context: a different token starts from empty.
type Cache struct {
	svc   Service
	group singleflight.Group

	mu     sync.Mutex
	token  string
	lists  []backend.List
	loaded bool
	epoch  uint64
}

// NewCache creates an empty cache over svc.
func NewCache(svc Service) *Cache {
	return &Cache{svc: svc}
}

// Lists returns the cached lists, loading them on first use or when force is
// set. Concurrent loads for one token share a single backend request. A
// context without a token yields no lists.
func (c *Cache) Lists(ctx context.Context, force bool) ([]backend.List, error) {
	token := backend.TokenFrom(ctx)
	if token == "" {
		return nil, nil
	}

	c.mu.Lock()
	c.switchTo(token)
	if c.loaded && !force {
		out := slices.Clone(c.lists)
		c.mu.Unlock()
		return out, nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	// the shared load must outlive any single caller that gives up waiting
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(token, func() (interface{}, error) {
		return c.svc.MyLists(loadCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		lists := res.Val.([]backend.List)

		c.mu.Lock()
		if c.epoch == epoch && c.token == token {
			c.lists = slices.Clone(lists)
			c.loaded = true
		} else {
			log.Debug().Msg("discarding list load for a previous identity")
		}
		c.mu.Unlock()
		return slices.Clone(lists), nil
	}
}

// Create creates a list and adds it to the cache.
func (c *Cache) Create(ctx context.Context, in backend.ListInput) (backend.List, error) {
	list, err := c.svc.CreateList(ctx, in)
	if err != nil {
		return backend.List{}, err
	}
	c.update(backend.TokenFrom(ctx), func(lists []backend.List) []backend.List {
		return append(lists, list)
	})
	return list, nil
}

// Update edits a list and replaces the cached copy.
func (c *Cache) Update(ctx context.Context, id string, in backend.ListInput) (backend.List, error) {
	list, err := c.svc.UpdateList(ctx, id, in)
	if err != nil {
		return backend.List{}, err
	}
	c.update(backend.TokenFrom(ctx), func(lists []backend.List) []backend.List {
		for i := range lists {
			if lists[i].ID == id {
				lists[i] = list
			}
		}
		return lists
	})
	return list, nil
}

// Delete removes a list and drops it from the cache.
func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.svc.DeleteList(ctx, id); err != nil {
		return err
	}
	c.update(backend.TokenFrom(ctx), func(lists []backend.List) []backend.List {
		return slices.DeleteFunc(lists, func(l backend.List) bool { return l.ID == id })
	})
	return nil
}

// Invalidate forgets everything. Call it whenever the signed-in identity
// changes (sign-in, sign-up, sign-out).
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		c.group.Forget(c.token)
	}
	c.reset("")
}

func (c *Cache) update(token string, fn func([]backend.List) []backend.List) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" || token != c.token || !c.loaded {
		return
	}
	c.lists = fn(slices.Clone(c.lists))
}

// switchTo must be called with mu held.
func (c *Cache) switchTo(token string) {
	if c.token != token {
		c.reset(token)
	}
}

func (c *Cache) reset(token string) {
	c.token = token
	c.lists = nil
	c.loaded = false
	c.epoch++
}
