package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/nimburion/crudkit/pkg/observability/logger"
	"github.com/nimburion/crudkit/pkg/resilience"
)

// Guarded protects a PageCache with a circuit breaker. While the circuit is
// open, Get misses and Set is skipped so requests go straight to the store.
//
// A collection whose invalidation failed is marked dirty. Dirty collections
// are neither read nor written until an invalidation succeeds, which Get
// retries before serving anything, so entries cached before a write are
// never served after it.
type Guarded struct {
	inner   PageCache
	breaker *resilience.CircuitBreaker

	mu    sync.Mutex
	dirty map[string]struct{}
}

// NewGuarded wraps inner with a breaker built from cfg. State changes are
// logged on log.
func NewGuarded(inner PageCache, cfg resilience.Config, log logger.Logger) *Guarded {
	if log == nil {
		log = logger.Nop()
	}
	onChange := cfg.OnStateChange
	cfg.OnStateChange = func(from, to resilience.State) {
		log.Warn("page cache circuit changed state", "from", from.String(), "to", to.String())
		if onChange != nil {
			onChange(from, to)
		}
	}
	return &Guarded{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(cfg),
		dirty:   make(map[string]struct{}),
	}
}

// State reports the breaker state.
func (g *Guarded) State() resilience.State {
	return g.breaker.State()
}

// Get reads through the breaker. It reports ErrMiss with a zero slot when
// the circuit is open or when collection is dirty and still cannot be
// invalidated, so nothing loaded meanwhile is cached.
func (g *Guarded) Get(ctx context.Context, collection string, key any, dest any) (Slot, error) {
	if g.isDirty(collection) {
		if err := g.Invalidate(ctx, collection); err != nil {
			return Slot{}, ErrMiss
		}
	}
	var (
		slot Slot
		miss bool
	)
	err := g.breaker.Execute(func() error {
		var err error
		slot, err = g.inner.Get(ctx, collection, key, dest)
		if errors.Is(err, ErrMiss) {
			miss = true
			return nil
		}
		return err
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return Slot{}, ErrMiss
	case err != nil:
		return Slot{}, err
	case miss:
		return slot, ErrMiss
	}
	return slot, nil
}

// Set writes through the breaker. It does nothing for a zero slot, while
// the circuit is open or while the slot's collection is dirty.
func (g *Guarded) Set(ctx context.Context, slot Slot, value any) error {
	if slot.IsZero() || g.isDirty(slot.Collection) {
		return nil
	}
	err := g.breaker.Execute(func() error {
		return g.inner.Set(ctx, slot, value)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil
	}
	return err
}

// Invalidate drops the cached pages of collection. On failure, including an
// open circuit, the collection stays dirty and the error is returned.
func (g *Guarded) Invalidate(ctx context.Context, collection string) error {
	err := g.breaker.Execute(func() error {
		return g.inner.Invalidate(ctx, collection)
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.dirty[collection] = struct{}{}
		return err
	}
	delete(g.dirty, collection)
	return nil
}

func (g *Guarded) isDirty(collection string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.dirty[collection]
	return ok
}
