package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/cache"
	"github.com/fjod/go_checkout/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const persistTimeout = time.Second

// Registry owns one Store per session. Stores are restored from the cart
// cache on first use and every later mutation is written back to it.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
	cache  cache.CartCache // nil disables persistence
	sfg    singleflight.Group
	logger *zap.Logger
}

func NewRegistry(c cache.CartCache, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		stores: make(map[string]*Store),
		cache:  c,
		logger: logger,
	}
}

// ErrCartUnavailable is returned by Get when the session's cached cart could
// not be read. The store is not registered, so the next Get retries the read.
var ErrCartUnavailable = errors.New("cart unavailable")

// Get returns the session's store, creating and restoring it when needed.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Store, error) {
	if s := r.lookup(sessionID); s != nil {
		return s, nil
	}

	// concurrent first requests for one session share a single cache read
	v, err, _ := r.sfg.Do(sessionID, func() (interface{}, error) {
		if s := r.lookup(sessionID); s != nil {
			return s, nil
		}

		snap, err := r.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		s := NewStore(sessionID)
		if snap != nil {
			s.restore(*snap)
		}
		if r.cache != nil {
			s.Subscribe(r.persist)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if existing, ok := r.stores[sessionID]; ok {
			return existing, nil
		}
		r.stores[sessionID] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Store), nil
}

// Logout empties the session's cart, forgets the store and drops the cached copy.
func (r *Registry) Logout(ctx context.Context, sessionID string) {
	r.mu.Lock()
	s, ok := r.stores[sessionID]
	delete(r.stores, sessionID)
	r.mu.Unlock()

	if ok {
		s.Clear()
	}
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, sessionID); err != nil {
		r.logger.Warn("cart cache delete failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Sessions returns the number of live stores.
func (r *Registry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

func (r *Registry) lookup(sessionID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stores[sessionID]
}

// load returns nil without an error on a cache miss.
func (r *Registry) load(ctx context.Context, sessionID string) (*domain.CartSnapshot, error) {
	if r.cache == nil {
		return nil, nil
	}
	snap, err := r.cache.Get(ctx, sessionID)
	if err == nil {
		return snap, nil
	}
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	r.logger.Warn("cart cache get failed", zap.String("session_id", sessionID), zap.Error(err))
	return nil, fmt.Errorf("%w: %w", ErrCartUnavailable, err)
}

func (r *Registry) persist(snap domain.CartSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var err error
	if snap.IsEmpty() {
		err = r.cache.Delete(ctx, snap.SessionID)
	} else {
		err = r.cache.Set(ctx, &snap)
	}
	if errors.Is(err, cache.ErrStaleVersion) {
		r.logger.Error("cart cache holds a newer cart, write refused",
			zap.String("session_id", snap.SessionID),
			zap.Uint64("version", snap.Version),
			zap.Error(err))
		return
	}
	if err != nil {
		r.logger.Warn("cart cache write failed",
			zap.String("session_id", snap.SessionID),
			zap.Uint64("version", snap.Version),
			zap.Error(err))
	}
}
