package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_checkout/internal/domain"
)

// CartCache keeps the latest cart snapshot of a session so a cart survives a BFF restart.
type CartCache interface {
	Get(ctx context.Context, sessionID string) (*domain.CartSnapshot, error)
	Set(ctx context.Context, snapshot *domain.CartSnapshot) error
	Delete(ctx context.Context, sessionID string) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStaleVersion is returned by Set when the cache already holds a newer snapshot.
	ErrStaleVersion = errors.New("cached cart is newer")
)
