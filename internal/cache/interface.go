package cache

import (
	"context"
	"errors"
	"time"

	"github.com/collabhub/collab-chat/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RoomCache caches room rows by id. Rooms are never updated once created,
// so entries only expire.
type RoomCache interface {
	Get(ctx context.Context, roomID string) (*domain.ChatRoom, error)
	Set(ctx context.Context, room *domain.ChatRoom, ttl time.Duration) error
	Delete(ctx context.Context, roomIDs ...string) error
	Close() error
}

// NoopRoomCache is used when caching is disabled. Every Get misses.
type NoopRoomCache struct{}

func (NoopRoomCache) Get(context.Context, string) (*domain.ChatRoom, error) {
	return nil, ErrCacheMiss
}

func (NoopRoomCache) Set(context.Context, *domain.ChatRoom, time.Duration) error { return nil }

func (NoopRoomCache) Delete(context.Context, ...string) error { return nil }

func (NoopRoomCache) Close() error { return nil }
