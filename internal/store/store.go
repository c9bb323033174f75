// Package store is the single entry point the chat runtime uses for
// persistence. It fronts the repository with the room cache and collapses
// concurrent room upserts.
package store

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/collabhub/collab-chat/internal/cache"
	"github.com/collabhub/collab-chat/internal/domain"
	"github.com/collabhub/collab-chat/internal/repository"
	"github.com/collabhub/collab-chat/pkg/log"
)

type Store struct {
	repo     repository.ChatRepository
	cache    cache.RoomCache
	cacheTTL time.Duration
	upserts  singleflight.Group
}

// New creates a store. A nil roomCache disables caching.
func New(repo repository.ChatRepository, roomCache cache.RoomCache, cacheTTL time.Duration) *Store {
	if roomCache == nil {
		roomCache = cache.NoopRoomCache{}
	}
	return &Store{
		repo:     repo,
		cache:    roomCache,
		cacheTTL: cacheTTL,
	}
}

// UpsertRoom returns the room with the given id, creating it with the
// default name when it does not exist yet.
func (s *Store) UpsertRoom(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	if room := s.cachedRoom(ctx, roomID); room != nil {
		return room, nil
	}

	v, err, shared := s.upserts.Do(roomID, func() (interface{}, error) {
		room, err := s.repo.UpsertRoom(ctx, &domain.ChatRoom{
			ID:   roomID,
			Name: domain.DefaultRoomName(roomID),
		})
		if err != nil {
			return nil, err
		}
		s.cacheRoom(ctx, room)
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldRoomID, roomID).Msg("room upsert shared")
	}

	room := *v.(*domain.ChatRoom)
	return &room, nil
}

func (s *Store) RoomExists(ctx context.Context, roomID string) (bool, error) {
	if s.cachedRoom(ctx, roomID) != nil {
		return true, nil
	}
	return s.repo.RoomExists(ctx, roomID)
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	if room := s.cachedRoom(ctx, roomID); room != nil {
		return room, nil
	}
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	s.cacheRoom(ctx, room)
	return room, nil
}

// CreateRoom inserts a new room; repository.ErrRoomExists on duplicate id.
func (s *Store) CreateRoom(ctx context.Context, room *domain.ChatRoom) error {
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return err
	}
	s.cacheRoom(ctx, room)
	return nil
}

// UpdateRoom applies update and refreshes the cached copy.
func (s *Store) UpdateRoom(ctx context.Context, roomID string, update domain.RoomUpdate) (*domain.ChatRoom, error) {
	room, err := s.repo.UpdateRoom(ctx, roomID, update)
	if err != nil {
		return nil, err
	}
	s.cacheRoom(ctx, room)
	return room, nil
}

// DeleteRoom removes the room and its history and evicts it from the cache.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if err := s.repo.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, roomID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("room cache delete failed")
	}
	return nil
}

func (s *Store) ListRooms(ctx context.Context, page, pageSize int) ([]domain.RoomSummary, int64, error) {
	return s.repo.ListRooms(ctx, page, pageSize)
}

// CreateMessage persists text authored by author and returns the stored
// message with its id and timestamp.
func (s *Store) CreateMessage(ctx context.Context, roomID string, author domain.Identity, text string) (*domain.ChatMessage, error) {
	msg := domain.NewChatMessage(roomID, author, text)
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Store) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	return s.repo.ListRecentMessages(ctx, roomID, limit)
}

func (s *Store) ListMessages(ctx context.Context, roomID string, page, limit int) ([]domain.ChatMessage, int64, error) {
	return s.repo.ListMessages(ctx, roomID, page, limit)
}

func (s *Store) Close() error {
	return errors.Join(s.repo.Close(), s.cache.Close())
}

// cachedRoom returns nil on miss. Cache errors are logged and treated as a miss.
func (s *Store) cachedRoom(ctx context.Context, roomID string) *domain.ChatRoom {
	room, err := s.cache.Get(ctx, roomID)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("room cache get failed")
		}
		return nil
	}
	return room
}

func (s *Store) cacheRoom(ctx context.Context, room *domain.ChatRoom) {
	if err := s.cache.Set(ctx, room, s.cacheTTL); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, room.ID).Msg("room cache set failed")
	}
}
