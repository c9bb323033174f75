package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/collabhub/collab-chat/internal/domain"
	"github.com/collabhub/collab-chat/pkg/database"
	"github.com/collabhub/collab-chat/pkg/log"
)

// GormChatRepository implements ChatRepository using GORM.
type GormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository creates a new GORM-based chat repository.
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db}
}

// UpsertRoom creates the room unless it already exists.
func (r *GormChatRepository) UpsertRoom(ctx context.Context, room *domain.ChatRoom) (*domain.ChatRoom, error) {
	l := log.Ctx(ctx)

	model := domain.RoomToModel(room)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now()
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(model).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to upsert room")
		return nil, err
	}

	var stored domain.RoomModel
	if err := r.db.WithContext(ctx).First(&stored, "id = ?", room.ID).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to read upserted room")
		return nil, err
	}
	return stored.ToDomain(), nil
}

// CreateRoom creates a new room.
func (r *GormChatRepository) CreateRoom(ctx context.Context, room *domain.ChatRoom) error {
	l := log.Ctx(ctx)

	model := domain.RoomToModel(room)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now()
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(model)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, room.ID).Msg("failed to create room in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRoomExists
	}

	room.CreatedAt = model.CreatedAt
	l.Debug().Str(log.FieldRoomID, room.ID).Msg("room created in db")
	return nil
}

// GetRoom retrieves a room by ID.
func (r *GormChatRepository) GetRoom(ctx context.Context, id string) (*domain.ChatRoom, error) {
	var model domain.RoomModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to get room by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

func (r *GormChatRepository) RoomExists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.RoomModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListRooms retrieves rooms newest first with their message counts.
func (r *GormChatRepository) ListRooms(ctx context.Context, page, pageSize int) ([]domain.RoomSummary, int64, error) {
	l := log.Ctx(ctx)
	page, pageSize = normalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	query := r.db.WithContext(ctx).Model(&domain.RoomModel{}).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Msg("failed to count rooms")
		return nil, 0, err
	}

	var models []domain.RoomModel
	if err := query.Order("created_at DESC").Order("id ASC").Offset(offset).Limit(pageSize).Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list rooms from db")
		return nil, 0, err
	}
	if len(models) == 0 {
		return []domain.RoomSummary{}, total, nil
	}

	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}

	var counts []struct {
		RoomID string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Select("room_id, COUNT(*) AS count").
		Where("room_id IN ?", ids).
		Group("room_id").
		Scan(&counts).Error
	if err != nil {
		l.Error().Err(err).Msg("failed to count room messages")
		return nil, 0, err
	}
	byRoom := make(map[string]int64, len(counts))
	for _, c := range counts {
		byRoom[c.RoomID] = c.Count
	}

	// seq grows with every insert, so the highest seq per room is its newest message.
	var latest []domain.MessageModel
	newest := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Select("MAX(seq)").
		Where("room_id IN ?", ids).
		Group("room_id")
	if err := r.db.WithContext(ctx).Where("seq IN (?)", newest).Find(&latest).Error; err != nil {
		l.Error().Err(err).Msg("failed to load last room messages")
		return nil, 0, err
	}
	lastByRoom := make(map[string]*domain.ChatMessage, len(latest))
	for i := range latest {
		lastByRoom[latest[i].RoomID] = latest[i].ToDomain()
	}

	rooms := make([]domain.RoomSummary, len(models))
	for i, m := range models {
		rooms[i] = domain.RoomSummary{
			ChatRoom:     *m.ToDomain(),
			MessageCount: byRoom[m.ID],
			LastMessage:  lastByRoom[m.ID],
		}
	}
	return rooms, total, nil
}

// UpdateRoom applies the set fields of update to the room.
func (r *GormChatRepository) UpdateRoom(ctx context.Context, id string, update domain.RoomUpdate) (*domain.ChatRoom, error) {
	l := log.Ctx(ctx)

	var model domain.RoomModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		cols := update.Columns()
		if len(cols) == 0 {
			return nil
		}
		if err := tx.Model(&model).Updates(cols).Error; err != nil {
			return err
		}
		return tx.First(&model, "id = ?", id).Error
	})
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			l.Error().Err(err).Str(log.FieldRoomID, id).Msg("failed to update room in db")
		}
		return nil, err
	}

	l.Debug().Str(log.FieldRoomID, id).Msg("room updated in db")
	return model.ToDomain(), nil
}

// DeleteRoom deletes the room together with its messages.
func (r *GormChatRepository) DeleteRoom(ctx context.Context, id string) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&domain.RoomModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return tx.Where("room_id = ?", id).Delete(&domain.MessageModel{}).Error
	})
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			l.Error().Err(err).Str(log.FieldRoomID, id).Msg("failed to delete room from db")
		}
		return err
	}

	l.Debug().Str(log.FieldRoomID, id).Msg("room deleted from db")
	return nil
}

// CreateMessage stores a message with a fresh id and timestamp.
func (r *GormChatRepository) CreateMessage(ctx context.Context, msg *domain.ChatMessage) error {
	msg.CreatedAt = now()
	msg.ID = newMessageID(msg.CreatedAt)

	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to create message in db")
		return err
	}
	return nil
}

func (r *GormChatRepository) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}

	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").Order("seq DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to list recent messages")
		return nil, err
	}
	return toMessages(models), nil
}

func (r *GormChatRepository) ListMessages(ctx context.Context, roomID string, page, limit int) ([]domain.ChatMessage, int64, error) {
	l := log.Ctx(ctx)
	page, limit = normalizePage(page, limit)

	query := r.db.WithContext(ctx).Model(&domain.MessageModel{}).Where("room_id = ?", roomID).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to count messages")
		return nil, 0, err
	}

	var models []domain.MessageModel
	err := query.Order("created_at DESC").Order("seq DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&models).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to list messages")
		return nil, 0, err
	}
	return toMessages(models), total, nil
}

// Close closes the underlying connection pool.
func (r *GormChatRepository) Close() error {
	return database.Close(r.db)
}

// toMessages converts newest-first rows into oldest-first messages.
func toMessages(models []domain.MessageModel) []domain.ChatMessage {
	msgs := make([]domain.ChatMessage, len(models))
	for i := range models {
		msgs[i] = *models[i].ToDomain()
	}
	reverse(msgs)
	return msgs
}
