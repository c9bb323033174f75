package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/collabhub/collab-chat/internal/audit"
	"github.com/collabhub/collab-chat/internal/domain"
	"github.com/collabhub/collab-chat/internal/repository"
	"github.com/collabhub/collab-chat/pkg/log"
	"github.com/collabhub/collab-chat/pkg/middleware"
	"github.com/collabhub/collab-chat/pkg/response"
)

const (
	roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	roomIDSize     = 12

	defaultMessageLimit = 50
	maxMessageLimit     = 100
	defaultPageSize     = 20
	maxPageSize         = 100
)

// RoomStore is the persistence the REST API reads and writes.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *domain.ChatRoom) error
	GetRoom(ctx context.Context, roomID string) (*domain.ChatRoom, error)
	UpdateRoom(ctx context.Context, roomID string, update domain.RoomUpdate) (*domain.ChatRoom, error)
	ListRooms(ctx context.Context, page, pageSize int) ([]domain.RoomSummary, int64, error)
	ListMessages(ctx context.Context, roomID string, page, limit int) ([]domain.ChatMessage, int64, error)
}

// Presence reports live room occupancy.
type Presence interface {
	RoomSize(roomID string) int
}

// ChatActions are the REST operations live members must observe.
type ChatActions interface {
	PostMessage(ctx context.Context, roomID string, author domain.Identity, text string) (*domain.ChatMessage, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// Handler handles HTTP requests for rooms and message history.
type Handler struct {
	store          RoomStore
	presence       Presence
	chat           ChatActions
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(store RoomStore, presence Presence, chat ChatActions, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		store:          store,
		presence:       presence,
		chat:           chat,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1", h.authMiddleware.RequireAuth())
	{
		rooms := api.Group("/rooms")
		{
			rooms.GET("", h.ListRooms)
			rooms.POST("", h.CreateRoom)
			rooms.GET("/:id", h.GetRoom)
			rooms.PUT("/:id", h.UpdateRoom)
			rooms.DELETE("/:id", h.DeleteRoom)
			rooms.GET("/:id/messages", h.ListMessages)
			rooms.POST("/:id/messages", h.PostMessage)
		}
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListRooms lists rooms newest first with message counts.
func (h *Handler) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.ListRoomsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page := max(req.Page, 1)
	pageSize := clamp(req.PageSize, defaultPageSize, maxPageSize)

	rooms, total, err := h.store.ListRooms(ctx, page, pageSize)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list rooms")
		response.InternalError(c, "failed to list rooms")
		return
	}

	response.Success(c, domain.ListRoomsResponse{
		Rooms:      rooms,
		Pagination: domain.NewPagination(page, pageSize, total),
	})
}

// CreateRoom creates a room. The id is generated when the request omits it.
func (h *Handler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	userID := middleware.GetUserID(c)

	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create room request")
		response.BadRequest(c, err.Error())
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		generated, err := gonanoid.Generate(roomIDAlphabet, roomIDSize)
		if err != nil {
			l.Error().Err(err).Msg("failed to generate room id")
			response.InternalError(c, "failed to create room")
			return
		}
		id = generated
	}

	room := &domain.ChatRoom{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	}
	if room.Name == "" {
		response.BadRequest(c, "name is required")
		return
	}

	if err := h.store.CreateRoom(ctx, room); err != nil {
		if errors.Is(err, repository.ErrRoomExists) {
			response.Conflict(c, fmt.Sprintf("room %q already exists", id))
			return
		}
		l.Error().Err(err).Msg("failed to create room")
		response.InternalError(c, "failed to create room")
		return
	}

	audit.LogRoom(ctx, audit.ActionCreateRoom, userID, room.ID, "room created")
	response.Created(c, room)
}

// GetRoom returns a room with its live occupancy.
func (h *Handler) GetRoom(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	room, ok := h.loadRoom(c, roomID)
	if !ok {
		return
	}

	detail := domain.RoomDetail{ChatRoom: *room}
	if h.presence != nil {
		detail.OnlineCount = h.presence.RoomSize(roomID)
	}
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoomID, roomID).Msg("room fetched")
	response.Success(c, detail)
}

// UpdateRoom changes the fields present in the body.
func (h *Handler) UpdateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	roomID := c.Param("id")

	var req domain.UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind update room request")
		response.BadRequest(c, err.Error())
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			response.BadRequest(c, "name must not be blank")
			return
		}
		req.Name = &name
	}

	room, err := h.store.UpdateRoom(ctx, roomID, domain.RoomUpdate{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to update room")
		response.InternalError(c, "failed to update room")
		return
	}

	audit.LogRoom(ctx, audit.ActionUpdateRoom, middleware.GetUserID(c), roomID, "room updated")
	response.Success(c, room)
}

// DeleteRoom deletes a room and its history. Connected members are told and
// released.
func (h *Handler) DeleteRoom(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	if err := h.chat.DeleteRoom(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to delete room")
		response.InternalError(c, "failed to delete room")
		return
	}

	audit.LogRoom(ctx, audit.ActionDeleteRoom, middleware.GetUserID(c), roomID, "room deleted")
	response.Success(c, gin.H{"id": roomID})
}

// PostMessage sends a message as the caller; members on the socket receive
// it as new_message.
func (h *Handler) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	roomID := c.Param("id")

	var req domain.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if _, ok := h.loadRoom(c, roomID); !ok {
		return
	}

	author := domain.Identity{
		UserID:   middleware.GetUserID(c),
		Nickname: middleware.GetNickname(c),
	}
	msg, err := h.chat.PostMessage(ctx, roomID, author, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRoomNotFound):
			response.NotFound(c, "room not found")
		case domain.KindOf(err) == domain.KindInvalidMessage, domain.KindOf(err) == domain.KindValidation:
			response.BadRequest(c, domain.ToErrorMessage(err).Message)
		default:
			l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to post message")
			response.InternalError(c, "failed to send message")
		}
		return
	}

	response.Created(c, msg)
}

// ListMessages pages through a room's history, newest page first.
func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")

	var req domain.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page := max(req.Page, 1)
	limit := clamp(req.Limit, defaultMessageLimit, maxMessageLimit)

	if _, ok := h.loadRoom(c, roomID); !ok {
		return
	}

	messages, total, err := h.store.ListMessages(ctx, roomID, page, limit)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to list messages")
		response.InternalError(c, "failed to list messages")
		return
	}

	response.Success(c, domain.ListMessagesResponse{
		Messages:   messages,
		Pagination: domain.NewPagination(page, limit, total),
	})
}

// loadRoom writes the error response itself when it returns false.
func (h *Handler) loadRoom(c *gin.Context, roomID string) (*domain.ChatRoom, bool) {
	room, err := h.store.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return nil, false
		}
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to get room")
		response.InternalError(c, "failed to get room")
		return nil, false
	}
	return room, true
}

func clamp(v, def, upper int) int {
	if v <= 0 {
		return def
	}
	return min(v, upper)
}
