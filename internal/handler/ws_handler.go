package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/collabhub/collab-chat/internal/audit"
	"github.com/collabhub/collab-chat/internal/auth"
	"github.com/collabhub/collab-chat/internal/config"
	"github.com/collabhub/collab-chat/internal/domain"
	"github.com/collabhub/collab-chat/internal/hub"
	"github.com/collabhub/collab-chat/internal/service"
	"github.com/collabhub/collab-chat/pkg/log"
	"github.com/collabhub/collab-chat/pkg/middleware"
)

// HandshakeError is the body returned instead of an upgrade when the
// credential is rejected.
type HandshakeError struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind"`
}

type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	verifier *auth.TokenVerifier
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, verifier *auth.TokenVerifier, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		service:  svc,
		verifier: verifier,
		wsCfg:    wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(wsCfg.AllowedOrigins),
		},
	}
}

// checkOrigin allows every origin when the list is empty or holds "*".
func checkOrigin(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWebSocket authenticates the upgrade request and, on success, starts
// the connection's pumps. A rejected credential gets a 401 and no upgrade.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	identity, err := h.verifier.Verify(middleware.BearerToken(c.Request))
	if err != nil {
		kind := auth.Kind(err)
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", string(kind), "websocket handshake rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, HandshakeError{Error: err.Error(), Kind: kind})
		return
	}
	c.Set(middleware.UserIDKey, identity.UserID)
	c.Set(middleware.NicknameKey, identity.Nickname)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), conn, h.wsCfg)
	client.Session.Authenticate(identity)

	// The request context ends when this handler returns; the connection
	// outlives it.
	connLogger := l.With().
		Str(log.FieldClientID, client.ID).
		Str(log.FieldUserID, identity.UserID).
		Logger()
	connCtx := log.WithLogger(context.Background(), connLogger)

	h.hub.Register(client)
	audit.Log(connCtx, audit.ActionConnect, identity.UserID, "client connected")

	go client.WritePump()
	go client.ReadPump(
		func(cl *hub.Client, message []byte) { h.handleMessage(connCtx, cl, message) },
		func(cl *hub.Client) {
			if err := h.service.HandleDisconnect(connCtx, cl); err != nil {
				connLogger.Error().Err(err).Msg("disconnect cleanup failed")
			}
		},
	)
}

func (h *WSHandler) handleMessage(ctx context.Context, client *hub.Client, message []byte) {
	var base domain.BaseMessage
	defer func() {
		if r := recover(); r != nil {
			l := log.Ctx(ctx)
			l.Error().
				Interface("panic", r).
				Str(log.FieldEvent, base.Type).
				Msg("panic in message handler")
			h.reply(ctx, client, base.Type, &domain.ChatError{Kind: domain.KindInternal, Message: "internal server error"})
		}
	}()

	if err := json.Unmarshal(message, &base); err != nil {
		h.reply(ctx, client, "", domain.NewValidationError("invalid message format"))
		return
	}
	if !client.Session.IsAuthenticated() {
		h.reply(ctx, client, base.Type, &domain.ChatError{Kind: domain.KindInvalidCredential, Message: "session is not authenticated"})
		return
	}

	var err error
	switch base.Type {
	case domain.MsgTypeJoinRoom, domain.MsgTypeLeaveRoom, domain.MsgTypeTypingStart, domain.MsgTypeTypingStop:
		var msg domain.RoomMessage
		if err = json.Unmarshal(message, &msg); err != nil {
			err = domain.NewValidationError("invalid " + base.Type + " message")
			break
		}
		err = h.dispatchRoomEvent(ctx, client, base.Type, msg.RoomID)

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageMessage
		if err = json.Unmarshal(message, &msg); err != nil {
			err = domain.NewValidationError("invalid send_message message")
			break
		}
		err = h.service.HandleSendMessage(ctx, client, msg.RoomID, msg.Text)

	case domain.MsgTypePing:
		err = client.SendMessage(&domain.PongMessage{Type: domain.MsgTypePong})
		if err != nil {
			l := log.Ctx(ctx)
			l.Debug().Err(err).Msg("failed to queue pong")
			err = nil
		}

	default:
		err = domain.NewValidationError("unknown message type")
	}

	if err != nil {
		h.reply(ctx, client, base.Type, err)
	}
}

func (h *WSHandler) dispatchRoomEvent(ctx context.Context, client *hub.Client, eventType, roomID string) error {
	switch eventType {
	case domain.MsgTypeJoinRoom:
		return h.service.HandleJoinRoom(ctx, client, roomID)
	case domain.MsgTypeLeaveRoom:
		return h.service.HandleLeaveRoom(ctx, client, roomID)
	case domain.MsgTypeTypingStart:
		return h.service.HandleTyping(ctx, client, roomID, true)
	default:
		return h.service.HandleTyping(ctx, client, roomID, false)
	}
}

// reply reports err to the originating client only.
func (h *WSHandler) reply(ctx context.Context, client *hub.Client, eventType string, err error) {
	kind := domain.KindOf(err)
	l := log.Ctx(ctx)
	evt := l.Debug()
	if kind == domain.KindInternal || kind == domain.KindPersistence {
		evt = l.Error()
	}
	evt.Err(err).Str(log.FieldEvent, eventType).Str(log.FieldErrorKind, string(kind)).Msg("event rejected")

	if sendErr := client.SendMessage(domain.ToErrorMessage(err)); sendErr != nil {
		l.Debug().Err(sendErr).Msg("failed to queue error event")
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chat/ws", h.HandleWebSocket)
}
