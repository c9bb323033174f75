package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/collabhub/collab-chat/internal/audit"
	"github.com/collabhub/collab-chat/internal/config"
	"github.com/collabhub/collab-chat/internal/domain"
	"github.com/collabhub/collab-chat/internal/hub"
	"github.com/collabhub/collab-chat/internal/kafka"
	"github.com/collabhub/collab-chat/internal/repository"
	"github.com/collabhub/collab-chat/pkg/log"
)

type chatService struct {
	hub      *hub.Hub
	store    MessageStore
	producer kafka.MessageProducer
	cfg      config.ChatConfig
}

func NewChatService(h *hub.Hub, store MessageStore, producer kafka.MessageProducer, cfg config.ChatConfig) ChatService {
	if producer == nil {
		producer = kafka.NoopProducer{}
	}
	return &chatService{
		hub:      h,
		store:    store,
		producer: producer,
		cfg:      cfg,
	}
}

func (s *chatService) validateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return domain.NewValidationError("roomId is required")
	}
	if s.cfg.MaxRoomIDLength > 0 && utf8.RuneCountInString(roomID) > s.cfg.MaxRoomIDLength {
		return domain.NewValidationError(fmt.Sprintf("roomId exceeds %d characters", s.cfg.MaxRoomIDLength))
	}
	return nil
}

// HandleJoinRoom admits the client, replays recent history to it and
// announces it to the rest of the room. The whole step runs under the
// room's ordering lock so no new_message can slip between the replay and
// the client's first live message.
func (s *chatService) HandleJoinRoom(ctx context.Context, c *hub.Client, roomID string) error {
	if err := s.validateRoomID(roomID); err != nil {
		return err
	}
	identity := c.Session.Identity()

	err := s.hub.Sequence(roomID, func() error {
		_, added, err := s.hub.Join(ctx, roomID, c)
		if err != nil {
			return domain.NewPersistenceError("failed to open room", err)
		}
		c.Session.AddRoom(roomID)

		history, err := s.store.ListRecentMessages(ctx, roomID, s.cfg.ReplayWindow)
		if err != nil {
			if added {
				s.hub.Leave(roomID, c)
				c.Session.RemoveRoom(roomID)
			}
			return domain.NewPersistenceError("failed to load room history", err)
		}

		if err := c.SendMessage(domain.NewRoomJoinedMessage(roomID, history)); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to queue room_joined")
		}

		if added {
			if _, err := s.hub.Broadcast(roomID, domain.NewUserPresenceMessage(domain.MsgTypeUserJoined, roomID, identity), c.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	audit.LogRoom(ctx, audit.ActionJoinRoom, identity.UserID, roomID, "user joined room")
	return nil
}

// HandleLeaveRoom is idempotent.
func (s *chatService) HandleLeaveRoom(ctx context.Context, c *hub.Client, roomID string) error {
	if err := s.validateRoomID(roomID); err != nil {
		return err
	}

	removed := s.hub.Leave(roomID, c)
	c.Session.RemoveRoom(roomID)
	if !removed {
		return nil
	}

	identity := c.Session.Identity()
	if s.cfg.AnnounceLeave {
		s.announceLeave(ctx, roomID, identity, c.ID)
	}
	audit.LogRoom(ctx, audit.ActionLeaveRoom, identity.UserID, roomID, "user left room")
	return nil
}

// HandleSendMessage persists the message and only then broadcasts it to
// every member, sender included.
func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, roomID, text string) error {
	if err := s.validateRoomID(roomID); err != nil {
		return err
	}
	if !s.hub.IsMember(roomID, c.ID) {
		return domain.NewNotInRoomError(roomID)
	}
	text, err := s.validateText(text)
	if err != nil {
		return err
	}

	identity := c.Session.Identity()
	_, err = s.deliver(ctx, roomID, identity, text, func() error {
		// A room delete may have released the membership since the check above.
		if !s.hub.IsMember(roomID, c.ID) {
			return domain.NewNotInRoomError(roomID)
		}
		return nil
	})
	return err
}

// PostMessage is send_message for REST callers. The author need not be
// connected or a member, but the room must exist.
func (s *chatService) PostMessage(ctx context.Context, roomID string, author domain.Identity, text string) (*domain.ChatMessage, error) {
	if err := s.validateRoomID(roomID); err != nil {
		return nil, err
	}
	text, err := s.validateText(text)
	if err != nil {
		return nil, err
	}

	return s.deliver(ctx, roomID, author, text, func() error {
		ok, err := s.store.RoomExists(ctx, roomID)
		if err != nil {
			return domain.NewPersistenceError("failed to load room", err)
		}
		if !ok {
			return repository.ErrRoomNotFound
		}
		return nil
	})
}

func (s *chatService) validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.NewInvalidMessageError("message text is empty")
	}
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(text) > s.cfg.MaxMessageLength {
		return "", domain.NewInvalidMessageError(fmt.Sprintf("message exceeds %d characters", s.cfg.MaxMessageLength))
	}
	return text, nil
}

// deliver runs precheck, persists and broadcasts under the room's ordering
// lock, then publishes the stored message to the event stream.
func (s *chatService) deliver(ctx context.Context, roomID string, author domain.Identity, text string, precheck func() error) (*domain.ChatMessage, error) {
	l := log.Ctx(ctx)
	var stored *domain.ChatMessage
	err := s.hub.Sequence(roomID, func() error {
		if err := precheck(); err != nil {
			return err
		}
		msg, err := s.store.CreateMessage(ctx, roomID, author, text)
		if err != nil {
			l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to save message")
			return domain.NewPersistenceError("failed to save message", err)
		}
		stored = msg

		_, err = s.hub.Broadcast(roomID, domain.NewNewMessageMessage(msg), "")
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.producer.ProduceMessage(ctx, stored); err != nil {
		l.Warn().Err(err).Str(log.FieldMessageID, stored.ID).Msg("failed to publish message")
	}

	l.Debug().Str(log.FieldRoomID, roomID).Str(log.FieldMessageID, stored.ID).Msg("message sent")
	audit.LogRoom(ctx, audit.ActionSendMessage, author.UserID, roomID, "message sent")
	return stored, nil
}

// DeleteRoom runs under the room's ordering lock so no message is stored
// into the room after it is gone.
func (s *chatService) DeleteRoom(ctx context.Context, roomID string) error {
	return s.hub.Sequence(roomID, func() error {
		if err := s.store.DeleteRoom(ctx, roomID); err != nil {
			return err
		}

		if _, err := s.hub.Broadcast(roomID, domain.NewRoomDeletedMessage(roomID), ""); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to announce room deletion")
		}
		for _, c := range s.hub.RemoveRoom(roomID) {
			c.Session.RemoveRoom(roomID)
		}
		return nil
	})
}

// HandleTyping relays typing presence to the other members. Nothing is
// stored, and a client that is not in the room is ignored.
func (s *chatService) HandleTyping(ctx context.Context, c *hub.Client, roomID string, typing bool) error {
	if err := s.validateRoomID(roomID); err != nil {
		return err
	}
	if !s.hub.IsMember(roomID, c.ID) {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldRoomID, roomID).Msg("typing from non-member dropped")
		return nil
	}

	identity := c.Session.Identity()
	var event *domain.UserPresenceMessage
	if typing {
		event = domain.NewUserPresenceMessage(domain.MsgTypeUserTyping, roomID, identity)
	} else {
		event = domain.NewUserPresenceMessage(domain.MsgTypeUserStopTyping, roomID, domain.Identity{UserID: identity.UserID})
	}

	_, err := s.hub.Broadcast(roomID, event, c.ID)
	return err
}

// HandleDisconnect releases every membership, announces the departures when
// configured, and closes the client's outbound queue.
func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	rooms := s.hub.LeaveAll(c)
	c.Session.Close()

	identity := c.Session.Identity()
	if s.cfg.AnnounceLeave {
		for _, roomID := range rooms {
			s.announceLeave(ctx, roomID, identity, c.ID)
		}
	}

	s.hub.Unregister(c)
	audit.LogWithDetail(ctx, audit.ActionDisconnect, identity.UserID, strings.Join(rooms, ","), "client disconnected")
	return nil
}

func (s *chatService) announceLeave(ctx context.Context, roomID string, identity domain.Identity, exclude string) {
	event := domain.NewUserPresenceMessage(domain.MsgTypeUserLeft, roomID, identity)
	if _, err := s.hub.Broadcast(roomID, event, exclude); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to announce leave")
	}
}

func (s *chatService) Stop() error {
	s.hub.Shutdown()
	if err := s.producer.Close(); err != nil {
		l := log.L()
		l.Error().Err(err).Msg("failed to close kafka producer")
	}
	return nil
}
