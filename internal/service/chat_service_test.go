package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/collab-chat/internal/config"
	"github.com/collabhub/collab-chat/internal/domain"
	"github.com/collabhub/collab-chat/internal/hub"
	"github.com/collabhub/collab-chat/internal/repository"
	"github.com/collabhub/collab-chat/internal/store"
)

type event map[string]interface{}

func (e event) Type() string { return e["type"].(string) }

type fixture struct {
	t    *testing.T
	repo *repository.MemoryChatRepository
	hub  *hub.Hub
	svc  ChatService
	ctx  context.Context
}

func defaultChatConfig() config.ChatConfig {
	return config.ChatConfig{
		ReplayWindow:     50,
		MaxMessageLength: 2000,
		MaxRoomIDLength:  100,
	}
}

func newFixture(t *testing.T, cfg config.ChatConfig) *fixture {
	repo := repository.NewMemoryChatRepository()
	st := store.New(repo, nil, 0)
	h := hub.NewHub(st)
	return &fixture{
		t:    t,
		repo: repo,
		hub:  h,
		svc:  NewChatService(h, st, nil, cfg),
		ctx:  context.Background(),
	}
}

func (f *fixture) connect(userID, nickname string) *hub.Client {
	c := hub.NewClient("conn-"+userID, nil, config.WebSocketConfig{SendBuffer: 128})
	c.Session.Authenticate(domain.Identity{UserID: userID, Nickname: nickname})
	f.hub.Register(c)
	return c
}

func (f *fixture) join(c *hub.Client, roomID string) event {
	f.t.Helper()
	require.NoError(f.t, f.svc.HandleJoinRoom(f.ctx, c, roomID))
	events := received(c)
	require.Len(f.t, events, 1)
	require.Equal(f.t, domain.MsgTypeRoomJoined, events[0].Type())
	return events[0]
}

// received drains everything queued for c.
func received(c *hub.Client) []event {
	var out []event
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var e event
			if err := json.Unmarshal(data, &e); err == nil {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

func assertKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, domain.KindOf(err))
}

func TestAliceAndBobConversation(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	alice := f.connect("u-alice", "Alice")
	bob := f.connect("u-bob", "Bob")

	joined := f.join(alice, "general")
	assert.Equal(t, "general", joined["roomId"])
	assert.Equal(t, []interface{}{}, joined["messages"])

	f.join(bob, "general")
	aliceEvents := received(alice)
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, domain.MsgTypeUserJoined, aliceEvents[0].Type())
	assert.Equal(t, "u-bob", aliceEvents[0]["userId"])
	assert.Equal(t, "Bob", aliceEvents[0]["nickname"])

	require.NoError(t, f.svc.HandleSendMessage(f.ctx, alice, "general", "hi"))
	for _, c := range []*hub.Client{alice, bob} {
		events := received(c)
		require.Len(t, events, 1)
		msg := events[0]
		assert.Equal(t, domain.MsgTypeNewMessage, msg.Type())
		assert.Equal(t, "hi", msg["text"])
		assert.Equal(t, "general", msg["roomId"])
		assert.NotEmpty(t, msg["id"])
		assert.NotEmpty(t, msg["createdAt"])
		assert.Equal(t, map[string]interface{}{"id": "u-alice", "nickname": "Alice"}, msg["user"])
	}

	require.NoError(t, f.svc.HandleTyping(f.ctx, bob, "general", true))
	assert.Empty(t, received(bob))
	typing := received(alice)
	require.Len(t, typing, 1)
	assert.Equal(t, domain.MsgTypeUserTyping, typing[0].Type())
	assert.Equal(t, "u-bob", typing[0]["userId"])
	assert.Equal(t, "Bob", typing[0]["nickname"])

	require.NoError(t, f.svc.HandleTyping(f.ctx, bob, "general", false))
	stop := received(alice)
	require.Len(t, stop, 1)
	assert.Equal(t, domain.MsgTypeUserStopTyping, stop[0].Type())
	assert.Equal(t, "u-bob", stop[0]["userId"])
	assert.NotContains(t, stop[0], "nickname")

	history, err := f.repo.ListRecentMessages(f.ctx, "general", 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "u-alice", history[0].User.ID)

	room, err := f.repo.GetRoom(f.ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, "Room general", room.Name)
}

func TestSendMessage_NotInRoom(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	alice := f.connect("u-alice", "Alice")
	bob := f.connect("u-bob", "Bob")
	f.join(bob, "general")

	err := f.svc.HandleSendMessage(f.ctx, alice, "general", "hello")
	assertKind(t, err, domain.KindNotInRoom)

	history, err := f.repo.ListRecentMessages(f.ctx, "general", 50)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, received(bob))
}

func TestSendMessage_MissingRoomID(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	alice := f.connect("u-alice", "Alice")
	f.join(alice, "general")

	assertKind(t, f.svc.HandleSendMessage(f.ctx, alice, "", "hi"), domain.KindValidation)
	assertKind(t, f.svc.HandleSendMessage(f.ctx, alice, "   ", "hi"), domain.KindValidation)
	assert.Empty(t, received(alice))
}

func TestSendMessage_InvalidText(t *testing.T) {
	cfg := defaultChatConfig()
	cfg.MaxMessageLength = 5
	f := newFixture(t, cfg)
	alice := f.connect("u-alice", "Alice")
	f.join(alice, "general")

	assertKind(t, f.svc.HandleSendMessage(f.ctx, alice, "general", "   \t\n"), domain.KindInvalidMessage)
	assertKind(t, f.svc.HandleSendMessage(f.ctx, alice, "general", "toolong"), domain.KindInvalidMessage)

	// Length counts characters, not bytes.
	require.NoError(t, f.svc.HandleSendMessage(f.ctx, alice, "general", "héllo"))
	require.NoError(t, f.svc.HandleSendMessage(f.ctx, alice, "general", "  hey  "))

	events := received(alice)
	require.Len(t, events, 2)
	assert.Equal(t, "hey", events[1]["text"])
}

func TestSendMessage_PersistenceFailureSkipsBroadcast(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	alice := f.connect("u-alice", "Alice")
	bob := f.connect("u-bob", "Bob")
	f.join(alice, "general")
	f.join(bob, "general")
	received(alice)

	f.repo.FailMessages(errors.New("connection reset"))
	err := f.svc.HandleSendMessage(f.ctx, alice, "general", "hi")
	assertKind(t, err, domain.KindPersistence)

	assert.Empty(t, received(alice))
	assert.Empty(t, received(bob))

	msg := domain.ToErrorMessage(err)
	assert.Equal(t, "failed to save message", msg.Message)
	assert.NotContains(t, msg.Message, "connection reset")
}

func TestJoinRoom_ReplaysRecentHistory(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	alice := f.connect("u-alice", "Alice")
	f.join(alice, "general")
	for i := 0; i < 60; i++ {
		require.NoError(t, f.svc.HandleSendMessage(f.ctx, alice, "general", fmt.Sprintf("m%d", i)))
	}
	received(alice)

	bob := f.connect("u-bob", "Bob")
	joined := f.join(bob, "general")
	msgs := joined["messages"].([]interface{})
	require.Len(t, msgs, 50)
	assert.Equal(t, "m10", msgs[0].(map[string]interface{})["text"])
	assert.Equal(t, "m59", msgs[49].(map[string]interface{})["text"])
}

func TestJoinRoom_Twice(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	alice := f.connect("u-alice", "Alice")
	bob := f.connect("u-bob", "Bob")
	f.join(alice, "general")
	f.join(bob, "general")
	f.join(bob, "general")

	events := received(alice)
	require.Len(t, events, 1)
	assert.Equal(t, domain.MsgTypeUserJoined, events[0].Type())
	assert.Equal(t, 2, f.hub.RoomSize("general"))
}

func TestJoinRoom_Validation(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	alice := f.connect("u-alice", "Alice")

	assertKind(t, f.svc.HandleJoinRoom(f.ctx, alice, ""), domain.KindValidation)
	assertKind(t, f.svc.HandleJoinRoom(f.ctx, alice, "  "), domain.KindValidation)
	assertKind(t, f.svc.HandleJoinRoom(f.ctx, alice, strings.Repeat("x", 101)), domain.KindValidation)

	exists, err := f.repo.RoomExists(f.ctx, "")
	require.NoError(t, err)
	assert.False(t, exists)
}

type failingHistory struct {
	MessageStore
}

func (failingHistory) ListRecentMessages(context.Context, string, int) ([]domain.ChatMessage, error) {
	return nil, errors.New("timeout")
}

func TestJoinRoom_HistoryFailureRollsBack(t *testing.T) {
	repo := repository.NewMemoryChatRepository()
	st := store.New(repo, nil, 0)
	h := hub.NewHub(st)
	svc := NewChatService(h, failingHistory{MessageStore: st}, nil, defaultChatConfig())

	c := hub.NewClient("c1", nil, config.WebSocketConfig{SendBuffer: 8})
	c.Session.Authenticate(domain.Identity{UserID: "u1", Nickname: "A"})

	err := svc.HandleJoinRoom(context.Background(), c, "general")
	assertKind(t, err, domain.KindPersistence)
	assert.False(t, h.IsMember("general", "c1"))
	assert.Equal(t, domain.StateIdle, c.Session.State())
	assert.Empty(t, received(c))
}

func TestLeaveRoom(t *testing.T) {
	for _, announce := range []bool{false, true} {
		t.Run(fmt.Sprintf("announce=%v", announce), func(t *testing.T) {
			cfg := defaultChatConfig()
			cfg.AnnounceLeave = announce
			f := newFixture(t, cfg)
			alice := f.connect("u-alice", "Alice")
			bob := f.connect("u-bob", "Bob")
			f.join(alice, "general")
			f.join(bob, "general")
			received(alice)

			require.NoError(t, f.svc.HandleLeaveRoom(f.ctx, bob, "general"))
			require.NoError(t, f.svc.HandleLeaveRoom(f.ctx, bob, "general"))
			assert.Equal(t, domain.StateIdle, bob.Session.State())

			events := received(alice)
			if announce {
				require.Len(t, events, 1)
				assert.Equal(t, domain.MsgTypeUserLeft, events[0].Type())
				assert.Equal(t, "u-bob", events[0]["userId"])
			} else {
				assert.Empty(t, events)
			}

			assertKind(t, f.svc.HandleSendMessage(f.ctx, bob, "general", "hi"), domain.KindNotInRoom)
		})
	}
}

func TestTyping_NonMemberDropped(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	alice := f.connect("u-alice", "Alice")
	bob := f.connect("u-bob", "Bob")
	f.join(alice, "general")

	require.NoError(t, f.svc.HandleTyping(f.ctx, bob, "general", true))
	assert.Empty(t, received(alice))
	assertKind(t, f.svc.HandleTyping(f.ctx, bob, "", true), domain.KindValidation)
}

func TestDisconnect(t *testing.T) {
	for _, announce := range []bool{false, true} {
		t.Run(fmt.Sprintf("announce=%v", announce), func(t *testing.T) {
			cfg := defaultChatConfig()
			cfg.AnnounceLeave = announce
			f := newFixture(t, cfg)
			alice := f.connect("u-alice", "Alice")
			bob := f.connect("u-bob", "Bob")
			f.join(alice, "general")
			f.join(alice, "random")
			f.join(bob, "general")
			received(alice)

			require.NoError(t, f.svc.HandleDisconnect(f.ctx, alice))

			assert.Zero(t, f.hub.RoomSize("random"))
			assert.Equal(t, 1, f.hub.RoomSize("general"))
			assert.False(t, f.hub.IsMember("general", alice.ID))
			assert.True(t, alice.IsClosed())
			assert.Equal(t, domain.StateDisconnected, alice.Session.State())
			assert.Equal(t, 1, f.hub.ClientCount())

			events := received(bob)
			if announce {
				require.Len(t, events, 1)
				assert.Equal(t, domain.MsgTypeUserLeft, events[0].Type())
				assert.Equal(t, "general", events[0]["roomId"])
			} else {
				assert.Empty(t, events)
			}

			require.NoError(t, f.svc.HandleSendMessage(f.ctx, bob, "general", "still here"))
			assert.Len(t, received(bob), 1)
		})
	}
}

func TestSendMessage_ConcurrentSendersSeeSameOrder(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	clients := make([]*hub.Client, 4)
	for i := range clients {
		clients[i] = f.connect(fmt.Sprintf("u%d", i), fmt.Sprintf("User%d", i))
		f.join(clients[i], "general")
	}
	for _, c := range clients {
		received(c)
	}

	done := make(chan struct{})
	for i, c := range clients {
		go func(i int, c *hub.Client) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 10; j++ {
				assert.NoError(t, f.svc.HandleSendMessage(f.ctx, c, "general", fmt.Sprintf("%d-%d", i, j)))
			}
		}(i, c)
	}
	for range clients {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("senders did not finish")
		}
	}

	stored, err := f.repo.ListRecentMessages(f.ctx, "general", 100)
	require.NoError(t, err)
	require.Len(t, stored, 40)

	for _, c := range clients {
		events := received(c)
		require.Len(t, events, 40)
		for k, e := range events {
			assert.Equal(t, stored[k].ID, e["id"])
		}
	}
}

func TestPostMessage_ReachesSocketMembers(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	alice := f.connect("u-alice", "Alice")
	f.join(alice, "general")

	carol := domain.Identity{UserID: "u-carol", Nickname: "Carol"}
	msg, err := f.svc.PostMessage(f.ctx, "general", carol, "  from the api  ")
	require.NoError(t, err)
	assert.Equal(t, "from the api", msg.Text)
	assert.Equal(t, domain.MessageUser{ID: "u-carol", Nickname: "Carol"}, msg.User)

	events := received(alice)
	require.Len(t, events, 1)
	assert.Equal(t, domain.MsgTypeNewMessage, events[0].Type())
	assert.Equal(t, msg.ID, events[0]["id"])

	_, err = f.svc.PostMessage(f.ctx, "general", carol, "  ")
	assertKind(t, err, domain.KindInvalidMessage)

	_, err = f.svc.PostMessage(f.ctx, "nowhere", carol, "hi")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
	exists, err := f.repo.RoomExists(f.ctx, "nowhere")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteRoom_ReleasesMembers(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	alice := f.connect("u-alice", "Alice")
	bob := f.connect("u-bob", "Bob")
	f.join(alice, "general")
	f.join(bob, "general")
	require.NoError(t, f.svc.HandleSendMessage(f.ctx, alice, "general", "hi"))
	received(alice)
	received(bob)

	require.NoError(t, f.svc.DeleteRoom(f.ctx, "general"))

	for _, c := range []*hub.Client{alice, bob} {
		events := received(c)
		require.Len(t, events, 1)
		assert.Equal(t, domain.MsgTypeRoomDeleted, events[0].Type())
		assert.Equal(t, "general", events[0]["roomId"])
		assert.Equal(t, domain.StateIdle, c.Session.State())
	}
	assert.Zero(t, f.hub.RoomSize("general"))
	assertKind(t, f.svc.HandleSendMessage(f.ctx, alice, "general", "still there?"), domain.KindNotInRoom)

	exists, err := f.repo.RoomExists(f.ctx, "general")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.ErrorIs(t, f.svc.DeleteRoom(f.ctx, "general"), repository.ErrRoomNotFound)

	// Joining again recreates the room with an empty history.
	joined := f.join(bob, "general")
	assert.Equal(t, []interface{}{}, joined["messages"])
}

func TestGeneralRoomScenario(t *testing.T) {
	f := newFixture(t, defaultChatConfig())
	u1 := f.connect("u1", "Alice")
	u2 := f.connect("u2", "Bob")

	assert.Equal(t, []interface{}{}, f.join(u1, "general")["messages"])
	f.join(u2, "general")
	joinedEvents := received(u1)
	require.Len(t, joinedEvents, 1)
	assert.Equal(t, event{"type": domain.MsgTypeUserJoined, "roomId": "general", "userId": "u2", "nickname": "Bob"}, joinedEvents[0])

	require.NoError(t, f.svc.HandleSendMessage(f.ctx, u2, "general", "hi"))
	for _, c := range []*hub.Client{u1, u2} {
		events := received(c)
		require.Len(t, events, 1)
		assert.Equal(t, domain.MsgTypeNewMessage, events[0].Type())
		assert.Equal(t, "hi", events[0]["text"])
		assert.Equal(t, "Bob", events[0]["user"].(map[string]interface{})["nickname"])
	}

	err := f.svc.HandleSendMessage(f.ctx, u1, "general", "  ")
	require.Error(t, err)
	assert.Empty(t, received(u1))
	assert.Empty(t, received(u2))

	history, err := f.repo.ListRecentMessages(f.ctx, "general", 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "u2", history[0].User.ID)
}
