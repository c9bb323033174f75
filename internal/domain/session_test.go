package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_Lifecycle(t *testing.T) {
	s := NewSession("c1")
	assert.Equal(t, StateConnecting, s.State())
	assert.False(t, s.IsAuthenticated())

	s.Authenticate(Identity{UserID: "u1", Nickname: "Alice"})
	assert.Equal(t, StateAuthenticated, s.State())
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "u1", s.Identity().UserID)

	// A second Authenticate does not replace the identity.
	s.Authenticate(Identity{UserID: "u2"})
	assert.Equal(t, "u1", s.Identity().UserID)

	s.AddRoom("general")
	s.AddRoom("general")
	s.AddRoom("design")
	assert.Equal(t, StateInRoom, s.State())

	s.RemoveRoom("design")
	assert.Equal(t, StateInRoom, s.State())
	s.RemoveRoom("general")
	s.RemoveRoom("general")
	assert.Equal(t, StateIdle, s.State())
	assert.True(t, s.IsAuthenticated())

	s.AddRoom("general")
	s.AddRoom("random")
	assert.Equal(t, []string{"general", "random"}, s.Close())
	assert.Nil(t, s.Close())
	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.IsAuthenticated())

	s.AddRoom("general")
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "in_room", StateInRoom.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
}
