package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/collab-chat/internal/domain"
)

func TestEncodeMessageEvent(t *testing.T) {
	msg := &domain.ChatMessage{
		ID:        "01HZX3J9K6T7Q8R9S0V1W2X3Y4",
		RoomID:    "general",
		Text:      "hi",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		User:      domain.MessageUser{ID: "u1", Nickname: "Alice"},
	}

	data, err := encodeMessageEvent(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "message.created", decoded["event"])
	inner := decoded["message"].(map[string]interface{})
	assert.Equal(t, "general", inner["roomId"])
	assert.Equal(t, "2024-05-01T12:00:00Z", inner["createdAt"])
}

func TestNoopProducer(t *testing.T) {
	var p MessageProducer = NoopProducer{}
	assert.NoError(t, p.ProduceMessage(context.Background(), &domain.ChatMessage{}))
	assert.NoError(t, p.Close())
}
