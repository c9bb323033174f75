package kafka

import (
	"context"

	"github.com/collabhub/collab-chat/internal/domain"
)

// MessageProducer publishes persisted chat messages to downstream consumers.
type MessageProducer interface {
	ProduceMessage(ctx context.Context, msg *domain.ChatMessage) error
	Close() error
}

// NoopProducer is used when kafka is disabled.
type NoopProducer struct{}

func (NoopProducer) ProduceMessage(context.Context, *domain.ChatMessage) error { return nil }

func (NoopProducer) Close() error { return nil }
