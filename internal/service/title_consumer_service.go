package service

import (
	"context"
	"encoding/json"

	"agent-chat-engine/internal/pkg/logger"
	"agent-chat-engine/pkg/events"
	"agent-chat-engine/pkg/session"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// titleConsumerService retitles sessions off the request path: the
// engine publishes turn.completed, this consumer asks the titler for a
// summary. Retitle-once bookkeeping lives in the store.
type titleConsumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	store     *session.Store
	log       logger.ILogger
}

func NewTitleConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	store *session.Store,
	log logger.ILogger,
) IConsumerService {
	return &titleConsumerService{
		pubSub:    pubSub,
		topicName: topicName,
		store:     store,
		log:       log,
	}
}

func (cs *titleConsumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *titleConsumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload events.TurnCompleted
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.log.Error("TitleConsumer", "Failed to unmarshal message", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}

	if payload.SessionID == "" {
		msg.Ack()
		return
	}

	cs.store.MaybeRetitle(ctx, payload.SessionID)
	msg.Ack()
}
