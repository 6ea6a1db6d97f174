package service

import (
	"context"
	"encoding/json"
	"time"

	"concept-digest-be/internal/dto"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// EventPublisher forwards domain events off the process.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// consumerService reacts to completed digests: it drops the user's cached
// stats and forwards the event to NATS when a publisher is configured.
type consumerService struct {
	pubSub         *gochannel.GoChannel
	topicName      string
	conceptService IConceptService
	eventPublisher EventPublisher
	logger         logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	conceptService IConceptService,
	eventPublisher EventPublisher,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:         pubSub,
		topicName:      topicName,
		conceptService: conceptService,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
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

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.DigestCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("CONSUMER", "Failed to unmarshal message", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack() // redelivery cannot fix a bad payload
		return
	}

	cs.conceptService.InvalidateStats(payload.UserId)

	if cs.eventPublisher != nil {
		evt := events.DigestCompleted{
			RunId:       payload.RunId.String(),
			UserId:      payload.UserId.String(),
			Title:       payload.Title,
			SourceURL:   payload.SourceURL,
			New:         payload.New,
			Known:       payload.Known,
			NewConcepts: payload.NewConcepts,
			OccurredAt:  time.Now(),
		}
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := cs.eventPublisher.Publish(pubCtx, evt)
		cancel()
		if err != nil {
			cs.logger.Warn("CONSUMER", "Failed to forward digest event", map[string]interface{}{
				"run_id": payload.RunId.String(),
				"error":  err.Error(),
			})
		}
	}

	cs.logger.Info("CONSUMER", "Digest event processed", map[string]interface{}{
		"run_id":  payload.RunId.String(),
		"user_id": payload.UserId.String(),
		"new":     payload.New,
	})
	msg.Ack()
}
