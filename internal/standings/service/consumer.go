package service

import (
	"context"

	"contestjudge/internal/common/mq"
	judgerepo "contestjudge/internal/judge/repository"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultConsumerGroup = "contestjudge-standings"

// ConsumeFinalStatus handles one message from the final status topic.
// Undecodable messages are dropped since redelivery cannot fix them.
func (s *StandingsService) ConsumeFinalStatus(ctx context.Context, message *mq.Message) error {
	ev, err := judgerepo.DecodeFinalStatusEvent(message)
	if err != nil {
		logger.Error(ctx, "drop malformed final status event",
			zap.String("message_id", message.ID),
			zap.Error(err),
		)
		return nil
	}
	return s.HandleFinalStatus(ctx, ev)
}

// SubscribeFinalStatus registers the service on the final status topic.
// Every instance holds its own boards, so each instance needs its own group.
// Delivery is at-least-once; redeliveries are absorbed by the board.
func (s *StandingsService) SubscribeFinalStatus(ctx context.Context, consumer mq.Consumer, topic, group string, concurrency int) error {
	if topic == "" {
		topic = judgerepo.DefaultFinalStatusTopic
	}
	if group == "" {
		group = defaultConsumerGroup
	}
	return consumer.SubscribeWithOptions(ctx, topic, s.ConsumeFinalStatus, &mq.SubscribeOptions{
		ConsumerGroup: group,
		Concurrency:   concurrency,
		MaxRetries:    5,
	})
}
