package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"contestjudge/internal/common/mq"
	"contestjudge/internal/judge/model"
	appErr "contestjudge/pkg/errors"
)

// DefaultFinalStatusTopic carries one FinalStatusEvent per terminal submission.
const DefaultFinalStatusTopic = "judge.final_status"

// MQStatusEventPublisher publishes terminal submissions to a message queue.
// It is registered as a judge terminal handler.
type MQStatusEventPublisher struct {
	queue mq.Producer
	topic string
}

// NewMQStatusEventPublisher creates a new MQ status event publisher.
func NewMQStatusEventPublisher(queue mq.Producer, topic string) *MQStatusEventPublisher {
	if topic == "" {
		topic = DefaultFinalStatusTopic
	}
	return &MQStatusEventPublisher{queue: queue, topic: topic}
}

// HandleTerminal publishes the final status event.
func (p *MQStatusEventPublisher) HandleTerminal(ctx context.Context, sub model.Submission) error {
	if p == nil || p.queue == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("status publisher is not configured")
	}
	if sub.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if !sub.State.IsTerminal() {
		return appErr.Newf(appErr.InvalidParams, "submission %s is not terminal", sub.ID)
	}
	payload, err := json.Marshal(model.NewFinalStatusEvent(sub))
	if err != nil {
		return fmt.Errorf("marshal status event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = sub.ID
	message.SetHeader("contest_id", sub.ContestID)
	message.SetHeader("state", string(sub.State))
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish status event failed")
	}
	return nil
}

// DecodeFinalStatusEvent parses a message published by MQStatusEventPublisher.
func DecodeFinalStatusEvent(message *mq.Message) (model.FinalStatusEvent, error) {
	var ev model.FinalStatusEvent
	if message == nil {
		return ev, fmt.Errorf("nil message")
	}
	if err := json.Unmarshal(message.Body, &ev); err != nil {
		return ev, fmt.Errorf("decode final status event failed: %w", err)
	}
	if ev.SubmissionID == "" {
		return ev, fmt.Errorf("final status event without submission id")
	}
	return ev, nil
}
