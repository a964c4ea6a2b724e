// Package sessionevents forwards session lifecycle events to a watermill
// publisher, so any watermill backend (gochannel, Redis streams, ...) can
// observe logins, refreshes and logouts.
package sessionevents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/aussiebroadwan/rhsession/pkg/rhsdk"
)

// DefaultTopic is used when no topic is given.
const DefaultTopic = "rhsession.events"

// WatermillPublisher implements rhsdk.EventPublisher using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher publishes every event to topic on publisher.
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{publisher: publisher, topic: topic}
}

// PublishSessionEvent publishes ev as a JSON message. The event type is also
// set as message metadata so subscribers can filter without decoding.
func (p *WatermillPublisher) PublishSessionEvent(ctx context.Context, ev rhsdk.SessionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(ev.Type))
	msg.Metadata.Set("username", ev.Username)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close closes the underlying publisher.
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}
