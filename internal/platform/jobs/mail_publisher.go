package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/oesukam/mus-sub000/internal/services"
)

// PubSubMailPublisher publishes transactional mail jobs to a Pub/Sub topic.
// A separate worker consumes the topic and talks to the mail provider, so the
// API never blocks a request on an SMTP round trip.
type PubSubMailPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubMailPublisher constructs a Pub/Sub backed mail job publisher.
func NewPubSubMailPublisher(topic *pubsub.Topic) (*PubSubMailPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub mail publisher: topic is required")
	}
	return &PubSubMailPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderMail enqueues an order mail message and returns the broker
// message identifier.
func (p *PubSubMailPublisher) PublishOrderMail(ctx context.Context, message services.OrderMailMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub mail publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal order mail: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "template", message.Template)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "orderNumber", message.OrderNumber)
	setAttr(attrs, "recipient", message.Recipient)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order mail: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
