package reverb

import (
	"context"
	"errors"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// DefaultEventTopic is the topic PublisherBot publishes to unless configured.
const DefaultEventTopic = "reverb.events"

// Metadata keys set on every published message.
const (
	MetadataOp           = "op"
	MetadataEventType    = "event_type"
	MetadataGuildID      = "guild_id"
	MetadataConnectionID = "connection_id"
)

// PublisherBot is a Bot that republishes every event to a watermill
// publisher. The payload is the notification in gateway wire format, so
// consumers decode it with DecodeFrame.
type PublisherBot struct {
	publisher    message.Publisher
	topic        string
	connectionID func() string
	logger       *Logger
}

type PublisherOption func(*PublisherBot)

func WithTopic(topic string) PublisherOption {
	return func(p *PublisherBot) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithConnectionID tags messages with the id of the gateway connection they
// arrived on. Pass (*Gateway).ConnectionID.
func WithConnectionID(fn func() string) PublisherOption {
	return func(p *PublisherBot) {
		p.connectionID = fn
	}
}

func WithPublisherLogger(l *Logger) PublisherOption {
	return func(p *PublisherBot) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewPublisherBot(pub message.Publisher, opts ...PublisherOption) *PublisherBot {
	p := &PublisherBot{
		publisher: pub,
		topic:     DefaultEventTopic,
		logger:    GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("publisher")
	return p
}

func (p *PublisherBot) Topic() string {
	return p.topic
}

// Dispatch implements Bot. Publish failures are logged; the gateway keeps
// dispatching.
func (p *PublisherBot) Dispatch(ev Event) {
	if err := p.Publish(context.Background(), ev.Notification()); err != nil {
		l := p.logger.WithField("event", EventName(ev))
		var rErr *Error
		if errors.As(err, &rErr) {
			l.LogError(rErr)
			return
		}
		l.WithError(err).Error("Failed to publish event")
	}
}

// Publish sends n as one message on the configured topic.
func (p *PublisherBot) Publish(ctx context.Context, n Notification) error {
	payload, err := Encode(n)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataOp, string(n.Op()))
	if te, ok := n.(TrackEvent); ok {
		msg.Metadata.Set(MetadataEventType, string(te.EventType()))
	}
	if guild, ok := GuildOf(n); ok {
		msg.Metadata.Set(MetadataGuildID, strconv.FormatUint(guild, 10))
	}
	if p.connectionID != nil {
		if id := p.connectionID(); id != "" {
			msg.Metadata.Set(MetadataConnectionID, id)
		}
	}

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		pErr := NewError("publish to "+p.topic, ErrCodePublishFailed).AddDetail("topic", p.topic)
		pErr.err = err
		return pErr
	}
	return nil
}

// DecodeMessage turns a message published by PublisherBot back into a
// Notification.
func DecodeMessage(msg *message.Message) (Notification, error) {
	return DecodeFrame(msg.Payload)
}
