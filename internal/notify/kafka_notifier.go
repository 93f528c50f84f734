package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	TargetSend     = "send"
	TargetAnnounce = "announce"
)

// Producer is the subset of client.KafkaProducer used for delivery.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// AlertMessage is the JSON value published for each alert.
type AlertMessage struct {
	Target  string    `json:"target"`
	Channel string    `json:"channel,omitempty"`
	Session string    `json:"session,omitempty"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sentAt"`
}

// KafkaNotifier publishes alerts to a topic consumed by the messaging gateway.
type KafkaNotifier struct {
	producer Producer
	topic    string
	logger   *zap.Logger
	now      func() time.Time
}

func NewKafkaNotifier(producer Producer, topic string, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
	}
}

func (n *KafkaNotifier) Send(ctx context.Context, message string) error {
	return n.publish(ctx, AlertMessage{Target: TargetSend, Text: message})
}

func (n *KafkaNotifier) Announce(ctx context.Context, message string, opts AnnounceOptions) error {
	return n.publish(ctx, AlertMessage{
		Target:  TargetAnnounce,
		Channel: opts.Channel,
		Session: opts.Session,
		Text:    message,
	})
}

func (n *KafkaNotifier) publish(ctx context.Context, msg AlertMessage) error {
	msg.SentAt = n.now().UTC()

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	// Keyed by destination so alerts for one destination stay ordered.
	key := msg.Target + ":" + msg.Channel + ":" + msg.Session
	headers := map[string]string{"target": msg.Target}
	if msg.Channel != "" {
		headers["channel"] = msg.Channel
	}
	if msg.Session != "" {
		headers["session"] = msg.Session
	}

	if err := n.producer.ProduceMessage(ctx, n.topic, []byte(key), value, headers); err != nil {
		return fmt.Errorf("failed to publish alert to %s: %w", n.topic, err)
	}

	n.logger.Debug("Alert published",
		zap.String("topic", n.topic),
		zap.String("target", msg.Target),
		zap.String("channel", msg.Channel),
		zap.String("session", msg.Session),
	)
	return nil
}
