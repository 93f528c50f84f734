package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type produced struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	messages []produced
	err      error
}

func (f *fakeProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, produced{topic, string(key), value, headers})
	return nil
}

func newTestNotifier(p Producer) *KafkaNotifier {
	n := NewKafkaNotifier(p, "whozere.alerts", zap.NewNop())
	n.now = func() time.Time { return time.Date(2026, 2, 7, 2, 30, 0, 0, time.UTC) }
	return n
}

func TestKafkaNotifierAnnounce(t *testing.T) {
	p := &fakeProducer{}
	n := newTestNotifier(p)

	require.NoError(t, n.Announce(context.Background(), "🔔 Login Alert", AnnounceOptions{Channel: "slack"}))
	require.Len(t, p.messages, 1)

	msg := p.messages[0]
	assert.Equal(t, "whozere.alerts", msg.topic)
	assert.Equal(t, map[string]string{"target": "announce", "channel": "slack"}, msg.headers)

	var body AlertMessage
	require.NoError(t, json.Unmarshal(msg.value, &body))
	assert.Equal(t, TargetAnnounce, body.Target)
	assert.Equal(t, "slack", body.Channel)
	assert.Empty(t, body.Session)
	assert.Equal(t, "🔔 Login Alert", body.Text)
	assert.Equal(t, time.Date(2026, 2, 7, 2, 30, 0, 0, time.UTC), body.SentAt)
}

func TestKafkaNotifierSessionAndSend(t *testing.T) {
	p := &fakeProducer{}
	n := newTestNotifier(p)

	require.NoError(t, n.Announce(context.Background(), "a", AnnounceOptions{Session: "main"}))
	require.NoError(t, n.Send(context.Background(), "b"))
	require.Len(t, p.messages, 2)

	assert.Equal(t, map[string]string{"target": "announce", "session": "main"}, p.messages[0].headers)
	assert.Equal(t, map[string]string{"target": "send"}, p.messages[1].headers)
	assert.NotEqual(t, p.messages[0].key, p.messages[1].key)
}

func TestKafkaNotifierPropagatesErrors(t *testing.T) {
	boom := errors.New("broker down")
	n := newTestNotifier(&fakeProducer{err: boom})

	err := n.Send(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Announce(context.Background(), "hello", AnnounceOptions{Channel: "discord"}))
	require.NoError(t, n.Send(context.Background(), "direct"))

	entries := logs.FilterMessage("Alert delivered").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "discord", entries[0].ContextMap()["channel"])
	assert.Equal(t, "send", entries[1].ContextMap()["target"])
}
